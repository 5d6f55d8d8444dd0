package main

import (
	"bytes"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tingold/vectorio"
	"github.com/tingold/vectorio/flatgeobuf"
	"github.com/tingold/vectorio/internal/geojson"
)

var serveCmd = &cobra.Command{
	Use:   "serve <location>",
	Short: "Serve a layer over HTTP",
	Long: `serve encodes one layer of a dataset once and serves it as /data.fgb
(FlatGeobuf) and /data.geojson. Any other path is served from client-dir
when it is set.`,
	Args:              cobra.ExactArgs(1),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := vectorio.Open(cmd.Context(), args[0], Cfg.GetString("input-format"))
		if err != nil {
			return err
		}
		srv, err := newServer(ds, Cfg.GetInt("layer"), Cfg.GetString("client-dir"))
		ds.Close()
		if err != nil {
			return err
		}

		addr := Cfg.GetString("addr")
		logrus.WithFields(logrus.Fields{
			"addr":     addr,
			"location": args[0],
		}).Info("server starting")
		return http.ListenAndServe(addr, srv)
	},
}

// server serves the encoded layer.
type server struct {
	fgb     []byte
	geojson []byte
	static  http.Handler
}

// newServer encodes layer index of ds. FlatGeobuf datasets are served as
// stored; other layers are encoded with a spatial index.
func newServer(ds vectorio.Dataset, index int, clientDir string) (*server, error) {
	layer, err := ds.Layer(index)
	if err != nil {
		return nil, err
	}

	s := &server{}
	var buf bytes.Buffer
	if fds, ok := ds.(*flatgeobuf.Dataset); ok {
		if _, err := fds.WriteTo(&buf); err != nil {
			return nil, err
		}
	} else {
		var recs []vectorio.Record
		it := layer.Features()
		for it.Next() {
			recs = append(recs, it.Record())
		}
		if err := it.Err(); err != nil {
			return nil, err
		}
		opts := &flatgeobuf.Options{
			Name:         layer.Name(),
			IncludeIndex: true,
			CRS:          flatgeobuf.ParseSRS(layer.SRS()),
		}
		if err := flatgeobuf.Write(&buf, layer.GeometryType(), layer.Fields(), recs, opts); err != nil {
			return nil, err
		}
	}
	s.fgb = buf.Bytes()

	fc, err := geojson.FeatureCollection(layer)
	if err != nil {
		return nil, err
	}
	if s.geojson, err = fc.MarshalJSON(); err != nil {
		return nil, err
	}

	if clientDir != "" {
		s.static = http.FileServer(http.Dir(clientDir))
	}
	return s, nil
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logrus.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Debug("request")

	switch r.URL.Path {
	case "/data.fgb":
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Write(s.fgb)
	case "/data.geojson":
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Write(s.geojson)
	default:
		if s.static == nil {
			http.NotFound(w, r)
			return
		}
		s.static.ServeHTTP(w, r)
	}
}
