package main

import (
	"github.com/paulmach/orb"
	orbjson "github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"

	"github.com/tingold/vectorio"
	"github.com/tingold/vectorio/internal/geojson"
)

// searcher is implemented by layers with a spatial index.
type searcher interface {
	Search(b orb.Bound) ([]vectorio.Record, error)
}

var dumpCmd = &cobra.Command{
	Use:   "dump <location>",
	Short: "Print a layer as GeoJSON",
	Long: `dump writes one layer of a dataset to standard output as a GeoJSON
FeatureCollection in the dataset's own coordinates.`,
	Args:              cobra.ExactArgs(1),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := vectorio.Open(cmd.Context(), args[0], Cfg.GetString("input-format"))
		if err != nil {
			return err
		}
		defer ds.Close()
		layer, err := ds.Layer(Cfg.GetInt("layer"))
		if err != nil {
			return err
		}

		var fc *orbjson.FeatureCollection
		if s := Cfg.GetString("bbox"); s != "" {
			b, err := parseBBox(s)
			if err != nil {
				return err
			}
			recs, err := search(layer, b)
			if err != nil {
				return err
			}
			fc = geojson.Records(recs, layer.Fields())
		} else if fc, err = geojson.FeatureCollection(layer); err != nil {
			return err
		}

		data, err := fc.MarshalJSON()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if _, err := out.Write(data); err != nil {
			return err
		}
		_, err = out.Write([]byte("\n"))
		return err
	},
}

// search returns the features of layer intersecting b.
func search(layer vectorio.Layer, b orb.Bound) ([]vectorio.Record, error) {
	if s, ok := layer.(searcher); ok {
		return s.Search(b)
	}
	var recs []vectorio.Record
	it := layer.Features()
	for it.Next() {
		rec := it.Record()
		if g := geojson.Geometry(rec.Geometry); g != nil && g.Bound().Intersects(b) {
			recs = append(recs, rec)
		}
	}
	return recs, it.Err()
}
