package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	orbjson "github.com/paulmach/orb/geojson"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tingold/vectorio"
)

func square(x, y float32) vectorio.Polygon {
	return vectorio.Polygon{Exterior: vectorio.Ring{{x, y, 0}, {x + 1, y, 0}, {x + 1, y + 1, 0}, {x, y + 1, 0}}}
}

// fixture writes three unit squares with name and height attributes.
func fixture(t *testing.T) string {
	t.Helper()
	loc := filepath.Join(t.TempDir(), "squares.fgb")

	cols, err := vectorio.NewColumns(vectorio.Schema{
		{Name: "name", Kind: vectorio.KindString},
		{Name: "height", Kind: vectorio.KindFloat},
	})
	if err != nil {
		t.Fatalf("NewColumns failed: %v", err)
	}
	for i, name := range []string{"a", "b", "c"} {
		row := []vectorio.Value{vectorio.StringValue(name), vectorio.FloatValue(float32(i) + 0.5)}
		if err := cols.AppendRow(row); err != nil {
			t.Fatalf("AppendRow failed: %v", err)
		}
	}

	rc := vectorio.NewRunContext()
	rc.Offset.GetOrInit(0, 0, 0)
	opts := vectorio.DefaultWriterOptions()
	opts.Location = loc
	opts.LayerName = "squares"
	opts.SRS = "EPSG:4326"
	geoms := []vectorio.Geometry{square(10, 10), square(20, 20), square(30, 30)}
	if err := vectorio.NewFeatureWriter(rc, opts).Write(context.Background(), geoms, cols); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	return loc
}

// execute runs the command line and returns its standard output. Flags are
// reset afterwards so that tests do not leak options into each other.
func execute(t *testing.T, args ...string) string {
	t.Helper()
	defer resetFlags()

	var out bytes.Buffer
	Root.SetOut(&out)
	Root.SetArgs(args)
	if err := Root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("%s failed: %v", args[0], err)
	}
	return out.String()
}

func resetFlags() {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	Root.PersistentFlags().VisitAll(reset)
	for _, c := range Root.Commands() {
		c.Flags().VisitAll(reset)
	}
}

func TestVersion(t *testing.T) {
	out := execute(t, "version")
	if want := "vectorio v" + Version; !strings.Contains(out, want) {
		t.Errorf("version printed %q, want %q", out, want)
	}
}

func TestInfo(t *testing.T) {
	loc := fixture(t)
	out := execute(t, "info", loc)

	for _, want := range []string{"1 layer(s)", "squares", "Polygon", "features: 3", "height", "name", "indexed:  false"} {
		if !strings.Contains(out, want) {
			t.Errorf("info output missing %q:\n%s", want, out)
		}
	}
}

func TestTranslate(t *testing.T) {
	src := fixture(t)
	dir := t.TempDir()
	dst := filepath.Join(dir, "out", "squares.sqlite")

	renames := filepath.Join(dir, "rename.toml")
	if err := os.WriteFile(renames, []byte("[rename]\nname = \"label\"\nheight = \"ignored\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	execute(t, "translate", src, dst,
		"--create-directories",
		"--layer-name", "blocks",
		"--rename-file", renames,
		"--rename", `{"height":"h"}`,
	)

	rc := vectorio.NewRunContext()
	table, err := vectorio.ReadLayer(context.Background(), rc, &vectorio.ReaderOptions{Location: dst})
	if err != nil {
		t.Fatalf("ReadLayer failed: %v", err)
	}
	if table.Len() != 3 {
		t.Fatalf("read %d features, want 3", table.Len())
	}
	schema := table.Attributes.Schema()
	if schema.Index("label") < 0 || schema.Index("h") < 0 {
		t.Fatalf("schema = %v, want label and h", schema)
	}
	if got := table.Attributes.Values("label")[2].Str(); got != "c" {
		t.Errorf("label[2] = %q, want c", got)
	}

	off, ok := rc.Offset.Value()
	if !ok {
		t.Fatal("offset not set")
	}
	p := table.Geometries[0].(vectorio.Polygon)
	abs := rc.Offset.ToAbsolute(p.Exterior[0])
	if abs[0] < 10 || abs[0] > 11 || abs[1] < 10 || abs[1] > 11 {
		t.Errorf("first vertex %v with offset %v, want inside the first square", abs, off)
	}

	out := execute(t, "info", dst)
	if !strings.Contains(out, "blocks") || !strings.Contains(out, "EPSG:4326") {
		t.Errorf("info output missing layer name or srs:\n%s", out)
	}
}

func TestDump(t *testing.T) {
	loc := fixture(t)

	tests := []struct {
		name  string
		args  []string
		names []string
	}{
		{"all", nil, []string{"a", "b", "c"}},
		{"bbox", []string{"--bbox", "9,9,12,12"}, []string{"a"}},
		{"bbox two", []string{"--bbox", "15,15,40,40"}, []string{"b", "c"}},
		{"bbox empty", []string{"--bbox", "100,100,101,101"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := execute(t, append([]string{"dump", loc}, tt.args...)...)
			fc, err := orbjson.UnmarshalFeatureCollection([]byte(out))
			if err != nil {
				t.Fatalf("UnmarshalFeatureCollection failed: %v", err)
			}
			if len(fc.Features) != len(tt.names) {
				t.Fatalf("dumped %d features, want %d", len(fc.Features), len(tt.names))
			}
			for i, f := range fc.Features {
				if got := f.Properties.MustString("name", ""); got != tt.names[i] {
					t.Errorf("feature %d name = %q, want %q", i, got, tt.names[i])
				}
				if _, ok := f.Geometry.(orb.Polygon); !ok {
					t.Errorf("feature %d geometry is %T, want orb.Polygon", i, f.Geometry)
				}
			}
		})
	}
}

func TestServer(t *testing.T) {
	loc := fixture(t)
	ds, err := vectorio.Open(context.Background(), loc, "")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	srv, err := newServer(ds, 0, "")
	ds.Close()
	if err != nil {
		t.Fatalf("newServer failed: %v", err)
	}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	get := func(path string) (*http.Response, []byte) {
		t.Helper()
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("reading %s failed: %v", path, err)
		}
		return resp, body
	}

	resp, body := get("/data.fgb")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/data.fgb status %d", resp.StatusCode)
	}
	if !bytes.HasPrefix(body, []byte("fgb")) {
		t.Errorf("/data.fgb does not start with the FlatGeobuf magic bytes")
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("/data.fgb is missing the CORS header")
	}

	resp, body = get("/data.geojson")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/data.geojson status %d", resp.StatusCode)
	}
	fc, err := orbjson.UnmarshalFeatureCollection(body)
	if err != nil {
		t.Fatalf("UnmarshalFeatureCollection failed: %v", err)
	}
	if len(fc.Features) != 3 {
		t.Errorf("/data.geojson has %d features, want 3", len(fc.Features))
	}

	if resp, _ := get("/index.html"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("/index.html status %d without a client dir, want 404", resp.StatusCode)
	}
}

func TestParseBBox(t *testing.T) {
	tests := []struct {
		in      string
		want    orb.Bound
		wantErr bool
	}{
		{"0,1,2,3", orb.Bound{Min: orb.Point{0, 1}, Max: orb.Point{2, 3}}, false},
		{" -1.5, -2 ,3,4 ", orb.Bound{Min: orb.Point{-1.5, -2}, Max: orb.Point{3, 4}}, false},
		{"0,1,2", orb.Bound{}, true},
		{"0,1,x,3", orb.Bound{}, true},
		{"5,0,1,1", orb.Bound{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseBBox(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseBBox(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseBBox(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestGetStringMapString(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  map[string]string
	}{
		{"json", `{"a":"b","c":""}`, map[string]string{"a": "b", "c": ""}},
		{"empty", "", map[string]string{}},
		{"config file", map[string]interface{}{"a": "b"}, map[string]string{"a": "b"}},
		{"unset", nil, map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := viper.New()
			if tt.value != nil {
				cfg.Set("rename", tt.value)
			}
			got, err := getStringMapString("rename", cfg)
			if err != nil {
				t.Fatalf("getStringMapString failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("got[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}

	cfg := viper.New()
	cfg.Set("rename", `{"a":`)
	if _, err := getStringMapString("rename", cfg); err == nil {
		t.Error("expected an error for malformed JSON")
	}
}
