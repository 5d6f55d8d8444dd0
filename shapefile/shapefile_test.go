package shapefile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/tingold/vectorio"
)

const testWKT = `PROJCS["Amersfoort / RD New",GEOGCS["Amersfoort",DATUM["Amersfoort",SPHEROID["Bessel 1841",6377397.155,299.1528128]]]]`

var testFields = []vectorio.FieldDefn{
	{Name: "name", Type: vectorio.FieldString},
	{Name: "floors", Type: vectorio.FieldInteger},
	{Name: "volume", Type: vectorio.FieldInteger64},
	{Name: "height", Type: vectorio.FieldReal},
	{Name: "public", Type: vectorio.FieldInteger, SubType: vectorio.SubTypeBoolean},
	{Name: "built", Type: vectorio.FieldDate},
	{Name: "labels", Type: vectorio.FieldIntegerList},
	{Name: "building_part_id", Type: vectorio.FieldString},
}

// Exterior clockwise, hole counter-clockwise.
var (
	outer = []geom.Coord{{0, 0, 1}, {0, 10, 1}, {10, 10, 1}, {10, 0, 1}, {0, 0, 1}}
	hole  = []geom.Coord{{2, 2, 1}, {4, 2, 1}, {4, 4, 1}, {2, 4, 1}, {2, 2, 1}}
	other = []geom.Coord{{20, 0, 2}, {20, 5, 2}, {25, 5, 2}, {20, 0, 2}}
)

func createLayer(t *testing.T, path, srs string, gtype vectorio.GeometryType, fields []vectorio.FieldDefn) (vectorio.Dataset, vectorio.Layer) {
	t.Helper()
	ds, err := vectorio.OpenOrCreate(context.Background(), path, "")
	require.NoError(t, err)
	l, err := ds.CreateLayer(vectorio.LayerSpec{Name: "ignored", SRS: srs, GeometryType: gtype})
	require.NoError(t, err)
	for _, f := range fields {
		require.NoError(t, l.CreateField(f))
	}
	return ds, l
}

func readAll(t *testing.T, path string) (vectorio.Layer, []vectorio.Record) {
	t.Helper()
	ds, err := vectorio.Open(context.Background(), path, "")
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	l, err := ds.Layer(0)
	require.NoError(t, err)

	var recs []vectorio.Record
	it := l.Features()
	for it.Next() {
		recs = append(recs, it.Record())
	}
	require.NoError(t, it.Err())
	return l, recs
}

func TestDriver_Match(t *testing.T) {
	d := driver{}
	assert.True(t, d.Match("roads.shp"))
	assert.True(t, d.Match("/data/ROADS.SHP"))
	assert.False(t, d.Match("roads.dbf"))
	assert.False(t, d.Match("roads.fgb"))
}

func TestDataset_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buildings.shp")
	ds, l := createLayer(t, path, testWKT, vectorio.GeometryPolygon, testFields)

	values := []vectorio.Value{
		vectorio.StringValue("town hall"),
		vectorio.IntValue(3),
		vectorio.IntValue(1 << 40),
		vectorio.FloatValue(12.5),
		vectorio.BoolValue(true),
		vectorio.DateValue(vectorio.Date{Year: 2024, Month: 3, Day: 5}),
		vectorio.IntListValue([]int64{1, 2}),
		vectorio.StringValue("part-1"),
	}
	require.NoError(t, l.CreateFeature(vectorio.Record{
		Geometry: geom.NewPolygon(geom.XYZ).MustSetCoords([][]geom.Coord{outer, hole}),
		Values:   values,
	}))
	require.NoError(t, l.CreateFeature(vectorio.Record{
		Geometry: geom.NewMultiPolygon(geom.XYZ).MustSetCoords([][][]geom.Coord{{outer}, {other}}),
		Values:   []vectorio.Value{vectorio.StringValue("annex"), {}, {}, {}, vectorio.BoolValue(false)},
	}))
	require.NoError(t, l.CreateFeature(vectorio.Record{}))
	require.NoError(t, ds.Close())

	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj", ".cpg"} {
		assert.FileExists(t, strings.TrimSuffix(path, ".shp")+ext)
	}

	got, recs := readAll(t, path)
	assert.Equal(t, "buildings", got.Name())
	assert.Equal(t, testWKT, got.SRS())
	assert.Equal(t, vectorio.GeometryPolygon, got.GeometryType())
	assert.Equal(t, []vectorio.FieldDefn{
		{Name: "name", Type: vectorio.FieldString},
		{Name: "floors", Type: vectorio.FieldInteger},
		{Name: "volume", Type: vectorio.FieldInteger64},
		{Name: "height", Type: vectorio.FieldReal},
		{Name: "public", Type: vectorio.FieldInteger, SubType: vectorio.SubTypeBoolean},
		{Name: "built", Type: vectorio.FieldDate},
		{Name: "labels", Type: vectorio.FieldString},
		{Name: "building_p", Type: vectorio.FieldString},
	}, got.Fields())
	require.Len(t, recs, 3)

	p, ok := recs[0].Geometry.(*geom.Polygon)
	require.True(t, ok, "got %T", recs[0].Geometry)
	assert.Equal(t, [][]geom.Coord{outer, hole}, p.Coords())
	assert.Equal(t, []vectorio.Value{
		vectorio.StringValue("town hall"),
		vectorio.IntValue(3),
		vectorio.IntValue(1 << 40),
		vectorio.FloatValue(12.5),
		vectorio.BoolValue(true),
		vectorio.DateValue(vectorio.Date{Year: 2024, Month: 3, Day: 5}),
		vectorio.StringValue("[1,2]"),
		vectorio.StringValue("part-1"),
	}, recs[0].Values)

	mp, ok := recs[1].Geometry.(*geom.MultiPolygon)
	require.True(t, ok, "got %T", recs[1].Geometry)
	assert.Equal(t, [][][]geom.Coord{{outer}, {other}}, mp.Coords())
	assert.Equal(t, "annex", recs[1].Values[0].Str())
	assert.True(t, recs[1].Values[1].IsAbsent())
	assert.True(t, recs[1].Values[3].IsAbsent())
	assert.Equal(t, vectorio.BoolValue(false), recs[1].Values[4])
	assert.True(t, recs[1].Values[7].IsAbsent())

	assert.Nil(t, recs[2].Geometry)
	assert.Equal(t, int64(2), recs[2].FID)
}

func TestDataset_LineStrings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roads.shp")
	ds, l := createLayer(t, path, "", vectorio.GeometryLineString, nil)

	line := []geom.Coord{{0, 0, 0}, {1, 1, 5}}
	require.NoError(t, l.CreateFeature(vectorio.Record{Geometry: geom.NewLineString(geom.XYZ).MustSetCoords(line)}))
	require.NoError(t, l.CreateFeature(vectorio.Record{
		Geometry: geom.NewMultiLineString(geom.XY).MustSetCoords([][]geom.Coord{{{0, 0}, {1, 0}}, {{5, 5}, {6, 6}}}),
	}))
	err := l.CreateFeature(vectorio.Record{Geometry: geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{1, 1})})
	assert.ErrorIs(t, err, vectorio.ErrUnsupportedGeometry)
	require.NoError(t, ds.Close())

	got, recs := readAll(t, path)
	assert.Equal(t, vectorio.GeometryLineString, got.GeometryType())
	assert.Empty(t, got.SRS())
	require.Len(t, recs, 2)
	assert.Equal(t, line, recs[0].Geometry.(*geom.LineString).Coords())
	assert.Equal(t, [][]geom.Coord{{{0, 0, 0}, {1, 0, 0}}, {{5, 5, 0}, {6, 6, 0}}},
		recs[1].Geometry.(*geom.MultiLineString).Coords())
	assert.Nil(t, recs[0].Values)
}

func TestDataset_UnknownTypeTakesFirstGeometry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mixed.shp")
	ds, l := createLayer(t, path, "EPSG:28992", vectorio.GeometryUnknown, nil)

	line := []geom.Coord{{0, 0, 0}, {1, 1, 0}}
	require.NoError(t, l.CreateFeature(vectorio.Record{}))
	require.NoError(t, l.CreateFeature(vectorio.Record{Geometry: geom.NewLineString(geom.XYZ).MustSetCoords(line)}))
	err := l.CreateFeature(vectorio.Record{Geometry: geom.NewPoint(geom.XYZ).MustSetCoords(geom.Coord{1, 2, 3})})
	assert.ErrorIs(t, err, vectorio.ErrUnsupportedGeometry)
	require.NoError(t, ds.Close())

	// Authority codes are not written to .prj.
	assert.NoFileExists(t, strings.TrimSuffix(path, ".shp")+".prj")

	got, recs := readAll(t, path)
	assert.Equal(t, vectorio.GeometryLineString, got.GeometryType())
	require.Len(t, recs, 2)
	assert.Nil(t, recs[0].Geometry)
	assert.Equal(t, line, recs[1].Geometry.(*geom.LineString).Coords())
}

func TestDataset_PointAfterMissingGeometry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.shp")
	ds, l := createLayer(t, path, "", vectorio.GeometryUnknown, nil)
	defer ds.Close()

	// A point file has no way to store a feature without geometry.
	require.NoError(t, l.CreateFeature(vectorio.Record{}))
	err := l.CreateFeature(vectorio.Record{Geometry: geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{1, 2})})
	assert.ErrorIs(t, err, vectorio.ErrUnsupportedGeometry)
	assert.Equal(t, int64(1), l.FeatureCount())
}

func TestDataset_SingleLayer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "single.shp")
	ds, _ := createLayer(t, path, "", vectorio.GeometryPoint, nil)
	defer ds.Close()

	_, err := ds.CreateLayer(vectorio.LayerSpec{GeometryType: vectorio.GeometryPoint})
	assert.ErrorIs(t, err, ErrSingleLayer)

	l, err := ds.CreateLayer(vectorio.LayerSpec{
		GeometryType: vectorio.GeometryPolygon,
		Options:      map[string]string{"OVERWRITE": "YES"},
	})
	require.NoError(t, err)
	assert.Equal(t, vectorio.GeometryPolygon, l.GeometryType())
	assert.Equal(t, 1, ds.LayerCount())

	_, err = ds.Layer(1)
	assert.ErrorIs(t, err, vectorio.ErrLayerIndexOutOfRange)
	_, err = ds.LayerByName("other")
	assert.ErrorIs(t, err, vectorio.ErrNoSuchLayer)
	byName, err := ds.LayerByName("single")
	require.NoError(t, err)
	assert.Same(t, l, byName)
}

func TestDataset_ReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ro.shp")
	ds, l := createLayer(t, path, "", vectorio.GeometryPoint, testFields[:1])
	require.NoError(t, l.CreateFeature(vectorio.Record{
		Geometry: geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{1, 1}),
		Values:   []vectorio.Value{vectorio.StringValue("a")},
	}))
	require.NoError(t, ds.Close())
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	ro, err := vectorio.Open(context.Background(), path, "")
	require.NoError(t, err)
	rl, err := ro.Layer(0)
	require.NoError(t, err)
	assert.ErrorIs(t, rl.CreateField(vectorio.FieldDefn{Name: "x"}), ErrReadOnly)
	assert.ErrorIs(t, rl.CreateFeature(vectorio.Record{}), ErrReadOnly)
	_, err = ro.CreateLayer(vectorio.LayerSpec{})
	assert.ErrorIs(t, err, ErrReadOnly)
	require.NoError(t, ro.Close())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDataset_Append(t *testing.T) {
	path := filepath.Join(t.TempDir(), "append.shp")
	ds, l := createLayer(t, path, "", vectorio.GeometryPoint, testFields[:2])
	require.NoError(t, l.CreateFeature(vectorio.Record{
		Geometry: geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{1, 1}),
		Values:   []vectorio.Value{vectorio.StringValue("first"), vectorio.IntValue(1)},
	}))
	require.NoError(t, ds.Close())

	ds, err := vectorio.OpenOrCreate(context.Background(), path, "")
	require.NoError(t, err)
	l, err = ds.Layer(0)
	require.NoError(t, err)
	require.NoError(t, l.CreateFeature(vectorio.Record{
		Geometry: geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{2, 2}),
		Values:   []vectorio.Value{vectorio.StringValue("second and longer"), vectorio.IntValue(2)},
	}))
	require.NoError(t, ds.Close())

	_, recs := readAll(t, path)
	require.Len(t, recs, 2)
	assert.Equal(t, "first", recs[0].Values[0].Str())
	assert.Equal(t, "second and longer", recs[1].Values[0].Str())
	assert.Equal(t, int64(2), recs[1].Values[1].Int())
	assert.Equal(t, int64(1), recs[1].FID)
}

func TestLayer_Capabilities(t *testing.T) {
	path := filepath.Join(t.TempDir(), "caps.shp")
	ds, l := createLayer(t, path, "", vectorio.GeometryPolygon, nil)
	defer ds.Close()

	assert.False(t, ds.SupportsTransactions())
	assert.ErrorIs(t, ds.BeginTransaction(), ErrNoTransactions)
	assert.ErrorIs(t, ds.CommitTransaction(), ErrNoTransactions)

	require.Implements(t, (*vectorio.RingWinder)(nil), l)
	assert.True(t, l.(vectorio.RingWinder).ClockwiseExterior())
	require.Implements(t, (*vectorio.SubTypeSupporter)(nil), l)
	assert.True(t, l.(vectorio.SubTypeSupporter).SupportsSubType(vectorio.SubTypeBoolean))
}

func TestLayer_CreateFeature_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.shp")
	ds, l := createLayer(t, path, "", vectorio.GeometryPoint, testFields[:2])
	defer ds.Close()

	tests := []struct {
		name string
		rec  vectorio.Record
	}{
		{"too many values", vectorio.Record{Values: make([]vectorio.Value, 3)}},
		{"string too long", vectorio.Record{
			Geometry: geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{0, 0}),
			Values:   []vectorio.Value{vectorio.StringValue(strings.Repeat("x", 300))},
		}},
		{"not an integer", vectorio.Record{
			Geometry: geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{0, 0}),
			Values:   []vectorio.Value{{}, vectorio.StringValue("many")},
		}},
		{"point without geometry", vectorio.Record{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, l.CreateFeature(tt.rec))
		})
	}
	assert.Equal(t, int64(0), l.FeatureCount())
}

func TestDriver_CreateNeedsShpExtension(t *testing.T) {
	_, err := driver{}.Create(context.Background(), filepath.Join(t.TempDir(), "out.dbf"))
	assert.ErrorIs(t, err, ErrNotShapefile)

	_, err = driver{}.Create(context.Background(), filepath.Join(t.TempDir(), "missing", "out.shp"))
	assert.Error(t, err)
}

func TestDriver_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.shp")
	ds, l := createLayer(t, path, testWKT, vectorio.GeometryPoint, nil)
	require.NoError(t, l.CreateFeature(vectorio.Record{Geometry: geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{0, 0})}))
	require.NoError(t, ds.Close())

	require.NoError(t, vectorio.Remove(context.Background(), path, ""))
	for _, ext := range sidecars {
		assert.NoFileExists(t, strings.TrimSuffix(path, ".shp")+ext)
	}
	// Removing again is not an error.
	assert.NoError(t, vectorio.Remove(context.Background(), path, ""))
}

func TestLaunder(t *testing.T) {
	taken := make(map[string]bool)
	tests := []struct {
		in, want string
	}{
		{"name", "name"},
		{"building_part_id", "building_p"},
		{"building_part_name", "building_1"},
		{"NAME", "NAME_1"},
		{"", "field"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, launder(tt.in, taken), tt.in)
	}
}

func TestFromShape_RingGrouping(t *testing.T) {
	// Clockwise outer, counter-clockwise hole, clockwise outer.
	pts := []shp.Point{
		{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0},
		{X: 2, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 4}, {X: 2, Y: 2},
		{X: 20, Y: 0}, {X: 20, Y: 5}, {X: 25, Y: 5}, {X: 20, Y: 0},
	}
	s := &shp.Polygon{NumParts: 3, NumPoints: int32(len(pts)), Parts: []int32{0, 5, 9}, Points: pts}

	g, err := fromShape(s)
	require.NoError(t, err)
	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok, "got %T", g)
	assert.Equal(t, geom.XY, mp.Layout())
	require.Equal(t, 2, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())
	assert.Equal(t, 1, mp.Polygon(1).NumLinearRings())
}

func TestFromShape_BadParts(t *testing.T) {
	s := &shp.PolyLine{NumParts: 2, NumPoints: 2, Parts: []int32{0, 5}, Points: []shp.Point{{}, {X: 1}}}
	_, err := fromShape(s)
	assert.ErrorIs(t, err, vectorio.ErrInvalidGeometry)
}

func TestColumn_Decode(t *testing.T) {
	tests := []struct {
		name string
		col  column
		raw  string
		want vectorio.Value
	}{
		{"unwritten", newColumn(vectorio.FieldDefn{Type: vectorio.FieldInteger}), "\x00\x00\x00", vectorio.Value{}},
		{"padded number", newColumn(vectorio.FieldDefn{Type: vectorio.FieldInteger}), "42", vectorio.IntValue(42)},
		{"logical unknown", newColumn(vectorio.FieldDefn{Type: vectorio.FieldInteger, SubType: vectorio.SubTypeBoolean}), "?", vectorio.Value{}},
		{"logical yes", newColumn(vectorio.FieldDefn{Type: vectorio.FieldInteger, SubType: vectorio.SubTypeBoolean}), "Y", vectorio.BoolValue(true)},
		{"date", newColumn(vectorio.FieldDefn{Type: vectorio.FieldDate}), "19991231", vectorio.DateValue(vectorio.Date{Year: 1999, Month: 12, Day: 31})},
		{"binary", newColumn(vectorio.FieldDefn{Type: vectorio.FieldBinary}), "abc", vectorio.Value{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.col.decode(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
