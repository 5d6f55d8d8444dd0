package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/tingold/vectorio"
)

var testFields = []vectorio.FieldDefn{
	{Name: "name", Type: vectorio.FieldString},
	{Name: "floors", Type: vectorio.FieldInteger},
	{Name: "volume", Type: vectorio.FieldInteger64},
	{Name: "height", Type: vectorio.FieldReal},
	{Name: "public", Type: vectorio.FieldInteger, SubType: vectorio.SubTypeBoolean},
	{Name: "built", Type: vectorio.FieldDate},
	{Name: "opens", Type: vectorio.FieldTime},
	{Name: "surveyed", Type: vectorio.FieldDateTime},
	{Name: "labels", Type: vectorio.FieldIntegerList},
	{Name: "thumbnail", Type: vectorio.FieldBinary},
}

func testPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "layers.sqlite")
}

func create(t *testing.T, path string) vectorio.Dataset {
	t.Helper()
	ds, err := vectorio.OpenOrCreate(context.Background(), path, "")
	require.NoError(t, err)
	return ds
}

func createLayer(t *testing.T, ds vectorio.Dataset, name string, fields []vectorio.FieldDefn) vectorio.Layer {
	t.Helper()
	l, err := ds.CreateLayer(vectorio.LayerSpec{Name: name, SRS: "EPSG:7415", GeometryType: vectorio.GeometryPolygon})
	require.NoError(t, err)
	for _, f := range fields {
		require.NoError(t, l.CreateField(f))
	}
	return l
}

func records(t *testing.T, l vectorio.Layer) []vectorio.Record {
	t.Helper()
	var recs []vectorio.Record
	it := l.Features()
	for it.Next() {
		recs = append(recs, it.Record())
	}
	require.NoError(t, it.Err())
	return recs
}

func square(x, y float64) *geom.Polygon {
	return geom.NewPolygon(geom.XYZ).MustSetCoords([][]geom.Coord{{
		{x, y, 1}, {x + 1, y, 1}, {x + 1, y + 1, 1}, {x, y + 1, 1}, {x, y, 1},
	}})
}

func TestDriver_Match(t *testing.T) {
	d := driver{}
	assert.True(t, d.Match("out.sqlite"))
	assert.True(t, d.Match("out.db"))
	assert.True(t, d.Match("/tmp/OUT.SQLITE3"))
	assert.False(t, d.Match("out.shp"))
}

func TestDataset_RoundTrip(t *testing.T) {
	path := testPath(t)
	ds := create(t, path)
	l := createLayer(t, ds, "buildings", testFields)

	values := []vectorio.Value{
		vectorio.StringValue("town hall"),
		vectorio.IntValue(3),
		vectorio.IntValue(1 << 40),
		vectorio.FloatValue(12.5),
		vectorio.BoolValue(true),
		vectorio.DateValue(vectorio.Date{Year: 2024, Month: 3, Day: 5}),
		vectorio.TimeValue(vectorio.Time{Hour: 8, Minute: 30}),
		vectorio.DateTimeValue(vectorio.DateTime{
			Date: vectorio.Date{Year: 2023, Month: 12, Day: 31},
			Time: vectorio.Time{Hour: 23, Minute: 59, Second: 30},
		}),
		vectorio.IntListValue([]int64{4, 5, 6}),
		{},
	}
	require.NoError(t, l.CreateFeature(vectorio.Record{Geometry: square(0, 0), Values: values}))
	require.NoError(t, l.CreateFeature(vectorio.Record{Values: []vectorio.Value{vectorio.StringValue("no geometry")}}))
	require.NoError(t, ds.Close())

	ro, err := vectorio.Open(context.Background(), path, "")
	require.NoError(t, err)
	defer ro.Close()

	require.Equal(t, 1, ro.LayerCount())
	got, err := ro.LayerByName("buildings")
	require.NoError(t, err)
	assert.Equal(t, "EPSG:7415", got.SRS())
	assert.Equal(t, vectorio.GeometryPolygon, got.GeometryType())
	assert.Equal(t, testFields, got.Fields())
	assert.Equal(t, int64(2), got.FeatureCount())

	recs := records(t, got)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(0), recs[0].FID)
	assert.Equal(t, square(0, 0).Coords(), recs[0].Geometry.(*geom.Polygon).Coords())
	for i, want := range values {
		assert.Equal(t, want.Text(), recs[0].Values[i].Text(), testFields[i].Name)
		assert.Equal(t, want.Kind(), recs[0].Values[i].Kind(), testFields[i].Name)
	}

	assert.Equal(t, int64(1), recs[1].FID)
	assert.Nil(t, recs[1].Geometry)
	assert.Equal(t, "no geometry", recs[1].Values[0].Str())
	assert.True(t, recs[1].Values[1].IsAbsent())
}

func TestDataset_MultipleLayers(t *testing.T) {
	path := testPath(t)
	ds := create(t, path)
	createLayer(t, ds, "roads", nil)
	createLayer(t, ds, "rivers", nil)
	require.NoError(t, ds.Close())

	ds, err := vectorio.OpenOrCreate(context.Background(), path, "")
	require.NoError(t, err)
	defer ds.Close()

	require.Equal(t, 2, ds.LayerCount())
	first, err := ds.Layer(0)
	require.NoError(t, err)
	assert.Equal(t, "roads", first.Name())
	second, err := ds.Layer(1)
	require.NoError(t, err)
	assert.Equal(t, "rivers", second.Name())

	_, err = ds.Layer(2)
	assert.ErrorIs(t, err, vectorio.ErrLayerIndexOutOfRange)
	_, err = ds.LayerByName("canals")
	assert.ErrorIs(t, err, vectorio.ErrNoSuchLayer)
}

func TestDataset_Append(t *testing.T) {
	path := testPath(t)
	ds := create(t, path)
	l := createLayer(t, ds, "parcels", testFields[:1])
	require.NoError(t, l.CreateFeature(vectorio.Record{Geometry: square(0, 0)}))
	require.NoError(t, ds.Close())

	ds, err := vectorio.OpenOrCreate(context.Background(), path, "")
	require.NoError(t, err)
	l, err = ds.LayerByName("parcels")
	require.NoError(t, err)
	require.NoError(t, l.CreateFeature(vectorio.Record{Geometry: square(5, 5)}))

	recs := records(t, l)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(1), recs[1].FID)
	require.NoError(t, ds.Close())
}

func TestDataset_Overwrite(t *testing.T) {
	ds := create(t, testPath(t))
	defer ds.Close()

	l := createLayer(t, ds, "parcels", testFields[:2])
	require.NoError(t, l.CreateFeature(vectorio.Record{Geometry: square(0, 0)}))

	_, err := ds.CreateLayer(vectorio.LayerSpec{Name: "PARCELS"})
	assert.ErrorIs(t, err, ErrLayerExists)

	l2, err := ds.CreateLayer(vectorio.LayerSpec{
		Name:         "parcels",
		GeometryType: vectorio.GeometryLineString,
		Options:      map[string]string{"overwrite": "yes"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ds.LayerCount())
	assert.Empty(t, l2.Fields())
	assert.Equal(t, int64(0), l2.FeatureCount())
	assert.Equal(t, vectorio.GeometryLineString, l2.GeometryType())
}

func TestDataset_Transactions(t *testing.T) {
	path := testPath(t)
	ds := create(t, path)
	l := createLayer(t, ds, "parcels", nil)

	assert.True(t, ds.SupportsTransactions())
	assert.ErrorIs(t, ds.CommitTransaction(), ErrNoTransaction)

	require.NoError(t, ds.BeginTransaction())
	assert.ErrorIs(t, ds.BeginTransaction(), ErrInTransaction)
	for i := 0; i < 3; i++ {
		require.NoError(t, l.CreateFeature(vectorio.Record{Geometry: square(float64(i), 0)}))
	}
	require.NoError(t, ds.CommitTransaction())

	// Closing with an open transaction discards it.
	require.NoError(t, ds.BeginTransaction())
	require.NoError(t, l.CreateFeature(vectorio.Record{Geometry: square(9, 9)}))
	require.NoError(t, ds.Close())

	ro, err := vectorio.Open(context.Background(), path, "")
	require.NoError(t, err)
	defer ro.Close()
	got, err := ro.Layer(0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.FeatureCount())
}

func TestDataset_ReadOnly(t *testing.T) {
	path := testPath(t)
	ds := create(t, path)
	createLayer(t, ds, "parcels", nil)
	require.NoError(t, ds.Close())

	ro, err := vectorio.Open(context.Background(), path, "")
	require.NoError(t, err)
	defer ro.Close()

	_, err = ro.CreateLayer(vectorio.LayerSpec{Name: "other"})
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, ro.BeginTransaction(), ErrReadOnly)
	l, err := ro.Layer(0)
	require.NoError(t, err)
	assert.ErrorIs(t, l.CreateField(vectorio.FieldDefn{Name: "x"}), ErrReadOnly)
	assert.ErrorIs(t, l.CreateFeature(vectorio.Record{}), ErrReadOnly)
}

func TestDataset_OpenMissing(t *testing.T) {
	_, err := vectorio.Open(context.Background(), testPath(t), "")
	assert.ErrorIs(t, err, vectorio.ErrOpenFailed)
}

func TestDataset_InvalidNames(t *testing.T) {
	ds := create(t, testPath(t))
	defer ds.Close()

	for _, name := range []string{"", "vector_layers", "VECTOR_FIELDS", "sqlite_master"} {
		_, err := ds.CreateLayer(vectorio.LayerSpec{Name: name})
		assert.ErrorIs(t, err, ErrReservedName, name)
	}

	l := createLayer(t, ds, `odd "name"`, testFields[:1])
	assert.Error(t, l.CreateField(vectorio.FieldDefn{Name: "NAME"}))
	assert.Error(t, l.CreateField(vectorio.FieldDefn{Name: "fid"}))
	assert.Error(t, l.CreateField(vectorio.FieldDefn{Name: "geom"}))
	require.NoError(t, l.CreateFeature(vectorio.Record{Values: []vectorio.Value{vectorio.StringValue("quoted")}}))
	assert.Equal(t, int64(1), l.FeatureCount())
}

func TestLayer_CreateFeature_Invalid(t *testing.T) {
	ds := create(t, testPath(t))
	defer ds.Close()
	l := createLayer(t, ds, "parcels", testFields[:2])

	err := l.CreateFeature(vectorio.Record{Values: make([]vectorio.Value, 3)})
	assert.Error(t, err)
	err = l.CreateFeature(vectorio.Record{Values: []vectorio.Value{{}, vectorio.StringValue("three")}})
	assert.ErrorIs(t, err, vectorio.ErrKindMismatch)
	assert.Equal(t, int64(0), l.FeatureCount())
}

func TestDriver_Remove(t *testing.T) {
	path := testPath(t)
	ds := create(t, path)
	require.NoError(t, ds.Close())

	require.NoError(t, vectorio.Remove(context.Background(), path, ""))
	assert.NoFileExists(t, path)
	assert.NoError(t, vectorio.Remove(context.Background(), path, ""))
}

func TestDecodeValue(t *testing.T) {
	tests := []struct {
		name string
		raw  interface{}
		defn vectorio.FieldDefn
		want vectorio.Value
	}{
		{"null", nil, vectorio.FieldDefn{Type: vectorio.FieldInteger}, vectorio.Value{}},
		{"bool", int64(1), vectorio.FieldDefn{Type: vectorio.FieldInteger, SubType: vectorio.SubTypeBoolean}, vectorio.BoolValue(true)},
		{"integer as real", int64(4), vectorio.FieldDefn{Type: vectorio.FieldReal}, vectorio.FloatValue(4)},
		{"text bytes", []byte("abc"), vectorio.FieldDefn{Type: vectorio.FieldString}, vectorio.StringValue("abc")},
		{"list", "[1,2]", vectorio.FieldDefn{Type: vectorio.FieldIntegerList}, vectorio.IntListValue([]int64{1, 2})},
		{"binary", []byte{0, 1}, vectorio.FieldDefn{Type: vectorio.FieldBinary}, vectorio.Value{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeValue(tt.raw, tt.defn)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := decodeValue(float64(1.5), vectorio.FieldDefn{Name: "n", Type: vectorio.FieldInteger})
	assert.ErrorIs(t, err, vectorio.ErrKindMismatch)
}
