// Package shapefile stores one vectorio layer as an ESRI shapefile: geometry
// in .shp/.shx, attributes in .dbf and the reference system in .prj.
//
// Features are buffered in memory and the files are rewritten on Close.
// Shapefiles have no transactions.
package shapefile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"

	"github.com/tingold/vectorio"
)

// Common errors returned by this package.
var (
	ErrReadOnly       = errors.New("shapefile: dataset opened read-only")
	ErrSingleLayer    = errors.New("shapefile: dataset already holds a layer")
	ErrNoTransactions = errors.New("shapefile: transactions not supported")
	ErrClosed         = errors.New("shapefile: dataset is closed")
	ErrNotShapefile   = errors.New("shapefile: location must end in .shp")
)

// Extensions of the files making up a shapefile.
var sidecars = []string{".shp", ".shx", ".dbf", ".prj", ".cpg"}

func init() {
	vectorio.Register(driver{})
}

type driver struct{}

func (driver) Name() string { return "shapefile" }

func (driver) Match(location string) bool {
	return vectorio.HasExtension(location, ".shp")
}

func (driver) Open(_ context.Context, location string, update bool) (vectorio.Dataset, error) {
	if !vectorio.HasExtension(location, ".shp") {
		return nil, ErrNotShapefile
	}
	l, err := load(location)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{location: location, update: update, layer: l}
	l.ds = ds
	return ds, nil
}

func (driver) Create(_ context.Context, location string) (vectorio.Dataset, error) {
	if !vectorio.HasExtension(location, ".shp") {
		return nil, ErrNotShapefile
	}
	dir := filepath.Dir(location)
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("shapefile: %s is not a directory", dir)
	}
	return &Dataset{location: location, update: true}, nil
}

func (driver) Remove(_ context.Context, location string) error {
	base := basename(location)
	for _, ext := range sidecars {
		if err := os.Remove(base + ext); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func basename(location string) string {
	return strings.TrimSuffix(location, filepath.Ext(location))
}

// Dataset is a shapefile holding at most one layer.
type Dataset struct {
	location string
	update   bool
	modified bool
	closed   bool
	layer    *Layer
}

func (d *Dataset) LayerCount() int {
	if d.layer == nil {
		return 0
	}
	return 1
}

func (d *Dataset) Layer(i int) (vectorio.Layer, error) {
	if i != 0 || d.layer == nil {
		return nil, fmt.Errorf("%w: %d of %d", vectorio.ErrLayerIndexOutOfRange, i, d.LayerCount())
	}
	return d.layer, nil
}

func (d *Dataset) LayerByName(name string) (vectorio.Layer, error) {
	if d.layer != nil && d.layer.name == name {
		return d.layer, nil
	}
	return nil, fmt.Errorf("%w: %s", vectorio.ErrNoSuchLayer, name)
}

// CreateLayer creates the dataset's layer. The layer is named after the
// file; spec.Name is ignored. An existing layer is replaced only with the
// OVERWRITE option.
func (d *Dataset) CreateLayer(spec vectorio.LayerSpec) (vectorio.Layer, error) {
	if !d.update {
		return nil, ErrReadOnly
	}
	if d.layer != nil && !spec.BoolOption("OVERWRITE") {
		return nil, fmt.Errorf("%w: %s", ErrSingleLayer, d.layer.name)
	}
	d.layer = &Layer{
		ds:    d,
		name:  filepath.Base(basename(d.location)),
		srs:   spec.SRS,
		gtype: spec.GeometryType,
		taken: make(map[string]bool),
	}
	d.modified = true
	return d.layer, nil
}

func (d *Dataset) SupportsTransactions() bool { return false }
func (d *Dataset) BeginTransaction() error    { return ErrNoTransactions }
func (d *Dataset) CommitTransaction() error   { return ErrNoTransactions }

// Close writes the layer when it was created or changed.
func (d *Dataset) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if !d.update || !d.modified || d.layer == nil {
		return nil
	}
	return d.layer.save(d.location)
}

// Layer is the single layer of a Dataset.
type Layer struct {
	ds      *Dataset
	name    string
	srs     string
	gtype   vectorio.GeometryType
	shape   shp.ShapeType
	columns []column
	taken   map[string]bool
	records []vectorio.Record
}

func (l *Layer) Name() string                        { return l.name }
func (l *Layer) SRS() string                         { return l.srs }
func (l *Layer) GeometryType() vectorio.GeometryType { return l.gtype }
func (l *Layer) FeatureCount() int64                 { return int64(len(l.records)) }

// ClockwiseExterior is true: shapefile polygons wind their outer rings
// clockwise.
func (l *Layer) ClockwiseExterior() bool { return true }

// SupportsSubType reports Boolean support; booleans are stored as logical
// columns.
func (l *Layer) SupportsSubType(st vectorio.FieldSubType) bool {
	return st == vectorio.SubTypeBoolean
}

func (l *Layer) Fields() []vectorio.FieldDefn {
	fields := make([]vectorio.FieldDefn, len(l.columns))
	for i, c := range l.columns {
		fields[i] = c.defn
	}
	return fields
}

// CreateField adds a column. Names longer than ten characters are
// truncated, and clashes get a numeric suffix.
func (l *Layer) CreateField(def vectorio.FieldDefn) error {
	if !l.ds.update {
		return ErrReadOnly
	}
	def.Name = launder(def.Name, l.taken)
	l.columns = append(l.columns, newColumn(def))
	l.ds.modified = true
	return nil
}

// CreateFeature buffers rec. The geometry and values are checked against
// the layer so that Close cannot fail on them.
func (l *Layer) CreateFeature(rec vectorio.Record) error {
	if !l.ds.update {
		return ErrReadOnly
	}
	if l.ds.closed {
		return ErrClosed
	}
	if len(rec.Values) > len(l.columns) {
		return fmt.Errorf("shapefile: %d values for %d fields", len(rec.Values), len(l.columns))
	}
	st := l.shapeType(rec.Geometry)
	if _, err := toShape(rec.Geometry, st); err != nil {
		return err
	}
	if st != l.shape {
		// Features buffered before the type was known must fit it too.
		for _, prev := range l.records {
			if _, err := toShape(prev.Geometry, st); err != nil {
				return fmt.Errorf("feature %d: %w", prev.FID, err)
			}
		}
	}
	for i, v := range rec.Values {
		if _, err := l.columns[i].encode(v); err != nil {
			return err
		}
	}

	l.shape = st
	rec.FID = int64(len(l.records))
	rec.Values = append([]vectorio.Value(nil), rec.Values...)
	l.records = append(l.records, rec)
	l.ds.modified = true
	return nil
}

// shapeType is the file's shape type. Layers of unknown type take the type
// of their first geometry.
func (l *Layer) shapeType(g geom.T) shp.ShapeType {
	if l.shape != shp.NULL {
		return l.shape
	}
	if st := shapeType(l.gtype); st != shp.NULL {
		return st
	}
	if g == nil {
		return shp.NULL
	}
	return shapeType(vectorio.GeometryTypeOf(g))
}

func (l *Layer) Features() vectorio.FeatureIterator {
	return &iterator{recs: l.records, pos: -1}
}

type iterator struct {
	recs []vectorio.Record
	pos  int
}

func (it *iterator) Next() bool {
	it.pos++
	return it.pos < len(it.recs)
}

func (it *iterator) Record() vectorio.Record { return it.recs[it.pos] }
func (it *iterator) Err() error              { return nil }
