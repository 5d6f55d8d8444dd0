package vectorio

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ReaderOptions configures ReadLayer.
type ReaderOptions struct {
	Location      string  // Dataset location (path or URL)
	Format        string  // Driver name; empty resolves by scheme or extension
	LayerIndex    int     // Layer to read
	BaseElevation float32 // Added to every z after offsetting
}

// DefaultReaderOptions returns options reading the first layer.
func DefaultReaderOptions() *ReaderOptions {
	return &ReaderOptions{}
}

// FeatureTable is the result of reading a layer. All slices, and every
// attribute column, are aligned by feature index.
type FeatureTable struct {
	Geometries []Geometry
	Valid      []bool
	Area       []float32
	Attributes *Columns
}

// Len returns the number of features in the table.
func (t *FeatureTable) Len() int {
	return len(t.Geometries)
}

// ReadLayer opens the dataset at opts.Location and reads one of its layers.
func ReadLayer(ctx context.Context, rc *RunContext, opts *ReaderOptions) (*FeatureTable, error) {
	if opts == nil {
		opts = DefaultReaderOptions()
	}
	ds, err := Open(ctx, opts.Location, opts.Format)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	return NewFeatureReader(rc, opts.BaseElevation).Read(ds, opts.LayerIndex)
}

// FeatureReader converts the features of an external layer into local
// geometries and typed attribute columns.
type FeatureReader struct {
	rc            *RunContext
	baseElevation float32
}

// NewFeatureReader returns a reader sharing the false origin of rc.
func NewFeatureReader(rc *RunContext, baseElevation float32) *FeatureReader {
	if rc == nil {
		rc = NewRunContext()
	}
	return &FeatureReader{rc: rc, baseElevation: baseElevation}
}

// column binds an external field to an output attribute column.
type column struct {
	src  int
	kind Kind
}

// Read reads layer index of ds. Features that cannot be represented are
// skipped and logged; only setup failures are returned.
func (r *FeatureReader) Read(ds Dataset, index int) (*FeatureTable, error) {
	n := ds.LayerCount()
	if index < 0 {
		return nil, fmt.Errorf("%w: layer index %d is negative", ErrLayerIndexOutOfRange, index)
	}
	if index >= n {
		return nil, fmt.Errorf("%w: layer index %d, dataset has %d layers", ErrLayerIndexOutOfRange, index, n)
	}
	layer, err := ds.Layer(index)
	if err != nil {
		return nil, fmt.Errorf("%w: layer %d: %v", ErrOpenFailed, index, err)
	}

	log := r.rc.logger().WithFields(logrus.Fields{
		"layer":    layer.Name(),
		"geometry": layer.GeometryType().String(),
	})
	log.WithField("features", layer.FeatureCount()).Info("reading layer")

	cols, schema := r.detectColumns(layer, log)
	attrs, err := NewColumns(schema)
	if err != nil {
		return nil, err
	}
	table := &FeatureTable{Attributes: attrs}
	off := r.rc.offset()

	it := layer.Features()
	for it.Next() {
		rec := it.Record()
		g, ok := fromExternal(rec.Geometry, off, r.baseElevation)
		if !ok {
			log.WithFields(logrus.Fields{
				"fid":  rec.FID,
				"type": describe(rec),
			}).Warn("skipping feature with unsupported geometry")
			continue
		}
		table.Geometries = append(table.Geometries, g)
		switch g := g.(type) {
		case LineString:
			table.Valid = append(table.Valid, g.IsValid())
			table.Area = append(table.Area, 0)
		case Polygon:
			table.Valid = append(table.Valid, g.IsValid())
			table.Area = append(table.Area, float32(g.Area()))
		}
		row := make([]Value, len(cols))
		for i, c := range cols {
			if c.src >= len(rec.Values) {
				continue
			}
			v, err := Coerce(rec.Values[c.src], c.kind)
			if err != nil {
				log.WithFields(logrus.Fields{
					"fid":   rec.FID,
					"field": schema[i].Name,
				}).WithError(err).Debug("value left absent")
				continue
			}
			row[i] = v
		}
		if err := table.Attributes.AppendRow(row); err != nil {
			return nil, err
		}
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading layer %s: %v", ErrOpenFailed, layer.Name(), err)
	}

	log.WithField("read", table.Len()).Info("read layer")
	return table, nil
}

// detectColumns maps the layer's field catalog to attribute columns once.
func (r *FeatureReader) detectColumns(layer Layer, log logrus.FieldLogger) ([]column, Schema) {
	var (
		cols   []column
		schema Schema
	)
	for i, d := range layer.Fields() {
		k := FieldKind(d)
		if k == KindAbsent || k == KindIntList || d.Name == "" || schema.Index(d.Name) >= 0 {
			log.WithFields(logrus.Fields{
				"field": d.Name,
				"type":  d.Type.String(),
			}).Debug("dropping field")
			continue
		}
		cols = append(cols, column{src: i, kind: k})
		schema = append(schema, Field{Name: d.Name, Kind: k})
	}
	return cols, schema
}

func describe(rec Record) string {
	if rec.Geometry == nil {
		return "none"
	}
	if rec.Geometry.Empty() {
		return "empty " + GeometryTypeOf(rec.Geometry).String()
	}
	return GeometryTypeOf(rec.Geometry).String()
}
