package flatgeobuf

import (
	"fmt"
	"io"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/index"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/tingold/vectorio"
)

// indexNodeSize is the branching factor of the packed R-tree.
const indexNodeSize = 16

// Write encodes records as a FlatGeobuf file. Record values are aligned with
// fields. With opts.IncludeIndex the features are written in Hilbert order
// behind a packed R-tree; otherwise they keep their order.
func Write(w io.Writer, gtype vectorio.GeometryType, fields []vectorio.FieldDefn, recs []vectorio.Record, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}

	// Determine geometry type, falling back to Unknown for mixed content
	geomType := fgbGeometryType(gtype)
	hasZ := false
	var env envelope
	for _, rec := range recs {
		if rec.Geometry == nil {
			continue
		}
		if t := fgbGeometryType(vectorio.GeometryTypeOf(rec.Geometry)); t != geomType {
			geomType = flattypes.GeometryTypeUnknown
		}
		if b, ok := bounds(rec.Geometry); ok {
			env.extend(b)
			hasZ = hasZ || rec.Geometry.Layout().ZIndex() >= 0
		}
	}

	enc := &encoder{fields: fields, geomType: geomType}
	if opts.IncludeIndex && env.set {
		return enc.writeIndexed(w, recs, opts, hasZ, env)
	}

	header, err := enc.header(flatbuffers.NewBuilder(4096), opts, hasZ, uint64(len(recs)), env)
	if err != nil {
		return err
	}
	gen := &recordGenerator{enc: enc, recs: recs}
	if _, err := writer.NewWriter(header, false, gen, nil).Write(w); err != nil {
		return err
	}
	return gen.err
}

type encoder struct {
	fields   []vectorio.FieldDefn
	geomType flattypes.GeometryType
}

// header builds the file header. The envelope is omitted when no feature has
// a geometry.
func (e *encoder) header(builder *flatbuffers.Builder, opts *Options, hasZ bool, count uint64, env envelope) (*writer.Header, error) {
	header := writer.NewHeader(builder)
	header.SetGeometryType(e.geomType)
	header.SetHasZ(hasZ)
	header.SetFeaturesCount(count)

	if opts.Name != "" {
		header.SetName(opts.Name)
	}
	if opts.Title != "" {
		header.SetTitle(opts.Title)
	}
	if opts.Description != "" {
		header.SetDescription(opts.Description)
	}
	if env.set {
		header.SetEnvelope(env.b[:])
	}

	if len(e.fields) > 0 {
		columns, err := buildColumns(e.fields, builder)
		if err != nil {
			return nil, err
		}
		header.SetColumns(columns)
	}

	// Set CRS if provided
	if opts.CRS != nil {
		crs := writer.NewCrs(builder)
		org := opts.CRS.Org
		if org == "" {
			org = "EPSG" // Default organization
		}
		crs.SetOrg(org)
		if opts.CRS.Code > 0 {
			crs.SetCode(int32(opts.CRS.Code))
		}
		if opts.CRS.Name != "" {
			crs.SetName(opts.CRS.Name)
		}
		if opts.CRS.Description != "" {
			crs.SetDescription(opts.CRS.Description)
		}
		// WKT can be stored in description if needed
		if opts.CRS.WKT != "" && opts.CRS.Description == "" {
			crs.SetDescription(opts.CRS.WKT)
		}
		header.SetCrs(crs)
	}

	return header, nil
}

// feature builds one feature with builder.
func (e *encoder) feature(builder *flatbuffers.Builder, rec vectorio.Record) (*writer.Feature, error) {
	fg, err := geometryToFGB(rec.Geometry, e.geomType, builder)
	if err != nil {
		return nil, fmt.Errorf("feature %d: %w", rec.FID, err)
	}
	props, err := encodeProperties(rec.Values, e.fields)
	if err != nil {
		return nil, fmt.Errorf("feature %d: %w", rec.FID, err)
	}

	feature := writer.NewFeature(builder)
	feature.SetGeometry(fg)
	if len(props) > 0 {
		feature.SetProperties(props)
	}
	return feature, nil
}

// writeIndexed assembles an indexed file: header, packed R-tree, then the
// features in the Hilbert order the tree was built from.
func (e *encoder) writeIndexed(w io.Writer, recs []vectorio.Record, opts *Options, hasZ bool, env envelope) error {
	items := make([]index.Item, 0, len(recs))
	for _, rec := range recs {
		builder := flatbuffers.NewBuilder(1024)
		feature, err := e.feature(builder, rec)
		if err != nil {
			return err
		}
		builder.FinishSizePrefixed(feature.Build())

		item := &featureItem{data: builder.FinishedBytes()}
		if b, ok := bounds(rec.Geometry); ok {
			item.bound, item.ok = b, true
		}
		items = append(items, item)
	}

	index.HilbertSortItems(items)
	var offset uint64
	for _, it := range items {
		fi := it.(*featureItem)
		fi.offset = offset
		offset += uint64(len(fi.data))
	}

	builder := flatbuffers.NewBuilder(4096)
	header, err := e.header(builder, opts, hasZ, uint64(len(recs)), env)
	if err != nil {
		return err
	}
	header.SetIndexNodeSize(indexNodeSize)
	builder.FinishSizePrefixed(header.Build())

	if _, err := w.Write(writer.MagicBytes); err != nil {
		return err
	}
	if _, err := w.Write(builder.FinishedBytes()); err != nil {
		return err
	}

	tree := index.NewPackedRTreeWithItems(items, index.CalcExtentForItems(items), indexNodeSize)
	if _, err := tree.Write(w); err != nil {
		return err
	}

	for _, it := range items {
		if _, err := w.Write(it.(*featureItem).data); err != nil {
			return err
		}
	}
	return nil
}

// featureItem is an encoded feature placed in the R-tree. Features without
// geometry get an inverted box that never matches a search.
type featureItem struct {
	data   []byte
	bound  [4]float64
	ok     bool
	offset uint64
}

func (f *featureItem) NodeItem() index.NodeItem {
	if !f.ok {
		return index.NewNodeItem(f.offset)
	}
	return index.NewNodeItemWithCoordinates(f.offset, f.bound[0], f.bound[1], f.bound[2], f.bound[3])
}

// recordGenerator feeds records to writer.Writer. It stops at the first
// record that cannot be encoded and keeps the error.
type recordGenerator struct {
	enc  *encoder
	recs []vectorio.Record
	pos  int
	err  error
}

func (g *recordGenerator) Generate() *writer.Feature {
	if g.err != nil || g.pos >= len(g.recs) {
		return nil
	}

	rec := g.recs[g.pos]
	g.pos++

	feature, err := g.enc.feature(flatbuffers.NewBuilder(1024), rec)
	if err != nil {
		g.err = err
		return nil
	}
	return feature
}
