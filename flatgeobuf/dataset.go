package flatgeobuf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"

	"github.com/tingold/vectorio"
	"github.com/tingold/vectorio/internal/s3"
)

func init() {
	vectorio.Register(driver{})
}

type driver struct{}

func (driver) Name() string { return "flatgeobuf" }

func (driver) Match(location string) bool {
	return vectorio.HasExtension(location, ".fgb")
}

func (driver) Open(ctx context.Context, location string, update bool) (vectorio.Dataset, error) {
	data, err := load(ctx, location)
	if err != nil {
		return nil, err
	}
	r, err := NewReaderFromData(data)
	if err != nil {
		return nil, err
	}
	l, err := layerFromReader(r, location)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{ctx: ctx, location: location, update: update, layer: l}
	l.ds = ds
	return ds, nil
}

func (driver) Create(ctx context.Context, location string) (vectorio.Dataset, error) {
	if !s3.IsURL(location) {
		dir := filepath.Dir(location)
		fi, err := os.Stat(dir)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			return nil, fmt.Errorf("flatgeobuf: %s is not a directory", dir)
		}
	}
	return &Dataset{ctx: ctx, location: location, update: true, modified: true}, nil
}

func (driver) Remove(ctx context.Context, location string) error {
	if s3.IsURL(location) {
		loc, client, err := s3Target(ctx, location)
		if err != nil {
			return err
		}
		return s3.Delete(ctx, client, loc)
	}
	if err := os.Remove(location); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func s3Target(ctx context.Context, location string) (s3.Location, s3.API, error) {
	loc, err := s3.ParseURL(location)
	if err != nil {
		return s3.Location{}, nil, err
	}
	client, err := s3.DefaultClient(ctx)
	if err != nil {
		return s3.Location{}, nil, err
	}
	return loc, client, nil
}

// load reads the whole dataset at location.
func load(ctx context.Context, location string) ([]byte, error) {
	if s3.IsURL(location) {
		loc, client, err := s3Target(ctx, location)
		if err != nil {
			return nil, err
		}
		return s3.Get(ctx, client, loc)
	}
	return os.ReadFile(location)
}

// save replaces the dataset at location with data. Local files are written
// to a temporary file first and renamed into place.
func save(ctx context.Context, location string, data []byte) error {
	if s3.IsURL(location) {
		loc, client, err := s3Target(ctx, location)
		if err != nil {
			return err
		}
		return s3.Put(ctx, client, loc, data, "application/flatgeobuf")
	}

	tmp, err := os.CreateTemp(filepath.Dir(location), ".vectorio-*.fgb")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), location)
}

// Dataset is a FlatGeobuf file holding at most one layer.
type Dataset struct {
	ctx      context.Context
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

// CreateLayer creates the dataset's layer. An existing layer is replaced
// only with the OVERWRITE option. SPATIAL_INDEX, TITLE and DESCRIPTION
// options go to the file header.
func (d *Dataset) CreateLayer(spec vectorio.LayerSpec) (vectorio.Layer, error) {
	if !d.update {
		return nil, ErrReadOnly
	}
	if d.layer != nil && !spec.BoolOption("OVERWRITE") {
		return nil, fmt.Errorf("%w: %s", ErrSingleLayer, d.layer.name)
	}

	opts := DefaultOptions()
	opts.Name = spec.Name
	opts.IncludeIndex = spec.BoolOption("SPATIAL_INDEX")
	opts.Title, _ = spec.Option("TITLE")
	opts.Description, _ = spec.Option("DESCRIPTION")
	opts.CRS = ParseSRS(spec.SRS)

	d.layer = &Layer{
		ds:    d,
		name:  spec.Name,
		srs:   spec.SRS,
		gtype: spec.GeometryType,
		opts:  opts,
	}
	d.modified = true
	return d.layer, nil
}

func (d *Dataset) SupportsTransactions() bool { return false }
func (d *Dataset) BeginTransaction() error    { return ErrNoTransactions }
func (d *Dataset) CommitTransaction() error   { return ErrNoTransactions }

// WriteTo encodes the layer as a FlatGeobuf file.
func (d *Dataset) WriteTo(w io.Writer) (int64, error) {
	if d.layer == nil {
		return 0, ErrNoLayer
	}
	var buf bytes.Buffer
	if err := d.layer.encode(&buf); err != nil {
		return 0, err
	}
	return buf.WriteTo(w)
}

// Close writes the layer back to its location when it was modified.
func (d *Dataset) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if !d.update || !d.modified || d.layer == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := d.layer.encode(&buf); err != nil {
		return err
	}
	return save(d.ctx, d.location, buf.Bytes())
}

// Layer is the single layer of a Dataset. Features are held in memory.
type Layer struct {
	ds      *Dataset
	name    string
	srs     string
	gtype   vectorio.GeometryType
	fields  []vectorio.FieldDefn
	records []vectorio.Record
	opts    *Options
	reader  *Reader
}

// layerFromReader loads every feature of r. Unnamed layers take the base
// name of the location.
func layerFromReader(r *Reader, location string) (*Layer, error) {
	h := r.Header()
	recs, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	name := h.Name
	if name == "" {
		base := filepath.Base(location)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return &Layer{
		name:    name,
		srs:     h.CRS.String(),
		gtype:   r.GeometryType(),
		fields:  r.Fields(),
		records: recs,
		reader:  r,
		opts: &Options{
			Name:         h.Name,
			Title:        h.Title,
			Description:  h.Description,
			IncludeIndex: h.HasIndex,
			CRS:          h.CRS,
		},
	}, nil
}

func (l *Layer) Name() string                        { return l.name }
func (l *Layer) SRS() string                         { return l.srs }
func (l *Layer) GeometryType() vectorio.GeometryType { return l.gtype }
func (l *Layer) FeatureCount() int64                 { return int64(len(l.records)) }

func (l *Layer) Fields() []vectorio.FieldDefn {
	return append([]vectorio.FieldDefn(nil), l.fields...)
}

// SupportsSubType reports Boolean support; booleans are stored as Bool
// columns.
func (l *Layer) SupportsSubType(st vectorio.FieldSubType) bool {
	return st == vectorio.SubTypeBoolean
}

func (l *Layer) CreateField(def vectorio.FieldDefn) error {
	if !l.ds.update {
		return ErrReadOnly
	}
	for _, f := range l.fields {
		if f.Name == def.Name {
			return fmt.Errorf("flatgeobuf: field %q already exists", def.Name)
		}
	}
	l.fields = append(l.fields, def)
	l.ds.modified = true
	return nil
}

func (l *Layer) CreateFeature(rec vectorio.Record) error {
	if !l.ds.update {
		return ErrReadOnly
	}
	if l.ds.closed {
		return fmt.Errorf("flatgeobuf: dataset %s is closed", l.ds.location)
	}
	if len(rec.Values) > len(l.fields) {
		return fmt.Errorf("flatgeobuf: %d values for %d fields", len(rec.Values), len(l.fields))
	}
	rec.FID = int64(len(l.records))
	rec.Values = append([]vectorio.Value(nil), rec.Values...)
	l.records = append(l.records, rec)
	l.ds.modified = true
	// The file on disk no longer matches.
	l.reader = nil
	return nil
}

func (l *Layer) Features() vectorio.FeatureIterator {
	return &sliceIterator{recs: l.records, pos: -1}
}

// Search returns the features whose bounding boxes intersect b. The file's
// spatial index is used when it has one; otherwise every feature is tested.
func (l *Layer) Search(b orb.Bound) ([]vectorio.Record, error) {
	if l.reader != nil {
		recs, err := l.reader.Search(b)
		if !errors.Is(err, ErrNoIndex) {
			return recs, err
		}
	}
	var recs []vectorio.Record
	for _, rec := range l.records {
		fb, ok := bounds(rec.Geometry)
		if !ok {
			continue
		}
		if b.Intersects(orb.Bound{Min: orb.Point{fb[0], fb[1]}, Max: orb.Point{fb[2], fb[3]}}) {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// Header returns the header of the file the layer was loaded from, or nil
// for new or modified layers.
func (l *Layer) Header() *Header {
	if l.reader == nil {
		return nil
	}
	return l.reader.Header()
}

func (l *Layer) encode(w io.Writer) error {
	return Write(w, l.gtype, l.fields, l.records, l.opts)
}

type sliceIterator struct {
	recs []vectorio.Record
	pos  int
}

func (it *sliceIterator) Next() bool {
	it.pos++
	return it.pos < len(it.recs)
}

func (it *sliceIterator) Record() vectorio.Record { return it.recs[it.pos] }
func (it *sliceIterator) Err() error              { return nil }
