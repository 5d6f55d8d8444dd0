// Package memory is an in-process vectorio store. Datasets live for the life
// of the process and are addressed as memory://name.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tingold/vectorio"
)

// Common errors returned by this package.
var (
	ErrNotFound      = errors.New("memory: dataset not found")
	ErrLayerExists   = errors.New("memory: layer already exists")
	ErrNoTransaction = errors.New("memory: no transaction in progress")
	ErrInTransaction = errors.New("memory: transaction already in progress")
	ErrClosed        = errors.New("memory: dataset is closed")
)

var (
	registryMu sync.Mutex
	registry   = make(map[string]*Dataset)
)

func init() {
	vectorio.Register(driver{})
}

type driver struct{}

func (driver) Name() string { return "memory" }

func (driver) Match(location string) bool {
	return vectorio.HasScheme(location, "memory")
}

func (driver) Open(_ context.Context, location string, _ bool) (vectorio.Dataset, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	ds, ok := registry[key(location)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	ds.reopen()
	return ds, nil
}

func (driver) Create(_ context.Context, location string) (vectorio.Dataset, error) {
	ds := New()
	Put(location, ds)
	return ds, nil
}

func (driver) Remove(_ context.Context, location string) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, key(location))
	return nil
}

func key(location string) string {
	return strings.TrimPrefix(location, "memory://")
}

// Put makes ds reachable at location (memory://name or a bare name).
func Put(location string, ds *Dataset) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[key(location)] = ds
}

// Get returns the dataset at location, or nil.
func Get(location string) *Dataset {
	registryMu.Lock()
	defer registryMu.Unlock()
	return registry[key(location)]
}

// Option configures a Dataset.
type Option func(*Dataset)

// WithoutTransactions makes the dataset report no transaction support; every
// feature is visible as soon as it is created.
func WithoutTransactions() Option {
	return func(d *Dataset) { d.noTx = true }
}

// WithoutSubTypes makes layers report no field subtype support.
func WithoutSubTypes() Option {
	return func(d *Dataset) { d.noSubTypes = true }
}

// WithRejectFeature installs a hook called for every created feature. A
// non-nil error rejects the feature.
func WithRejectFeature(fn func(layer string, rec vectorio.Record) error) Option {
	return func(d *Dataset) { d.reject = fn }
}

// Dataset is a set of in-memory layers with optional transactions.
type Dataset struct {
	mu         sync.Mutex
	layers     []*Layer
	noTx       bool
	noSubTypes bool
	reject     func(string, vectorio.Record) error
	inTx       bool
	closed     bool
	begins     int
	commits    int
}

// New returns an empty dataset.
func New(opts ...Option) *Dataset {
	d := &Dataset{}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Dataset) reopen() {
	d.mu.Lock()
	d.closed = false
	d.mu.Unlock()
}

func (d *Dataset) LayerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.layers)
}

func (d *Dataset) Layer(i int) (vectorio.Layer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.layers) {
		return nil, fmt.Errorf("%w: %d of %d", vectorio.ErrLayerIndexOutOfRange, i, len(d.layers))
	}
	return d.layers[i], nil
}

func (d *Dataset) LayerByName(name string) (vectorio.Layer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l := d.find(name); l != nil {
		return l, nil
	}
	return nil, fmt.Errorf("%w: %s", vectorio.ErrNoSuchLayer, name)
}

func (d *Dataset) find(name string) *Layer {
	for _, l := range d.layers {
		if l.name == name {
			return l
		}
	}
	return nil
}

// CreateLayer adds a layer. An existing layer of the same name is replaced
// when the OVERWRITE option is set and is an error otherwise.
func (d *Dataset) CreateLayer(spec vectorio.LayerSpec) (vectorio.Layer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	l := &Layer{ds: d, name: spec.Name, srs: spec.SRS, gtype: spec.GeometryType}
	for i, old := range d.layers {
		if old.name != spec.Name {
			continue
		}
		if !spec.BoolOption("OVERWRITE") {
			return nil, fmt.Errorf("%w: %s", ErrLayerExists, spec.Name)
		}
		d.layers[i] = l
		return l, nil
	}
	d.layers = append(d.layers, l)
	return l, nil
}

func (d *Dataset) SupportsTransactions() bool {
	return !d.noTx
}

func (d *Dataset) BeginTransaction() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.noTx {
		return errors.New("memory: transactions not supported")
	}
	if d.inTx {
		return ErrInTransaction
	}
	d.inTx = true
	d.begins++
	return nil
}

func (d *Dataset) CommitTransaction() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.inTx {
		return ErrNoTransaction
	}
	for _, l := range d.layers {
		l.features = append(l.features, l.staged...)
		l.staged = nil
	}
	d.inTx = false
	d.commits++
	return nil
}

// Close discards features staged by an open transaction. The dataset stays
// reachable through its location.
func (d *Dataset) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range d.layers {
		l.staged = nil
	}
	d.inTx = false
	d.closed = true
	return nil
}

// Begins returns the number of transactions started.
func (d *Dataset) Begins() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.begins
}

// Commits returns the number of transactions committed.
func (d *Dataset) Commits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commits
}

// Layer is an in-memory layer.
type Layer struct {
	ds       *Dataset
	name     string
	srs      string
	gtype    vectorio.GeometryType
	fields   []vectorio.FieldDefn
	features []vectorio.Record
	staged   []vectorio.Record
	nextFID  int64
}

// NewLayer adds a layer with a fixed field catalog and committed features,
// for seeding datasets.
func (d *Dataset) NewLayer(name string, gtype vectorio.GeometryType, fields []vectorio.FieldDefn, recs ...vectorio.Record) *Layer {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := &Layer{ds: d, name: name, gtype: gtype, fields: append([]vectorio.FieldDefn(nil), fields...)}
	for _, r := range recs {
		l.features = append(l.features, l.assign(r))
	}
	d.layers = append(d.layers, l)
	return l
}

func (l *Layer) Name() string                        { return l.name }
func (l *Layer) SRS() string                         { return l.srs }
func (l *Layer) GeometryType() vectorio.GeometryType { return l.gtype }

func (l *Layer) Fields() []vectorio.FieldDefn {
	l.ds.mu.Lock()
	defer l.ds.mu.Unlock()
	return append([]vectorio.FieldDefn(nil), l.fields...)
}

func (l *Layer) SupportsSubType(vectorio.FieldSubType) bool {
	return !l.ds.noSubTypes
}

func (l *Layer) CreateField(def vectorio.FieldDefn) error {
	l.ds.mu.Lock()
	defer l.ds.mu.Unlock()
	for _, f := range l.fields {
		if f.Name == def.Name {
			return fmt.Errorf("memory: field %q already exists", def.Name)
		}
	}
	if l.ds.noSubTypes {
		def.SubType = vectorio.SubTypeNone
	}
	l.fields = append(l.fields, def)
	return nil
}

func (l *Layer) assign(rec vectorio.Record) vectorio.Record {
	l.nextFID++
	rec.FID = l.nextFID
	rec.Values = append([]vectorio.Value(nil), rec.Values...)
	return rec
}

func (l *Layer) CreateFeature(rec vectorio.Record) error {
	l.ds.mu.Lock()
	defer l.ds.mu.Unlock()
	if l.ds.closed {
		return ErrClosed
	}
	if len(rec.Values) > len(l.fields) {
		return fmt.Errorf("memory: %d values for %d fields", len(rec.Values), len(l.fields))
	}
	if l.ds.reject != nil {
		if err := l.ds.reject(l.name, rec); err != nil {
			return err
		}
	}
	rec = l.assign(rec)
	if l.ds.inTx {
		l.staged = append(l.staged, rec)
	} else {
		l.features = append(l.features, rec)
	}
	return nil
}

// Records returns the committed features.
func (l *Layer) Records() []vectorio.Record {
	l.ds.mu.Lock()
	defer l.ds.mu.Unlock()
	return append([]vectorio.Record(nil), l.features...)
}

func (l *Layer) FeatureCount() int64 {
	l.ds.mu.Lock()
	defer l.ds.mu.Unlock()
	return int64(len(l.features))
}

func (l *Layer) Features() vectorio.FeatureIterator {
	return &iterator{recs: l.Records(), pos: -1}
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
