package vectorio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultBatchSize is the number of input rows written per transaction.
const DefaultBatchSize = 1000

// WriterOptions configures a FeatureWriter.
type WriterOptions struct {
	Location          string            // Dataset location (path or URL)
	Format            string            // Driver name; empty resolves by scheme or extension
	LayerName         string            // Layer to create or append to
	SRS               string            // Spatial reference passed to the store, e.g. "EPSG:7415"
	OverwriteLayer    bool              // Replace an existing layer of the same name
	OverwriteFile     bool              // Remove the whole dataset first
	CreateDirectories bool              // Create the parent directory of a file location
	RequireAttributes bool              // Fail when there are no attribute fields
	Rename            map[string]string // Internal to external field names; "" drops a field
	OnlyMapped        bool              // Write only fields listed in Rename
	BatchSize         int               // Input rows per transaction
	LayerOptions      map[string]string // Passed through to the store
}

// DefaultWriterOptions returns options with the default batch size.
func DefaultWriterOptions() *WriterOptions {
	return &WriterOptions{
		LayerName: "layer",
		BatchSize: DefaultBatchSize,
	}
}

type writerState uint8

const (
	stateInit writerState = iota
	stateLayer
	stateSchema
	stateTransaction
	stateCommitted
	stateClosed
)

var stateNames = [...]string{"init", "layer", "schema", "transaction", "committed", "closed"}

func (s writerState) String() string {
	return stateNames[s]
}

// FeatureWriter emits local geometries and attribute rows into an external
// layer. Its steps must be called in order:
//
//	OpenLayer -> ReconcileSchema -> Begin -> Emit... -> Commit -> Close
//
// Write runs the whole sequence after validating its input.
type FeatureWriter struct {
	rc   *RunContext
	opts *WriterOptions
	log  logrus.FieldLogger

	state   writerState
	ds      Dataset
	layer   Layer
	mode    Mode
	kind    GeometryKind
	fm      *FieldMap
	tx      bool
	cwExt   bool
	rows    int
	written int
	commits int
}

// NewFeatureWriter returns a writer sharing the false origin of rc.
func NewFeatureWriter(rc *RunContext, opts *WriterOptions) *FeatureWriter {
	if rc == nil {
		rc = NewRunContext()
	}
	if opts == nil {
		opts = DefaultWriterOptions()
	}
	return &FeatureWriter{
		rc:   rc,
		opts: opts,
		log:  rc.logger().WithField("location", opts.Location),
	}
}

// Write validates geometries and attrs and writes them as one run. attrs
// may be nil when there are no attributes.
func (w *FeatureWriter) Write(ctx context.Context, geometries []Geometry, attrs *Columns) error {
	kind, err := w.validate(geometries, attrs)
	if err != nil {
		return err
	}
	if err := w.OpenLayer(ctx, kind); err != nil {
		return err
	}
	if err := w.ReconcileSchema(attrs.Schema()); err != nil {
		w.abort()
		return err
	}
	if err := w.Begin(); err != nil {
		w.abort()
		return err
	}
	for i, g := range geometries {
		var row []Value
		if attrs != nil {
			row = attrs.Row(i)
		}
		if err := w.Emit(g, row); err != nil {
			w.abort()
			return err
		}
	}
	if err := w.Commit(); err != nil {
		w.abort()
		return err
	}
	return w.Close()
}

// validate checks the whole input before any I/O and returns the run's
// geometry kind.
func (w *FeatureWriter) validate(geometries []Geometry, attrs *Columns) (GeometryKind, error) {
	if w.opts.RequireAttributes && len(attrs.Schema()) == 0 {
		return NoGeometry, ErrNoAttributes
	}
	if err := attrs.CheckLen(len(geometries)); err != nil {
		return NoGeometry, err
	}
	kind := NoGeometry
	for i, g := range geometries {
		k := KindOf(g)
		if k == NoGeometry {
			continue
		}
		if kind == NoGeometry {
			kind = k
		} else if k != kind {
			return NoGeometry, fmt.Errorf("%w: row %d is %v, earlier rows are %v", ErrMixedGeometry, i, k, kind)
		}
		if m, ok := g.(TriangleMesh); ok {
			for j, p := range m.Parts {
				if len(p.Labels) > 0 && len(p.Labels) != len(p.Triangles) {
					return NoGeometry, fmt.Errorf("%w: row %d part %d has %d labels for %d triangles",
						ErrCardinalityMismatch, i, j, len(p.Labels), len(p.Triangles))
				}
			}
		}
	}
	return kind, nil
}

func (w *FeatureWriter) expect(s writerState, step string) error {
	if w.state != s {
		return fmt.Errorf("%w: %s called in state %v", ErrWriterState, step, w.state)
	}
	return nil
}

// OpenLayer opens or creates the dataset and the target layer for a run
// of geometry kind k.
func (w *FeatureWriter) OpenLayer(ctx context.Context, k GeometryKind) error {
	if err := w.expect(stateInit, "OpenLayer"); err != nil {
		return err
	}
	o := w.opts
	local := !strings.Contains(o.Location, "://")
	if o.OverwriteFile {
		if err := Remove(ctx, o.Location, o.Format); err != nil {
			return fmt.Errorf("%w: removing %s: %v", ErrOpenFailed, o.Location, err)
		}
	}
	if o.CreateDirectories && local {
		if err := os.MkdirAll(filepath.Dir(o.Location), 0o755); err != nil {
			w.log.WithError(err).Warn("unable to create directories")
		}
	}
	ds, err := OpenOrCreate(ctx, o.Location, o.Format)
	if err != nil {
		return err
	}
	return w.useDataset(ds, k)
}

// useDataset finds or creates the layer in an open dataset.
func (w *FeatureWriter) useDataset(ds Dataset, k GeometryKind) error {
	w.ds = ds
	w.kind = k
	o := w.opts

	spec := LayerSpec{
		Name:         o.LayerName,
		SRS:          o.SRS,
		GeometryType: externalType(k),
		Options:      make(map[string]string, len(o.LayerOptions)+1),
	}
	for key, v := range o.LayerOptions {
		spec.Options[key] = v
	}
	if o.OverwriteLayer {
		spec.Options["OVERWRITE"] = "YES"
	} else if _, ok := spec.Options["OVERWRITE"]; !ok {
		spec.Options["OVERWRITE"] = "NO"
	}

	w.mode = ModeCreate
	if !o.OverwriteLayer {
		if l, err := ds.LayerByName(strings.ReplaceAll(o.LayerName, "-", "_")); err == nil {
			w.layer = l
			w.mode = ModeAppend
		}
	}
	if w.mode == ModeAppend {
		lt := w.layer.GeometryType()
		switch {
		case k == NoGeometry:
			// Rows without geometry get the empty geometry of the layer's type.
			w.kind = runKind(lt)
		case lt != GeometryUnknown && lt != spec.GeometryType:
			ds.Close()
			return fmt.Errorf("%w: %v rows cannot be appended to %v layer %s",
				ErrMixedGeometry, k, lt, w.layer.Name())
		}
	}
	if w.layer == nil {
		l, err := ds.CreateLayer(spec)
		if err != nil {
			ds.Close()
			return fmt.Errorf("%w: %s: %v", ErrLayerCreateFailed, o.LayerName, err)
		}
		w.layer = l
	}
	if rw, ok := w.layer.(RingWinder); ok {
		w.cwExt = rw.ClockwiseExterior()
	}
	w.tx = ds.SupportsTransactions()
	w.log = w.log.WithFields(logrus.Fields{
		"layer": w.layer.Name(),
		"mode":  w.mode.String(),
	})
	w.log.WithField("geometry", w.layer.GeometryType().String()).Info("opened layer")
	w.state = stateLayer
	return nil
}

// ReconcileSchema binds the attribute schema to the layer's fields.
func (w *FeatureWriter) ReconcileSchema(schema Schema) error {
	if err := w.expect(stateLayer, "ReconcileSchema"); err != nil {
		return err
	}
	fm, err := reconcile(w.layer, schema, w.mode, &ReconcileOptions{
		Rename:     w.opts.Rename,
		OnlyMapped: w.opts.OnlyMapped,
		Mesh:       w.kind == MeshKind,
	}, w.log)
	if err != nil {
		return err
	}
	w.fm = fm
	w.state = stateSchema
	return nil
}

// FieldMap returns the reconciled field map, nil before ReconcileSchema.
func (w *FeatureWriter) FieldMap() *FieldMap {
	return w.fm
}

// Begin starts the first transaction. Stores without transactions are not
// asked to begin one.
func (w *FeatureWriter) Begin() error {
	if err := w.expect(stateSchema, "Begin"); err != nil {
		return err
	}
	if err := w.begin(); err != nil {
		return err
	}
	w.state = stateTransaction
	return nil
}

func (w *FeatureWriter) begin() error {
	if !w.tx {
		return nil
	}
	if err := w.ds.BeginTransaction(); err != nil {
		return fmt.Errorf("%w: begin: %v", ErrTransactionFailed, err)
	}
	return nil
}

func (w *FeatureWriter) commit() error {
	if !w.tx {
		return nil
	}
	if err := w.ds.CommitTransaction(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrTransactionFailed, err)
	}
	w.commits++
	w.log.WithFields(logrus.Fields{
		"rows":     w.rows,
		"features": w.written,
	}).Debug("committed")
	return nil
}

// Emit writes one input row. A mesh row may produce several features. Every
// BatchSize rows the transaction is committed and a new one started.
func (w *FeatureWriter) Emit(g Geometry, row []Value) error {
	if err := w.expect(stateTransaction, "Emit"); err != nil {
		return err
	}
	if k := KindOf(g); k != NoGeometry && k != w.kind {
		return fmt.Errorf("%w: got %v in a %v run", ErrMixedGeometry, k, w.kind)
	}

	values, err := w.values(row)
	if err != nil {
		return err
	}
	for _, rec := range w.records(g, values) {
		if err := w.layer.CreateFeature(rec); err != nil {
			return fmt.Errorf("%w: row %d: %v", ErrFeatureCreateFailed, w.rows, err)
		}
		w.written++
	}
	w.rows++

	batch := w.opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	if w.rows%batch == 0 {
		if err := w.commit(); err != nil {
			return err
		}
		return w.begin()
	}
	return nil
}

// values lays row out in the external field order.
func (w *FeatureWriter) values(row []Value) ([]Value, error) {
	out := make([]Value, w.fm.Width)
	for _, b := range w.fm.Bindings {
		if b.Field >= len(row) || row[b.Field].IsAbsent() {
			continue
		}
		v, err := Coerce(row[b.Field], b.Kind)
		if err != nil {
			return nil, err
		}
		out[b.External] = v
	}
	return out, nil
}

// records builds the external features for one row.
func (w *FeatureWriter) records(g Geometry, values []Value) []Record {
	off := w.rc.offset()
	switch g := g.(type) {
	case nil:
		return []Record{{Geometry: emptyExternal(w.kind), Values: values}}
	case LineString, Polygon:
		return []Record{{Geometry: toExternal(g, off, w.cwExt), Values: values}}
	case TriangleMesh:
		if !g.Exploded() {
			return []Record{{Geometry: toExternal(g, off, w.cwExt), Values: values}}
		}
		recs := make([]Record, len(g.Parts))
		for i, p := range g.Parts {
			vals := append([]Value(nil), values...)
			if w.fm.Labels >= 0 && len(p.Labels) > 0 {
				vals[w.fm.Labels] = IntListValue(p.Labels)
			}
			if w.fm.PartID >= 0 {
				id := p.ID
				if id == "" {
					id = strconv.Itoa(i)
				}
				vals[w.fm.PartID] = StringValue(id)
			}
			recs[i] = Record{Geometry: meshToExternal(p.Triangles, off, w.cwExt), Values: vals}
		}
		return recs
	}
	return nil
}

// Commit commits the last transaction.
func (w *FeatureWriter) Commit() error {
	if err := w.expect(stateTransaction, "Commit"); err != nil {
		return err
	}
	if err := w.commit(); err != nil {
		return err
	}
	w.state = stateCommitted
	return nil
}

// Close releases the dataset. Closing before Commit discards uncommitted
// features on stores with transactions.
func (w *FeatureWriter) Close() error {
	if w.state == stateClosed {
		return fmt.Errorf("%w: Close called twice", ErrWriterState)
	}
	committed := w.state == stateCommitted
	w.state = stateClosed
	if w.ds == nil {
		return nil
	}
	if err := w.ds.Close(); err != nil {
		return err
	}
	if committed {
		w.log.WithFields(logrus.Fields{
			"rows":     w.rows,
			"features": w.written,
			"commits":  w.commits,
		}).Info("wrote layer")
	}
	return nil
}

func (w *FeatureWriter) abort() {
	if w.state == stateClosed || w.ds == nil {
		return
	}
	w.state = stateClosed
	if err := w.ds.Close(); err != nil {
		w.log.WithError(err).Warn("closing after failure")
	}
}

// Stats reports input rows, features and commits written so far.
func (w *FeatureWriter) Stats() (rows, features, commits int) {
	return w.rows, w.written, w.commits
}
