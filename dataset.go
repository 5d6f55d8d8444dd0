package vectorio

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/twpayne/go-geom"
)

// GeometryType is the declared geometry type of an external layer.
type GeometryType uint8

const (
	GeometryUnknown GeometryType = iota
	GeometryPoint
	GeometryLineString
	GeometryPolygon
	GeometryMultiPoint
	GeometryMultiLineString
	GeometryMultiPolygon
)

func (t GeometryType) String() string {
	switch t {
	case GeometryPoint:
		return "Point"
	case GeometryLineString:
		return "LineString"
	case GeometryPolygon:
		return "Polygon"
	case GeometryMultiPoint:
		return "MultiPoint"
	case GeometryMultiLineString:
		return "MultiLineString"
	case GeometryMultiPolygon:
		return "MultiPolygon"
	}
	return "Unknown"
}

// GeometryTypeOf returns the external type of g.
func GeometryTypeOf(g geom.T) GeometryType {
	switch g.(type) {
	case *geom.Point:
		return GeometryPoint
	case *geom.LineString:
		return GeometryLineString
	case *geom.Polygon:
		return GeometryPolygon
	case *geom.MultiPoint:
		return GeometryMultiPoint
	case *geom.MultiLineString:
		return GeometryMultiLineString
	case *geom.MultiPolygon:
		return GeometryMultiPolygon
	}
	return GeometryUnknown
}

// FieldType is the type of an external field.
type FieldType uint8

const (
	FieldInteger FieldType = iota
	FieldInteger64
	FieldReal
	FieldString
	FieldDate
	FieldTime
	FieldDateTime
	FieldIntegerList
	FieldBinary
)

func (t FieldType) String() string {
	switch t {
	case FieldInteger:
		return "Integer"
	case FieldInteger64:
		return "Integer64"
	case FieldReal:
		return "Real"
	case FieldString:
		return "String"
	case FieldDate:
		return "Date"
	case FieldTime:
		return "Time"
	case FieldDateTime:
		return "DateTime"
	case FieldIntegerList:
		return "IntegerList"
	case FieldBinary:
		return "Binary"
	}
	return fmt.Sprintf("FieldType(%d)", t)
}

// FieldSubType refines a FieldType.
type FieldSubType uint8

const (
	SubTypeNone FieldSubType = iota
	SubTypeBoolean
)

// FieldDefn describes one field in a layer's catalog.
type FieldDefn struct {
	Name    string
	Type    FieldType
	SubType FieldSubType
}

// FieldKind returns the internal kind used for values of an external field.
// Fields with no internal counterpart report KindAbsent.
func FieldKind(d FieldDefn) Kind {
	switch d.Type {
	case FieldInteger:
		if d.SubType == SubTypeBoolean {
			return KindBool
		}
		return KindInt
	case FieldInteger64:
		return KindInt
	case FieldReal:
		return KindFloat
	case FieldString:
		return KindString
	case FieldDate:
		return KindDate
	case FieldTime:
		return KindTime
	case FieldDateTime:
		return KindDateTime
	case FieldIntegerList:
		return KindIntList
	}
	return KindAbsent
}

// Record is one feature as exchanged with a store. Geometry holds absolute XYZ
// coordinates; nil means the feature has no geometry. Values is aligned with
// the layer's field catalog and an absent Value is a null field.
type Record struct {
	FID      int64
	Geometry geom.T
	Values   []Value
}

// LayerSpec describes a layer to create.
type LayerSpec struct {
	Name         string
	SRS          string
	GeometryType GeometryType
	Options      map[string]string
}

// Option returns the named layer option, matched case insensitively.
func (s LayerSpec) Option(name string) (string, bool) {
	for k, v := range s.Options {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// BoolOption reports whether the named option is set to a true value.
func (s LayerSpec) BoolOption(name string) bool {
	v, ok := s.Option(name)
	if !ok {
		return false
	}
	switch strings.ToUpper(v) {
	case "YES", "TRUE", "ON", "1":
		return true
	}
	return false
}

// ParseLayerOptions parses a comma separated list of KEY=VALUE pairs. A bare
// KEY is taken as KEY=YES.
func ParseLayerOptions(s string) (map[string]string, error) {
	opts := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, found := strings.Cut(part, "=")
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, fmt.Errorf("vectorio: invalid layer option %q", part)
		}
		if !found {
			v = "YES"
		}
		opts[k] = strings.TrimSpace(v)
	}
	return opts, nil
}

// FeatureIterator walks the features of a layer in storage order.
//
//	it := layer.Features()
//	for it.Next() {
//		rec := it.Record()
//	}
//	if err := it.Err(); err != nil { ... }
type FeatureIterator interface {
	Next() bool
	Record() Record
	Err() error
}

// Layer is a named collection of features sharing a field catalog.
type Layer interface {
	Name() string
	SRS() string
	GeometryType() GeometryType
	Fields() []FieldDefn
	CreateField(d FieldDefn) error
	CreateFeature(rec Record) error
	Features() FeatureIterator
	// FeatureCount returns the number of features, or -1 when unknown.
	FeatureCount() int64
}

// Dataset is an open store holding one or more layers.
type Dataset interface {
	LayerCount() int
	Layer(i int) (Layer, error)
	LayerByName(name string) (Layer, error)
	CreateLayer(spec LayerSpec) (Layer, error)
	SupportsTransactions() bool
	BeginTransaction() error
	CommitTransaction() error
	Close() error
}

// SubTypeSupporter is implemented by layers that can say which field
// subtypes they store. Layers that don't implement it are assumed to
// support every subtype.
type SubTypeSupporter interface {
	SupportsSubType(FieldSubType) bool
}

// RingWinder is implemented by layers whose storage format requires
// clockwise exterior rings.
type RingWinder interface {
	ClockwiseExterior() bool
}

// Driver opens and creates datasets of one storage format.
type Driver interface {
	Name() string
	// Match reports whether the driver handles location without a format hint.
	Match(location string) bool
	Open(ctx context.Context, location string, update bool) (Dataset, error)
	Create(ctx context.Context, location string) (Dataset, error)
	Remove(ctx context.Context, location string) error
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a driver available under its name. It is meant to be called
// from the init function of a store package and panics on duplicates.
func Register(d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	name := strings.ToLower(d.Name())
	if _, dup := drivers[name]; dup {
		panic("vectorio: Register called twice for driver " + name)
	}
	drivers[name] = d
}

// Drivers returns the names of the registered drivers, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupDriver resolves the driver for location. An explicit format wins;
// otherwise drivers are asked in name order whether they match.
func LookupDriver(location, format string) (Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	if format != "" {
		if d, ok := drivers[strings.ToLower(format)]; ok {
			return d, nil
		}
		return nil, fmt.Errorf("%w: unknown format %q", ErrUnknownDriver, format)
	}
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if drivers[name].Match(location) {
			return drivers[name], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, location)
}

// Open opens an existing dataset read-only.
func Open(ctx context.Context, location, format string) (Dataset, error) {
	d, err := LookupDriver(location, format)
	if err != nil {
		return nil, err
	}
	ds, err := d.Open(ctx, location, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpenFailed, location, err)
	}
	return ds, nil
}

// OpenOrCreate opens a dataset for update, creating it when it does not exist.
func OpenOrCreate(ctx context.Context, location, format string) (Dataset, error) {
	d, err := LookupDriver(location, format)
	if err != nil {
		return nil, err
	}
	if ds, err := d.Open(ctx, location, true); err == nil {
		return ds, nil
	}
	ds, err := d.Create(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpenFailed, location, err)
	}
	return ds, nil
}

// Remove deletes the dataset at location through its driver.
func Remove(ctx context.Context, location, format string) error {
	d, err := LookupDriver(location, format)
	if err != nil {
		return err
	}
	return d.Remove(ctx, location)
}

// HasScheme reports whether location is a URL with the given scheme.
func HasScheme(location, scheme string) bool {
	u, err := url.Parse(location)
	return err == nil && strings.EqualFold(u.Scheme, scheme)
}

// HasExtension reports whether location, a path or URL, ends in one of exts.
// Extensions include the leading dot.
func HasExtension(location string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(location))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
