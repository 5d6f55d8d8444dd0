// Package vectorio moves vector features between layered geographic stores and an
// in-memory model built for single precision processing.
//
// Coordinates are kept relative to a false origin (see CoordinateOffset) so that
// float32 storage keeps sub-millimetre precision far away from (0, 0). Polygons are
// normalised to counter-clockwise exterior rings and clockwise holes on the way in.
// On the way out, attribute columns are reconciled against the target layer's field
// catalog once per run and features are written in batched transactions.
//
// Concrete stores live in sibling packages (memory, flatgeobuf, shapefile, sqlite)
// and register themselves with Register from their init functions.
package vectorio

import (
	"errors"
)

// Common errors returned by this package.
var (
	ErrOpenFailed           = errors.New("vectorio: open failed")
	ErrNoSuchLayer          = errors.New("vectorio: no such layer")
	ErrLayerIndexOutOfRange = errors.New("vectorio: layer index out of range")
	ErrLayerCreateFailed    = errors.New("vectorio: layer creation failed")
	ErrFieldCreateFailed    = errors.New("vectorio: field creation failed")
	ErrCardinalityMismatch  = errors.New("vectorio: attribute column length differs from geometry count")
	ErrFeatureCreateFailed  = errors.New("vectorio: feature creation failed")
	ErrTransactionFailed    = errors.New("vectorio: transaction failed")
	ErrUnsupportedGeometry  = errors.New("vectorio: unsupported geometry kind")
	ErrMixedGeometry        = errors.New("vectorio: mixed geometry kinds in one output")
	ErrKindMismatch         = errors.New("vectorio: value kind does not match field kind")
	ErrUnknownDriver        = errors.New("vectorio: no driver for location")
	ErrWriterState          = errors.New("vectorio: writer used out of order")
	ErrNoAttributes         = errors.New("vectorio: attributes required but none given")
	ErrInvalidGeometry      = errors.New("vectorio: invalid geometry")
)
