// Package flatgeobuf stores vectorio layers in FlatGeobuf files.
// A dataset holds exactly one layer and lives either on the local file system
// (*.fgb) or in object storage (s3://bucket/key.fgb). Layers are loaded into
// memory on open and encoded again on Close when they were modified.
package flatgeobuf

import (
	"errors"
	"strconv"
	"strings"
)

// Common errors returned by this package.
var (
	ErrUnsupportedType = errors.New("flatgeobuf: unsupported geometry type")
	ErrInvalidData     = errors.New("flatgeobuf: invalid data")
	ErrNoIndex         = errors.New("flatgeobuf: file has no spatial index")
	ErrInvalidColumn   = errors.New("flatgeobuf: invalid column type")
	ErrSingleLayer     = errors.New("flatgeobuf: dataset already holds a layer")
	ErrReadOnly        = errors.New("flatgeobuf: dataset opened read-only")
	ErrNoTransactions  = errors.New("flatgeobuf: transactions not supported")
	ErrNoLayer         = errors.New("flatgeobuf: dataset has no layer")
)

// CRS represents a coordinate reference system.
type CRS struct {
	Org         string // Authority (e.g., "EPSG")
	Code        int    // Authority code (e.g., 4326 for WGS84)
	Name        string // CRS name
	Description string // CRS description
	WKT         string // Well-Known Text representation
}

// WGS84 returns the standard WGS84 CRS (EPSG:4326).
func WGS84() *CRS {
	return &CRS{
		Org:  "EPSG",
		Code: 4326,
		Name: "WGS 84",
	}
}

// ParseSRS interprets a spatial reference string. AUTHORITY:CODE strings such
// as EPSG:7415 fill Org and Code; anything else is kept as WKT. An empty
// string yields nil.
func ParseSRS(srs string) *CRS {
	srs = strings.TrimSpace(srs)
	if srs == "" {
		return nil
	}
	if org, code, ok := strings.Cut(srs, ":"); ok && !strings.ContainsAny(org, "[( \"") {
		if n, err := strconv.Atoi(code); err == nil && n > 0 {
			return &CRS{Org: strings.ToUpper(org), Code: n}
		}
	}
	return &CRS{WKT: srs}
}

// String returns AUTHORITY:CODE when the CRS has a code and the WKT otherwise.
func (c *CRS) String() string {
	if c == nil {
		return ""
	}
	if c.Code > 0 {
		org := c.Org
		if org == "" {
			org = "EPSG"
		}
		return org + ":" + strconv.Itoa(c.Code)
	}
	return c.WKT
}

// Options configures FlatGeobuf writing.
type Options struct {
	Name         string // Layer name
	Title        string // Layer title
	Description  string // Layer description
	IncludeIndex bool   // Include a packed Hilbert R-tree; features are then reordered
	CRS          *CRS   // Coordinate reference system (optional)
}

// DefaultOptions returns default options for writing FlatGeobuf files. The
// index is off so that features keep their insertion order.
func DefaultOptions() *Options {
	return &Options{}
}

// ColumnInfo describes a property column in a FlatGeobuf file.
type ColumnInfo struct {
	Name        string // Column name
	Type        string // Column type ("Bool", "Int", "Long", "Double", "String", "Json", etc.)
	Title       string // Column title (human-readable)
	Description string // Column description
	Nullable    bool   // Whether the column can contain null values
	Metadata    string // Column metadata, JSON
}

// Header contains metadata about a FlatGeobuf file.
type Header struct {
	Name          string       // Layer name
	Title         string       // Layer title
	Description   string       // Layer description
	GeometryType  string       // Geometry type ("Point", "Polygon", "Unknown", etc.)
	HasZ          bool         // Whether coordinates carry elevation
	FeaturesCount uint64       // Number of features in the file
	Envelope      [4]float64   // Bounding box [minX, minY, maxX, maxY]
	CRS           *CRS         // Coordinate reference system
	HasIndex      bool         // Whether the file has a spatial index
	Columns       []ColumnInfo // Property column schema
}
