package sqlite

import (
	"fmt"
	"strings"
	"time"

	"github.com/tingold/vectorio"
)

// layerRecord is a row of the layer catalog.
type layerRecord struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"uniqueIndex;not null"`
	SRS          string
	GeometryType string
	CreatedAt    time.Time
}

func (layerRecord) TableName() string { return "vector_layers" }

// fieldRecord is a row of the field catalog. Position orders the fields of
// one layer.
type fieldRecord struct {
	ID       uint   `gorm:"primaryKey"`
	LayerID  uint   `gorm:"index;not null"`
	Position int    `gorm:"not null"`
	Name     string `gorm:"not null"`
	Type     string `gorm:"not null"`
	SubType  string
}

func (fieldRecord) TableName() string { return "vector_fields" }

func reserved(name string) bool {
	n := strings.ToLower(name)
	return n == layerRecord{}.TableName() || n == fieldRecord{}.TableName() || strings.HasPrefix(n, "sqlite_")
}

func parseGeometryType(s string) vectorio.GeometryType {
	for t := vectorio.GeometryUnknown; t <= vectorio.GeometryMultiPolygon; t++ {
		if t.String() == s {
			return t
		}
	}
	return vectorio.GeometryUnknown
}

func parseFieldType(s string) (vectorio.FieldType, error) {
	for t := vectorio.FieldInteger; t <= vectorio.FieldBinary; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("sqlite: unknown field type %q", s)
}

func subTypeName(st vectorio.FieldSubType) string {
	if st == vectorio.SubTypeBoolean {
		return "Boolean"
	}
	return ""
}

func parseSubType(s string) vectorio.FieldSubType {
	if s == "Boolean" {
		return vectorio.SubTypeBoolean
	}
	return vectorio.SubTypeNone
}

// columnType is the SQLite storage class declared for t.
func columnType(t vectorio.FieldType) string {
	switch t {
	case vectorio.FieldInteger, vectorio.FieldInteger64:
		return "INTEGER"
	case vectorio.FieldReal:
		return "REAL"
	case vectorio.FieldBinary:
		return "BLOB"
	}
	return "TEXT"
}

// quote quotes an SQL identifier.
func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
