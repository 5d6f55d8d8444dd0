package shapefile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	jsoniter "github.com/json-iterator/go"

	"github.com/tingold/vectorio"
)

// DBF limits.
const (
	maxNameLen   = 10
	maxStringLen = 254
)

// Widths of the fixed size DBF columns.
const (
	intWidth   = 11
	int64Width = 20
	realWidth  = 24
	realPrec   = 15
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// column is one DBF column and the field it stores.
type column struct {
	defn  vectorio.FieldDefn
	ftype byte
	size  uint8
	prec  uint8
}

// newColumn picks the DBF column type for d. The name is laundered by the
// caller.
func newColumn(d vectorio.FieldDefn) column {
	c := column{defn: d}
	switch d.Type {
	case vectorio.FieldInteger:
		if d.SubType == vectorio.SubTypeBoolean {
			c.ftype, c.size = 'L', 1
		} else {
			c.ftype, c.size = 'N', intWidth
		}
	case vectorio.FieldInteger64:
		c.ftype, c.size = 'N', int64Width
	case vectorio.FieldReal:
		c.ftype, c.size, c.prec = 'F', realWidth, realPrec
	case vectorio.FieldDate:
		c.ftype, c.size = 'D', 8
	default:
		c.ftype, c.size = 'C', 1
	}
	return c
}

// columnFromDBF maps a DBF column read from disk back to a field.
func columnFromDBF(f shp.Field) column {
	c := column{
		defn:  vectorio.FieldDefn{Name: f.String()},
		ftype: f.Fieldtype,
		size:  f.Size,
		prec:  f.Precision,
	}
	switch f.Fieldtype {
	case 'L':
		c.defn.Type, c.defn.SubType = vectorio.FieldInteger, vectorio.SubTypeBoolean
	case 'N':
		switch {
		case f.Precision > 0:
			c.defn.Type = vectorio.FieldReal
		case f.Size <= intWidth:
			c.defn.Type = vectorio.FieldInteger
		default:
			c.defn.Type = vectorio.FieldInteger64
		}
	case 'F':
		c.defn.Type = vectorio.FieldReal
	case 'D':
		c.defn.Type = vectorio.FieldDate
	default:
		c.defn.Type = vectorio.FieldString
	}
	return c
}

// field builds the go-shp field descriptor.
func (c column) field() shp.Field {
	f := shp.Field{Fieldtype: c.ftype, Size: c.size, Precision: c.prec}
	copy(f.Name[:], c.defn.Name)
	return f
}

// launder truncates name to the DBF limit and makes it unique among taken
// by replacing its tail with a counter.
func launder(name string, taken map[string]bool) string {
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	if name == "" {
		name = "field"
	}
	out := name
	for i := 1; taken[strings.ToLower(out)]; i++ {
		suffix := "_" + strconv.Itoa(i)
		base := name
		if len(base)+len(suffix) > maxNameLen {
			base = base[:maxNameLen-len(suffix)]
		}
		out = base + suffix
	}
	taken[strings.ToLower(out)] = true
	return out
}

// encode renders v as the text stored in c. Absent values are empty.
func (c column) encode(v vectorio.Value) (string, error) {
	k := vectorio.FieldKind(c.defn)
	if v.IsAbsent() || k == vectorio.KindAbsent {
		return "", nil
	}
	v, err := vectorio.Coerce(v, k)
	if err != nil {
		return "", err
	}

	var s string
	switch c.ftype {
	case 'L':
		s = "F"
		if v.Bool() {
			s = "T"
		}
	case 'N':
		s = strconv.FormatInt(v.Int(), 10)
	case 'F':
		s = strconv.FormatFloat(float64(v.Float()), 'f', -1, 32)
		if len(s) > int(c.size) {
			s = strconv.FormatFloat(float64(v.Float()), 'e', -1, 32)
		}
	case 'D':
		d := v.Date()
		s = fmt.Sprintf("%04d%02d%02d", d.Year, d.Month, d.Day)
	default:
		if v.Kind() == vectorio.KindIntList {
			b, err := json.Marshal(v.IntList())
			if err != nil {
				return "", err
			}
			s = string(b)
		} else {
			s = v.Text()
		}
	}

	limit := int(c.size)
	if c.ftype == 'C' {
		limit = maxStringLen
	}
	if len(s) > limit {
		return "", fmt.Errorf("shapefile: value %q exceeds the width of field %s", s, c.defn.Name)
	}
	return s, nil
}

// decode parses the text of a DBF cell. Unwritten cells hold NUL bytes.
func (c column) decode(raw string) (vectorio.Value, error) {
	s := strings.Trim(raw, " \x00")
	k := vectorio.FieldKind(c.defn)
	if k == vectorio.KindAbsent || (c.ftype == 'L' && s == "?") {
		return vectorio.Value{}, nil
	}
	v, err := vectorio.ParseValue(s, k)
	if err != nil {
		return vectorio.Value{}, fmt.Errorf("shapefile: field %s: %w", c.defn.Name, err)
	}
	return v, nil
}
