package flatgeobuf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	jsoniter "github.com/json-iterator/go"

	"github.com/tingold/vectorio"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Column metadata values telling apart field types that share a FlatGeobuf
// column type.
const (
	metaDate        = "date"
	metaTime        = "time"
	metaIntegerList = "integerlist"
)

type columnMeta struct {
	Type string `json:"type,omitempty"`
}

// column is a decoded header column.
type column struct {
	typ   flattypes.ColumnType
	field vectorio.FieldDefn
}

// columnType returns the FlatGeobuf column type of a field and the metadata
// refining it, if any.
func columnType(d vectorio.FieldDefn) (flattypes.ColumnType, string) {
	switch d.Type {
	case vectorio.FieldInteger:
		if d.SubType == vectorio.SubTypeBoolean {
			return flattypes.ColumnTypeBool, ""
		}
		return flattypes.ColumnTypeInt, ""
	case vectorio.FieldInteger64:
		return flattypes.ColumnTypeLong, ""
	case vectorio.FieldReal:
		return flattypes.ColumnTypeDouble, ""
	case vectorio.FieldDate:
		return flattypes.ColumnTypeDateTime, metaDate
	case vectorio.FieldTime:
		return flattypes.ColumnTypeDateTime, metaTime
	case vectorio.FieldDateTime:
		return flattypes.ColumnTypeDateTime, ""
	case vectorio.FieldIntegerList:
		return flattypes.ColumnTypeJson, metaIntegerList
	case vectorio.FieldBinary:
		return flattypes.ColumnTypeBinary, ""
	default:
		return flattypes.ColumnTypeString, ""
	}
}

// buildColumns creates the header columns of a field catalog.
func buildColumns(fields []vectorio.FieldDefn, builder *flatbuffers.Builder) ([]*writer.Column, error) {
	columns := make([]*writer.Column, 0, len(fields))
	for _, f := range fields {
		typ, meta := columnType(f)
		col := writer.NewColumn(builder)
		col.SetName(f.Name)
		col.SetTitle(f.Name) // Set title to match name for JS library compatibility
		col.SetType(typ)
		col.SetNullable(true)
		if meta != "" {
			b, err := json.Marshal(columnMeta{Type: meta})
			if err != nil {
				return nil, err
			}
			col.SetMetadata(string(b))
		}
		columns = append(columns, col)
	}
	return columns, nil
}

// fieldFor maps a header column back to a field definition.
func fieldFor(col *flattypes.Column) vectorio.FieldDefn {
	d := vectorio.FieldDefn{Name: string(col.Name())}
	var meta columnMeta
	if m := col.Metadata(); len(m) > 0 {
		// Metadata written by other tools need not be ours.
		_ = json.Unmarshal(m, &meta)
	}

	switch col.Type() {
	case flattypes.ColumnTypeBool:
		d.Type, d.SubType = vectorio.FieldInteger, vectorio.SubTypeBoolean
	case flattypes.ColumnTypeByte, flattypes.ColumnTypeUByte,
		flattypes.ColumnTypeShort, flattypes.ColumnTypeUShort, flattypes.ColumnTypeInt:
		d.Type = vectorio.FieldInteger
	case flattypes.ColumnTypeUInt, flattypes.ColumnTypeLong, flattypes.ColumnTypeULong:
		d.Type = vectorio.FieldInteger64
	case flattypes.ColumnTypeFloat, flattypes.ColumnTypeDouble:
		d.Type = vectorio.FieldReal
	case flattypes.ColumnTypeDateTime:
		switch meta.Type {
		case metaDate:
			d.Type = vectorio.FieldDate
		case metaTime:
			d.Type = vectorio.FieldTime
		default:
			d.Type = vectorio.FieldDateTime
		}
	case flattypes.ColumnTypeJson:
		if meta.Type == metaIntegerList {
			d.Type = vectorio.FieldIntegerList
		} else {
			d.Type = vectorio.FieldString
		}
	case flattypes.ColumnTypeBinary:
		d.Type = vectorio.FieldBinary
	default:
		d.Type = vectorio.FieldString
	}
	return d
}

// readColumns decodes the column catalog of a header.
func readColumns(header *flattypes.Header) []column {
	n := header.ColumnsLength()
	columns := make([]column, 0, n)
	for i := 0; i < n; i++ {
		var col flattypes.Column
		if header.Columns(&col, i) {
			columns = append(columns, column{typ: col.Type(), field: fieldFor(&col)})
		}
	}
	return columns
}

// encodeProperties encodes values to FlatGeobuf binary format.
// The format is: [2-byte column index][value bytes]... repeated for each
// present value. Values are aligned with fields.
func encodeProperties(values []vectorio.Value, fields []vectorio.FieldDefn) ([]byte, error) {
	if len(values) > len(fields) {
		return nil, fmt.Errorf("%w: %d values for %d columns", ErrInvalidData, len(values), len(fields))
	}

	var buf bytes.Buffer
	for i, v := range values {
		if v.IsAbsent() {
			continue // Skip null values
		}
		k := vectorio.FieldKind(fields[i])
		if k == vectorio.KindAbsent {
			continue
		}
		cv, err := vectorio.Coerce(v, k)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", fields[i].Name, err)
		}

		// Write column index (uint16, little-endian)
		indexBytes := make([]byte, 2)
		binary.LittleEndian.PutUint16(indexBytes, uint16(i))
		buf.Write(indexBytes)

		typ, _ := columnType(fields[i])
		if err := writePropertyValue(&buf, cv, typ); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// writePropertyValue writes a single property value to the buffer.
func writePropertyValue(buf *bytes.Buffer, v vectorio.Value, typ flattypes.ColumnType) error {
	switch typ {
	case flattypes.ColumnTypeBool:
		if v.Bool() {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}

	case flattypes.ColumnTypeInt:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(int32(v.Int())))
		buf.Write(b)

	case flattypes.ColumnTypeLong:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(v.Int()))
		buf.Write(b)

	case flattypes.ColumnTypeDouble:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(float64(v.Float())))
		buf.Write(b)

	case flattypes.ColumnTypeString:
		writeString(buf, []byte(v.Str()))

	case flattypes.ColumnTypeDateTime:
		writeString(buf, []byte(dateTimeText(v)))

	case flattypes.ColumnTypeJson:
		jsonBytes, err := json.Marshal(v.IntList())
		if err != nil {
			return err
		}
		writeString(buf, jsonBytes)

	default:
		return fmt.Errorf("%w: %s", ErrInvalidColumn, flattypes.EnumNamesColumnType[typ])
	}
	return nil
}

// writeString writes a uint32 length prefix followed by the bytes.
func writeString(buf *bytes.Buffer, s []byte) {
	lenBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBytes, uint32(len(s)))
	buf.Write(lenBytes)
	buf.Write(s)
}

// dateTimeText renders a temporal value in ISO 8601.
func dateTimeText(v vectorio.Value) string {
	switch v.Kind() {
	case vectorio.KindDate:
		return v.Date().String()
	case vectorio.KindTime:
		return v.Time().String()
	}
	return v.DateTime().String()
}

// decodeProperties decodes FlatGeobuf binary properties into values aligned
// with columns. Columns missing from data are absent.
func decodeProperties(data []byte, columns []column) ([]vectorio.Value, error) {
	values := make([]vectorio.Value, len(columns))
	offset := 0

	for offset < len(data) {
		// Need at least 2 bytes for column index
		if offset+2 > len(data) {
			return nil, fmt.Errorf("%w: truncated column index", ErrInvalidData)
		}

		// Read column index
		colIndex := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
		offset += 2

		// Validate column index
		if colIndex >= len(columns) {
			return nil, fmt.Errorf("%w: column index %d out of range", ErrInvalidData, colIndex)
		}

		col := columns[colIndex]
		value, bytesRead, err := readPropertyValue(data[offset:], col)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.field.Name, err)
		}
		offset += bytesRead
		values[colIndex] = value
	}

	return values, nil
}

// readPropertyValue reads a property value from the buffer.
// Returns the value and number of bytes read. Values that cannot be
// interpreted as their field kind are absent.
func readPropertyValue(data []byte, col column) (vectorio.Value, int, error) {
	size := fixedSize(col.typ)
	if size == 0 {
		if len(data) < 4 {
			return vectorio.Value{}, 0, fmt.Errorf("%w: truncated length", ErrInvalidData)
		}
		length := int(binary.LittleEndian.Uint32(data[:4]))
		if len(data) < 4+length {
			return vectorio.Value{}, 0, fmt.Errorf("%w: truncated value", ErrInvalidData)
		}
		return variableValue(data[4:4+length], col), 4 + length, nil
	}
	if size < 0 {
		return vectorio.Value{}, 0, fmt.Errorf("%w: %d", ErrInvalidColumn, col.typ)
	}
	if len(data) < size {
		return vectorio.Value{}, 0, fmt.Errorf("%w: truncated value", ErrInvalidData)
	}

	switch col.typ {
	case flattypes.ColumnTypeBool:
		return vectorio.BoolValue(data[0] != 0), 1, nil
	case flattypes.ColumnTypeByte:
		return vectorio.IntValue(int64(int8(data[0]))), 1, nil
	case flattypes.ColumnTypeUByte:
		return vectorio.IntValue(int64(data[0])), 1, nil
	case flattypes.ColumnTypeShort:
		return vectorio.IntValue(int64(int16(binary.LittleEndian.Uint16(data)))), 2, nil
	case flattypes.ColumnTypeUShort:
		return vectorio.IntValue(int64(binary.LittleEndian.Uint16(data))), 2, nil
	case flattypes.ColumnTypeInt:
		return vectorio.IntValue(int64(int32(binary.LittleEndian.Uint32(data)))), 4, nil
	case flattypes.ColumnTypeUInt:
		return vectorio.IntValue(int64(binary.LittleEndian.Uint32(data))), 4, nil
	case flattypes.ColumnTypeLong, flattypes.ColumnTypeULong:
		return vectorio.IntValue(int64(binary.LittleEndian.Uint64(data))), 8, nil
	case flattypes.ColumnTypeFloat:
		return vectorio.FloatValue(math.Float32frombits(binary.LittleEndian.Uint32(data))), 4, nil
	default: // ColumnTypeDouble
		return vectorio.FloatValue(float32(math.Float64frombits(binary.LittleEndian.Uint64(data)))), 8, nil
	}
}

// fixedSize is the encoded size of a fixed width column type, 0 for length
// prefixed types and -1 for unknown types.
func fixedSize(typ flattypes.ColumnType) int {
	switch typ {
	case flattypes.ColumnTypeBool, flattypes.ColumnTypeByte, flattypes.ColumnTypeUByte:
		return 1
	case flattypes.ColumnTypeShort, flattypes.ColumnTypeUShort:
		return 2
	case flattypes.ColumnTypeInt, flattypes.ColumnTypeUInt, flattypes.ColumnTypeFloat:
		return 4
	case flattypes.ColumnTypeLong, flattypes.ColumnTypeULong, flattypes.ColumnTypeDouble:
		return 8
	case flattypes.ColumnTypeString, flattypes.ColumnTypeJson,
		flattypes.ColumnTypeDateTime, flattypes.ColumnTypeBinary:
		return 0
	}
	return -1
}

func variableValue(b []byte, col column) vectorio.Value {
	switch col.field.Type {
	case vectorio.FieldIntegerList:
		var list []int64
		if err := json.Unmarshal(b, &list); err != nil {
			return vectorio.Value{}
		}
		return vectorio.IntListValue(list)
	case vectorio.FieldBinary:
		return vectorio.Value{}
	case vectorio.FieldString:
		return vectorio.StringValue(string(b))
	}
	v, err := vectorio.ParseValue(string(b), vectorio.FieldKind(col.field))
	if err != nil {
		return vectorio.Value{}
	}
	return v
}
