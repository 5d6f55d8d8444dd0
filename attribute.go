package vectorio

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindDate
	KindTime
	KindDateTime
	// KindIntList only carries the per-part labels of exploded meshes. It is
	// never part of an internal Schema.
	KindIntList
)

var kindNames = map[Kind]string{
	KindAbsent:   "Absent",
	KindBool:     "Bool",
	KindInt:      "Int",
	KindFloat:    "Float",
	KindString:   "String",
	KindDate:     "Date",
	KindTime:     "Time",
	KindDateTime: "DateTime",
	KindIntList:  "IntList",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Time zone flags, following the GDAL convention: 0 is unknown, 1 is local
// time, 100 is UTC and every step away from 100 is 15 minutes.
const (
	TZUnknown = 0
	TZLocal   = 1
	TZUTC     = 100
)

// Date is a calendar date.
type Date struct {
	Year, Month, Day int
}

// Time is a time of day with an optional zone flag.
type Time struct {
	Hour, Minute int
	Second       float32
	TimeZone     int
}

// DateTime combines a Date and a Time.
type DateTime struct {
	Date Date
	Time Time
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (t Time) String() string {
	var b strings.Builder
	whole := int(t.Second)
	fmt.Fprintf(&b, "%02d:%02d:%02d", t.Hour, t.Minute, whole)
	if frac := t.Second - float32(whole); frac > 0 {
		ms := int(frac*1000 + 0.5)
		if ms > 999 {
			ms = 999
		}
		fmt.Fprintf(&b, ".%03d", ms)
	}
	b.WriteString(zoneSuffix(t.TimeZone))
	return b.String()
}

func (dt DateTime) String() string {
	return dt.Date.String() + "T" + dt.Time.String()
}

func zoneSuffix(tz int) string {
	switch {
	case tz == TZUTC:
		return "Z"
	case tz > TZLocal:
		minutes := (tz - TZUTC) * 15
		sign := '+'
		if minutes < 0 {
			sign = '-'
			minutes = -minutes
		}
		return fmt.Sprintf("%c%02d:%02d", sign, minutes/60, minutes%60)
	}
	return ""
}

// ParseDate parses YYYY-MM-DD or the compact YYYYMMDD form used by dBase.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) == 8 && !strings.Contains(s, "-") {
		s = s[0:4] + "-" + s[4:6] + "-" + s[6:8]
	}
	var d Date
	if _, err := fmt.Sscanf(s, "%d-%d-%d", &d.Year, &d.Month, &d.Day); err != nil {
		return Date{}, fmt.Errorf("vectorio: bad date %q: %w", s, err)
	}
	return d, nil
}

// ParseTime parses HH:MM[:SS[.fff]] followed by an optional Z or ±HH:MM zone.
func ParseTime(s string) (Time, error) {
	s = strings.TrimSpace(s)
	var t Time
	body, zone := splitZone(s)
	parts := strings.Split(body, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Time{}, fmt.Errorf("vectorio: bad time %q", s)
	}
	var err error
	if t.Hour, err = strconv.Atoi(parts[0]); err != nil {
		return Time{}, fmt.Errorf("vectorio: bad time %q: %w", s, err)
	}
	if t.Minute, err = strconv.Atoi(parts[1]); err != nil {
		return Time{}, fmt.Errorf("vectorio: bad time %q: %w", s, err)
	}
	if len(parts) == 3 {
		sec, err := strconv.ParseFloat(parts[2], 32)
		if err != nil {
			return Time{}, fmt.Errorf("vectorio: bad time %q: %w", s, err)
		}
		t.Second = float32(sec)
	}
	if t.TimeZone, err = parseZone(zone); err != nil {
		return Time{}, fmt.Errorf("vectorio: bad time %q: %w", s, err)
	}
	return t, nil
}

// ParseDateTime parses a date and a time separated by 'T' or a space.
func ParseDateTime(s string) (DateTime, error) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, "T ")
	if i < 0 {
		d, err := ParseDate(s)
		return DateTime{Date: d}, err
	}
	d, err := ParseDate(s[:i])
	if err != nil {
		return DateTime{}, err
	}
	t, err := ParseTime(s[i+1:])
	if err != nil {
		return DateTime{}, err
	}
	return DateTime{Date: d, Time: t}, nil
}

func splitZone(s string) (string, string) {
	if strings.HasSuffix(s, "Z") {
		return s[:len(s)-1], "Z"
	}
	if i := strings.LastIndexAny(s, "+-"); i > 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

func parseZone(z string) (int, error) {
	switch z {
	case "":
		return TZUnknown, nil
	case "Z":
		return TZUTC, nil
	}
	var h, m int
	if _, err := fmt.Sscanf(z[1:], "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	steps := (h*60 + m) / 15
	if z[0] == '-' {
		steps = -steps
	}
	return TZUTC + steps, nil
}

// Value is a single attribute value. The zero Value is absent.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float32
	s    string
	dt   DateTime
	list []int64
}

func BoolValue(b bool) Value          { return Value{kind: KindBool, b: b} }
func IntValue(i int64) Value          { return Value{kind: KindInt, i: i} }
func FloatValue(f float32) Value      { return Value{kind: KindFloat, f: f} }
func StringValue(s string) Value      { return Value{kind: KindString, s: s} }
func DateValue(d Date) Value          { return Value{kind: KindDate, dt: DateTime{Date: d}} }
func TimeValue(t Time) Value          { return Value{kind: KindTime, dt: DateTime{Time: t}} }
func DateTimeValue(dt DateTime) Value { return Value{kind: KindDateTime, dt: dt} }

// IntListValue wraps a copy of l.
func IntListValue(l []int64) Value {
	return Value{kind: KindIntList, list: append([]int64(nil), l...)}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether v holds no value.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

func (v Value) Bool() bool         { return v.b }
func (v Value) Int() int64         { return v.i }
func (v Value) Float() float32     { return v.f }
func (v Value) Str() string        { return v.s }
func (v Value) Date() Date         { return v.dt.Date }
func (v Value) Time() Time         { return v.dt.Time }
func (v Value) DateTime() DateTime { return v.dt }
func (v Value) IntList() []int64   { return v.list }

// Interface returns v as a plain Go value, with dates and times rendered in
// ISO 8601. Absent values return nil.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindDate:
		return v.dt.Date.String()
	case KindTime:
		return v.dt.Time.String()
	case KindDateTime:
		return v.dt.String()
	case KindIntList:
		return v.list
	}
	return nil
}

// Text renders v the way text-only stores keep it.
func (v Value) Text() string {
	switch v.kind {
	case KindAbsent:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(float64(v.f), 'g', -1, 32)
	case KindString:
		return v.s
	}
	return fmt.Sprint(v.Interface())
}

// ParseValue interprets s as a value of kind k. Empty strings are absent.
func ParseValue(s string, k Kind) (Value, error) {
	if s == "" {
		return Value{}, nil
	}
	switch k {
	case KindBool:
		switch strings.ToLower(s) {
		case "t", "y", "true", "1":
			return BoolValue(true), nil
		case "f", "n", "false", "0":
			return BoolValue(false), nil
		}
		return Value{}, fmt.Errorf("%w: %q is not a boolean", ErrKindMismatch, s)
	case KindInt:
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrKindMismatch, err)
		}
		return IntValue(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrKindMismatch, err)
		}
		return FloatValue(float32(f)), nil
	case KindString:
		return StringValue(s), nil
	case KindDate:
		d, err := ParseDate(s)
		if err != nil {
			return Value{}, err
		}
		return DateValue(d), nil
	case KindTime:
		t, err := ParseTime(s)
		if err != nil {
			return Value{}, err
		}
		return TimeValue(t), nil
	case KindDateTime:
		dt, err := ParseDateTime(s)
		if err != nil {
			return Value{}, err
		}
		return DateTimeValue(dt), nil
	}
	return Value{}, fmt.Errorf("%w: cannot parse %v", ErrKindMismatch, k)
}

// Coerce converts v to kind k where the conversion is lossless or customary
// (integers to booleans, integers to floats, dates to date-times). Absent
// stays absent.
func Coerce(v Value, k Kind) (Value, error) {
	if v.kind == k || v.kind == KindAbsent {
		return v, nil
	}
	switch k {
	case KindBool:
		if v.kind == KindInt {
			return BoolValue(v.i != 0), nil
		}
	case KindInt:
		switch v.kind {
		case KindBool:
			if v.b {
				return IntValue(1), nil
			}
			return IntValue(0), nil
		case KindFloat:
			return IntValue(int64(v.f)), nil
		}
	case KindFloat:
		if v.kind == KindInt {
			return FloatValue(float32(v.i)), nil
		}
	case KindString:
		return StringValue(v.Text()), nil
	case KindDate:
		if v.kind == KindDateTime {
			return DateValue(v.dt.Date), nil
		}
	case KindTime:
		if v.kind == KindDateTime {
			return TimeValue(v.dt.Time), nil
		}
	case KindDateTime:
		if v.kind == KindDate || v.kind == KindTime {
			return DateTimeValue(v.dt), nil
		}
	}
	if v.kind == KindString {
		return ParseValue(v.s, k)
	}
	return Value{}, fmt.Errorf("%w: %v to %v", ErrKindMismatch, v.kind, k)
}

// Field names an attribute column.
type Field struct {
	Name string
	Kind Kind
}

// Schema is an ordered list of uniquely named fields.
type Schema []Field

// Index returns the position of name, or -1.
func (s Schema) Index(name string) int {
	for i, f := range s {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Validate checks that names are non-empty and unique and that every kind
// belongs to the internal value model.
func (s Schema) Validate() error {
	seen := make(map[string]bool, len(s))
	for _, f := range s {
		if f.Name == "" {
			return fmt.Errorf("vectorio: empty field name")
		}
		if seen[f.Name] {
			return fmt.Errorf("vectorio: duplicate field %q", f.Name)
		}
		if f.Kind == KindAbsent || f.Kind == KindIntList {
			return fmt.Errorf("%w: field %q has kind %v", ErrKindMismatch, f.Name, f.Kind)
		}
		seen[f.Name] = true
	}
	return nil
}

// Columns holds one value column per schema field. Columns are aligned with a
// geometry column by index.
type Columns struct {
	schema Schema
	values [][]Value
}

// NewColumns creates empty columns for schema.
func NewColumns(schema Schema) (*Columns, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &Columns{
		schema: append(Schema(nil), schema...),
		values: make([][]Value, len(schema)),
	}, nil
}

// Schema returns the field list.
func (c *Columns) Schema() Schema {
	if c == nil {
		return nil
	}
	return c.schema
}

// AddColumn appends a field with its values. Every present value must be of
// the field's kind.
func (c *Columns) AddColumn(f Field, values []Value) error {
	if err := append(c.schema[:len(c.schema):len(c.schema)], f).Validate(); err != nil {
		return err
	}
	for i, v := range values {
		if !v.IsAbsent() && v.Kind() != f.Kind {
			return fmt.Errorf("%w: field %q row %d holds %v, want %v", ErrKindMismatch, f.Name, i, v.Kind(), f.Kind)
		}
	}
	c.schema = append(c.schema, f)
	c.values = append(c.values, values)
	return nil
}

// AppendRow adds one value per field, in schema order.
func (c *Columns) AppendRow(row []Value) error {
	if len(row) != len(c.schema) {
		return fmt.Errorf("%w: row has %d values for %d fields", ErrCardinalityMismatch, len(row), len(c.schema))
	}
	for i, v := range row {
		if !v.IsAbsent() && v.Kind() != c.schema[i].Kind {
			return fmt.Errorf("%w: field %q holds %v, want %v", ErrKindMismatch, c.schema[i].Name, v.Kind(), c.schema[i].Kind)
		}
	}
	for i, v := range row {
		c.values[i] = append(c.values[i], v)
	}
	return nil
}

// Values returns the column for name, or nil.
func (c *Columns) Values(name string) []Value {
	if i := c.Schema().Index(name); i >= 0 {
		return c.values[i]
	}
	return nil
}

// Column returns the column at position i.
func (c *Columns) Column(i int) []Value {
	return c.values[i]
}

// Row returns the values of row i in schema order.
func (c *Columns) Row(i int) []Value {
	row := make([]Value, len(c.schema))
	for j, col := range c.values {
		if i < len(col) {
			row[j] = col[i]
		}
	}
	return row
}

// CheckLen verifies that every column has exactly n values.
func (c *Columns) CheckLen(n int) error {
	if c == nil {
		return nil
	}
	for i, col := range c.values {
		if len(col) != n {
			return fmt.Errorf("%w: field %q has %d values, geometry has %d", ErrCardinalityMismatch, c.schema[i].Name, len(col), n)
		}
	}
	return nil
}
