package sqlite

import (
	"fmt"
	"strings"

	"github.com/tingold/vectorio"
)

// Layer is one layer table.
type Layer struct {
	ds      *Dataset
	id      uint
	name    string
	srs     string
	gtype   vectorio.GeometryType
	fields  []vectorio.FieldDefn
	nextFID int64
}

func (l *Layer) Name() string                        { return l.name }
func (l *Layer) SRS() string                         { return l.srs }
func (l *Layer) GeometryType() vectorio.GeometryType { return l.gtype }

func (l *Layer) Fields() []vectorio.FieldDefn {
	return append([]vectorio.FieldDefn(nil), l.fields...)
}

// SupportsSubType reports Boolean support; the subtype is kept in the field
// catalog.
func (l *Layer) SupportsSubType(st vectorio.FieldSubType) bool {
	return st == vectorio.SubTypeBoolean
}

// CreateField adds a column to the layer table and records it in the field
// catalog.
func (l *Layer) CreateField(def vectorio.FieldDefn) error {
	if !l.ds.update {
		return ErrReadOnly
	}
	if def.Name == "" {
		return fmt.Errorf("sqlite: empty field name")
	}
	if strings.EqualFold(def.Name, "fid") || strings.EqualFold(def.Name, "geom") {
		return fmt.Errorf("sqlite: field name %q is reserved", def.Name)
	}
	for _, f := range l.fields {
		if strings.EqualFold(f.Name, def.Name) {
			return fmt.Errorf("sqlite: field %q already exists", def.Name)
		}
	}

	conn := l.ds.conn()
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quote(l.name), quote(def.Name), columnType(def.Type))
	if err := conn.Exec(stmt).Error; err != nil {
		return err
	}
	rec := fieldRecord{
		LayerID:  l.id,
		Position: len(l.fields),
		Name:     def.Name,
		Type:     def.Type.String(),
		SubType:  subTypeName(def.SubType),
	}
	if err := conn.Create(&rec).Error; err != nil {
		return err
	}
	l.fields = append(l.fields, def)
	return nil
}

// CreateFeature inserts rec. The layer assigns the FID.
func (l *Layer) CreateFeature(rec vectorio.Record) error {
	if !l.ds.update {
		return ErrReadOnly
	}
	if l.ds.closed {
		return ErrClosed
	}
	if len(rec.Values) > len(l.fields) {
		return fmt.Errorf("sqlite: %d values for %d fields", len(rec.Values), len(l.fields))
	}

	g, err := encodeGeometry(rec.Geometry)
	if err != nil {
		return err
	}
	cols := []string{"fid", "geom"}
	args := []interface{}{l.nextFID, g}
	for i, v := range rec.Values {
		arg, err := encodeValue(v, l.fields[i])
		if err != nil {
			return err
		}
		cols = append(cols, quote(l.fields[i].Name))
		args = append(args, arg)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?%s)",
		quote(l.name), strings.Join(cols, ", "), strings.Repeat(", ?", len(cols)-1))
	if err := l.ds.conn().Exec(stmt, args...).Error; err != nil {
		return err
	}
	l.nextFID++
	return nil
}

func (l *Layer) FeatureCount() int64 {
	var n int64
	if err := l.ds.conn().Raw("SELECT COUNT(*) FROM " + quote(l.name)).Row().Scan(&n); err != nil {
		return -1
	}
	return n
}

// Features reads the layer in FID order. The rows are fetched up front so
// that an abandoned iteration holds no connection.
func (l *Layer) Features() vectorio.FeatureIterator {
	recs, err := l.readAll()
	return &iterator{recs: recs, pos: -1, err: err}
}

func (l *Layer) readAll() ([]vectorio.Record, error) {
	cols := []string{"fid", "geom"}
	for _, f := range l.fields {
		cols = append(cols, quote(f.Name))
	}
	rows, err := l.ds.conn().Raw(fmt.Sprintf("SELECT %s FROM %s ORDER BY fid",
		strings.Join(cols, ", "), quote(l.name))).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []vectorio.Record
	raw := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		fid, ok := raw[0].(int64)
		if !ok {
			return nil, fmt.Errorf("sqlite: layer %s: fid stored as %T", l.name, raw[0])
		}
		rec := vectorio.Record{FID: fid}
		if rec.Geometry, err = decodeGeometry(raw[1]); err != nil {
			return nil, fmt.Errorf("sqlite: feature %d: %w", fid, err)
		}
		if len(l.fields) > 0 {
			rec.Values = make([]vectorio.Value, len(l.fields))
			for i, f := range l.fields {
				if rec.Values[i], err = decodeValue(raw[i+2], f); err != nil {
					return nil, fmt.Errorf("sqlite: feature %d: %w", fid, err)
				}
			}
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type iterator struct {
	recs []vectorio.Record
	pos  int
	err  error
}

func (it *iterator) Next() bool {
	if it.err != nil {
		return false
	}
	it.pos++
	return it.pos < len(it.recs)
}

func (it *iterator) Record() vectorio.Record { return it.recs[it.pos] }
func (it *iterator) Err() error              { return it.err }
