package shapefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"

	"github.com/tingold/vectorio"
)

// load reads the shapefile at location into memory.
func load(location string) (*Layer, error) {
	r, err := shp.Open(location)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	base := basename(location)
	l := &Layer{
		name:  filepath.Base(base),
		gtype: geometryType(r.GeometryType),
		shape: r.GeometryType,
		taken: make(map[string]bool),
	}
	for _, f := range r.Fields() {
		c := columnFromDBF(f)
		l.taken[strings.ToLower(c.defn.Name)] = true
		l.columns = append(l.columns, c)
	}

	for r.Next() {
		row, s := r.Shape()
		g, err := fromShape(s)
		if err != nil {
			return nil, fmt.Errorf("shapefile: record %d: %w", row, err)
		}
		rec := vectorio.Record{FID: int64(len(l.records)), Geometry: g}
		if len(l.columns) > 0 {
			rec.Values = make([]vectorio.Value, len(l.columns))
			for i, c := range l.columns {
				if rec.Values[i], err = c.decode(r.ReadAttribute(row, i)); err != nil {
					return nil, fmt.Errorf("shapefile: record %d: %w", row, err)
				}
			}
		}
		l.records = append(l.records, rec)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	prj, err := os.ReadFile(base + ".prj")
	switch {
	case err == nil:
		l.srs = strings.TrimSpace(string(prj))
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}
	return l, nil
}

// save writes the layer to location and its sidecar files.
func (l *Layer) save(location string) error {
	st := l.shape
	if st == shp.NULL {
		st = shapeType(l.gtype)
	}

	// String columns are as wide as their longest value.
	columns := append([]column(nil), l.columns...)
	cells := make([][]string, len(l.records))
	for i, rec := range l.records {
		cells[i] = make([]string, len(columns))
		for j, v := range rec.Values {
			s, err := columns[j].encode(v)
			if err != nil {
				return fmt.Errorf("shapefile: record %d: %w", rec.FID, err)
			}
			cells[i][j] = s
			if columns[j].ftype == 'C' && len(s) > int(columns[j].size) {
				columns[j].size = uint8(len(s))
			}
		}
	}
	fields := make([]shp.Field, len(columns))
	for i, c := range columns {
		fields[i] = c.field()
	}

	base := basename(location)
	w, err := shp.Create(base+".shp", st)
	if err != nil {
		return err
	}
	if err := w.SetFields(fields); err != nil {
		w.Close()
		return err
	}
	for i, rec := range l.records {
		s, err := toShape(rec.Geometry, st)
		if err != nil {
			w.Close()
			return fmt.Errorf("shapefile: record %d: %w", rec.FID, err)
		}
		row := int(w.Write(s))
		for j, cell := range cells[i] {
			if cell == "" {
				continue
			}
			if err := w.WriteAttribute(row, j, cell); err != nil {
				w.Close()
				return fmt.Errorf("shapefile: record %d: %w", rec.FID, err)
			}
		}
	}
	w.Close()

	// go-shp names the table after the base name without the dot.
	if _, err := os.Stat(base + "dbf"); err == nil {
		if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
			return err
		}
	}
	if err := os.WriteFile(base+".cpg", []byte("UTF-8"), 0o644); err != nil {
		return err
	}
	return l.saveSRS(base + ".prj")
}

// saveSRS writes WKT reference systems to path. Authority codes have no
// .prj form and leave no file.
func (l *Layer) saveSRS(path string) error {
	if !strings.Contains(l.srs, "[") {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	return os.WriteFile(path, []byte(l.srs), 0o644)
}
