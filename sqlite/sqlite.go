// Package sqlite stores vectorio layers in a SQLite database through gorm.
//
// The database keeps a catalog of layers and fields in the vector_layers and
// vector_fields tables. Each layer is a table of its own with an integer fid
// primary key, the geometry as little endian WKB in geom, and one column per
// field.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tingold/vectorio"
)

// Common errors returned by this package.
var (
	ErrReadOnly      = errors.New("sqlite: dataset opened read-only")
	ErrLayerExists   = errors.New("sqlite: layer already exists")
	ErrReservedName  = errors.New("sqlite: reserved layer name")
	ErrInTransaction = errors.New("sqlite: transaction already in progress")
	ErrNoTransaction = errors.New("sqlite: no transaction in progress")
	ErrClosed        = errors.New("sqlite: dataset is closed")
)

func init() {
	vectorio.Register(driver{})
}

type driver struct{}

func (driver) Name() string { return "sqlite" }

func (driver) Match(location string) bool {
	return vectorio.HasExtension(location, ".sqlite", ".sqlite3", ".db")
}

func (driver) Open(ctx context.Context, location string, update bool) (vectorio.Dataset, error) {
	if _, err := os.Stat(location); err != nil {
		return nil, err
	}
	dsn := location
	if !update {
		dsn = "file:" + location + "?mode=ro"
	}
	db, err := open(ctx, dsn, update)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{db: db, location: location, update: update}
	if err := ds.load(); err != nil {
		ds.Close()
		return nil, err
	}
	return ds, nil
}

func (driver) Create(ctx context.Context, location string) (vectorio.Dataset, error) {
	dir := filepath.Dir(location)
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("sqlite: %s is not a directory", dir)
	}
	db, err := open(ctx, location, true)
	if err != nil {
		return nil, err
	}
	return &Dataset{db: db, location: location, update: true}, nil
}

func (driver) Remove(_ context.Context, location string) error {
	for _, suffix := range []string{"", "-journal", "-wal", "-shm"} {
		if err := os.Remove(location + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// open connects to dsn and, for writable databases, creates the catalog.
func open(ctx context.Context, dsn string, migrate bool) (*gorm.DB, error) {
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
		Logger: logger.New(logrus.StandardLogger(), logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer; one connection keeps transactions and
	// plain statements from locking each other out.
	sqlDB.SetMaxOpenConns(1)

	db = db.WithContext(ctx)
	if migrate {
		if err := db.AutoMigrate(&layerRecord{}, &fieldRecord{}); err != nil {
			sqlDB.Close()
			return nil, err
		}
	}
	return db, nil
}

// Dataset is an open SQLite database.
type Dataset struct {
	db       *gorm.DB
	tx       *gorm.DB
	location string
	update   bool
	closed   bool
	layers   []*Layer
}

// conn returns the handle statements run on: the open transaction if there
// is one.
func (d *Dataset) conn() *gorm.DB {
	if d.tx != nil {
		return d.tx
	}
	return d.db
}

// load reads the catalog. Databases without one hold no layers.
func (d *Dataset) load() error {
	if !d.db.Migrator().HasTable(&layerRecord{}) {
		return nil
	}
	var recs []layerRecord
	if err := d.db.Order("id").Find(&recs).Error; err != nil {
		return err
	}
	for _, rec := range recs {
		l := &Layer{
			ds:    d,
			id:    rec.ID,
			name:  rec.Name,
			srs:   rec.SRS,
			gtype: parseGeometryType(rec.GeometryType),
		}
		var fields []fieldRecord
		if err := d.db.Where("layer_id = ?", rec.ID).Order("position").Find(&fields).Error; err != nil {
			return err
		}
		for _, f := range fields {
			t, err := parseFieldType(f.Type)
			if err != nil {
				return err
			}
			l.fields = append(l.fields, vectorio.FieldDefn{Name: f.Name, Type: t, SubType: parseSubType(f.SubType)})
		}
		var maxFID *int64
		if err := d.db.Raw("SELECT MAX(fid) FROM " + quote(l.name)).Row().Scan(&maxFID); err != nil {
			return fmt.Errorf("sqlite: layer %s: %w", l.name, err)
		}
		if maxFID != nil {
			l.nextFID = *maxFID + 1
		}
		d.layers = append(d.layers, l)
	}
	return nil
}

func (d *Dataset) LayerCount() int { return len(d.layers) }

func (d *Dataset) Layer(i int) (vectorio.Layer, error) {
	if i < 0 || i >= len(d.layers) {
		return nil, fmt.Errorf("%w: %d of %d", vectorio.ErrLayerIndexOutOfRange, i, len(d.layers))
	}
	return d.layers[i], nil
}

func (d *Dataset) LayerByName(name string) (vectorio.Layer, error) {
	if _, l := d.find(name); l != nil {
		return l, nil
	}
	return nil, fmt.Errorf("%w: %s", vectorio.ErrNoSuchLayer, name)
}

func (d *Dataset) find(name string) (int, *Layer) {
	for i, l := range d.layers {
		if strings.EqualFold(l.name, name) {
			return i, l
		}
	}
	return -1, nil
}

// CreateLayer creates a layer table and its catalog entry. An existing layer
// of the same name is dropped first with the OVERWRITE option.
func (d *Dataset) CreateLayer(spec vectorio.LayerSpec) (vectorio.Layer, error) {
	if !d.update {
		return nil, ErrReadOnly
	}
	if d.closed {
		return nil, ErrClosed
	}
	if spec.Name == "" || reserved(spec.Name) {
		return nil, fmt.Errorf("%w: %q", ErrReservedName, spec.Name)
	}
	if i, old := d.find(spec.Name); old != nil {
		if !spec.BoolOption("OVERWRITE") {
			return nil, fmt.Errorf("%w: %s", ErrLayerExists, spec.Name)
		}
		if err := d.drop(old); err != nil {
			return nil, err
		}
		d.layers = append(d.layers[:i], d.layers[i+1:]...)
	}

	conn := d.conn()
	rec := layerRecord{Name: spec.Name, SRS: spec.SRS, GeometryType: spec.GeometryType.String()}
	if err := conn.Create(&rec).Error; err != nil {
		return nil, err
	}
	if err := conn.Exec("CREATE TABLE " + quote(spec.Name) + " (fid INTEGER PRIMARY KEY, geom BLOB)").Error; err != nil {
		return nil, err
	}
	l := &Layer{ds: d, id: rec.ID, name: spec.Name, srs: spec.SRS, gtype: spec.GeometryType}
	d.layers = append(d.layers, l)
	return l, nil
}

func (d *Dataset) drop(l *Layer) error {
	conn := d.conn()
	if err := conn.Migrator().DropTable(l.name); err != nil {
		return err
	}
	if err := conn.Where("layer_id = ?", l.id).Delete(&fieldRecord{}).Error; err != nil {
		return err
	}
	return conn.Delete(&layerRecord{}, l.id).Error
}

func (d *Dataset) SupportsTransactions() bool { return true }

func (d *Dataset) BeginTransaction() error {
	if !d.update {
		return ErrReadOnly
	}
	if d.tx != nil {
		return ErrInTransaction
	}
	tx := d.db.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	d.tx = tx
	return nil
}

func (d *Dataset) CommitTransaction() error {
	if d.tx == nil {
		return ErrNoTransaction
	}
	err := d.tx.Commit().Error
	d.tx = nil
	return err
}

// Close rolls back an open transaction and closes the database.
func (d *Dataset) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.tx != nil {
		d.tx.Rollback()
		d.tx = nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
