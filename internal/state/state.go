// Package state persists what the engine knows about realized resources:
// logical name to kind, provider identity, last-applied inputs, last-known
// outputs and recorded dependencies. Records survive restarts so a second
// run can tell unchanged resources apart from new ones.
package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/specialistvlad/esxigrid/internal/property"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned by Get when no record exists for a name.
var ErrNotFound = errors.New("state record not found")

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultSQLitePath is where the CLI keeps state when no DSN is configured.
const DefaultSQLitePath = ".esxigrid/state.db"

// Status tracks how far a resource got.
type Status string

const (
	// StatusCreating is written before Create is dispatched. A record left
	// in this status means the run stopped before the identity was known.
	StatusCreating Status = "creating"
	// StatusRealized records a resource whose identity and outputs are known.
	StatusRealized Status = "realized"
)

// Record is the persisted view of one managed resource.
type Record struct {
	Name       string
	Kind       string
	Identity   string
	Inputs     property.Bag
	InputsHash string
	Outputs    property.Bag
	// Dependencies are the logical names this resource depended on when it
	// was last applied. They order deletes once the resource leaves the
	// configuration.
	Dependencies []string
	Status       Status
	// Deposed is the identity of a replaced object whose delete has not
	// completed yet.
	Deposed   string
	UpdatedAt time.Time
}

// resourceRow is the gorm model behind Record.
type resourceRow struct {
	Name         string       `gorm:"column:name;primaryKey"`
	Kind         string       `gorm:"column:kind;not null;index"`
	Identity     string       `gorm:"column:identity"`
	InputsHash   string       `gorm:"column:inputs_hash"`
	Inputs       property.Bag `gorm:"column:inputs;serializer:json"`
	Outputs      property.Bag `gorm:"column:outputs;serializer:json"`
	Dependencies []string     `gorm:"column:dependencies;serializer:json"`
	Status       string       `gorm:"column:status;not null;index"`
	Deposed      string       `gorm:"column:deposed"`
	CreatedAt    time.Time    `gorm:"column:created_at"`
	UpdatedAt    time.Time    `gorm:"column:updated_at"`
}

func (resourceRow) TableName() string { return "resources" }

func toRow(r *Record) *resourceRow {
	return &resourceRow{
		Name:         r.Name,
		Kind:         r.Kind,
		Identity:     r.Identity,
		InputsHash:   r.InputsHash,
		Inputs:       r.Inputs,
		Outputs:      r.Outputs,
		Dependencies: r.Dependencies,
		Status:       string(r.Status),
		Deposed:      r.Deposed,
	}
}

func (row *resourceRow) record() *Record {
	return &Record{
		Name:         row.Name,
		Kind:         row.Kind,
		Identity:     row.Identity,
		Inputs:       row.Inputs,
		InputsHash:   row.InputsHash,
		Outputs:      row.Outputs,
		Dependencies: row.Dependencies,
		Status:       Status(row.Status),
		Deposed:      row.Deposed,
		UpdatedAt:    row.UpdatedAt,
	}
}

// DB is a gorm-backed state store.
type DB struct {
	db *gorm.DB
}

// Open connects to the state database and migrates its schema. An empty
// driver means SQLite; an empty SQLite DSN means DefaultSQLitePath.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	var dialector gorm.Dialector
	sqliteDB := false
	switch strings.ToLower(driver) {
	case "", DriverSQLite:
		if dsn == "" {
			dsn = DefaultSQLitePath
		}
		if dir := filepath.Dir(dsn); dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("state: create directory %s: %w", dir, err)
			}
		}
		dialector = sqlite.Open(dsn)
		sqliteDB = true
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("state: postgres driver requires a DSN")
		}
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("state: unsupported driver %q (want %s or %s)", driver, DriverSQLite, DriverPostgres)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("state: open %s: %w", driver, err)
	}
	if sqliteDB {
		// SQLite allows a single writer; concurrent workers queue on one connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("state: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.WithContext(ctx).AutoMigrate(&resourceRow{}); err != nil {
		return nil, fmt.Errorf("state: auto-migrate: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database connection.
func (s *DB) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// List returns every record ordered by name.
func (s *DB) List(ctx context.Context) ([]*Record, error) {
	var rows []*resourceRow
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("state: list: %w", err)
	}
	records := make([]*Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records, nil
}

// Get returns the record for name, or ErrNotFound.
func (s *DB) Get(ctx context.Context, name string) (*Record, error) {
	var row resourceRow
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("state: %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("state: get %q: %w", name, err)
	}
	return row.record(), nil
}

// Put inserts or replaces the record for r.Name.
func (s *DB) Put(ctx context.Context, r *Record) error {
	if r.Name == "" {
		return fmt.Errorf("state: record without a name")
	}
	row := toRow(r)
	var existing resourceRow
	err := s.db.WithContext(ctx).Select("created_at").Where("name = ?", r.Name).First(&existing).Error
	switch {
	case err == nil:
		row.CreatedAt = existing.CreatedAt
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("state: put %q: %w", r.Name, err)
	}
	if err := s.db.WithContext(ctx).Save(row).Error; err != nil {
		return fmt.Errorf("state: put %q: %w", r.Name, err)
	}
	return nil
}

// Delete removes the record for name. Deleting a missing record is not an error.
func (s *DB) Delete(ctx context.Context, name string) error {
	if err := s.db.WithContext(ctx).Where("name = ?", name).Delete(&resourceRow{}).Error; err != nil {
		return fmt.Errorf("state: delete %q: %w", name, err)
	}
	return nil
}
