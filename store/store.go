// Package store implements the Persistence Store: the on-disk catalog of
// bonded devices, the products and drivers that describe them, and the
// standard-peripheral rows (binary outputs, lights, sensors) the
// Enumerator discovers. It wraps a single SQLite database through sqlx,
// with schema migrations embedded at build time.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Queryer is the subset of *sqlx.DB and *sqlx.Tx every repository needs,
// letting a repository run against either a bare connection or a
// transaction without duplicating its method set.
type Queryer interface {
	sqlx.ExecerContext
	sqlx.QueryerContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Store owns the database connection and exposes one repository per
// entity. The zero value is not usable; build one with Open.
type Store struct {
	db  *sqlx.DB
	log *logrus.Entry

	Devices         *DeviceRepo
	Products        *ProductRepo
	Drivers         *DriverRepo
	ProductDrivers  *ProductDriverRepo
	BinaryOutputs   *BinaryOutputRepo
	Lights          *LightRepo
	Sensors         *SensorRepo
	DeviceSensors   *DeviceSensorRepo
	Migrations      *MigrationRepo
}

// Open connects to the SQLite database at path, creating it if absent,
// and applies any migration not yet recorded in the migrations table.
// path is a plain filesystem path; the WAL and foreign-key pragmas are
// appended to the DSN so every connection in the pool sees them.
func Open(ctx context.Context, path string, log *logrus.Entry) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on", path)
	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite database")
	}
	db.SetMaxOpenConns(1) // sqlite3 driver serializes writers; avoid pool contention on WAL

	s := &Store{db: db, log: log}
	s.Devices = &DeviceRepo{q: db}
	s.Products = &ProductRepo{q: db}
	s.Drivers = &DriverRepo{q: db}
	s.ProductDrivers = &ProductDriverRepo{q: db}
	s.BinaryOutputs = &BinaryOutputRepo{q: db}
	s.Lights = &LightRepo{q: db}
	s.Sensors = &SensorRepo{q: db}
	s.DeviceSensors = &DeviceSensorRepo{q: db}
	s.Migrations = &MigrationRepo{q: db}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for callers that need a bare
// sqlx.DB, not a repository.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// migrate applies every embedded migration not already recorded,
// in lexical filename order, each inside its own transaction.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return errors.Wrap(err, "create migrations table")
	}

	applied, err := s.Migrations.Applied(ctx)
	if err != nil {
		return err
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return errors.Wrap(err, "read embedded migrations")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if applied[name] {
			continue
		}
		body, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return errors.Wrapf(err, "read migration %s", name)
		}
		if strings.TrimSpace(string(body)) == "" {
			return errors.Errorf("migration %s is empty", name)
		}
		if err := s.applyMigration(ctx, name, string(body)); err != nil {
			return err
		}
		s.log.WithField("migration", name).Info("applied migration")
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, name, body string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "begin transaction for migration %s", name)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return errors.Wrapf(err, "apply migration %s", name)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO migrations (version) VALUES (?)`, name); err != nil {
		return errors.Wrapf(err, "record migration %s", name)
	}
	return errors.Wrapf(tx.Commit(), "commit migration %s", name)
}

// Reset drops every catalog table and re-runs migrations from scratch,
// backing iqrfDb_Reset.
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{
		"device_sensors", "sensors", "lights", "binary_outputs",
		"product_drivers", "drivers", "products", "devices", "migrations",
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin reset transaction")
	}
	defer tx.Rollback()
	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
			return errors.Wrapf(err, "drop table %s", t)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit reset transaction")
	}
	return s.migrate(ctx)
}

// WithTx runs fn inside a transaction, committing on success and
// rolling back if fn returns an error or panics.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

// ErrNotFound is returned by repository Get methods when no row
// matches.
var ErrNotFound = sql.ErrNoRows
