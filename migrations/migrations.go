// Package migrations is the idempotent counterpart of the seed package: the
// same users schema and three-row seed, expressed as embedded, versioned
// migration files. Re-running Up against a bootstrapped database is a no-op
// instead of a duplicate-table error.
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

//go:embed *.sql
var files embed.FS

// ─────────────────────────────────────────────────────────────────────────────
// Runner
// ─────────────────────────────────────────────────────────────────────────────

// Runner wraps a golang-migrate instance over the embedded migration files.
type Runner struct {
	m *migrate.Migrate
}

// New creates a Runner for databaseURL using the embedded migrations.
func New(databaseURL string, logger logrus.FieldLogger) (*Runner, error) {
	return NewWithSource(files, ".", databaseURL, logger)
}

// NewWithSource creates a Runner over an arbitrary migration file tree.
// Tests use this to run dialect-specific fixtures.
func NewWithSource(fsys fs.FS, dir, databaseURL string, logger logrus.FieldLogger) (*Runner, error) {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("migrations: init: %w", err)
	}
	if logger != nil {
		m.Log = &migrateLogger{logger: logger}
	}
	return &Runner{m: m}, nil
}

// Close releases the source and database connections.
func (r *Runner) Close() error {
	srcErr, dbErr := r.m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}

// Up applies all pending migrations. Already-applied migrations are skipped,
// so Up is safe to run repeatedly.
func (r *Runner) Up() error {
	if err := r.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: up: %w", err)
	}
	return nil
}

// Down rolls back the given number of migrations.
func (r *Runner) Down(steps int) error {
	if steps < 1 {
		return fmt.Errorf("migrations: down: steps must be >= 1, got %d", steps)
	}
	if err := r.m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: down: %w", err)
	}
	return nil
}

// Version reports the current migration version and dirty flag.
// A database with no applied migrations reports version 0.
func (r *Runner) Version() (version uint, dirty bool, err error) {
	v, dirty, err := r.m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("migrations: version: %w", err)
	}
	return v, dirty, nil
}

// Force sets the migration version without running anything, clearing a dirty
// state after a failed migration was fixed by hand.
func (r *Runner) Force(version int) error {
	if err := r.m.Force(version); err != nil {
		return fmt.Errorf("migrations: force: %w", err)
	}
	return nil
}

// Drop removes everything in the database. Dev only.
func (r *Runner) Drop() error {
	if err := r.m.Drop(); err != nil {
		return fmt.Errorf("migrations: drop: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// migrateLogger — adapts logrus to golang-migrate's Logger interface
// ─────────────────────────────────────────────────────────────────────────────

type migrateLogger struct {
	logger logrus.FieldLogger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Infof(format, v...)
}
func (l *migrateLogger) Verbose() bool { return false }
