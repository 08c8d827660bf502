// Package db — driver.go
// Pluggable driver abstraction. Each adapter implements Driver and registers
// itself, so commands can open a connection from structured host/port/user
// options without hand-building DSN strings.
package db

import (
	"fmt"
	"sync"
)

// ─────────────────────────────────────────────────────────────────────────────
// Driver interface
// ─────────────────────────────────────────────────────────────────────────────

// Driver encapsulates database-specific behaviour:
//   - building a DSN from structured options
//   - registering the database/sql driver (idempotent)
//   - providing a driver-specific ErrorMapper
type Driver interface {
	// Name returns the name passed to sql.Register, e.g. "mysql".
	Name() string

	// DSN converts structured options into a driver DSN string.
	DSN(opts DriverOptions) (string, error)

	// ErrorMapper returns a mapper tuned to this driver's error types.
	ErrorMapper() ErrorMapper

	// Register ensures the driver is registered with database/sql.
	// Implementations must be idempotent (safe to call multiple times).
	Register()
}

// DriverOptions carries the most common connection parameters in a structured,
// driver-agnostic form. DSN() converts them to the driver's native format.
// These map one-to-one onto the monitor's --host/--port/--user/--password/
// --database flags.
type DriverOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // postgres only: "disable", "require", "verify-full", ...
	// Extra holds driver-specific key/value parameters.
	Extra map[string]string
}

// ─────────────────────────────────────────────────────────────────────────────
// Driver registry
// ─────────────────────────────────────────────────────────────────────────────

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// RegisterDriver adds a Driver to the global registry.
// Panics if a driver with the same name is already registered (use
// ReplaceDriver to override).
func RegisterDriver(d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, ok := drivers[d.Name()]; ok {
		panic(fmt.Sprintf("tablewatch/db: driver %q already registered", d.Name()))
	}
	drivers[d.Name()] = d
}

// ReplaceDriver upserts a driver in the registry (no panic on collision).
func ReplaceDriver(d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[d.Name()] = d
}

// LookupDriver returns the registered Driver by name or an error.
func LookupDriver(name string) (Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("tablewatch/db: driver %q not registered", name)
	}
	return d, nil
}

// OpenWithDriver opens a DB using a registered Driver and structured options,
// removing the need for manual DSN construction.
//
//	db, err := db.OpenWithDriver("mysql", db.DriverOptions{
//	    Host: "localhost", Port: 3306,
//	    User: "root", Password: "secret", Database: "app",
//	}, db.Config{MaxOpenConns: 5})
func OpenWithDriver(driverName string, driverOpts DriverOptions, cfg Config) (*DB, error) {
	drv, err := LookupDriver(driverName)
	if err != nil {
		return nil, err
	}
	drv.Register()

	dsn, err := drv.DSN(driverOpts)
	if err != nil {
		return nil, fmt.Errorf("tablewatch/db: DSN construction failed: %w", err)
	}

	cfg.DriverName = drv.Name()
	cfg.DSN = dsn

	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	// Install the driver-specific error mapper.
	db.SetErrorMapper(ChainMapper(drv.ErrorMapper(), DefaultErrorMapper()))
	return db, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// MySQL driver adapter — the primary backend
// ─────────────────────────────────────────────────────────────────────────────

// MySQLDriver is the built-in go-sql-driver/mysql adapter.
// Import _ "github.com/go-sql-driver/mysql" alongside this to activate.
type MySQLDriver struct{}

func (MySQLDriver) Name() string { return "mysql" }

func (MySQLDriver) DSN(o DriverOptions) (string, error) {
	if o.Host == "" || o.Database == "" {
		return "", fmt.Errorf("mysql driver: Host and Database are required")
	}
	port := o.Port
	if port == 0 {
		port = 3306
	}
	// parseTime makes TIMESTAMP/DATETIME columns scan as time.Time, which the
	// snapshot encoder relies on.
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		o.User, o.Password, o.Host, port, o.Database)
	for k, v := range o.Extra {
		dsn += fmt.Sprintf("&%s=%s", k, v)
	}
	return dsn, nil
}

func (MySQLDriver) ErrorMapper() ErrorMapper { return DefaultErrorMapper() }
func (MySQLDriver) Register()                { /* go-sql-driver/mysql self-registers */ }

// ─────────────────────────────────────────────────────────────────────────────
// PostgreSQL driver adapter (lib/pq) — restore target
// ─────────────────────────────────────────────────────────────────────────────

// PostgresDriver is the built-in lib/pq adapter.
type PostgresDriver struct{}

func (PostgresDriver) Name() string { return "postgres" }

func (PostgresDriver) DSN(o DriverOptions) (string, error) {
	if o.Host == "" || o.Database == "" {
		return "", fmt.Errorf("postgres driver: Host and Database are required")
	}
	port := o.Port
	if port == 0 {
		port = 5432
	}
	sslMode := o.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		o.Host, port, o.User, o.Password, o.Database, sslMode,
	)
	for k, v := range o.Extra {
		dsn += fmt.Sprintf(" %s=%s", k, v)
	}
	return dsn, nil
}

func (PostgresDriver) ErrorMapper() ErrorMapper { return DefaultErrorMapper() }
func (PostgresDriver) Register()                { /* lib/pq self-registers via its init() */ }

// ─────────────────────────────────────────────────────────────────────────────
// SQLite driver adapter — tests and local restore targets
// ─────────────────────────────────────────────────────────────────────────────

// SQLiteDriver is the built-in mattn/go-sqlite3 adapter.
type SQLiteDriver struct{}

func (SQLiteDriver) Name() string { return "sqlite3" }

func (SQLiteDriver) DSN(o DriverOptions) (string, error) {
	if o.Database == "" {
		return "", fmt.Errorf("sqlite3 driver: Database (file path) is required")
	}
	dsn := o.Database
	first := true
	for k, v := range o.Extra {
		if first {
			dsn += "?"
			first = false
		} else {
			dsn += "&"
		}
		dsn += k + "=" + v
	}
	return dsn, nil
}

func (SQLiteDriver) ErrorMapper() ErrorMapper { return DefaultErrorMapper() }
func (SQLiteDriver) Register()                { /* mattn/go-sqlite3 self-registers */ }

func init() {
	RegisterDriver(MySQLDriver{})
	RegisterDriver(PostgresDriver{})
	RegisterDriver(SQLiteDriver{})
}
