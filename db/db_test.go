// db/db_test.go — unit tests for the connection layer.
// Uses an in-memory SQLite database; no external services required.
//
// Run:  go test ./db/... -v -race
package db_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tablewatch/tablewatch/db"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test helpers
// ─────────────────────────────────────────────────────────────────────────────

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(db.Config{
		DSN:        ":memory:",
		DriverName: "sqlite3",
		Hooks: []db.Hook{
			db.NewLogHook(db.LogHookConfig{LogArgs: true}),
		},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	// Create schema
	_, err = d.Exec(context.Background(), `
		CREATE TABLE IF NOT EXISTS users (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL,
			email      TEXT UNIQUE,
			created_at DATETIME NOT NULL
		)`)
	if err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return d
}

// ─────────────────────────────────────────────────────────────────────────────
// Open / Ping
// ─────────────────────────────────────────────────────────────────────────────

func TestOpen(t *testing.T) {
	d := newTestDB(t)
	if err := d.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestOpen_InvalidDSN(t *testing.T) {
	_, err := db.Open(db.Config{DSN: "", DriverName: "sqlite3"})
	if err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestDriverName(t *testing.T) {
	d := newTestDB(t)
	if got := d.DriverName(); got != "sqlite3" {
		t.Fatalf("expected sqlite3, got %q", got)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Exec / QueryRow
// ─────────────────────────────────────────────────────────────────────────────

func TestExec_Insert(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	res, err := d.Exec(ctx,
		`INSERT INTO users (name, email, created_at) VALUES (?, ?, ?)`,
		"Alice", "alice@test.com", time.Now(),
	)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	n, _ := res.RowsAffected()
	if n != 1 {
		t.Fatalf("expected 1 row affected, got %d", n)
	}
}

func TestQueryRow_Scan(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	_, err := d.Exec(ctx,
		`INSERT INTO users (name, email, created_at) VALUES (?, ?, ?)`,
		"Bob", "bob@test.com", time.Now(),
	)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	var name, email string
	err = d.QueryRow(ctx, `SELECT name, email FROM users WHERE email = ?`, "bob@test.com").
		Scan(&name, &email)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if name != "Bob" || email != "bob@test.com" {
		t.Fatalf("unexpected values: name=%q email=%q", name, email)
	}
}

func TestQueryRow_NotFound(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	var name string
	err := d.QueryRow(ctx, `SELECT name FROM users WHERE id = ?`, 99999).Scan(&name)
	if !db.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Query — multiple rows
// ─────────────────────────────────────────────────────────────────────────────

func TestQuery_MultipleRows(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	for _, u := range []struct{ name, email string }{
		{"Alice", "alice@q.com"},
		{"Bob", "bob@q.com"},
		{"Charlie", "charlie@q.com"},
	} {
		_, err := d.Exec(ctx,
			`INSERT INTO users (name, email, created_at) VALUES (?, ?, ?)`,
			u.name, u.email, now,
		)
		if err != nil {
			t.Fatalf("insert %s: %v", u.name, err)
		}
	}

	rows, err := d.Query(ctx, `SELECT name FROM users ORDER BY name`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			t.Fatalf("scan: %v", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows.Err: %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(names))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ExecTx — commit
// ─────────────────────────────────────────────────────────────────────────────

func TestExecTx_Commit(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	err := d.ExecTx(ctx, func(tx *db.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO users (name, email, created_at) VALUES (?, ?, ?)`,
			"Dave", "dave@tx.com", time.Now(),
		)
		return err
	})
	if err != nil {
		t.Fatalf("tx commit: %v", err)
	}

	var n int
	_ = d.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, "dave@tx.com").Scan(&n)
	if n != 1 {
		t.Fatalf("expected 1 committed row, got %d", n)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ExecTx — rollback on error
// ─────────────────────────────────────────────────────────────────────────────

func TestExecTx_RollbackOnError(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	sentinelErr := errors.New("intentional failure")

	err := d.ExecTx(ctx, func(tx *db.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO users (name, email, created_at) VALUES (?, ?, ?)`,
			"Eve", "eve@rollback.com", time.Now(),
		)
		if err != nil {
			return err
		}
		return sentinelErr // force rollback
	})
	if !errors.Is(err, sentinelErr) {
		t.Fatalf("expected sentinelErr, got %v", err)
	}

	var n int
	_ = d.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, "eve@rollback.com").Scan(&n)
	if n != 0 {
		t.Fatalf("expected 0 rows after rollback, got %d", n)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ExecTx — rollback on panic
// ─────────────────────────────────────────────────────────────────────────────

func TestExecTx_RollbackOnPanic(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic to propagate")
		}
	}()

	_ = d.ExecTx(ctx, func(tx *db.Tx) error {
		panic("test panic")
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Prepared statements
// ─────────────────────────────────────────────────────────────────────────────

func TestPrepare(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	stmt, err := d.Prepare(ctx,
		`INSERT INTO users (name, email, created_at) VALUES (?, ?, ?)`)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	defer stmt.Close()

	for _, email := range []string{"p1@test.com", "p2@test.com", "p3@test.com"} {
		_, err := stmt.Exec(ctx, "PrepUser", email, now)
		if err != nil {
			t.Fatalf("exec prepared: %v", err)
		}
	}

	var n int
	_ = d.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE name = ?`, "PrepUser").Scan(&n)
	if n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Error mapping — DuplicateKey / TableExists / UnknownTable (SQLite)
// ─────────────────────────────────────────────────────────────────────────────

func TestErrorMapper_DuplicateKey(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	insert := func() error {
		_, err := d.Exec(ctx,
			`INSERT INTO users (name, email, created_at) VALUES (?, ?, ?)`,
			"Alice", "dup@test.com", time.Now(),
		)
		return err
	}

	if err := insert(); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := insert() // should trigger UNIQUE constraint
	if !db.IsDuplicateKey(err) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestErrorMapper_TableExists(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	// The users table was created by newTestDB; creating it again without
	// IF NOT EXISTS must map to ErrTableExists.
	_, err := d.Exec(ctx, `CREATE TABLE users (id INTEGER PRIMARY KEY)`)
	if !db.IsTableExists(err) {
		t.Fatalf("expected ErrTableExists, got %v", err)
	}
}

func TestErrorMapper_UnknownTable(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	_, err := d.Query(ctx, `SELECT * FROM no_such_table`)
	if !db.IsUnknownTable(err) {
		t.Fatalf("expected ErrUnknownTable, got %v", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Error mapping — MySQL errno (the primary backend, mapped without a server)
// ─────────────────────────────────────────────────────────────────────────────

func TestErrorMapper_MySQLNumbers(t *testing.T) {
	mapper := db.DefaultErrorMapper()

	tests := []struct {
		number  uint16
		message string
		check   func(error) bool
		want    string
	}{
		{1050, "Table 'users' already exists", db.IsTableExists, "ErrTableExists"},
		{1146, "Table 'app.users' doesn't exist", db.IsUnknownTable, "ErrUnknownTable"},
		{1051, "Unknown table 'app.users'", db.IsUnknownTable, "ErrUnknownTable"},
		{1062, "Duplicate entry 'alice@example.com' for key 'email'", db.IsDuplicateKey, "ErrDuplicateKey"},
		{1452, "Cannot add or update a child row", db.IsForeignKeyViolation, "ErrForeignKeyViolation"},
		{1213, "Deadlock found when trying to get lock", db.IsDeadlock, "ErrDeadlock"},
		{3024, "Query execution was interrupted, maximum statement execution time exceeded", db.IsTimeout, "ErrTimeout"},
		{1045, "Access denied for user 'root'@'localhost'", db.IsConnectionFailed, "ErrConnectionFailed"},
		{2002, "Can't connect to local MySQL server", db.IsConnectionFailed, "ErrConnectionFailed"},
	}

	for _, tt := range tests {
		raw := &mysql.MySQLError{Number: tt.number, Message: tt.message}
		mapped := mapper.Map(raw)
		if !tt.check(mapped) {
			t.Fatalf("errno %d: expected %s, got %v", tt.number, tt.want, mapped)
		}
		// The raw driver error must stay reachable for callers that need it.
		var me *mysql.MySQLError
		if !errors.As(mapped, &me) || me.Number != tt.number {
			t.Fatalf("errno %d: original driver error not preserved in %v", tt.number, mapped)
		}
	}
}

func TestErrorMapper_MySQLUnknownNumberPassesThrough(t *testing.T) {
	raw := &mysql.MySQLError{Number: 1064, Message: "You have an error in your SQL syntax"}
	mapped := db.DefaultErrorMapper().Map(raw)
	if !errors.Is(mapped, raw) {
		t.Fatalf("unmapped errno should pass through unchanged, got %v", mapped)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Error mapping — PostgreSQL SQLSTATE
// ─────────────────────────────────────────────────────────────────────────────

func TestErrorMapper_PostgresCodes(t *testing.T) {
	mapper := db.DefaultErrorMapper()

	tests := []struct {
		code  pq.ErrorCode
		check func(error) bool
		want  string
	}{
		{"42P07", db.IsTableExists, "ErrTableExists"},
		{"42P01", db.IsUnknownTable, "ErrUnknownTable"},
		{"23505", db.IsDuplicateKey, "ErrDuplicateKey"},
		{"23503", db.IsForeignKeyViolation, "ErrForeignKeyViolation"},
		{"40P01", db.IsDeadlock, "ErrDeadlock"},
		{"57014", db.IsTimeout, "ErrTimeout"},
		{"08006", db.IsConnectionFailed, "ErrConnectionFailed"},
	}

	for _, tt := range tests {
		mapped := mapper.Map(&pq.Error{Code: tt.code, Message: "probe message"})
		if !tt.check(mapped) {
			t.Fatalf("SQLSTATE %s: expected %s, got %v", tt.code, tt.want, mapped)
		}
	}
}

func TestErrorMapper_PostgresCodeFromString(t *testing.T) {
	// Errors that cross a process or string boundary lose the typed form but
	// keep the SQLSTATE suffix; the string fallback must still map them.
	raw := fmt.Errorf("exec: %w",
		errors.New(`pq: duplicate key value violates unique constraint "users_email_key" (SQLSTATE 23505)`))
	mapped := db.DefaultErrorMapper().Map(raw)
	if !db.IsDuplicateKey(mapped) {
		t.Fatalf("expected ErrDuplicateKey from SQLSTATE string, got %v", mapped)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// WithRetry
// ─────────────────────────────────────────────────────────────────────────────

func TestWithRetry_SucceedsOnSecondAttempt(t *testing.T) {
	ctx := context.Background()
	attempts := 0
	transient := errors.New("transient")

	err := db.WithRetry(ctx, db.RetryConfig{
		MaxAttempts: 3,
		Delay:       1 * time.Millisecond,
		RetryOn:     func(err error) bool { return errors.Is(err, transient) },
	}, func() error {
		attempts++
		if attempts < 2 {
			return transient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	ctx := context.Background()
	permanent := errors.New("permanent")

	err := db.WithRetry(ctx, db.RetryConfig{
		MaxAttempts: 3,
		Delay:       1 * time.Millisecond,
		RetryOn:     func(err error) bool { return errors.Is(err, permanent) },
	}, func() error {
		return permanent
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Hooks — verify they are called
// ─────────────────────────────────────────────────────────────────────────────

type countingHook struct {
	before int
	after  int
}

func (h *countingHook) BeforeQuery(_ context.Context, _ string, _ []any) { h.before++ }
func (h *countingHook) AfterQuery(_ context.Context, _ string, _ []any, _ time.Duration, _ error) {
	h.after++
}

func TestHooks_CalledOnExec(t *testing.T) {
	hook := &countingHook{}
	d, err := db.Open(db.Config{
		DSN:        ":memory:",
		DriverName: "sqlite3",
		Hooks:      []db.Hook{hook},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	ctx := context.Background()
	_, _ = d.Exec(ctx, `SELECT 1`)

	if hook.before != 1 || hook.after != 1 {
		t.Fatalf("hook not called: before=%d after=%d", hook.before, hook.after)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// BatchExec
// ─────────────────────────────────────────────────────────────────────────────

func TestBatchExec(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	type row struct{ Name, Email string }
	items := []row{
		{"Batch1", "b1@test.com"},
		{"Batch2", "b2@test.com"},
		{"Batch3", "b3@test.com"},
	}

	err := db.BatchExec(d, ctx,
		`INSERT INTO users (name, email, created_at) VALUES (?, ?, ?)`,
		items,
		func(r row) []any { return []any{r.Name, r.Email, now} },
	)
	if err != nil {
		t.Fatalf("batch exec: %v", err)
	}

	var n int
	_ = d.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE name LIKE 'Batch%'`).Scan(&n)
	if n != 3 {
		t.Fatalf("expected 3 batch rows, got %d", n)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Driver registry
// ─────────────────────────────────────────────────────────────────────────────

func TestOpenWithDriver_SQLite(t *testing.T) {
	d, err := db.OpenWithDriver("sqlite3", db.DriverOptions{
		Database: ":memory:",
	}, db.Config{})
	if err != nil {
		t.Fatalf("open with driver: %v", err)
	}
	defer d.Close()

	if err := d.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestLookupDriver_Unknown(t *testing.T) {
	_, err := db.LookupDriver("oracle")
	if err == nil {
		t.Fatal("expected error for unregistered driver")
	}
}

func TestMySQLDriver_DSN(t *testing.T) {
	dsn, err := db.MySQLDriver{}.DSN(db.DriverOptions{
		Host: "localhost", Port: 3306,
		User: "root", Password: "secret", Database: "app",
	})
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	want := "root:secret@tcp(localhost:3306)/app?parseTime=true"
	if dsn != want {
		t.Fatalf("dsn mismatch:\n got  %s\n want %s", dsn, want)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Context timeout
// ─────────────────────────────────────────────────────────────────────────────

func TestContextCancellation(t *testing.T) {
	d := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := d.Exec(ctx, `SELECT 1`)
	if err == nil {
		// SQLite may execute trivially fast before noticing cancellation;
		// this is acceptable behaviour. The error mapping is tested via
		// the error sentinel tests above.
		t.Log("SQLite executed before context was observed (acceptable)")
	}
}
