// Package inspect discovers the live shape of the monitored database from
// INFORMATION_SCHEMA. Binlog row events carry positional values only, so the
// monitor needs the column order and primary-key column of every table before
// it can fold events into named records.
package inspect

import (
	"context"
	"fmt"

	"github.com/tablewatch/tablewatch/db"
)

// DefaultPrimaryKey is assumed when a table declares no primary key.
const DefaultPrimaryKey = "id"

// TableSchema describes one base table of the monitored database.
type TableSchema struct {
	// Name is the bare table name.
	Name string
	// Columns holds the column names in ordinal position order. Row events
	// are zipped against this slice.
	Columns []string
	// PrimaryKey is the first primary-key column, or DefaultPrimaryKey when
	// the table has none.
	PrimaryKey string
}

// ─────────────────────────────────────────────────────────────────────────────
// Inspector
// ─────────────────────────────────────────────────────────────────────────────

// Inspector reads table metadata for a single database schema.
type Inspector struct {
	q        db.Querier
	database string
}

// New returns an Inspector for the given database schema.
func New(q db.Querier, database string) *Inspector {
	return &Inspector{q: q, database: database}
}

const (
	sqlListTables = `
		SELECT TABLE_NAME
		FROM   INFORMATION_SCHEMA.TABLES
		WHERE  TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		ORDER  BY TABLE_NAME`

	sqlListColumns = `
		SELECT COLUMN_NAME
		FROM   INFORMATION_SCHEMA.COLUMNS
		WHERE  TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER  BY ORDINAL_POSITION`

	sqlPrimaryKey = `
		SELECT COLUMN_NAME
		FROM   INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE  TABLE_SCHEMA = ? AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER  BY ORDINAL_POSITION
		LIMIT  1`
)

// Tables returns the schema of every base table in the database, keyed for
// the monitor's event folding.
func (i *Inspector) Tables(ctx context.Context) ([]TableSchema, error) {
	names, err := i.tableNames(ctx)
	if err != nil {
		return nil, err
	}

	schemas := make([]TableSchema, 0, len(names))
	for _, name := range names {
		ts, err := i.Table(ctx, name)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, ts)
	}
	return schemas, nil
}

// Table returns the schema of a single table.
func (i *Inspector) Table(ctx context.Context, name string) (TableSchema, error) {
	cols, err := i.columns(ctx, name)
	if err != nil {
		return TableSchema{}, err
	}
	pk, err := i.primaryKey(ctx, name)
	if err != nil {
		return TableSchema{}, err
	}
	return TableSchema{Name: name, Columns: cols, PrimaryKey: pk}, nil
}

func (i *Inspector) tableNames(ctx context.Context) ([]string, error) {
	rows, err := i.q.Query(ctx, sqlListTables, i.database)
	if err != nil {
		return nil, fmt.Errorf("inspect: list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("inspect: scan table name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (i *Inspector) columns(ctx context.Context, table string) ([]string, error) {
	rows, err := i.q.Query(ctx, sqlListColumns, i.database, table)
	if err != nil {
		return nil, fmt.Errorf("inspect: columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("inspect: scan column of %s: %w", table, err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (i *Inspector) primaryKey(ctx context.Context, table string) (string, error) {
	var pk string
	err := i.q.QueryRow(ctx, sqlPrimaryKey, i.database, table).Scan(&pk)
	if err != nil {
		if db.IsNotFound(err) {
			return DefaultPrimaryKey, nil
		}
		return "", fmt.Errorf("inspect: primary key of %s: %w", table, err)
	}
	return pk, nil
}
