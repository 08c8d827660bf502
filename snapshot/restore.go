package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tablewatch/tablewatch/db"
)

// ─────────────────────────────────────────────────────────────────────────────
// Restore
// ─────────────────────────────────────────────────────────────────────────────

// Result summarises a restore run.
type Result struct {
	Tables int
	Rows   int
}

// Restore reads every <table>.json file in dir and inserts its records into
// the database, one transaction per table. Target tables must already exist;
// the column set is derived from the records themselves. Restoring into a
// table that holds conflicting keys surfaces the engine's duplicate-key
// error and rolls that table back.
func Restore(ctx context.Context, d *db.DB, dir string) (Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Result{}, fmt.Errorf("snapshot: read dir: %w", err)
	}

	var res Result
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		table := strings.TrimSuffix(name, ".json")

		records, err := readRecords(filepath.Join(dir, name))
		if err != nil {
			return res, err
		}
		if len(records) == 0 {
			res.Tables++
			continue
		}

		if err := restoreTable(ctx, d, table, records); err != nil {
			return res, fmt.Errorf("snapshot: restore %s: %w", table, err)
		}
		res.Tables++
		res.Rows += len(records)
	}
	return res, nil
}

func readRecords(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", path, err)
	}
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", path, err)
	}
	return records, nil
}

func restoreTable(ctx context.Context, d *db.DB, table string, records []map[string]any) error {
	cols := columnSet(records)
	query := insertQuery(d.DriverName(), table, cols)

	return db.BatchExec(d, ctx, query, records, func(rec map[string]any) []any {
		args := make([]any, len(cols))
		for i, c := range cols {
			args[i] = rec[c] // nil for columns absent from this record
		}
		return args
	})
}

// columnSet returns the sorted union of keys across all records, so records
// that lack a column still bind a NULL for it.
func columnSet(records []map[string]any) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// insertQuery builds the INSERT statement with the placeholder style of the
// target driver ($n for postgres, ? otherwise).
func insertQuery(driver, table string, cols []string) string {
	placeholders := make([]string, len(cols))
	for i := range cols {
		if driver == "postgres" {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		} else {
			placeholders[i] = "?"
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
}
