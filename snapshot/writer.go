// Package snapshot persists the monitor's table image as JSON files, one
// array of row objects per table, and restores them into a SQL database.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/tablewatch/tablewatch/capture"
)

// ─────────────────────────────────────────────────────────────────────────────
// Writer
// ─────────────────────────────────────────────────────────────────────────────

// Writer saves snapshots under a single output directory.
type Writer struct {
	dir    string
	logger logrus.FieldLogger
}

// NewWriter creates the output directory if needed and returns a Writer.
func NewWriter(dir string, logger logrus.FieldLogger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create output dir: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Writer{dir: dir, logger: logger}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// Write saves one table's records to <dir>/<table>.json and returns the file
// path. The file is written to a temp name and renamed so readers never see a
// partial snapshot. A table with no remaining rows produces an empty array.
func (w *Writer) Write(table string, records []capture.RowValues) (string, error) {
	if records == nil {
		records = []capture.RowValues{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("snapshot: encode %s: %w", table, err)
	}
	data = append(data, '\n')

	path := filepath.Join(w.dir, table+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("snapshot: write %s: %w", table, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("snapshot: rename %s: %w", table, err)
	}
	return path, nil
}

// WriteAll saves every table of a snapshot, in name order.
func (w *Writer) WriteAll(tables map[string][]capture.RowValues) error {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path, err := w.Write(name, tables[name])
		if err != nil {
			return err
		}
		w.logger.WithFields(logrus.Fields{
			"table": name,
			"rows":  len(tables[name]),
			"file":  path,
		}).Info("snapshot saved")
	}
	return nil
}
