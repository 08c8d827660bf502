// Package capture tails the MySQL binary log and folds row events into an
// in-memory image of the monitored tables, keyed by primary key. The image
// starts empty and reflects only changes observed since the monitor started.
package capture

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// RowValues is one table row as column-name → value pairs.
type RowValues map[string]any

// TableMeta is what the monitor needs to know about a table before it can
// fold positional row events into named records.
type TableMeta struct {
	// Columns in ordinal position order.
	Columns []string
	// PrimaryKey is the column used to key the table image.
	PrimaryKey string
}

// ─────────────────────────────────────────────────────────────────────────────
// Change
// ─────────────────────────────────────────────────────────────────────────────

// ChangeKind classifies a row change.
type ChangeKind int

const (
	// ChangeInsert is a newly written row.
	ChangeInsert ChangeKind = iota
	// ChangeUpdate is the after-image of an updated row.
	ChangeUpdate
	// ChangeDelete removes a row.
	ChangeDelete
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeInsert:
		return "insert"
	case ChangeUpdate:
		return "update"
	case ChangeDelete:
		return "delete"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// Change is one row change extracted from a binlog event.
type Change struct {
	Kind  ChangeKind
	Table string
	// PK is the primary-key value of the affected row. Never nil: changes
	// without a usable primary key are dropped during translation.
	PK any
	// Values is the row image carried by the event. Apply ignores it for
	// deletes.
	Values RowValues
}

// ─────────────────────────────────────────────────────────────────────────────
// State
// ─────────────────────────────────────────────────────────────────────────────

// State is the folded table image. Safe for concurrent use: the event loop
// applies changes while autosave snapshots read.
type State struct {
	mu sync.RWMutex
	// tables maps table → primary-key string form → row.
	tables map[string]map[string]RowValues
}

// NewState returns an empty State.
func NewState() *State {
	return &State{tables: make(map[string]map[string]RowValues)}
}

// Apply folds one change into the image. Inserts and updates upsert the row
// under its primary key; deletes remove it. Deleting an unseen row is a no-op.
func (s *State) Apply(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.tables[c.Table]
	if !ok {
		rows = make(map[string]RowValues)
		s.tables[c.Table] = rows
	}

	key := pkKey(c.PK)
	switch c.Kind {
	case ChangeInsert, ChangeUpdate:
		rows[key] = c.Values
	case ChangeDelete:
		delete(rows, key)
	}
}

// Len returns the number of rows currently held for table.
func (s *State) Len(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

// Snapshot returns a copy of the full image, rows ordered by primary key
// (numerically when both keys parse as integers). Tables whose rows were all
// deleted are still present, with an empty slice, so their snapshot files get
// rewritten rather than left stale.
func (s *State) Snapshot() map[string][]RowValues {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]RowValues, len(s.tables))
	for table, rows := range s.tables {
		keys := make([]string, 0, len(rows))
		for k := range rows {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return pkLess(keys[i], keys[j]) })

		records := make([]RowValues, 0, len(rows))
		for _, k := range keys {
			records = append(records, rows[k])
		}
		out[table] = records
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Primary-key ordering
// ─────────────────────────────────────────────────────────────────────────────

// pkKey normalises a primary-key value to a map key. Binlog integers arrive
// with varying widths, so everything goes through its string form.
func pkKey(pk any) string {
	return fmt.Sprint(pk)
}

func pkLess(a, b string) bool {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	if aErr == nil && bErr == nil {
		return ai < bi
	}
	return a < b
}
