package capture

import (
	"github.com/go-mysql-org/go-mysql/replication"
)

// ─────────────────────────────────────────────────────────────────────────────
// Binlog event translation
// ─────────────────────────────────────────────────────────────────────────────

// Translate converts one binlog event into row changes.
//
// Only WRITE/UPDATE/DELETE rows events for tables of the monitored database
// produce changes; everything else (query events, rotations, heartbeats,
// other schemas) yields nil. Positional row values are zipped against the
// inspected column order; rows whose primary-key value is missing or NULL
// are dropped, as are events for tables that were not present when the
// schema was inspected.
func Translate(ev *replication.BinlogEvent, database string, meta map[string]TableMeta) []Change {
	re, ok := ev.Event.(*replication.RowsEvent)
	if !ok {
		return nil
	}
	if string(re.Table.Schema) != database {
		return nil
	}

	table := string(re.Table.Table)
	tm, ok := meta[table]
	if !ok {
		return nil
	}

	switch ev.Header.EventType {
	case replication.WRITE_ROWS_EVENTv0,
		replication.WRITE_ROWS_EVENTv1,
		replication.WRITE_ROWS_EVENTv2:
		return rowChanges(ChangeInsert, table, tm, re.Rows)

	case replication.UPDATE_ROWS_EVENTv0,
		replication.UPDATE_ROWS_EVENTv1,
		replication.UPDATE_ROWS_EVENTv2:
		// Update rows arrive as (before, after) pairs; keep the after-image.
		after := make([][]any, 0, len(re.Rows)/2)
		for i := 1; i < len(re.Rows); i += 2 {
			after = append(after, re.Rows[i])
		}
		return rowChanges(ChangeUpdate, table, tm, after)

	case replication.DELETE_ROWS_EVENTv0,
		replication.DELETE_ROWS_EVENTv1,
		replication.DELETE_ROWS_EVENTv2:
		return rowChanges(ChangeDelete, table, tm, re.Rows)
	}
	return nil
}

func rowChanges(kind ChangeKind, table string, tm TableMeta, rows [][]any) []Change {
	changes := make([]Change, 0, len(rows))
	for _, row := range rows {
		values := zipRow(tm.Columns, row)
		pk := values[tm.PrimaryKey]
		if pk == nil {
			continue
		}
		changes = append(changes, Change{Kind: kind, Table: table, PK: pk, Values: values})
	}
	return changes
}

// zipRow pairs positional row values with column names. Extra positions
// (columns added after inspection) are ignored; missing positions stay
// absent from the record.
func zipRow(columns []string, row []any) RowValues {
	values := make(RowValues, len(columns))
	for i, col := range columns {
		if i >= len(row) {
			break
		}
		values[col] = normalizeValue(row[i])
	}
	return values
}

// normalizeValue converts driver byte slices to strings so records compare
// and serialise cleanly.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
