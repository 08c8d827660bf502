package capture

import (
	"reflect"
	"testing"
)

// ─────────────────────────────────────────────────────────────────────────────
// State folding
// ─────────────────────────────────────────────────────────────────────────────

func TestState_InsertUpdateDelete(t *testing.T) {
	s := NewState()

	s.Apply(Change{Kind: ChangeInsert, Table: "users", PK: 1,
		Values: RowValues{"id": 1, "name": "Alice"}})
	s.Apply(Change{Kind: ChangeInsert, Table: "users", PK: 2,
		Values: RowValues{"id": 2, "name": "Bob"}})
	if got := s.Len("users"); got != 2 {
		t.Fatalf("expected 2 rows, got %d", got)
	}

	// Update replaces the row image under the same key.
	s.Apply(Change{Kind: ChangeUpdate, Table: "users", PK: 1,
		Values: RowValues{"id": 1, "name": "Alicia"}})
	if got := s.Len("users"); got != 2 {
		t.Fatalf("update must not grow the table, got %d rows", got)
	}

	s.Apply(Change{Kind: ChangeDelete, Table: "users", PK: 2})
	if got := s.Len("users"); got != 1 {
		t.Fatalf("expected 1 row after delete, got %d", got)
	}

	snap := s.Snapshot()
	rows := snap["users"]
	if len(rows) != 1 || rows[0]["name"] != "Alicia" {
		t.Fatalf("unexpected snapshot: %#v", rows)
	}
}

func TestState_DeleteUnseenRowIsNoop(t *testing.T) {
	s := NewState()
	s.Apply(Change{Kind: ChangeDelete, Table: "users", PK: 42})
	if got := s.Len("users"); got != 0 {
		t.Fatalf("expected empty table, got %d rows", got)
	}
}

func TestState_EmptiedTableStaysInSnapshot(t *testing.T) {
	s := NewState()
	s.Apply(Change{Kind: ChangeInsert, Table: "users", PK: 1,
		Values: RowValues{"id": 1}})
	s.Apply(Change{Kind: ChangeDelete, Table: "users", PK: 1})

	snap := s.Snapshot()
	rows, ok := snap["users"]
	if !ok {
		t.Fatal("emptied table missing from snapshot")
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty slice, got %#v", rows)
	}
}

func TestState_SnapshotNumericOrdering(t *testing.T) {
	s := NewState()
	// Insert out of order with keys where lexicographic order differs
	// from numeric order (10 < 2 as strings).
	for _, id := range []int64{10, 2, 1} {
		s.Apply(Change{Kind: ChangeInsert, Table: "users", PK: id,
			Values: RowValues{"id": id}})
	}

	snap := s.Snapshot()
	var ids []int64
	for _, row := range snap["users"] {
		ids = append(ids, row["id"].(int64))
	}
	if !reflect.DeepEqual(ids, []int64{1, 2, 10}) {
		t.Fatalf("expected numeric order [1 2 10], got %v", ids)
	}
}

func TestState_SnapshotStringOrdering(t *testing.T) {
	s := NewState()
	for _, pk := range []string{"banana", "apple"} {
		s.Apply(Change{Kind: ChangeInsert, Table: "fruits", PK: pk,
			Values: RowValues{"name": pk}})
	}

	snap := s.Snapshot()
	rows := snap["fruits"]
	if rows[0]["name"] != "apple" || rows[1]["name"] != "banana" {
		t.Fatalf("expected lexicographic order, got %#v", rows)
	}
}

func TestState_TablesAreIndependent(t *testing.T) {
	s := NewState()
	s.Apply(Change{Kind: ChangeInsert, Table: "users", PK: 1,
		Values: RowValues{"id": 1}})
	s.Apply(Change{Kind: ChangeInsert, Table: "orders", PK: 1,
		Values: RowValues{"id": 1}})

	s.Apply(Change{Kind: ChangeDelete, Table: "orders", PK: 1})
	if s.Len("users") != 1 {
		t.Fatal("delete on orders must not affect users")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ChangeKind
// ─────────────────────────────────────────────────────────────────────────────

func TestChangeKind_String(t *testing.T) {
	tests := []struct {
		kind ChangeKind
		want string
	}{
		{ChangeInsert, "insert"},
		{ChangeUpdate, "update"},
		{ChangeDelete, "delete"},
		{ChangeKind(9), "ChangeKind(9)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Fatalf("String(%d) = %q, want %q", int(tt.kind), got, tt.want)
		}
	}
}
