package capture

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/go-mysql-org/go-mysql/mysql"

	"github.com/tablewatch/tablewatch/db"
)

// ─────────────────────────────────────────────────────────────────────────────
// Binlog position
// ─────────────────────────────────────────────────────────────────────────────

// CurrentPosition returns the server's current binlog file and offset.
//
// MySQL 8.4 renamed SHOW MASTER STATUS to SHOW BINARY LOG STATUS, so the new
// form is tried first with a fallback for older servers.
func CurrentPosition(ctx context.Context, q db.Querier) (mysql.Position, error) {
	pos, err := scanPosition(ctx, q, "SHOW BINARY LOG STATUS")
	if err == nil {
		return pos, nil
	}
	pos, err2 := scanPosition(ctx, q, "SHOW MASTER STATUS")
	if err2 != nil {
		return mysql.Position{}, fmt.Errorf("capture: binlog position: %w", err2)
	}
	return pos, nil
}

func scanPosition(ctx context.Context, q db.Querier, query string) (mysql.Position, error) {
	rows, err := q.Query(ctx, query)
	if err != nil {
		return mysql.Position{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return mysql.Position{}, err
	}
	if len(cols) < 2 {
		return mysql.Position{}, fmt.Errorf("unexpected %q result shape", query)
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return mysql.Position{}, err
		}
		return mysql.Position{}, fmt.Errorf("%q returned no rows — is binary logging enabled?", query)
	}

	// The column set varies across server versions; only the leading
	// (File, Position) pair matters.
	vals := make([]any, len(cols))
	for i := range vals {
		vals[i] = new(sql.RawBytes)
	}
	if err := rows.Scan(vals...); err != nil {
		return mysql.Position{}, err
	}

	file := string(*vals[0].(*sql.RawBytes))
	offset, err := strconv.ParseUint(string(*vals[1].(*sql.RawBytes)), 10, 32)
	if err != nil {
		return mysql.Position{}, fmt.Errorf("parse binlog offset: %w", err)
	}
	return mysql.Position{Name: file, Pos: uint32(offset)}, nil
}
