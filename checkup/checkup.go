// Package checkup verifies that a MySQL server is ready to be monitored:
// binary logging enabled, row-based binlog format, and replication
// privileges for the connecting user. The monitor refuses to start until
// every finding passes.
package checkup

import (
	"context"
	"fmt"
	"strings"

	"github.com/tablewatch/tablewatch/db"
)

// ─────────────────────────────────────────────────────────────────────────────
// Findings
// ─────────────────────────────────────────────────────────────────────────────

// Finding is the outcome of one configuration check.
type Finding struct {
	// Name identifies the check, e.g. "log_bin".
	Name string
	// OK reports whether the server passed the check.
	OK bool
	// Detail describes what was found.
	Detail string
	// Hints lists remediation steps when the check failed.
	Hints []string
}

// AllOK reports whether every finding passed.
func AllOK(findings []Finding) bool {
	for _, f := range findings {
		if !f.OK {
			return false
		}
	}
	return true
}

// ─────────────────────────────────────────────────────────────────────────────
// Run
// ─────────────────────────────────────────────────────────────────────────────

// Run executes all checks against the server behind q.
func Run(ctx context.Context, q db.Querier) ([]Finding, error) {
	logBin, err := serverVariable(ctx, q, "log_bin")
	if err != nil {
		return nil, err
	}
	format, err := serverVariable(ctx, q, "binlog_format")
	if err != nil {
		return nil, err
	}
	grants, err := showGrants(ctx, q)
	if err != nil {
		return nil, err
	}

	return []Finding{
		EvalLogBin(logBin),
		EvalBinlogFormat(format),
		EvalGrants(grants),
	}, nil
}

// serverVariable fetches a single server variable via SHOW VARIABLES.
// An empty string means the variable is not set.
func serverVariable(ctx context.Context, q db.Querier, name string) (string, error) {
	rows, err := q.Query(ctx, "SHOW VARIABLES LIKE '"+name+"'")
	if err != nil {
		return "", fmt.Errorf("checkup: show variables %s: %w", name, err)
	}
	defer rows.Close()

	var varName, value string
	if rows.Next() {
		if err := rows.Scan(&varName, &value); err != nil {
			return "", fmt.Errorf("checkup: scan variable %s: %w", name, err)
		}
	}
	return value, rows.Err()
}

// showGrants returns the grant statements of the current user.
func showGrants(ctx context.Context, q db.Querier) ([]string, error) {
	rows, err := q.Query(ctx, "SHOW GRANTS")
	if err != nil {
		return nil, fmt.Errorf("checkup: show grants: %w", err)
	}
	defer rows.Close()

	var grants []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("checkup: scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Evaluation — pure, unit-testable
// ─────────────────────────────────────────────────────────────────────────────

// EvalLogBin checks that binary logging is enabled.
func EvalLogBin(value string) Finding {
	if strings.EqualFold(value, "ON") || value == "1" {
		return Finding{Name: "log_bin", OK: true, Detail: "binary logging is enabled"}
	}
	return Finding{
		Name:   "log_bin",
		OK:     false,
		Detail: fmt.Sprintf("binary logging is not enabled (log_bin=%q)", value),
		Hints: []string{
			"add to the MySQL configuration:",
			"[mysqld]",
			"log-bin=mysql-bin",
			"server-id=1",
			"binlog-format=row",
		},
	}
}

// EvalBinlogFormat checks that the binlog format is ROW. Row events are the
// only event kind the monitor can fold into table state.
func EvalBinlogFormat(value string) Finding {
	if strings.EqualFold(value, "ROW") {
		return Finding{Name: "binlog_format", OK: true, Detail: "binlog format is ROW"}
	}
	return Finding{
		Name:   "binlog_format",
		OK:     false,
		Detail: fmt.Sprintf("binlog format is %q, not ROW", value),
		Hints:  []string{"set binlog_format=ROW in the MySQL configuration"},
	}
}

// EvalGrants checks for REPLICATION SLAVE and REPLICATION CLIENT privileges.
// ALL PRIVILEGES is accepted as covering both.
func EvalGrants(grants []string) Finding {
	var slave, client bool
	for _, g := range grants {
		upper := strings.ToUpper(g)
		if strings.Contains(upper, "ALL PRIVILEGES") {
			slave, client = true, true
			break
		}
		if strings.Contains(upper, "REPLICATION SLAVE") {
			slave = true
		}
		if strings.Contains(upper, "REPLICATION CLIENT") {
			client = true
		}
	}
	if slave && client {
		return Finding{Name: "grants", OK: true, Detail: "replication privileges present"}
	}

	var missing []string
	if !slave {
		missing = append(missing, "REPLICATION SLAVE")
	}
	if !client {
		missing = append(missing, "REPLICATION CLIENT")
	}
	return Finding{
		Name:   "grants",
		OK:     false,
		Detail: "missing privileges: " + strings.Join(missing, ", "),
		Hints: []string{
			"GRANT REPLICATION SLAVE, REPLICATION CLIENT ON *.* TO '<user>'@'%';",
			"FLUSH PRIVILEGES;",
		},
	}
}
