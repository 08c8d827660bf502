// Package seed carries the declarative users script: one schema-definition
// statement and one three-row insert. Apply executes it verbatim, in order,
// against whatever connection the caller supplies — there is no idempotency
// guard, so a second run against the same database surfaces the engine's
// duplicate-table error (db.ErrTableExists). Use the migrations package for
// a re-runnable bootstrap.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/tablewatch/tablewatch/db"
)

//go:embed users.sql
var usersScript string

// Script returns the embedded SQL script as written.
func Script() string { return usersScript }

// Statements splits the embedded script into executable statements.
func Statements() []string { return SplitStatements(usersScript) }

// ─────────────────────────────────────────────────────────────────────────────
// Apply
// ─────────────────────────────────────────────────────────────────────────────

// Apply executes the embedded users script statement by statement.
// Execution stops at the first error; nothing is retried or rolled back,
// matching the behaviour of piping the script into the server.
func Apply(ctx context.Context, q db.Querier) error {
	return ApplySQL(ctx, q, usersScript)
}

// ApplySQL executes an arbitrary multi-statement script the same way Apply
// executes the embedded one.
func ApplySQL(ctx context.Context, q db.Querier, script string) error {
	for i, stmt := range SplitStatements(script) {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("seed: statement %d: %w", i+1, err)
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Statement splitting
// ─────────────────────────────────────────────────────────────────────────────

// SplitStatements splits a script on semicolons, honouring single-quoted
// string literals (with doubled-quote escapes) and stripping `--` line
// comments. Blank statements are dropped.
func SplitStatements(script string) []string {
	var (
		stmts   []string
		sb      strings.Builder
		inQuote bool
	)

	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case inQuote:
			sb.WriteByte(c)
			if c == '\'' {
				// A doubled quote stays inside the literal.
				if i+1 < len(script) && script[i+1] == '\'' {
					sb.WriteByte(script[i+1])
					i++
				} else {
					inQuote = false
				}
			}
		case c == '\'':
			inQuote = true
			sb.WriteByte(c)
		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			// Line comment: skip to end of line.
			for i < len(script) && script[i] != '\n' {
				i++
			}
		case c == ';':
			if s := strings.TrimSpace(sb.String()); s != "" {
				stmts = append(stmts, s)
			}
			sb.Reset()
		default:
			sb.WriteByte(c)
		}
	}
	if s := strings.TrimSpace(sb.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}
