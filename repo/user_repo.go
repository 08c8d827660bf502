// Package repo provides the read side over the seeded users table. The seed
// and migration commands use it to verify what actually landed in the
// database; rows are never updated or deleted here because the seed script
// defines no mutation path.
package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tablewatch/tablewatch/db"
	"github.com/tablewatch/tablewatch/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// UserRepository interface — for mocking in tests
// ─────────────────────────────────────────────────────────────────────────────

// UserRepository defines the contract for user persistence operations.
type UserRepository interface {
	Insert(ctx context.Context, params models.CreateUserParams) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Count(ctx context.Context) (int64, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// userRepo — concrete implementation
// ─────────────────────────────────────────────────────────────────────────────

// userRepo is the production implementation backed by a db.Querier.
type userRepo struct {
	q db.Querier
}

// NewUserRepo returns a UserRepository backed by q.
// q can be a *db.DB or *db.Tx — both satisfy db.Querier.
func NewUserRepo(q db.Querier) UserRepository {
	return &userRepo{q: q}
}

// ─────────────────────────────────────────────────────────────────────────────
// SQL constants — all SQL is explicit, version-controlled, and reviewable
// ─────────────────────────────────────────────────────────────────────────────

const (
	sqlInsertUser = `
		INSERT INTO users (name, email, created_at)
		VALUES (?, ?, ?)`

	sqlGetUserByID = `
		SELECT id, name, email, created_at
		FROM   users
		WHERE  id = ?
		LIMIT  1`

	sqlGetUserByEmail = `
		SELECT id, name, email, created_at
		FROM   users
		WHERE  email = ?
		LIMIT  1`

	sqlListUsers = `
		SELECT id, name, email, created_at
		FROM   users
		ORDER  BY id
		LIMIT  ? OFFSET ?`

	sqlCountUsers = `
		SELECT COUNT(*) FROM users`
)

// ─────────────────────────────────────────────────────────────────────────────
// Insert
// ─────────────────────────────────────────────────────────────────────────────

// Insert creates a new user and returns the persisted record including the
// engine-assigned id. MySQL has no RETURNING clause, so the row is read back
// by LastInsertId.
func (r *userRepo) Insert(ctx context.Context, params models.CreateUserParams) (*models.User, error) {
	now := time.Now().UTC()
	res, err := r.q.Exec(ctx, sqlInsertUser, params.Name, NullString(params.Email), now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("repo/user: last insert id: %w", err)
	}
	return r.GetByID(ctx, id)
}

// ─────────────────────────────────────────────────────────────────────────────
// GetByID
// ─────────────────────────────────────────────────────────────────────────────

// GetByID returns a single user by primary key.
// Returns db.ErrNotFound when no record matches.
func (r *userRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	row := r.q.QueryRow(ctx, sqlGetUserByID, id)
	return scanUser(row)
}

// ─────────────────────────────────────────────────────────────────────────────
// GetByEmail
// ─────────────────────────────────────────────────────────────────────────────

// GetByEmail looks up a user by email address.
// Returns db.ErrNotFound when no record matches.
func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.q.QueryRow(ctx, sqlGetUserByEmail, email)
	return scanUser(row)
}

// ─────────────────────────────────────────────────────────────────────────────
// List
// ─────────────────────────────────────────────────────────────────────────────

// List returns a paginated slice of users ordered by id.
func (r *userRepo) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	rows, err := r.q.Query(ctx, sqlListUsers, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u := &models.User{}
		var email sql.NullString
		if err := rows.Scan(&u.ID, &u.Name, &email, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("repo/user: scan: %w", err)
		}
		if email.Valid {
			u.Email = &email.String
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Count
// ─────────────────────────────────────────────────────────────────────────────

// Count returns the total number of users.
func (r *userRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.q.QueryRow(ctx, sqlCountUsers).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// scanUser — centralised column mapping
// ─────────────────────────────────────────────────────────────────────────────

// scanUser scans a single user row. Centralising the scan call means that
// adding/removing columns only requires a change in one place.
func scanUser(row *db.Row) (*models.User, error) {
	u := &models.User{}
	var email sql.NullString
	err := row.Scan(&u.ID, &u.Name, &email, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("repo/user: %w", err)
	}
	if email.Valid {
		u.Email = &email.String
	}
	return u, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Compile-time interface assertion
// ─────────────────────────────────────────────────────────────────────────────

var _ UserRepository = (*userRepo)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// Null helpers
// ─────────────────────────────────────────────────────────────────────────────

// NullString converts *string to sql.NullString for the nullable email column.
func NullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
