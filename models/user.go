package models

import "time"

// User represents a row in the "users" table.
// Fields map 1-to-1 with columns; no automatic relation loading.
//
// id is assigned by the engine on insert and never changes; name is always
// present; email is optional; created_at defaults to the insertion time.
type User struct {
	ID        int64
	Name      string
	Email     *string
	CreatedAt time.Time
}

// CreateUserParams holds the fields required to create a new user.
// Keeping input types separate from the domain model keeps the insert
// contract explicit: id comes from the engine, created_at from the repo.
type CreateUserParams struct {
	Name  string
	Email *string
}
