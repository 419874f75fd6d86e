package auth

import (
	"context"

	"github.com/google/uuid"
)

// UserStore persists user accounts. Emails are stored lowercase and are
// unique.
type UserStore interface {
	// GetOrCreate returns the user with the given email, registering a
	// new account when none exists. Concurrent first logins resolve to
	// the same record.
	GetOrCreate(ctx context.Context, email string) (*User, error)

	// ByID returns ErrUserNotFound for unknown ids.
	ByID(ctx context.Context, id uuid.UUID) (*User, error)

	// ByEmail returns ErrUserNotFound for unknown addresses.
	ByEmail(ctx context.Context, email string) (*User, error)

	// Update applies fn to the user and persists the result. An error
	// from fn aborts without mutation.
	Update(ctx context.Context, id uuid.UUID, fn func(*User) error) (*User, error)
}
