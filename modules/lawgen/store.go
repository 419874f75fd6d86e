package lawgen

import (
	"context"

	"github.com/google/uuid"
)

// LawStore persists generated laws. All reads are scoped to the owning
// user; there is no cross-user visibility.
type LawStore interface {
	Insert(ctx context.Context, law *Law) error

	// ByID returns ErrLawNotFound when the law does not exist or is
	// owned by a different user.
	ByID(ctx context.Context, userID, lawID uuid.UUID) (*Law, error)

	// List returns the user's laws newest first.
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Law, error)

	// Search matches the query case-insensitively against title, content
	// and tags, newest first.
	Search(ctx context.Context, userID uuid.UUID, query string, limit int) ([]Law, error)

	// SetFavorite flips the favorite flag and returns the updated law.
	SetFavorite(ctx context.Context, userID, lawID uuid.UUID, favorite bool) (*Law, error)
}

// ConstitutionStore persists the per-user constitutional framework.
type ConstitutionStore interface {
	// Upsert inserts the user's constitution or replaces it in place,
	// keeping the original ID and CreatedAt on replacement.
	Upsert(ctx context.Context, constitution *Constitution) error

	// ByUserID returns ErrConstitutionNotFound when the user has not
	// generated one.
	ByUserID(ctx context.Context, userID uuid.UUID) (*Constitution, error)
}

// AttemptStore persists generation attempts, successful and failed.
type AttemptStore interface {
	Insert(ctx context.Context, attempt *GenerationAttempt) error

	// Recent returns the user's attempts newest first.
	Recent(ctx context.Context, userID uuid.UUID, limit int) ([]GenerationAttempt, error)
}
