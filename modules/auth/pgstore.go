package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lexforge/lexforge/pkg/pg"
)

// pgUserStore is the PostgreSQL UserStore.
type pgUserStore struct {
	pool *pgxpool.Pool
}

// NewPgUserStore returns a UserStore backed by the given pool.
func NewPgUserStore(pool *pgxpool.Pool) UserStore {
	if pool == nil {
		panic("auth: pgxpool is required")
	}
	return &pgUserStore{pool: pool}
}

const userColumns = `id, email, name, google_id, created_at, last_login_at`

func scanUser(row pgx.Row) (*User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.GoogleID,
		&user.CreatedAt, &user.LastLoginAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("auth: scan user: %w", err)
	}
	return &user, nil
}

func (s *pgUserStore) GetOrCreate(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	// The unique email index arbitrates concurrent first logins; the
	// loser's insert is a no-op and the re-select sees the winner's row.
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email)
		VALUES ($1, $2)
		ON CONFLICT (email) DO NOTHING`,
		uuid.New(), email,
	)
	if err != nil {
		return nil, fmt.Errorf("auth: create user: %w", err)
	}

	return s.ByEmail(ctx, email)
}

func (s *pgUserStore) ByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *pgUserStore) ByEmail(ctx context.Context, email string) (*User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

func (s *pgUserStore) Update(ctx context.Context, id uuid.UUID, fn func(*User) error) (*User, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: begin update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, err
	}

	if err := fn(user); err != nil {
		return nil, err
	}

	row = tx.QueryRow(ctx, `
		UPDATE users
		SET email = $2, name = $3, google_id = $4, last_login_at = $5
		WHERE id = $1
		RETURNING `+userColumns,
		user.ID, strings.ToLower(user.Email), user.Name, user.GoogleID, user.LastLoginAt,
	)
	updated, err := scanUser(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("auth: commit update: %w", err)
	}
	return updated, nil
}
