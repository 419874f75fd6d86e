package lawgen

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lexforge/lexforge/pkg/pg"
)

// pgLawStore is the PostgreSQL LawStore.
type pgLawStore struct {
	pool *pgxpool.Pool
}

// NewPgLawStore returns a LawStore backed by the given pool.
func NewPgLawStore(pool *pgxpool.Pool) LawStore {
	if pool == nil {
		panic("lawgen: pgxpool is required")
	}
	return &pgLawStore{pool: pool}
}

const lawColumns = `id, user_id, title, summary, content, tags, prompt, model, favorite, created_at`

func scanLaw(row pgx.Row) (*Law, error) {
	var law Law
	err := row.Scan(&law.ID, &law.UserID, &law.Title, &law.Summary,
		&law.Content, &law.Tags, &law.Prompt, &law.Model, &law.Favorite, &law.CreatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrLawNotFound
		}
		return nil, fmt.Errorf("lawgen: scan law: %w", err)
	}
	return &law, nil
}

func (s *pgLawStore) Insert(ctx context.Context, law *Law) error {
	if law.ID == uuid.Nil {
		law.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO laws (id, user_id, title, summary, content, tags, prompt, model, favorite)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		law.ID, law.UserID, law.Title, law.Summary, law.Content, law.Tags,
		law.Prompt, law.Model, law.Favorite,
	)
	if err != nil {
		return fmt.Errorf("lawgen: insert law: %w", err)
	}
	return nil
}

func (s *pgLawStore) ByID(ctx context.Context, userID, lawID uuid.UUID) (*Law, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+lawColumns+` FROM laws WHERE id = $1 AND user_id = $2`, lawID, userID)
	return scanLaw(row)
}

func (s *pgLawStore) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Law, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+lawColumns+` FROM laws
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("lawgen: list laws: %w", err)
	}
	defer rows.Close()
	return collectLaws(rows)
}

func (s *pgLawStore) Search(ctx context.Context, userID uuid.UUID, query string, limit int) ([]Law, error) {
	pattern := "%" + query + "%"
	rows, err := s.pool.Query(ctx, `
		SELECT `+lawColumns+` FROM laws
		WHERE user_id = $1
		  AND (title ILIKE $2 OR content ILIKE $2 OR array_to_string(tags, ' ') ILIKE $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`,
		userID, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("lawgen: search laws: %w", err)
	}
	defer rows.Close()
	return collectLaws(rows)
}

func (s *pgLawStore) SetFavorite(ctx context.Context, userID, lawID uuid.UUID, favorite bool) (*Law, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE laws SET favorite = $3
		WHERE id = $1 AND user_id = $2
		RETURNING `+lawColumns,
		lawID, userID, favorite,
	)
	return scanLaw(row)
}

func collectLaws(rows pgx.Rows) ([]Law, error) {
	out := []Law{}
	for rows.Next() {
		law, err := scanLaw(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *law)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lawgen: iterate laws: %w", err)
	}
	return out, nil
}

// pgConstitutionStore is the PostgreSQL ConstitutionStore.
type pgConstitutionStore struct {
	pool *pgxpool.Pool
}

// NewPgConstitutionStore returns a ConstitutionStore backed by the given
// pool.
func NewPgConstitutionStore(pool *pgxpool.Pool) ConstitutionStore {
	if pool == nil {
		panic("lawgen: pgxpool is required")
	}
	return &pgConstitutionStore{pool: pool}
}

const constitutionColumns = `id, user_id, name, preamble, rights, structure, amendments, model, created_at, updated_at`

func (s *pgConstitutionStore) Upsert(ctx context.Context, c *Constitution) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	// The unique user index makes this a replace-in-place; the stored row
	// keeps its original id and created_at.
	row := s.pool.QueryRow(ctx, `
		INSERT INTO constitutions (id, user_id, name, preamble, rights, structure, amendments, model)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			preamble = EXCLUDED.preamble,
			rights = EXCLUDED.rights,
			structure = EXCLUDED.structure,
			amendments = EXCLUDED.amendments,
			model = EXCLUDED.model,
			updated_at = now()
		RETURNING `+constitutionColumns,
		c.ID, c.UserID, c.Name, c.Preamble, c.Rights, c.Structure, c.Amendments, c.Model,
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Preamble, &c.Rights,
		&c.Structure, &c.Amendments, &c.Model, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return fmt.Errorf("lawgen: upsert constitution: %w", err)
	}
	return nil
}

func (s *pgConstitutionStore) ByUserID(ctx context.Context, userID uuid.UUID) (*Constitution, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+constitutionColumns+` FROM constitutions WHERE user_id = $1`, userID)

	var c Constitution
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Preamble, &c.Rights,
		&c.Structure, &c.Amendments, &c.Model, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrConstitutionNotFound
		}
		return nil, fmt.Errorf("lawgen: scan constitution: %w", err)
	}
	return &c, nil
}

// pgAttemptStore is the PostgreSQL AttemptStore.
type pgAttemptStore struct {
	pool *pgxpool.Pool
}

// NewPgAttemptStore returns an AttemptStore backed by the given pool.
func NewPgAttemptStore(pool *pgxpool.Pool) AttemptStore {
	if pool == nil {
		panic("lawgen: pgxpool is required")
	}
	return &pgAttemptStore{pool: pool}
}

func (s *pgAttemptStore) Insert(ctx context.Context, attempt *GenerationAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO generation_attempts
			(id, user_id, prompt, status, law_id, failure_reason, credits_charged,
			 model, tokens_used, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		attempt.ID, attempt.UserID, attempt.Prompt, attempt.Status,
		attempt.LawID, attempt.FailureReason, attempt.CreditsCharged,
		attempt.Model, attempt.TokensUsed, attempt.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("lawgen: insert attempt: %w", err)
	}
	return nil
}

func (s *pgAttemptStore) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]GenerationAttempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, prompt, status, law_id, failure_reason, credits_charged,
		       model, tokens_used, duration_ms, created_at
		FROM generation_attempts
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("lawgen: list attempts: %w", err)
	}
	defer rows.Close()

	out := []GenerationAttempt{}
	for rows.Next() {
		var a GenerationAttempt
		if err := rows.Scan(&a.ID, &a.UserID, &a.Prompt, &a.Status,
			&a.LawID, &a.FailureReason, &a.CreditsCharged,
			&a.Model, &a.TokensUsed, &a.DurationMS, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("lawgen: scan attempt: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lawgen: iterate attempts: %w", err)
	}
	return out, nil
}
