package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lexforge/lexforge/pkg/pg"
)

// pgSubscriptionStore is the PostgreSQL SubscriptionStore. Serialization
// relies on the database: GetOrCreate uses the unique user index, Update
// takes a row lock, and Debit is a single conditional UPDATE so the
// check-and-increment can never interleave with another debit.
type pgSubscriptionStore struct {
	pool *pgxpool.Pool
}

// NewPgSubscriptionStore returns a SubscriptionStore backed by the pool.
func NewPgSubscriptionStore(pool *pgxpool.Pool) SubscriptionStore {
	return &pgSubscriptionStore{pool: pool}
}

const subscriptionColumns = `id, user_id, stripe_customer_id, stripe_subscription_id, plan_name,
	status, current_period_start, current_period_end, credits_used, credits_reset_at,
	created_at, updated_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var s Subscription
	err := row.Scan(
		&s.ID, &s.UserID, &s.StripeCustomerID, &s.StripeSubscriptionID, &s.PlanName,
		&s.Status, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CreditsUsed, &s.CreditsResetAt,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("billing: scan subscription: %w", err)
	}
	return &s, nil
}

func (s *pgSubscriptionStore) GetOrCreate(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	// ON CONFLICT DO NOTHING + re-select resolves the concurrent
	// first-touch race against the unique user index without an
	// application-level existence check.
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (id, user_id, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING`,
		uuid.New(), userID, StatusIncomplete,
	)
	if err != nil {
		return nil, fmt.Errorf("billing: create subscription: %w", err)
	}

	return s.ByUserID(ctx, userID)
}

func (s *pgSubscriptionStore) ByUserID(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID)
	return scanSubscription(row)
}

func (s *pgSubscriptionStore) ByCustomerID(ctx context.Context, customerID string) (*Subscription, error) {
	if customerID == "" {
		return nil, ErrSubscriptionNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE stripe_customer_id = $1`, customerID)
	return scanSubscription(row)
}

func (s *pgSubscriptionStore) BySubscriptionID(ctx context.Context, subscriptionID string) (*Subscription, error) {
	if subscriptionID == "" {
		return nil, ErrSubscriptionNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE stripe_subscription_id = $1`, subscriptionID)
	return scanSubscription(row)
}

func (s *pgSubscriptionStore) Update(ctx context.Context, id uuid.UUID, fn func(*Subscription) error) (*Subscription, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("billing: begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1 FOR UPDATE`, id)
	sub, err := scanSubscription(row)
	if err != nil {
		return nil, err
	}

	if err := fn(sub); err != nil {
		return nil, err
	}

	row = tx.QueryRow(ctx, `
		UPDATE subscriptions SET
			stripe_customer_id = $2,
			stripe_subscription_id = $3,
			plan_name = $4,
			status = $5,
			current_period_start = $6,
			current_period_end = $7,
			credits_used = $8,
			credits_reset_at = $9,
			updated_at = now()
		WHERE id = $1
		RETURNING `+subscriptionColumns,
		sub.ID, sub.StripeCustomerID, sub.StripeSubscriptionID, sub.PlanName,
		sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CreditsUsed, sub.CreditsResetAt,
	)
	updated, err := scanSubscription(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("billing: commit update tx: %w", err)
	}
	return updated, nil
}

func (s *pgSubscriptionStore) Debit(ctx context.Context, id uuid.UUID, amount, allotment int64, description string) (*UsageRecord, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("billing: begin debit tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// The balance check and the increment are one statement; a concurrent
	// debit either sees the incremented value or blocks on the row lock.
	// Zero rows affected means the debit would overspend.
	rec := UsageRecord{ID: uuid.New(), SubscriptionID: id, Amount: amount, Description: description}
	err = tx.QueryRow(ctx, `
		UPDATE subscriptions SET
			credits_used = credits_used + $2,
			updated_at = now()
		WHERE id = $1 AND credits_used + $2 <= $3
		RETURNING user_id, current_period_start, current_period_end`,
		id, amount, allotment,
	).Scan(&rec.UserID, &rec.BillingPeriodStart, &rec.BillingPeriodEnd)

	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("billing: debit credits: %w", err)
		}

		// Distinguish "insufficient" from "no such subscription" and
		// report the balance the caller actually had.
		var used int64
		switch err := tx.QueryRow(ctx,
			`SELECT credits_used FROM subscriptions WHERE id = $1`, id).Scan(&used); {
		case pg.IsNotFoundError(err):
			return nil, ErrSubscriptionNotFound
		case err != nil:
			return nil, fmt.Errorf("billing: read balance: %w", err)
		}

		return nil, &InsufficientCreditsError{
			Required:  amount,
			Available: max(0, allotment-used),
		}
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO usage_records (id, user_id, subscription_id, amount, description,
			billing_period_start, billing_period_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		rec.ID, rec.UserID, rec.SubscriptionID, rec.Amount, rec.Description,
		rec.BillingPeriodStart, rec.BillingPeriodEnd,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("billing: append usage record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("billing: commit debit tx: %w", err)
	}
	return &rec, nil
}

func (s *pgSubscriptionStore) RecentUsage(ctx context.Context, userID uuid.UUID, limit int) ([]UsageRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, subscription_id, amount, description,
			billing_period_start, billing_period_end, created_at
		FROM usage_records
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("billing: list usage records: %w", err)
	}
	defer rows.Close()

	var out []UsageRecord
	for rows.Next() {
		var r UsageRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.SubscriptionID, &r.Amount, &r.Description,
			&r.BillingPeriodStart, &r.BillingPeriodEnd, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("billing: scan usage record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// pgBillingEventStore is the PostgreSQL BillingEventStore. The unique
// index on stripe_invoice_id provides deduplication.
type pgBillingEventStore struct {
	pool *pgxpool.Pool
}

// NewPgBillingEventStore returns a BillingEventStore backed by the pool.
func NewPgBillingEventStore(pool *pgxpool.Pool) BillingEventStore {
	return &pgBillingEventStore{pool: pool}
}

func (s *pgBillingEventStore) Insert(ctx context.Context, ev *BillingEvent) error {
	id := ev.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO billing_events (id, user_id, stripe_invoice_id, amount_paid, currency,
			status, billing_reason, hosted_invoice_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, ev.UserID, ev.StripeInvoiceID, ev.AmountPaid, ev.Currency,
		ev.Status, ev.BillingReason, ev.HostedInvoiceURL,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("billing: insert billing event: %w", err)
	}
	return nil
}

func (s *pgBillingEventStore) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]BillingEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, stripe_invoice_id, amount_paid, currency,
			status, billing_reason, hosted_invoice_url, created_at
		FROM billing_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("billing: list billing events: %w", err)
	}
	defer rows.Close()

	var out []BillingEvent
	for rows.Next() {
		var ev BillingEvent
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.StripeInvoiceID, &ev.AmountPaid, &ev.Currency,
			&ev.Status, &ev.BillingReason, &ev.HostedInvoiceURL, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("billing: scan billing event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
