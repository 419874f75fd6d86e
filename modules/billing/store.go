package billing

import (
	"context"

	"github.com/google/uuid"
)

// SubscriptionStore persists subscription records and the usage ledger.
//
// Implementations must serialize mutations per subscription row: Update
// runs its callback under an exclusive row lock, and Debit executes its
// check-and-increment as a single atomic unit. Different subscriptions
// never block each other.
type SubscriptionStore interface {
	// GetOrCreate returns the user's subscription, creating it with status
	// incomplete and no plan on first touch. Concurrent first touches must
	// yield a single row (unique constraint, not check-then-insert).
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// ByUserID returns ErrSubscriptionNotFound when the user has no record.
	ByUserID(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// ByCustomerID looks up by the provider's customer reference.
	ByCustomerID(ctx context.Context, customerID string) (*Subscription, error)

	// BySubscriptionID looks up by the provider's subscription reference.
	BySubscriptionID(ctx context.Context, subscriptionID string) (*Subscription, error)

	// Update applies fn to the subscription under an exclusive lock and
	// persists the result. An error from fn aborts without mutation.
	Update(ctx context.Context, id uuid.UUID, fn func(*Subscription) error) (*Subscription, error)

	// Debit atomically checks the remaining balance against allotment and
	// increments CreditsUsed by amount, appending a UsageRecord stamped
	// with the subscription's current billing period. On insufficient
	// balance nothing is written and an *InsufficientCreditsError is
	// returned. Two concurrent debits can never jointly overspend.
	Debit(ctx context.Context, id uuid.UUID, amount, allotment int64, description string) (*UsageRecord, error)

	// RecentUsage lists the newest usage records for a user, newest first.
	RecentUsage(ctx context.Context, userID uuid.UUID, limit int) ([]UsageRecord, error)
}

// BillingEventStore persists settled-invoice records.
type BillingEventStore interface {
	// Insert appends a billing event. A second event with the same
	// provider invoice reference returns ErrDuplicateEvent and writes
	// nothing; that is the webhook idempotency mechanism.
	Insert(ctx context.Context, ev *BillingEvent) error

	// Recent lists the newest billing events for a user, newest first.
	Recent(ctx context.Context, userID uuid.UUID, limit int) ([]BillingEvent, error)
}
