package billing

import (
	"time"

	"github.com/google/uuid"
)

// Status mirrors the payment provider's subscription lifecycle states.
// The provider is authoritative: local code never invents transitions,
// it only copies the status delivered by webhooks.
type Status string

const (
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
	StatusTrialing          Status = "trialing"
	StatusActive            Status = "active"
	StatusPastDue           Status = "past_due"
	StatusUnpaid            Status = "unpaid"
	StatusCanceled          Status = "canceled"
)

// Subscription is the per-user billing record. Exactly one exists per
// user; it is created lazily on the first billing-related action with
// status incomplete and no plan.
type Subscription struct {
	ID                   uuid.UUID
	UserID               uuid.UUID
	StripeCustomerID     string // empty until a provider customer is created
	StripeSubscriptionID string // empty until first successful checkout
	PlanName             string // empty means no plan assigned
	Status               Status
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	CreditsUsed          int64
	CreditsResetAt       *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// RemainingCredits returns the credits left in the current period for the
// given plan, never negative. A subscription without a plan has none.
func (s *Subscription) RemainingCredits(plan *Plan) int64 {
	if plan == nil {
		return 0
	}
	return max(0, plan.CreditsPerMonth-s.CreditsUsed)
}

// UsagePercentage returns consumed credits as a 0-100 percentage, capped
// at 100. Zero-allotment plans report 0 to avoid division by zero.
func (s *Subscription) UsagePercentage(plan *Plan) float64 {
	if plan == nil || plan.CreditsPerMonth == 0 {
		return 0
	}
	return min(100, float64(s.CreditsUsed)/float64(plan.CreditsPerMonth)*100)
}

// IsActive reports whether the subscription is in the paid active state.
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// IsTrialing reports whether the subscription is in its trial period.
func (s *Subscription) IsTrialing() bool {
	return s.Status == StatusTrialing
}

func (s *Subscription) HasPlan() bool {
	return s.PlanName != ""
}

// UsageRecord is the immutable audit trail of a single debit. Records are
// only ever appended; a balance dispute is settled by replaying them.
type UsageRecord struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	SubscriptionID     uuid.UUID
	Amount             int64
	Description        string
	BillingPeriodStart *time.Time
	BillingPeriodEnd   *time.Time
	CreatedAt          time.Time
}
