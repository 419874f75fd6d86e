package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memSubscriptionStore is an in-memory SubscriptionStore. A single mutex
// serializes all mutations, which trivially satisfies the per-row
// serialization contract. Used in tests and local development.
type memSubscriptionStore struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*Subscription
	byUser map[uuid.UUID]uuid.UUID
	usage  []UsageRecord
}

// NewMemSubscriptionStore returns an empty in-memory subscription store.
func NewMemSubscriptionStore() SubscriptionStore {
	return &memSubscriptionStore{
		byID:   make(map[uuid.UUID]*Subscription),
		byUser: make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *memSubscriptionStore) GetOrCreate(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byUser[userID]; ok {
		return copySub(s.byID[id]), nil
	}

	now := time.Now().UTC()
	sub := &Subscription{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    StatusIncomplete,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byID[sub.ID] = sub
	s.byUser[userID] = sub.ID

	return copySub(sub), nil
}

func (s *memSubscriptionStore) ByUserID(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byUser[userID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return copySub(s.byID[id]), nil
}

func (s *memSubscriptionStore) ByCustomerID(ctx context.Context, customerID string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.byID {
		if customerID != "" && sub.StripeCustomerID == customerID {
			return copySub(sub), nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *memSubscriptionStore) BySubscriptionID(ctx context.Context, subscriptionID string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.byID {
		if subscriptionID != "" && sub.StripeSubscriptionID == subscriptionID {
			return copySub(sub), nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *memSubscriptionStore) Update(ctx context.Context, id uuid.UUID, fn func(*Subscription) error) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.byID[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}

	// fn works on a copy so a failed callback leaves the stored row
	// untouched.
	draft := copySub(sub)
	if err := fn(draft); err != nil {
		return nil, err
	}
	draft.UpdatedAt = time.Now().UTC()
	s.byID[id] = draft

	return copySub(draft), nil
}

func (s *memSubscriptionStore) Debit(ctx context.Context, id uuid.UUID, amount, allotment int64, description string) (*UsageRecord, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.byID[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}

	if sub.CreditsUsed+amount > allotment {
		return nil, &InsufficientCreditsError{
			Required:  amount,
			Available: max(0, allotment-sub.CreditsUsed),
		}
	}

	now := time.Now().UTC()
	sub.CreditsUsed += amount
	sub.UpdatedAt = now

	rec := UsageRecord{
		ID:                 uuid.New(),
		UserID:             sub.UserID,
		SubscriptionID:     sub.ID,
		Amount:             amount,
		Description:        description,
		BillingPeriodStart: copyTime(sub.CurrentPeriodStart),
		BillingPeriodEnd:   copyTime(sub.CurrentPeriodEnd),
		CreatedAt:          now,
	}
	s.usage = append(s.usage, rec)

	return &rec, nil
}

func (s *memSubscriptionStore) RecentUsage(ctx context.Context, userID uuid.UUID, limit int) ([]UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]UsageRecord, 0, limit)
	for i := len(s.usage) - 1; i >= 0 && len(out) < limit; i-- {
		if s.usage[i].UserID == userID {
			out = append(out, s.usage[i])
		}
	}
	return out, nil
}

func copySub(s *Subscription) *Subscription {
	cp := *s
	cp.CurrentPeriodStart = copyTime(s.CurrentPeriodStart)
	cp.CurrentPeriodEnd = copyTime(s.CurrentPeriodEnd)
	cp.CreditsResetAt = copyTime(s.CreditsResetAt)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// memBillingEventStore is an in-memory BillingEventStore.
type memBillingEventStore struct {
	mu        sync.Mutex
	events    []BillingEvent
	byInvoice map[string]struct{}
}

// NewMemBillingEventStore returns an empty in-memory billing event store.
func NewMemBillingEventStore() BillingEventStore {
	return &memBillingEventStore{byInvoice: make(map[string]struct{})}
}

func (s *memBillingEventStore) Insert(ctx context.Context, ev *BillingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byInvoice[ev.StripeInvoiceID]; dup {
		return ErrDuplicateEvent
	}

	rec := *ev
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.byInvoice[rec.StripeInvoiceID] = struct{}{}
	s.events = append(s.events, rec)
	return nil
}

func (s *memBillingEventStore) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]BillingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]BillingEvent, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if s.events[i].UserID == userID {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}
