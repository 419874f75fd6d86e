package billing_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexforge/lexforge/modules/billing"
)

func TestMemSubscriptionStore_GetOrCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("first touch creates an incomplete planless record", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemSubscriptionStore()
		userID := uuid.New()

		sub, err := store.GetOrCreate(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, userID, sub.UserID)
		assert.Equal(t, billing.StatusIncomplete, sub.Status)
		assert.Empty(t, sub.PlanName)
		assert.Zero(t, sub.CreditsUsed)
	})

	t.Run("second touch returns the same record", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemSubscriptionStore()
		userID := uuid.New()

		first, err := store.GetOrCreate(ctx, userID)
		require.NoError(t, err)
		second, err := store.GetOrCreate(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("concurrent first touch yields exactly one record", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemSubscriptionStore()
		userID := uuid.New()

		const workers = 50
		ids := make([]uuid.UUID, workers)
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sub, err := store.GetOrCreate(ctx, userID)
				if err != nil {
					errs[i] = err
					return
				}
				ids[i] = sub.ID
			}()
		}
		wg.Wait()

		for i := range workers {
			require.NoError(t, errs[i])
			assert.Equal(t, ids[0], ids[i])
		}
	})
}

func TestMemSubscriptionStore_Update(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("persists callback mutations", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemSubscriptionStore()
		sub, err := store.GetOrCreate(ctx, uuid.New())
		require.NoError(t, err)

		updated, err := store.Update(ctx, sub.ID, func(s *billing.Subscription) error {
			s.PlanName = "pro"
			s.Status = billing.StatusActive
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "pro", updated.PlanName)
		assert.Equal(t, billing.StatusActive, updated.Status)

		reread, err := store.ByUserID(ctx, sub.UserID)
		require.NoError(t, err)
		assert.Equal(t, "pro", reread.PlanName)
	})

	t.Run("callback error leaves the record untouched", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemSubscriptionStore()
		sub, err := store.GetOrCreate(ctx, uuid.New())
		require.NoError(t, err)

		boom := errors.New("boom")
		_, err = store.Update(ctx, sub.ID, func(s *billing.Subscription) error {
			s.PlanName = "pro"
			return boom
		})
		assert.ErrorIs(t, err, boom)

		reread, err := store.ByUserID(ctx, sub.UserID)
		require.NoError(t, err)
		assert.Empty(t, reread.PlanName)
	})

	t.Run("unknown id", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemSubscriptionStore()
		_, err := store.Update(ctx, uuid.New(), func(s *billing.Subscription) error { return nil })
		assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)
	})
}

func TestMemSubscriptionStore_Debit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("debits and appends a usage record", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemSubscriptionStore()
		sub, err := store.GetOrCreate(ctx, uuid.New())
		require.NoError(t, err)

		rec, err := store.Debit(ctx, sub.ID, 10, 100, "Generated law")
		require.NoError(t, err)
		assert.Equal(t, int64(10), rec.Amount)
		assert.Equal(t, "Generated law", rec.Description)

		reread, err := store.ByUserID(ctx, sub.UserID)
		require.NoError(t, err)
		assert.Equal(t, int64(10), reread.CreditsUsed)

		usage, err := store.RecentUsage(ctx, sub.UserID, 10)
		require.NoError(t, err)
		require.Len(t, usage, 1)
	})

	t.Run("exact exhaustion succeeds, one more fails", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemSubscriptionStore()
		sub, err := store.GetOrCreate(ctx, uuid.New())
		require.NoError(t, err)

		_, err = store.Debit(ctx, sub.ID, 100, 100, "all in")
		require.NoError(t, err)

		_, err = store.Debit(ctx, sub.ID, 1, 100, "over")
		ice, ok := billing.IsInsufficientCredits(err)
		require.True(t, ok)
		assert.Equal(t, int64(1), ice.Required)
		assert.Equal(t, int64(0), ice.Available)
	})

	t.Run("failed debit leaves no trace", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemSubscriptionStore()
		sub, err := store.GetOrCreate(ctx, uuid.New())
		require.NoError(t, err)

		_, err = store.Debit(ctx, sub.ID, 50, 10, "too big")
		_, ok := billing.IsInsufficientCredits(err)
		require.True(t, ok)

		reread, err := store.ByUserID(ctx, sub.UserID)
		require.NoError(t, err)
		assert.Zero(t, reread.CreditsUsed)

		usage, err := store.RecentUsage(ctx, sub.UserID, 10)
		require.NoError(t, err)
		assert.Empty(t, usage)
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemSubscriptionStore()
		sub, err := store.GetOrCreate(ctx, uuid.New())
		require.NoError(t, err)

		_, err = store.Debit(ctx, sub.ID, 0, 100, "zero")
		assert.ErrorIs(t, err, billing.ErrInvalidAmount)
		_, err = store.Debit(ctx, sub.ID, -5, 100, "negative")
		assert.ErrorIs(t, err, billing.ErrInvalidAmount)
	})

	t.Run("concurrent debits never overspend", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemSubscriptionStore()
		sub, err := store.GetOrCreate(ctx, uuid.New())
		require.NoError(t, err)

		const (
			allotment = 100
			workers   = 250
		)
		var granted atomic.Int64
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.Debit(ctx, sub.ID, 1, allotment, "tick"); err == nil {
					granted.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(allotment), granted.Load())

		reread, err := store.ByUserID(ctx, sub.UserID)
		require.NoError(t, err)
		assert.Equal(t, int64(allotment), reread.CreditsUsed)

		usage, err := store.RecentUsage(ctx, sub.UserID, workers)
		require.NoError(t, err)
		assert.Len(t, usage, allotment)
	})
}

func TestMemBillingEventStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("duplicate invoice is rejected", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemBillingEventStore()
		userID := uuid.New()

		ev := &billing.BillingEvent{
			UserID:          userID,
			StripeInvoiceID: "in_123",
			AmountPaid:      decimal.NewFromInt(20),
			Currency:        "usd",
			Status:          "paid",
		}
		require.NoError(t, store.Insert(ctx, ev))

		err := store.Insert(ctx, &billing.BillingEvent{UserID: userID, StripeInvoiceID: "in_123"})
		assert.ErrorIs(t, err, billing.ErrDuplicateEvent)

		events, err := store.Recent(ctx, userID, 10)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("recent returns newest first and respects the limit", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemBillingEventStore()
		userID := uuid.New()

		for _, id := range []string{"in_1", "in_2", "in_3"} {
			require.NoError(t, store.Insert(ctx, &billing.BillingEvent{UserID: userID, StripeInvoiceID: id}))
		}

		events, err := store.Recent(ctx, userID, 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "in_3", events[0].StripeInvoiceID)
		assert.Equal(t, "in_2", events[1].StripeInvoiceID)
	})
}
