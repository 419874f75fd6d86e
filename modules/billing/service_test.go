package billing_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexforge/lexforge/modules/billing"
)

// fakeGateway is a scriptable Gateway double. Zero value behaves like a
// healthy provider that hands out sequential identifiers.
type fakeGateway struct {
	customerSeq int
	customers   []billing.User

	checkoutURL string
	portalURL   string
	canceled    []string

	createCustomerErr error
	checkoutErr       error
	cancelErr         error

	verifyEvent billing.Event
	verifyErr   error
}

func (g *fakeGateway) CreateCustomer(ctx context.Context, user billing.User) (string, error) {
	if g.createCustomerErr != nil {
		return "", g.createCustomerErr
	}
	g.customerSeq++
	g.customers = append(g.customers, user)
	return fmt.Sprintf("cus_%d", g.customerSeq), nil
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string) (string, error) {
	if g.checkoutErr != nil {
		return "", g.checkoutErr
	}
	if g.checkoutURL != "" {
		return g.checkoutURL, nil
	}
	return "https://checkout.test/" + customerID + "/" + priceID, nil
}

func (g *fakeGateway) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if g.portalURL != "" {
		return g.portalURL, nil
	}
	return "https://portal.test/" + customerID, nil
}

func (g *fakeGateway) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.canceled = append(g.canceled, subscriptionID)
	return nil
}

func (g *fakeGateway) VerifyWebhook(payload []byte, signatureHeader string) (billing.Event, error) {
	if g.verifyErr != nil {
		return billing.Event{}, g.verifyErr
	}
	return g.verifyEvent, nil
}

type serviceFixture struct {
	subs    billing.SubscriptionStore
	events  billing.BillingEventStore
	gateway *fakeGateway
	svc     *billing.Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	subs := billing.NewMemSubscriptionStore()
	events := billing.NewMemBillingEventStore()
	gateway := &fakeGateway{}
	svc := billing.NewService(billing.MustCatalog(testPlans()...), subs, events, gateway)
	return &serviceFixture{subs: subs, events: events, gateway: gateway, svc: svc}
}

func testUser() billing.User {
	return billing.User{ID: uuid.NewString(), Email: "ada@example.com", Name: "Ada"}
}

func TestService_Checkout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates customer lazily and opens a session", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		user := testUser()

		url, err := f.svc.Checkout(ctx, user, "pro", "https://app.test/ok", "https://app.test/cancel")
		require.NoError(t, err)
		assert.Equal(t, "https://checkout.test/cus_1/price_pro", url)

		sub, err := f.subs.ByUserID(ctx, uuid.MustParse(user.ID))
		require.NoError(t, err)
		assert.Equal(t, "cus_1", sub.StripeCustomerID)
	})

	t.Run("reuses the attached customer on a second checkout", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		user := testUser()

		_, err := f.svc.Checkout(ctx, user, "starter", "https://app.test/ok", "https://app.test/cancel")
		require.NoError(t, err)
		_, err = f.svc.Checkout(ctx, user, "pro", "https://app.test/ok", "https://app.test/cancel")
		require.NoError(t, err)

		assert.Equal(t, 1, f.gateway.customerSeq)
	})

	t.Run("unknown plan", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)

		_, err := f.svc.Checkout(ctx, testUser(), "enterprise", "https://app.test/ok", "https://app.test/cancel")
		assert.ErrorIs(t, err, billing.ErrPlanNotFound)
	})

	t.Run("inactive plan", func(t *testing.T) {
		t.Parallel()
		plans := testPlans()
		plans[0].Active = false // premium
		svc := billing.NewService(
			billing.MustCatalog(plans...),
			billing.NewMemSubscriptionStore(),
			billing.NewMemBillingEventStore(),
			&fakeGateway{},
		)

		_, err := svc.Checkout(ctx, testUser(), "premium", "https://app.test/ok", "https://app.test/cancel")
		assert.ErrorIs(t, err, billing.ErrPlanInactive)
	})

	t.Run("provider outage surfaces as gateway unavailable", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		f.gateway.checkoutErr = billing.ErrGatewayUnavailable

		_, err := f.svc.Checkout(ctx, testUser(), "pro", "https://app.test/ok", "https://app.test/cancel")
		assert.ErrorIs(t, err, billing.ErrGatewayUnavailable)
	})
}

func TestService_Cancel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("schedules provider-side cancellation", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		userID := uuid.New()

		sub, err := f.subs.GetOrCreate(ctx, userID)
		require.NoError(t, err)
		_, err = f.subs.Update(ctx, sub.ID, func(s *billing.Subscription) error {
			s.StripeSubscriptionID = "sub_live"
			s.Status = billing.StatusActive
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, f.svc.Cancel(ctx, userID))
		assert.Equal(t, []string{"sub_live"}, f.gateway.canceled)

		// Local status waits for the webhook to mirror the transition.
		fresh, err := f.subs.ByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, fresh.Status)
	})

	t.Run("nothing to cancel without a provider subscription", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		userID := uuid.New()

		_, err := f.subs.GetOrCreate(ctx, userID)
		require.NoError(t, err)

		err = f.svc.Cancel(ctx, userID)
		assert.ErrorIs(t, err, billing.ErrNoProviderSub)
	})

	t.Run("no record at all", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		err := f.svc.Cancel(ctx, uuid.New())
		assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)
	})
}

func TestService_UseCredits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// withPlan puts a user on the pro plan (300 credits).
	withPlan := func(t *testing.T, f *serviceFixture, userID uuid.UUID) {
		t.Helper()
		sub, err := f.subs.GetOrCreate(ctx, userID)
		require.NoError(t, err)
		_, err = f.subs.Update(ctx, sub.ID, func(s *billing.Subscription) error {
			s.PlanName = "pro"
			s.Status = billing.StatusActive
			return nil
		})
		require.NoError(t, err)
	}

	t.Run("debits and returns the remaining balance", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		userID := uuid.New()
		withPlan(t, f, userID)

		remaining, err := f.svc.UseCredits(ctx, userID, 10, "Generated law")
		require.NoError(t, err)
		assert.Equal(t, int64(290), remaining)

		remaining, err = f.svc.UseCredits(ctx, userID, 1, "Search")
		require.NoError(t, err)
		assert.Equal(t, int64(289), remaining)
	})

	t.Run("insufficient balance reports the shortfall", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		userID := uuid.New()
		withPlan(t, f, userID)

		_, err := f.svc.UseCredits(ctx, userID, 299, "big batch")
		require.NoError(t, err)

		_, err = f.svc.UseCredits(ctx, userID, 10, "over the top")
		ice, ok := billing.IsInsufficientCredits(err)
		require.True(t, ok)
		assert.Equal(t, int64(10), ice.Required)
		assert.Equal(t, int64(1), ice.Available)
	})

	t.Run("user without a plan has zero allotment", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)

		_, err := f.svc.UseCredits(ctx, uuid.New(), 1, "no plan yet")
		ice, ok := billing.IsInsufficientCredits(err)
		require.True(t, ok)
		assert.Equal(t, int64(0), ice.Available)
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		_, err := f.svc.UseCredits(ctx, uuid.New(), 0, "zero")
		assert.ErrorIs(t, err, billing.ErrInvalidAmount)
	})

	t.Run("failed debit leaves usage history empty", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		userID := uuid.New()
		withPlan(t, f, userID)

		_, err := f.svc.UseCredits(ctx, userID, 500, "way too much")
		_, ok := billing.IsInsufficientCredits(err)
		require.True(t, ok)

		usage, err := f.subs.RecentUsage(ctx, userID, 10)
		require.NoError(t, err)
		assert.Empty(t, usage)
	})
}

func TestService_RemainingCredits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("zero for unknown user", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		remaining, err := f.svc.RemainingCredits(ctx, uuid.New())
		require.NoError(t, err)
		assert.Zero(t, remaining)
	})
}

func TestService_HandleWebhook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("signature failure short-circuits reconciliation", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		f.gateway.verifyErr = billing.ErrWebhookSignature

		err := f.svc.HandleWebhook(ctx, []byte("{}"), "t=1,v1=bad")
		assert.ErrorIs(t, err, billing.ErrWebhookSignature)
	})

	t.Run("verified event reaches the reconciler", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		user := testUser()

		// Checkout attaches the provider customer first.
		_, err := f.svc.Checkout(ctx, user, "pro", "https://app.test/ok", "https://app.test/cancel")
		require.NoError(t, err)

		start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		f.gateway.verifyEvent = billing.Event{
			Type: billing.EventSubscriptionCreated,
			Subscription: &billing.SubscriptionEvent{
				SubscriptionID: "sub_hook",
				CustomerID:     "cus_1",
				PriceID:        "price_pro",
				Status:         billing.StatusActive,
				PeriodStart:    start,
				PeriodEnd:      start.AddDate(0, 1, 0),
			},
		}

		require.NoError(t, f.svc.HandleWebhook(ctx, []byte("{}"), "t=1,v1=ok"))

		sub, err := f.subs.ByUserID(ctx, uuid.MustParse(user.ID))
		require.NoError(t, err)
		assert.Equal(t, "sub_hook", sub.StripeSubscriptionID)
		assert.Equal(t, "pro", sub.PlanName)
	})
}

func TestService_GetDashboard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newServiceFixture(t)
	userID := uuid.New()

	sub, err := f.subs.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	_, err = f.subs.Update(ctx, sub.ID, func(s *billing.Subscription) error {
		s.PlanName = "starter"
		s.Status = billing.StatusActive
		return nil
	})
	require.NoError(t, err)
	_, err = f.subs.Debit(ctx, sub.ID, 5, 50, "warmup")
	require.NoError(t, err)

	dash, err := f.svc.GetDashboard(ctx, userID)
	require.NoError(t, err)

	require.NotNil(t, dash.Plan)
	assert.Equal(t, "starter", dash.Plan.Name)
	assert.Equal(t, int64(45), dash.Subscription.RemainingCredits(dash.Plan))
	assert.Len(t, dash.RecentUsage, 1)
	assert.Len(t, dash.Plans, 3)
}

func TestNewService_RequiresDependencies(t *testing.T) {
	t.Parallel()

	catalog := billing.MustCatalog(testPlans()...)
	subs := billing.NewMemSubscriptionStore()
	events := billing.NewMemBillingEventStore()

	assert.Panics(t, func() { billing.NewService(nil, subs, events, &fakeGateway{}) })
	assert.Panics(t, func() { billing.NewService(catalog, nil, events, &fakeGateway{}) })
	assert.Panics(t, func() { billing.NewService(catalog, subs, nil, &fakeGateway{}) })
	assert.Panics(t, func() { billing.NewService(catalog, subs, events, nil) })
}

// Guards against the service wrapping sentinel errors in a way that
// breaks errors.Is for callers.
func TestService_ErrorTransparency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newServiceFixture(t)
	f.gateway.createCustomerErr = errors.Join(billing.ErrGatewayUnavailable, errors.New("dial tcp: timeout"))

	_, err := f.svc.Checkout(ctx, testUser(), "pro", "https://app.test/ok", "https://app.test/cancel")
	assert.ErrorIs(t, err, billing.ErrGatewayUnavailable)
}

// Walks one subscription through its first month: checkout attaches a
// customer, the created webhook activates the plan, credits are spent,
// and the renewal webhook opens a fresh allotment.
func TestService_SubscriptionLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newServiceFixture(t)
	user := testUser()
	userID := uuid.MustParse(user.ID)
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := f.svc.Checkout(ctx, user, "pro", "https://app.test/ok", "https://app.test/cancel")
	require.NoError(t, err)

	sub, err := f.subs.ByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusIncomplete, sub.Status)
	require.Equal(t, "cus_1", sub.StripeCustomerID)

	f.gateway.verifyEvent = subscriptionEvent(
		billing.EventSubscriptionCreated, "cus_1", t0, t0.AddDate(0, 0, 30))
	require.NoError(t, f.svc.HandleWebhook(ctx, []byte(`{}`), "sig"))

	sub, err = f.subs.ByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusActive, sub.Status)
	assert.True(t, sub.IsActive())

	remaining, err := f.svc.UseCredits(ctx, userID, 10, "Law generation")
	require.NoError(t, err)
	assert.Equal(t, int64(290), remaining)

	f.gateway.verifyEvent = subscriptionEvent(
		billing.EventSubscriptionUpdated, "cus_1", t0.AddDate(0, 0, 30), t0.AddDate(0, 0, 60))
	require.NoError(t, f.svc.HandleWebhook(ctx, []byte(`{}`), "sig"))

	remaining, err = f.svc.RemainingCredits(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), remaining)

	sub, err = f.subs.ByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sub.CreditsUsed)
	require.NotNil(t, sub.CreditsResetAt)
	assert.True(t, sub.CreditsResetAt.Equal(t0.AddDate(0, 0, 30)))
}
