package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lexforge/lexforge/pkg/logger"
)

// Service coordinates the billing workflows: checkout and portal
// initiation, credit debits, and webhook reconciliation. All dependencies
// are injected; there is no package-level state.
type Service struct {
	catalog    Catalog
	subs       SubscriptionStore
	events     BillingEventStore
	gateway    Gateway
	reconciler *Reconciler
	log        *slog.Logger
}

// ServiceOption configures optional Service settings.
type ServiceOption func(*Service)

// WithLogger sets the service logger; defaults to a discard logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates a billing Service. Panics on nil required
// dependencies to fail fast during initialization.
func NewService(catalog Catalog, subs SubscriptionStore, events BillingEventStore, gateway Gateway, opts ...ServiceOption) *Service {
	if catalog == nil {
		panic("billing: Catalog is required")
	}
	if subs == nil {
		panic("billing: SubscriptionStore is required")
	}
	if events == nil {
		panic("billing: BillingEventStore is required")
	}
	if gateway == nil {
		panic("billing: Gateway is required")
	}

	s := &Service{
		catalog: catalog,
		subs:    subs,
		events:  events,
		gateway: gateway,
		log:     logger.NewDiscard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reconciler = NewReconciler(subs, events, catalog, s.log)

	return s
}

// GetOrCreateSubscription returns the user's subscription record,
// creating the lazy incomplete record on first touch.
func (s *Service) GetOrCreateSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	return s.subs.GetOrCreate(ctx, userID)
}

// CurrentPlan resolves the subscription's plan, or nil when none is
// assigned yet.
func (s *Service) CurrentPlan(ctx context.Context, sub *Subscription) (*Plan, error) {
	if !sub.HasPlan() {
		return nil, nil
	}
	plan, err := s.catalog.PlanByName(ctx, sub.PlanName)
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// Dashboard aggregates everything the billing page shows.
type Dashboard struct {
	Subscription   *Subscription
	Plan           *Plan // nil when no plan assigned
	Plans          []Plan
	RecentUsage    []UsageRecord
	RecentInvoices []BillingEvent
}

// GetDashboard assembles the subscription overview for a user.
func (s *Service) GetDashboard(ctx context.Context, userID uuid.UUID) (*Dashboard, error) {
	sub, err := s.subs.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	plan, err := s.CurrentPlan(ctx, sub)
	if err != nil {
		return nil, err
	}

	plans, err := s.catalog.ActivePlans(ctx)
	if err != nil {
		return nil, err
	}

	usage, err := s.subs.RecentUsage(ctx, userID, 10)
	if err != nil {
		return nil, err
	}

	invoices, err := s.events.Recent(ctx, userID, 5)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		Subscription:   sub,
		Plan:           plan,
		Plans:          plans,
		RecentUsage:    usage,
		RecentInvoices: invoices,
	}, nil
}

// Checkout starts a hosted checkout for the named plan and returns the
// redirect URL. It lazily creates the subscription record and the
// provider customer; plan assignment itself only happens later, when the
// created webhook arrives.
func (s *Service) Checkout(ctx context.Context, user User, planName, successURL, cancelURL string) (string, error) {
	plan, err := s.catalog.PlanByName(ctx, planName)
	if err != nil {
		return "", err
	}
	if !plan.Active {
		return "", ErrPlanInactive
	}

	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return "", fmt.Errorf("billing: invalid user id: %w", err)
	}

	sub, err := s.subs.GetOrCreate(ctx, userID)
	if err != nil {
		return "", err
	}

	customerID, err := s.ensureCustomer(ctx, sub, user)
	if err != nil {
		return "", err
	}

	url, err := s.gateway.CreateCheckoutSession(ctx, customerID, plan.StripePriceID, successURL, cancelURL)
	if err != nil {
		return "", err
	}

	s.log.Info("checkout session created",
		logger.UserID(userID),
		logger.Plan(plan.Name),
		logger.Component("billing"),
	)
	return url, nil
}

// PortalLink returns a hosted billing portal URL for the user.
func (s *Service) PortalLink(ctx context.Context, user User, returnURL string) (string, error) {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return "", fmt.Errorf("billing: invalid user id: %w", err)
	}

	sub, err := s.subs.GetOrCreate(ctx, userID)
	if err != nil {
		return "", err
	}

	customerID, err := s.ensureCustomer(ctx, sub, user)
	if err != nil {
		return "", err
	}

	return s.gateway.CreateBillingPortalSession(ctx, customerID, returnURL)
}

// Cancel schedules the user's provider subscription to end at the close
// of the current period. Local status stays untouched; the matching
// webhook will mirror the transition.
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID) error {
	sub, err := s.subs.ByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if sub.StripeSubscriptionID == "" {
		return ErrNoProviderSub
	}

	if err := s.gateway.CancelAtPeriodEnd(ctx, sub.StripeSubscriptionID); err != nil {
		return err
	}

	s.log.Info("subscription cancellation scheduled",
		logger.UserID(userID),
		logger.SubscriptionID(sub.ID),
		logger.Component("billing"),
	)
	return nil
}

// UseCredits debits the user's balance and returns the remaining credits.
// Insufficient balance comes back as *InsufficientCreditsError with the
// shortfall; no partial debit ever happens.
func (s *Service) UseCredits(ctx context.Context, userID uuid.UUID, amount int64, description string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	sub, err := s.subs.GetOrCreate(ctx, userID)
	if err != nil {
		return 0, err
	}

	// No plan means a zero allotment: the debit is rejected uniformly by
	// the same balance check.
	var allotment int64
	if plan, err := s.CurrentPlan(ctx, sub); err != nil {
		return 0, err
	} else if plan != nil {
		allotment = plan.CreditsPerMonth
	}

	rec, err := s.subs.Debit(ctx, sub.ID, amount, allotment, description)
	if err != nil {
		return 0, err
	}

	s.log.Info("credits debited",
		logger.UserID(userID),
		logger.Credits(rec.Amount),
		slog.String("description", description),
		logger.Component("billing"),
	)

	// Re-read for the balance: concurrent debits may have landed between
	// our read and the atomic increment.
	fresh, err := s.subs.ByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return max(0, allotment-fresh.CreditsUsed), nil
}

// RemainingCredits reports the user's current balance without mutating
// anything. Users without a subscription or plan have zero.
func (s *Service) RemainingCredits(ctx context.Context, userID uuid.UUID) (int64, error) {
	sub, err := s.subs.ByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return 0, nil
		}
		return 0, err
	}

	plan, err := s.CurrentPlan(ctx, sub)
	if err != nil {
		return 0, err
	}
	return sub.RemainingCredits(plan), nil
}

// HandleWebhook verifies the raw payload and applies the decoded event.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	ev, err := s.gateway.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		return err
	}
	return s.reconciler.Apply(ctx, ev)
}

// ensureCustomer lazily creates the provider customer and attaches its
// reference to the subscription. An already-attached different reference
// is a drift warning, never an overwrite: the provider-side record is the
// source of truth going forward.
func (s *Service) ensureCustomer(ctx context.Context, sub *Subscription, user User) (string, error) {
	if sub.StripeCustomerID != "" {
		return sub.StripeCustomerID, nil
	}

	customerID, err := s.gateway.CreateCustomer(ctx, user)
	if err != nil {
		return "", err
	}

	_, err = s.subs.Update(ctx, sub.ID, func(row *Subscription) error {
		switch row.StripeCustomerID {
		case "":
			row.StripeCustomerID = customerID
			return nil
		case customerID:
			return nil
		default:
			return ErrCustomerMismatch
		}
	})
	if errors.Is(err, ErrCustomerMismatch) {
		// A concurrent request attached a different customer first. Keep
		// the stored one and surface the drift in logs.
		s.log.Warn("provider customer drift detected",
			logger.SubscriptionID(sub.ID),
			logger.CustomerID(customerID),
			logger.Component("billing"),
		)
		current, lookupErr := s.subs.ByUserID(ctx, sub.UserID)
		if lookupErr != nil {
			return "", lookupErr
		}
		return current.StripeCustomerID, nil
	}
	if err != nil {
		return "", err
	}
	return customerID, nil
}
