package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lexforge/lexforge/pkg/logger"
)

// Reconciler applies provider webhook events to local subscription
// records. Delivery is at-least-once and unordered, so every handler is
// idempotent: replaying an event yields the same end state as applying it
// once.
type Reconciler struct {
	subs    SubscriptionStore
	events  BillingEventStore
	catalog Catalog
	log     *slog.Logger
}

// NewReconciler wires a reconciler with explicit dependencies.
func NewReconciler(subs SubscriptionStore, events BillingEventStore, catalog Catalog, log *slog.Logger) *Reconciler {
	if log == nil {
		log = logger.NewDiscard()
	}
	return &Reconciler{subs: subs, events: events, catalog: catalog, log: log}
}

// Apply dispatches a decoded event to its handler. Ignored event types
// return nil so the webhook endpoint acknowledges them and the provider
// stops retrying.
func (r *Reconciler) Apply(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventSubscriptionCreated:
		return r.subscriptionCreated(ctx, ev.Subscription)
	case EventSubscriptionUpdated:
		return r.subscriptionUpdated(ctx, ev.Subscription)
	case EventInvoicePaid:
		return r.invoicePaid(ctx, ev.Invoice)
	case EventIgnored:
		r.log.Debug("ignoring webhook event", logger.EventType(ev.ProviderType), logger.Component("reconciler"))
		return nil
	default:
		return fmt.Errorf("%w: unexpected event type %q", ErrMalformedEvent, ev.Type)
	}
}

// subscriptionCreated attaches the provider subscription to the local
// record found by customer reference. The local row must already exist
// from the checkout flow; a miss is a data-integrity or ordering problem
// and is NOT silently created — the provider's retry will succeed once
// the race resolves.
func (r *Reconciler) subscriptionCreated(ctx context.Context, ev *SubscriptionEvent) error {
	sub, err := r.subs.ByCustomerID(ctx, ev.CustomerID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			r.log.Error("subscription created for unknown customer",
				logger.CustomerID(ev.CustomerID),
				logger.EventType("customer.subscription.created"),
				logger.Component("reconciler"),
			)
			return fmt.Errorf("%w: customer %s", ErrUnknownCustomer, ev.CustomerID)
		}
		return err
	}

	plan, err := r.catalog.PlanByPriceID(ctx, ev.PriceID)
	if err != nil {
		// Unmapped price reference is a configuration problem, not a
		// transient one; retrying won't fix it but the log will page
		// someone who can.
		r.log.Error("webhook price reference not mapped to any plan",
			slog.String("price_id", ev.PriceID),
			logger.CustomerID(ev.CustomerID),
			logger.Component("reconciler"),
		)
		return fmt.Errorf("%w: price %s", ErrPlanNotFound, ev.PriceID)
	}

	updated, err := r.subs.Update(ctx, sub.ID, func(s *Subscription) error {
		s.StripeSubscriptionID = ev.SubscriptionID
		s.PlanName = plan.Name
		s.Status = ev.Status
		s.CurrentPeriodStart = &ev.PeriodStart
		s.CurrentPeriodEnd = &ev.PeriodEnd
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Info("subscription created",
		logger.UserID(updated.UserID),
		logger.SubscriptionID(updated.ID),
		logger.Plan(plan.Name),
		slog.String("status", string(updated.Status)),
		logger.Component("reconciler"),
	)
	return nil
}

// subscriptionUpdated mirrors status and period bounds. When the new
// period start is strictly newer than the last credit reset (or no reset
// ever happened), credits are zeroed — the sole trigger of credit
// renewal. Replays carry the same period start and cause no second reset.
func (r *Reconciler) subscriptionUpdated(ctx context.Context, ev *SubscriptionEvent) error {
	sub, err := r.subs.BySubscriptionID(ctx, ev.SubscriptionID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			r.log.Error("update for unknown provider subscription",
				slog.String("provider_subscription_id", ev.SubscriptionID),
				logger.EventType("customer.subscription.updated"),
				logger.Component("reconciler"),
			)
			return fmt.Errorf("%w: %s", ErrUnknownSub, ev.SubscriptionID)
		}
		return err
	}

	var reset bool
	updated, err := r.subs.Update(ctx, sub.ID, func(s *Subscription) error {
		s.Status = ev.Status
		s.CurrentPeriodStart = &ev.PeriodStart
		s.CurrentPeriodEnd = &ev.PeriodEnd

		if s.CreditsResetAt == nil || ev.PeriodStart.After(*s.CreditsResetAt) {
			s.CreditsUsed = 0
			now := ev.PeriodStart
			s.CreditsResetAt = &now
			reset = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	if reset {
		r.log.Info("credits reset for new billing period",
			logger.UserID(updated.UserID),
			logger.SubscriptionID(updated.ID),
			logger.Component("reconciler"),
		)
	}
	r.log.Info("subscription updated",
		logger.UserID(updated.UserID),
		logger.SubscriptionID(updated.ID),
		slog.String("status", string(updated.Status)),
		logger.Component("reconciler"),
	)
	return nil
}

// invoicePaid records payment history. The unique invoice reference makes
// duplicate deliveries a detected no-op.
func (r *Reconciler) invoicePaid(ctx context.Context, ev *InvoiceEvent) error {
	sub, err := r.subs.ByCustomerID(ctx, ev.CustomerID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			r.log.Error("invoice for unknown customer",
				logger.CustomerID(ev.CustomerID),
				logger.EventType("invoice.payment_succeeded"),
				logger.Component("reconciler"),
			)
			return fmt.Errorf("%w: customer %s", ErrUnknownCustomer, ev.CustomerID)
		}
		return err
	}

	err = r.events.Insert(ctx, &BillingEvent{
		UserID:           sub.UserID,
		StripeInvoiceID:  ev.InvoiceID,
		AmountPaid:       ev.AmountPaid,
		Currency:         ev.Currency,
		Status:           ev.Status,
		BillingReason:    ev.BillingReason,
		HostedInvoiceURL: ev.HostedInvoiceURL,
	})
	if errors.Is(err, ErrDuplicateEvent) {
		r.log.Info("duplicate invoice delivery skipped",
			slog.String("invoice_id", ev.InvoiceID),
			logger.Component("reconciler"),
		)
		return nil
	}
	if err != nil {
		return err
	}

	r.log.Info("invoice payment recorded",
		logger.UserID(sub.UserID),
		slog.String("invoice_id", ev.InvoiceID),
		slog.String("amount_paid", ev.AmountPaid.String()),
		logger.Component("reconciler"),
	)
	return nil
}
