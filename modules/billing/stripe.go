package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds credentials for the Stripe gateway.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
}

// StripeGateway implements Gateway with the official Stripe SDK. All
// payment complexity stays on Stripe's hosted surfaces (checkout and the
// billing portal); this adapter only opens sessions and mirrors webhooks.
type StripeGateway struct {
	client        *stripe.Client
	webhookSecret string
}

// NewStripeGateway builds a Stripe-backed Gateway.
func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("billing: stripe secret key is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("billing: stripe webhook secret is required")
	}

	return &StripeGateway{
		client:        stripe.NewClient(cfg.SecretKey, nil),
		webhookSecret: cfg.WebhookSecret,
	}, nil
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, user User) (string, error) {
	params := &stripe.CustomerCreateParams{
		Email: stripe.String(user.Email),
		Metadata: map[string]string{
			"user_id": user.ID,
		},
	}
	if user.Name != "" {
		params.Name = stripe.String(user.Name)
	}

	customer, err := g.client.V1Customers.Create(ctx, params)
	if err != nil {
		return "", classifyStripeErr("create customer", err)
	}
	return customer.ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string) (string, error) {
	params := &stripe.CheckoutSessionCreateParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{{
			Price:    stripe.String(priceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}

	session, err := g.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return "", classifyStripeErr("create checkout session", err)
	}
	return session.URL, nil
}

func (g *StripeGateway) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}

	session, err := g.client.V1BillingPortalSessions.Create(ctx, params)
	if err != nil {
		return "", classifyStripeErr("create billing portal session", err)
	}
	return session.URL, nil
}

func (g *StripeGateway) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	_, err := g.client.V1Subscriptions.Update(ctx, subscriptionID, &stripe.SubscriptionUpdateParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	})
	if err != nil {
		return classifyStripeErr("cancel subscription", err)
	}
	return nil
}

// VerifyWebhook checks the Stripe-Signature header and decodes the event
// into the tagged variant the reconciler consumes. Decoding validates
// required fields per event type here, at the boundary, so handlers never
// reach into raw payload maps.
func (g *StripeGateway) VerifyWebhook(payload []byte, signatureHeader string) (Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Event{}, errors.Join(ErrWebhookSignature, err)
	}

	switch event.Type {
	case "customer.subscription.created":
		sub, err := decodeSubscriptionEvent(event.Data.Raw)
		if err != nil {
			return Event{}, err
		}
		return Event{Type: EventSubscriptionCreated, ProviderType: string(event.Type), Subscription: sub}, nil

	case "customer.subscription.updated":
		sub, err := decodeSubscriptionEvent(event.Data.Raw)
		if err != nil {
			return Event{}, err
		}
		return Event{Type: EventSubscriptionUpdated, ProviderType: string(event.Type), Subscription: sub}, nil

	case "invoice.payment_succeeded":
		inv, err := decodeInvoiceEvent(event.Data.Raw)
		if err != nil {
			return Event{}, err
		}
		return Event{Type: EventInvoicePaid, ProviderType: string(event.Type), Invoice: inv}, nil

	default:
		return Event{Type: EventIgnored, ProviderType: string(event.Type)}, nil
	}
}

// stripeSubscriptionPayload is the subset of Stripe's subscription object
// the reconciler needs.
type stripeSubscriptionPayload struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func decodeSubscriptionEvent(raw json.RawMessage) (*SubscriptionEvent, error) {
	var p stripeSubscriptionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}

	if p.ID == "" || p.Customer == "" || p.Status == "" {
		return nil, fmt.Errorf("%w: subscription id, customer and status are required", ErrMalformedEvent)
	}
	if p.CurrentPeriodStart == 0 || p.CurrentPeriodEnd == 0 {
		return nil, fmt.Errorf("%w: subscription period bounds are required", ErrMalformedEvent)
	}
	if len(p.Items.Data) == 0 || p.Items.Data[0].Price.ID == "" {
		return nil, fmt.Errorf("%w: subscription price reference is required", ErrMalformedEvent)
	}

	return &SubscriptionEvent{
		SubscriptionID: p.ID,
		CustomerID:     p.Customer,
		PriceID:        p.Items.Data[0].Price.ID,
		Status:         Status(p.Status),
		PeriodStart:    time.Unix(p.CurrentPeriodStart, 0).UTC(),
		PeriodEnd:      time.Unix(p.CurrentPeriodEnd, 0).UTC(),
	}, nil
}

// stripeInvoicePayload is the subset of Stripe's invoice object needed to
// record a settled payment. AmountPaid arrives in the smallest currency
// unit.
type stripeInvoicePayload struct {
	ID               string `json:"id"`
	Customer         string `json:"customer"`
	AmountPaid       int64  `json:"amount_paid"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	BillingReason    string `json:"billing_reason"`
	HostedInvoiceURL string `json:"hosted_invoice_url"`
}

func decodeInvoiceEvent(raw json.RawMessage) (*InvoiceEvent, error) {
	var p stripeInvoicePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}

	if p.ID == "" || p.Customer == "" {
		return nil, fmt.Errorf("%w: invoice id and customer are required", ErrMalformedEvent)
	}

	return &InvoiceEvent{
		InvoiceID:        p.ID,
		CustomerID:       p.Customer,
		AmountPaid:       decimal.NewFromInt(p.AmountPaid).Div(decimal.NewFromInt(100)),
		Currency:         p.Currency,
		Status:           p.Status,
		BillingReason:    p.BillingReason,
		HostedInvoiceURL: p.HostedInvoiceURL,
	}, nil
}

// classifyStripeErr separates transient provider failures (safe to retry)
// from permanent ones (configuration problems). Network errors and 5xx
// responses are transient; everything else surfaces as-is.
func classifyStripeErr(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("billing: %s: %w", op, errors.Join(ErrGatewayUnavailable, err))
		}
		return fmt.Errorf("billing: %s: %w", op, err)
	}
	// Non-API errors are connectivity problems.
	return fmt.Errorf("billing: %s: %w", op, errors.Join(ErrGatewayUnavailable, err))
}
