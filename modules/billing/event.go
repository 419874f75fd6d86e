package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingEvent is the immutable record of a settled invoice. The provider
// invoice reference carries a uniqueness constraint: it is the natural
// deduplication key for at-least-once webhook delivery.
type BillingEvent struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	StripeInvoiceID  string
	AmountPaid       decimal.Decimal
	Currency         string
	Status           string
	BillingReason    string
	HostedInvoiceURL string
	CreatedAt        time.Time
}

// EventType is the normalized webhook event kind after boundary decoding.
type EventType string

const (
	EventSubscriptionCreated EventType = "subscription_created"
	EventSubscriptionUpdated EventType = "subscription_updated"
	EventInvoicePaid         EventType = "invoice_paid"

	// EventIgnored marks provider event types this application does not
	// consume. They are acknowledged so the provider stops retrying.
	EventIgnored EventType = "ignored"
)

// SubscriptionEvent is the decoded payload of a provider subscription
// created/updated event. All fields are validated at the webhook boundary
// before any handler runs.
type SubscriptionEvent struct {
	SubscriptionID string
	CustomerID     string
	PriceID        string
	Status         Status
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

// InvoiceEvent is the decoded payload of an invoice payment-succeeded
// event.
type InvoiceEvent struct {
	InvoiceID        string
	CustomerID       string
	AmountPaid       decimal.Decimal
	Currency         string
	Status           string
	BillingReason    string
	HostedInvoiceURL string
}

// Event is a tagged variant over the webhook payloads the reconciler
// understands. Exactly one of Subscription/Invoice is set for the
// corresponding types; both are nil for EventIgnored.
type Event struct {
	Type         EventType
	ProviderType string // original provider event name, for logging
	Subscription *SubscriptionEvent
	Invoice      *InvoiceEvent
}
