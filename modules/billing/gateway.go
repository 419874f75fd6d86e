package billing

import "context"

// User carries the identity fields the billing module needs. The HTTP
// layer resolves it from the authenticated session; billing never talks
// to the identity provider itself.
type User struct {
	ID    string
	Email string
	Name  string
}

// Gateway is the thin adapter to the external payment provider. Calls are
// synchronous and carry no internal retry: retrying a failed call is safe
// (the provider enforces idempotency on its side) and is a caller policy
// decision. None of these calls mutate local subscription rows; only the
// webhook path does.
type Gateway interface {
	// CreateCustomer registers the user with the provider and returns the
	// provider's customer reference.
	CreateCustomer(ctx context.Context, user User) (string, error)

	// CreateCheckoutSession returns a hosted checkout URL for the given
	// customer and price.
	CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string) (string, error)

	// CreateBillingPortalSession returns a hosted self-service billing
	// management URL.
	CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error)

	// CancelAtPeriodEnd schedules the provider subscription to end at the
	// close of the current billing period.
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error

	// VerifyWebhook checks the payload signature against the shared
	// secret and decodes it into a tagged Event. Invalid signatures fail
	// with ErrWebhookSignature; recognized event types missing required
	// fields fail with ErrMalformedEvent.
	VerifyWebhook(payload []byte, signatureHeader string) (Event, error)
}
