package billing

import (
	"errors"
	"fmt"
)

var (
	ErrPlanNotFound  = errors.New("billing: subscription plan not found")
	ErrPlanInactive  = errors.New("billing: subscription plan is not active")
	ErrEmptyCatalog  = errors.New("billing: plan catalog is empty")
	ErrInvalidPlan   = errors.New("billing: invalid plan configuration")
	ErrInvalidAmount = errors.New("billing: debit amount must be positive")

	ErrSubscriptionNotFound = errors.New("billing: subscription not found")
	ErrNoCustomer           = errors.New("billing: no payment customer attached to subscription")
	ErrNoProviderSub        = errors.New("billing: no provider subscription to cancel")
	ErrCustomerMismatch     = errors.New("billing: subscription already attached to a different customer")

	ErrDuplicateEvent  = errors.New("billing: billing event already recorded")
	ErrMalformedEvent  = errors.New("billing: webhook event is missing required fields")
	ErrUnknownCustomer = errors.New("billing: webhook references a customer with no local subscription")
	ErrUnknownSub      = errors.New("billing: webhook references an unknown provider subscription")

	ErrGatewayUnavailable = errors.New("billing: payment provider is temporarily unavailable")
	ErrWebhookSignature   = errors.New("billing: webhook signature verification failed")
)

// InsufficientCreditsError is the expected business outcome of a debit that
// would exceed the remaining balance. It is a result, not a fault: handlers
// report it to the caller verbatim.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("billing: insufficient credits: required %d, available %d", e.Required, e.Available)
}

// IsInsufficientCredits reports whether err is an insufficient-credits
// rejection and returns the typed value when it is.
func IsInsufficientCredits(err error) (*InsufficientCreditsError, bool) {
	var ice *InsufficientCreditsError
	if errors.As(err, &ice) {
		return ice, true
	}
	return nil, false
}
