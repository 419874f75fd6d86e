// Package billing implements the subscription and credit ledger core:
// the plan catalog, per-user subscription records, atomic credit debits
// with an append-only usage trail, a payment gateway adapter backed by
// Stripe, and a webhook reconciler that mirrors provider-side state.
//
// Request handlers only initiate provider actions (checkout, portal,
// cancel); every plan assignment and status transition is applied by the
// reconciler from signed webhook events. Credit renewal has exactly one
// trigger: a subscription update whose period start is newer than the
// last recorded reset.
package billing
