// Package lawgen generates satirical laws and constitutional frameworks
// with an LLM and manages the resulting archive. Every generation and
// search is metered: credits are debited through the billing module
// before the work starts, and a failed generation is still charged; the
// attempt record keeps the audit trail for operator reconciliation.
package lawgen
