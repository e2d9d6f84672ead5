// Package billing defines the domain types and collaborator contracts for
// DevHub subscription billing. Provider implementations live in subpackages
// (currently pkg/billing/stripe); persistence adapters live under storage/.
package billing

import (
	"strings"
	"time"
)

// Status mirrors the payment provider's subscription status vocabulary,
// upper-cased.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusPastDue    Status = "PAST_DUE"
	StatusCanceled   Status = "CANCELED"
	StatusIncomplete Status = "INCOMPLETE"
	StatusTrialing   Status = "TRIALING"
)

// StatusFromProvider normalizes a provider status string (e.g. "past_due")
// into a Status ("PAST_DUE"). Unknown values pass through upper-cased so a
// new provider status never silently collapses into a known one.
func StatusFromProvider(s string) Status {
	return Status(strings.ToUpper(strings.TrimSpace(s)))
}

// Entitled reports whether the status grants access to paid features.
func (s Status) Entitled() bool {
	return s == StatusActive || s == StatusTrialing
}

// Subscription is one user's relationship to a billing plan.
//
// A row is created either lazily, the first time a webhook event references an
// external customer with no local match, or ahead of time by the application.
// It is mutated only by the webhook reconciler; cancellation is a status
// transition, never a row deletion. At most one subscription per user is
// treated as the active one for entitlement checks.
type Subscription struct {
	ID               string
	UserID           string
	SubscriptionID   string // external subscription id; empty until first event
	CustomerID       string // external customer id
	PriceID          string // external price/plan id
	Status           Status
	CurrentPeriodEnd time.Time
	UpdatedAt        time.Time
}

// User is the opaque owner key for subscriptions. Email and Name are carried
// so providers can tag the external customer record at creation time.
type User struct {
	ID    string
	Email string
	Name  string
}
