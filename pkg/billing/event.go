package billing

import "time"

// EventKind is the closed set of webhook event kinds the reconciler acts on.
// Provider vocabularies grow over time; anything unrecognized maps to
// EventKindUnknown and is acknowledged without a state change.
type EventKind int

const (
	EventKindUnknown EventKind = iota
	EventKindSubscriptionCreated
	EventKindSubscriptionUpdated
	EventKindSubscriptionDeleted
	EventKindInvoicePaymentSucceeded
	EventKindInvoicePaymentFailed
)

func (k EventKind) String() string {
	switch k {
	case EventKindSubscriptionCreated:
		return "subscription_created"
	case EventKindSubscriptionUpdated:
		return "subscription_updated"
	case EventKindSubscriptionDeleted:
		return "subscription_deleted"
	case EventKindInvoicePaymentSucceeded:
		return "invoice_payment_succeeded"
	case EventKindInvoicePaymentFailed:
		return "invoice_payment_failed"
	default:
		return "unknown"
	}
}

// WebhookEvent describes one successfully applied webhook delivery. It is
// passed to the WebhookCallback after the subscription row has been updated
// in storage.
type WebhookEvent struct {
	// UserID is the local owner of the affected subscription.
	UserID string

	// SubscriptionID and CustomerID are the external provider identifiers.
	SubscriptionID string
	CustomerID     string

	// Provider is the billing provider name (e.g. "stripe").
	Provider string

	// EventType is the provider-specific event type string.
	EventType string

	// Kind is the normalized event kind.
	Kind EventKind

	// PreviousStatus is the stored status before the event was applied
	// (empty for a newly created row).
	PreviousStatus Status

	// NewStatus is the stored status after the event was applied.
	NewStatus Status

	// EventTimestamp is when the event occurred, per the provider.
	EventTimestamp time.Time
}
