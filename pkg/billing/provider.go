package billing

import (
	"context"
	"encoding/json"
	"net/http"
)

// Provider is the generic interface a billing backend implements. The
// application can swap Stripe for another provider with zero logic changes.
type Provider interface {
	// Name returns the provider name (e.g. "stripe").
	Name() string

	// WebhookHandler returns the HTTP handler that processes provider
	// events. Verification, parsing and reconciliation happen internally.
	WebhookHandler() http.Handler

	// CheckoutHandler returns the authenticated HTTP handler that creates a
	// hosted checkout session and responds with its redirect URL.
	CheckoutHandler() http.Handler

	// PortalHandler returns the authenticated HTTP handler that creates a
	// hosted billing-portal session and responds with its redirect URL.
	PortalHandler() http.Handler

	// CheckoutURL creates a hosted checkout session for the user and target
	// price id and returns the redirect URL.
	CheckoutURL(ctx context.Context, user *User, priceID string) (string, error)

	// PortalURL creates a hosted billing-portal session for a user with an
	// active subscription and returns the redirect URL.
	PortalURL(ctx context.Context, userID string) (string, error)

	// SyncUser forces a pull-based synchronization of the user's
	// subscription state from the provider. Used for restore flows and
	// nightly reconciliation jobs. Returns the resulting status.
	SyncUser(ctx context.Context, userID string) (Status, error)
}

// NotConfiguredHandler answers every request with 503 service unavailable.
// Applications mount it on the billing routes when no provider credentials
// are present, so the webhook/checkout/portal paths short-circuit instead of
// attempting partial operation.
func NotConfiguredHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "billing provider not configured"})
	})
}
