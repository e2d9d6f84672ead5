package billing

import (
	"context"
	"net/http"
)

// Config defines the standard configuration all providers accept.
type Config struct {
	// Store persists Subscription rows. Required.
	Store Store

	// Users resolves local users. Optional: when set, the customer resolver
	// verifies that the user referenced by provider customer metadata exists
	// before creating a subscription row for it.
	Users UserStore

	// Events suppresses duplicate webhook deliveries by event id. Optional.
	Events EventLog

	// Authenticate extracts the calling user from a checkout/portal request.
	// Required for the checkout and portal HTTP handlers. Return
	// ErrUnauthenticated (or a nil user) for anonymous sessions.
	Authenticate func(r *http.Request) (*User, error)

	// WebhookCallback, when set, runs after a webhook event has been applied
	// to storage. A callback error fails the delivery so the provider
	// retries it; the storage write is not rolled back.
	WebhookCallback func(ctx context.Context, event WebhookEvent) error

	// HTTPClient is an optional HTTP client for provider API calls.
	// If nil, a default client with a 10s timeout is used.
	HTTPClient *http.Client

	// Logger is an optional structured logger. If nil, logging is a no-op.
	Logger Logger

	// Metrics is an optional metrics collector. If nil, metrics are silently
	// ignored. Use billing/metrics/prometheus.NewMetrics for Prometheus.
	Metrics Metrics
}
