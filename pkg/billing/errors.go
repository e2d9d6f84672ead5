package billing

import "errors"

var (
	// ErrProviderNotConfigured is returned when the billing integration is
	// absent entirely (no API key or webhook secret). Endpoints short-circuit
	// with a "service unavailable" outcome instead of attempting partial
	// operation.
	ErrProviderNotConfigured = errors.New("billing provider not configured")

	// ErrInvalidWebhookSignature is returned when webhook signature
	// validation fails.
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

	// ErrInvalidWebhookPayload is returned when a webhook payload cannot be
	// parsed into a recognized event shape.
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")

	// ErrSubscriptionNotFound is returned by Store lookups with no match.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrActiveSubscription is returned when checkout is requested for a
	// user who already has an ACTIVE subscription.
	ErrActiveSubscription = errors.New("user already has an active subscription")

	// ErrUserNotFound is returned by UserStore lookups with no match.
	ErrUserNotFound = errors.New("user not found")

	// ErrCustomerNotFound is returned when no external customer exists for
	// the user.
	ErrCustomerNotFound = errors.New("customer not found in billing provider")

	// ErrProviderAuthFailed is returned when the provider rejects our API
	// credentials.
	ErrProviderAuthFailed = errors.New("billing provider authentication failed")

	// ErrInvalidRequest is returned when the provider rejects a request as
	// malformed (bad price id, bad parameters).
	ErrInvalidRequest = errors.New("invalid billing provider request")

	// ErrProviderAPIError is returned for provider API failures with no more
	// specific classification.
	ErrProviderAPIError = errors.New("billing provider API error")

	// ErrUnauthenticated is returned by the Authenticate hook for anonymous
	// requests.
	ErrUnauthenticated = errors.New("unauthenticated")
)
