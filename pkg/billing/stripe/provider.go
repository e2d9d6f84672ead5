// Package stripe implements the billing.Provider interface on top of the
// Stripe API: webhook-driven subscription reconciliation, checkout and
// billing-portal session issuance, and pull-based user sync.
package stripe

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/devhubhq/billing/pkg/billing"
	"github.com/devhubhq/billing/pkg/billing/internal"
)

const (
	providerName             = "stripe"
	defaultHTTPTimeout       = 10 * time.Second
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	defaultDedupTTL          = 24 * time.Hour
	maxWebhookBodyBytes      = 256 * 1024
	maxSessionBodyBytes      = 4 * 1024

	// metadataUserIDKey is the customer/session metadata key carrying the
	// local user id. The checkout issuer tags new customers with it; the
	// customer resolver reads it back when a webhook references a customer
	// with no local subscription row.
	metadataUserIDKey = "userId"
)

// Config extends billing.Config with Stripe-specific options.
type Config struct {
	billing.Config // Base config (Store, Users, Logger, Metrics, etc.)

	// Stripe credentials
	StripeAPIKey        string
	StripeWebhookSecret string

	// Redirect targets for hosted sessions. Defaults match the DevHub
	// dashboard routes.
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string

	// OwnerResolver is an optional performance hook mapping an external
	// customer id to a local user id without an API round trip. When nil,
	// or when it yields nothing, the resolver falls back to retrieving the
	// customer from Stripe and reading its metadata.
	OwnerResolver func(ctx context.Context, customerID string) (string, error)

	// EventDedupTTL bounds how long processed webhook event ids are
	// remembered when an EventLog is configured. Defaults to 24h.
	EventDedupTTL time.Duration
}

// Provider implements the billing.Provider interface for Stripe.
type Provider struct {
	store           billing.Store
	users           billing.UserStore
	events          billing.EventLog
	authenticate    func(r *http.Request) (*billing.User, error)
	webhookCallback func(ctx context.Context, event billing.WebhookEvent) error

	httpClient    *http.Client
	rateLimiter   *internal.RateLimiter
	webhookSecret []byte
	apiKey        string
	stripeClient  *stripe.Client
	ownerResolver func(ctx context.Context, customerID string) (string, error)

	successURL      string
	cancelURL       string
	portalReturnURL string
	dedupTTL        time.Duration

	logger  billing.Logger
	metrics billing.Metrics
}

// NewProvider creates a new Stripe billing provider. It returns
// billing.ErrProviderNotConfigured when the store or the API key is absent;
// callers should treat that case explicitly (e.g. mount
// billing.NotConfiguredHandler instead of the provider's handlers).
func NewProvider(config Config) (*Provider, error) {
	if config.Store == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	apiKey := strings.TrimSpace(config.StripeAPIKey)
	if apiKey == "" {
		return nil, billing.ErrProviderNotConfigured
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	logger := config.Logger
	if logger == nil {
		logger = &billing.NoopLogger{}
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	successURL := config.SuccessURL
	if successURL == "" {
		successURL = "http://localhost:3000/dashboard?success=true"
	}
	cancelURL := config.CancelURL
	if cancelURL == "" {
		cancelURL = "http://localhost:3000/pricing?canceled=true"
	}
	portalReturnURL := config.PortalReturnURL
	if portalReturnURL == "" {
		portalReturnURL = "http://localhost:3000/dashboard/settings"
	}

	dedupTTL := config.EventDedupTTL
	if dedupTTL <= 0 {
		dedupTTL = defaultDedupTTL
	}

	return &Provider{
		store:           config.Store,
		users:           config.Users,
		events:          config.Events,
		authenticate:    config.Authenticate,
		webhookCallback: config.WebhookCallback,
		httpClient:      httpClient,
		rateLimiter:     internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow),
		webhookSecret:   []byte(strings.TrimSpace(config.StripeWebhookSecret)),
		apiKey:          apiKey,
		stripeClient:    stripe.NewClient(apiKey),
		ownerResolver:   config.OwnerResolver,
		successURL:      successURL,
		cancelURL:       cancelURL,
		portalReturnURL: portalReturnURL,
		dedupTTL:        dedupTTL,
		logger:          logger,
		metrics:         metrics,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks.
func (p *Provider) WebhookHandler() http.Handler {
	return p.rateLimiter.Middleware(http.HandlerFunc(p.handleWebhook))
}

// CheckoutHandler returns the authenticated HTTP handler that creates a
// checkout session.
func (p *Provider) CheckoutHandler() http.Handler {
	return p.rateLimiter.Middleware(http.HandlerFunc(p.handleCheckout))
}

// PortalHandler returns the authenticated HTTP handler that creates a
// billing-portal session.
func (p *Provider) PortalHandler() http.Handler {
	return p.rateLimiter.Middleware(http.HandlerFunc(p.handlePortal))
}
