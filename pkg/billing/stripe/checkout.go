package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/devhubhq/billing/pkg/billing"
)

// CheckoutURL creates a Stripe Checkout Session for the user and target
// price id and returns the hosted redirect URL.
//
// A user with an existing ACTIVE subscription is rejected with
// billing.ErrActiveSubscription before any provider call is made. The
// provider customer is created on first use and tagged with the local user
// id as metadata - that tag is what lets the webhook customer resolver link
// events back to a user later.
func (p *Provider) CheckoutURL(ctx context.Context, user *billing.User, priceID string) (string, error) {
	if user == nil || user.ID == "" {
		return "", billing.ErrUnauthenticated
	}
	if priceID == "" {
		return "", fmt.Errorf("%w: price id is required", billing.ErrInvalidRequest)
	}

	existing, err := p.store.FindActiveByUserID(ctx, user.ID)
	if err != nil && !errors.Is(err, billing.ErrSubscriptionNotFound) {
		return "", fmt.Errorf("check active subscription: %w", err)
	}
	if existing != nil {
		return "", billing.ErrActiveSubscription
	}

	customerID, err := p.ensureCustomer(ctx, user)
	if err != nil {
		return "", err
	}

	startTime := time.Now()
	params := &stripe.CheckoutSessionCreateParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.successURL),
		CancelURL:  stripe.String(p.cancelURL),
		Metadata: map[string]string{
			metadataUserIDKey: user.ID,
		},
	}

	session, err := p.stripeClient.V1CheckoutSessions.Create(ctx, params)
	p.metrics.RecordAPICallDuration(providerName, "/checkout/sessions", time.Since(startTime))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/checkout/sessions", "error")
		return "", classifyError(err)
	}
	p.metrics.RecordAPICall(providerName, "/checkout/sessions", "success")

	return session.URL, nil
}

// PortalURL creates a Stripe Billing Portal session for a user with an
// ACTIVE subscription and returns the hosted redirect URL. Users without an
// active subscription (or without a linked provider customer) get
// billing.ErrSubscriptionNotFound.
func (p *Provider) PortalURL(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", billing.ErrUnauthenticated
	}

	sub, err := p.store.FindActiveByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, billing.ErrSubscriptionNotFound) {
			return "", billing.ErrSubscriptionNotFound
		}
		return "", fmt.Errorf("find active subscription: %w", err)
	}
	if sub.CustomerID == "" {
		return "", billing.ErrSubscriptionNotFound
	}

	startTime := time.Now()
	params := &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(sub.CustomerID),
		ReturnURL: stripe.String(p.portalReturnURL),
	}

	session, err := p.stripeClient.V1BillingPortalSessions.Create(ctx, params)
	p.metrics.RecordAPICallDuration(providerName, "/billing_portal/sessions", time.Since(startTime))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/billing_portal/sessions", "error")
		return "", classifyError(err)
	}
	p.metrics.RecordAPICall(providerName, "/billing_portal/sessions", "success")

	return session.URL, nil
}

// ensureCustomer returns the provider customer id for the user, reusing the
// one already linked to the user's subscription row and creating a tagged
// customer otherwise. The new customer id is not persisted here: the row is
// created lazily by the webhook reconciler once the first event arrives.
func (p *Provider) ensureCustomer(ctx context.Context, user *billing.User) (string, error) {
	row, err := p.store.FindByUserID(ctx, user.ID)
	if err != nil && !errors.Is(err, billing.ErrSubscriptionNotFound) {
		return "", fmt.Errorf("find subscription: %w", err)
	}
	if row != nil && row.CustomerID != "" {
		return row.CustomerID, nil
	}

	startTime := time.Now()
	params := &stripe.CustomerCreateParams{
		Email: stripe.String(user.Email),
		Name:  stripe.String(user.Name),
		Metadata: map[string]string{
			metadataUserIDKey: user.ID,
		},
	}

	cust, err := p.stripeClient.V1Customers.Create(ctx, params)
	p.metrics.RecordAPICallDuration(providerName, "/customers/create", time.Since(startTime))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/customers/create", "error")
		return "", classifyError(err)
	}
	p.metrics.RecordAPICall(providerName, "/customers/create", "success")

	return cust.ID, nil
}

// classifyError maps a provider API failure onto the error taxonomy exposed
// to callers: credential rejection, malformed request, or unknown.
func classifyError(err error) error {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		switch {
		case sErr.HTTPStatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", billing.ErrProviderAuthFailed, err)
		case sErr.Type == stripe.ErrorTypeInvalidRequest:
			return fmt.Errorf("%w: %v", billing.ErrInvalidRequest, err)
		}
	}
	return fmt.Errorf("%w: %v", billing.ErrProviderAPIError, err)
}
