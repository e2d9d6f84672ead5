package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/devhubhq/billing/pkg/billing"
)

// SyncUser pulls the user's subscription state from the Stripe API and
// reapplies it to the local row. Webhooks are the primary reconciliation
// path; this is the escape hatch for restore flows and nightly jobs after
// missed deliveries.
//
// Period end is deliberately left untouched: the list API does not expose it
// uniformly across API versions, and the next webhook snapshot carries the
// authoritative value.
func (p *Provider) SyncUser(ctx context.Context, userID string) (billing.Status, error) {
	startTime := time.Now()

	row, err := p.store.FindByUserID(ctx, userID)
	if err != nil {
		p.metrics.RecordUserSync(providerName, "error")
		if errors.Is(err, billing.ErrSubscriptionNotFound) {
			return "", billing.ErrSubscriptionNotFound
		}
		return "", fmt.Errorf("find subscription: %w", err)
	}
	if row.CustomerID == "" {
		p.metrics.RecordUserSync(providerName, "error")
		return "", fmt.Errorf("%w: %s", billing.ErrCustomerNotFound, userID)
	}

	params := &stripe.SubscriptionListParams{}
	params.Customer = stripe.String(row.CustomerID)
	params.Status = stripe.String("all")

	var latest *stripe.Subscription
	for sub, err := range p.stripeClient.V1Subscriptions.List(ctx, params) {
		if err != nil {
			p.metrics.RecordAPICall(providerName, "/subscriptions/list", "error")
			p.metrics.RecordUserSync(providerName, "error")
			p.metrics.RecordUserSyncDuration(providerName, time.Since(startTime))
			return "", classifyError(err)
		}
		if latest == nil || sub.Created > latest.Created {
			latest = sub
		}
	}
	p.metrics.RecordAPICall(providerName, "/subscriptions/list", "success")

	if latest == nil {
		// Provider knows no subscription for this customer; the local row
		// keeps its last observed status.
		p.metrics.RecordUserSync(providerName, "success")
		p.metrics.RecordUserSyncDuration(providerName, time.Since(startTime))
		return row.Status, nil
	}

	previous := row.Status
	row.SubscriptionID = latest.ID
	row.PriceID = firstPriceID(latest)
	row.Status = billing.StatusFromProvider(string(latest.Status))
	row.UpdatedAt = time.Now().UTC()

	if err := p.store.Upsert(ctx, row); err != nil {
		p.metrics.RecordUserSync(providerName, "error")
		p.metrics.RecordUserSyncDuration(providerName, time.Since(startTime))
		return "", fmt.Errorf("upsert subscription: %w", err)
	}

	if previous != row.Status {
		p.metrics.RecordStatusChange(providerName, previous, row.Status)
	}
	p.metrics.RecordUserSync(providerName, "success")
	p.metrics.RecordUserSyncDuration(providerName, time.Since(startTime))
	return row.Status, nil
}
