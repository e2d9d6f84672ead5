package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v83"

	"github.com/devhubhq/billing/pkg/billing"
)

// applySubscriptionSnapshot handles customer.subscription.created and
// customer.subscription.updated events. Both kinds carry a full authoritative
// snapshot of the subscription, so both converge on the same upsert:
//
//  1. Match the row by external subscription id and overwrite its status,
//     price id and period end with the event's values. Last-delivered-wins;
//     no sequence comparison is attempted since snapshots carry current
//     state, not deltas.
//  2. Otherwise match by external customer id, attach the subscription id,
//     and apply the same overwrite.
//  3. Otherwise resolve the owning user through the customer's provider
//     metadata and create the row lazily.
//  4. If no owner can be resolved at all, acknowledge the event with no
//     state change. Failing the delivery would only make the provider
//     redeliver an event that can never resolve.
func (p *Provider) applySubscriptionSnapshot(ctx context.Context, event *stripe.Event, kind billing.EventKind) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("%w: subscription: %v", billing.ErrInvalidWebhookPayload, err)
	}

	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	snapshot := subscriptionSnapshot{
		SubscriptionID:   sub.ID,
		CustomerID:       customerID,
		PriceID:          firstPriceID(&sub),
		Status:           billing.StatusFromProvider(string(sub.Status)),
		CurrentPeriodEnd: extractPeriodEnd(event.Data.Raw),
	}

	row, err := p.store.FindBySubscriptionID(ctx, snapshot.SubscriptionID)
	if err != nil && !errors.Is(err, billing.ErrSubscriptionNotFound) {
		return fmt.Errorf("find by subscription id: %w", err)
	}
	if row == nil && snapshot.CustomerID != "" {
		row, err = p.store.FindByCustomerID(ctx, snapshot.CustomerID)
		if err != nil && !errors.Is(err, billing.ErrSubscriptionNotFound) {
			return fmt.Errorf("find by customer id: %w", err)
		}
	}
	if row == nil {
		userID, rerr := p.resolveOwner(ctx, snapshot.CustomerID)
		if rerr != nil {
			return rerr
		}
		if userID == "" {
			p.logger.Warn("webhook event references unresolvable customer",
				billing.Field{Key: "customer_id", Value: snapshot.CustomerID},
				billing.Field{Key: "subscription_id", Value: snapshot.SubscriptionID})
			p.metrics.RecordWebhookError(providerName, "unresolvable_customer")
			return nil
		}
		row = &billing.Subscription{
			ID:     uuid.NewString(),
			UserID: userID,
		}
	}

	previous := row.Status
	row.SubscriptionID = snapshot.SubscriptionID
	if snapshot.CustomerID != "" {
		row.CustomerID = snapshot.CustomerID
	}
	row.PriceID = snapshot.PriceID
	row.Status = snapshot.Status
	row.CurrentPeriodEnd = snapshot.CurrentPeriodEnd
	row.UpdatedAt = time.Unix(event.Created, 0).UTC()

	if err := p.store.Upsert(ctx, row); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	if previous != snapshot.Status {
		p.metrics.RecordStatusChange(providerName, previous, snapshot.Status)
	}
	return p.notify(ctx, event, kind, row, previous)
}

// cancelSubscription handles customer.subscription.deleted. Cancellation is a
// status transition on the matching row(s), never a row deletion, and
// re-applying it to an already-canceled row is a no-op in effect.
func (p *Provider) cancelSubscription(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("%w: subscription: %v", billing.ErrInvalidWebhookPayload, err)
	}

	n, err := p.store.UpdateStatusBySubscriptionID(ctx, sub.ID, billing.StatusCanceled)
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	if n == 0 {
		p.logger.Debug("deletion event matched no local subscription",
			billing.Field{Key: "subscription_id", Value: sub.ID})
		return nil
	}
	p.metrics.RecordStatusChange(providerName, "", billing.StatusCanceled)
	return p.notifyBySubscriptionID(ctx, event, billing.EventKindSubscriptionDeleted, sub.ID, billing.StatusCanceled)
}

// markPaymentOutcome handles invoice.payment_succeeded / _failed. Invoice
// events assert only the payment outcome, so the status is the single field
// touched; period end and price id stay whatever the last snapshot wrote.
func (p *Provider) markPaymentOutcome(
	ctx context.Context, event *stripe.Event, kind billing.EventKind, status billing.Status,
) error {
	subscriptionID := invoiceSubscriptionID(event.Data.Raw)
	if subscriptionID == "" {
		// Not a subscription invoice (one-off charges) - ignore.
		return nil
	}

	n, err := p.store.UpdateStatusBySubscriptionID(ctx, subscriptionID, status)
	if err != nil {
		return fmt.Errorf("mark payment outcome: %w", err)
	}
	if n == 0 {
		p.logger.Debug("invoice event matched no local subscription",
			billing.Field{Key: "subscription_id", Value: subscriptionID})
		return nil
	}
	p.metrics.RecordStatusChange(providerName, "", status)
	return p.notifyBySubscriptionID(ctx, event, kind, subscriptionID, status)
}

// resolveOwner maps an external customer id to a local user id: the fast-path
// hook first, then a customer retrieve reading the metadata tag set at
// checkout time. Returns an empty id with a nil error when the customer
// carries no resolvable owner - that is a documented anomaly, not a failure,
// and must not cause redelivery. A provider API failure is returned as an
// error so the delivery is retried.
func (p *Provider) resolveOwner(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", nil
	}

	if p.ownerResolver != nil {
		userID, err := p.ownerResolver(ctx, customerID)
		if err == nil && userID != "" {
			return p.checkOwner(ctx, userID)
		}
	}

	startTime := time.Now()
	cust, err := p.stripeClient.V1Customers.Retrieve(ctx, customerID, nil)
	p.metrics.RecordAPICallDuration(providerName, "/customers/retrieve", time.Since(startTime))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/customers/retrieve", "error")
		return "", classifyError(err)
	}
	p.metrics.RecordAPICall(providerName, "/customers/retrieve", "success")

	userID := ""
	if cust.Metadata != nil {
		userID = cust.Metadata[metadataUserIDKey]
	}
	if userID == "" {
		return "", nil
	}
	return p.checkOwner(ctx, userID)
}

// checkOwner verifies the resolved user exists locally when a UserStore is
// configured. A missing user means stale provider metadata: treated as
// unresolvable, not as an error.
func (p *Provider) checkOwner(ctx context.Context, userID string) (string, error) {
	if p.users == nil {
		return userID, nil
	}
	if _, err := p.users.Find(ctx, userID); err != nil {
		if errors.Is(err, billing.ErrUserNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("verify owner: %w", err)
	}
	return userID, nil
}

func (p *Provider) notify(
	ctx context.Context, event *stripe.Event, kind billing.EventKind, row *billing.Subscription, previous billing.Status,
) error {
	if p.webhookCallback == nil {
		return nil
	}
	return p.webhookCallback(ctx, billing.WebhookEvent{
		UserID:         row.UserID,
		SubscriptionID: row.SubscriptionID,
		CustomerID:     row.CustomerID,
		Provider:       providerName,
		EventType:      string(event.Type),
		Kind:           kind,
		PreviousStatus: previous,
		NewStatus:      row.Status,
		EventTimestamp: time.Unix(event.Created, 0).UTC(),
	})
}

// notifyBySubscriptionID looks the row back up for callback delivery; the
// lookup is skipped entirely when no callback is configured. The update-many
// paths don't read the row before writing, so PreviousStatus is left empty.
func (p *Provider) notifyBySubscriptionID(
	ctx context.Context, event *stripe.Event, kind billing.EventKind, subscriptionID string, status billing.Status,
) error {
	if p.webhookCallback == nil {
		return nil
	}
	row, err := p.store.FindBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, billing.ErrSubscriptionNotFound) {
			return nil
		}
		return err
	}
	return p.webhookCallback(ctx, billing.WebhookEvent{
		UserID:         row.UserID,
		SubscriptionID: row.SubscriptionID,
		CustomerID:     row.CustomerID,
		Provider:       providerName,
		EventType:      string(event.Type),
		Kind:           kind,
		NewStatus:      status,
		EventTimestamp: time.Unix(event.Created, 0).UTC(),
	})
}

// subscriptionSnapshot is the slice of an event payload the reconciler acts
// on.
type subscriptionSnapshot struct {
	SubscriptionID   string
	CustomerID       string
	PriceID          string
	Status           billing.Status
	CurrentPeriodEnd time.Time
}

func firstPriceID(sub *stripe.Subscription) string {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	item := sub.Items.Data[0]
	if item == nil || item.Price == nil {
		return ""
	}
	return item.Price.ID
}

// extractPeriodEnd reads current_period_end from the raw payload. Older API
// versions carry it at the top level; newer ones move it onto the
// subscription items. Decoded from the raw JSON because the SDK struct does
// not expose both shapes.
func extractPeriodEnd(raw json.RawMessage) time.Time {
	var fields struct {
		CurrentPeriodEnd int64 `json:"current_period_end"`
		Items            struct {
			Data []struct {
				CurrentPeriodEnd int64 `json:"current_period_end"`
			} `json:"data"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return time.Time{}
	}
	if fields.CurrentPeriodEnd > 0 {
		return time.Unix(fields.CurrentPeriodEnd, 0).UTC()
	}
	for _, item := range fields.Items.Data {
		if item.CurrentPeriodEnd > 0 {
			return time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
	}
	return time.Time{}
}

// invoiceSubscriptionID extracts the parent subscription reference from an
// invoice payload. The field is a bare id string or an expanded object
// depending on API version; newer versions nest it under parent details.
func invoiceSubscriptionID(raw json.RawMessage) string {
	var rawData map[string]interface{}
	if err := json.Unmarshal(raw, &rawData); err != nil {
		return ""
	}
	if id := subscriptionRef(rawData["subscription"]); id != "" {
		return id
	}
	if parent, ok := rawData["parent"].(map[string]interface{}); ok {
		if details, ok := parent["subscription_details"].(map[string]interface{}); ok {
			return subscriptionRef(details["subscription"])
		}
	}
	return ""
}

func subscriptionRef(v interface{}) string {
	switch ref := v.(type) {
	case string:
		return ref
	case map[string]interface{}:
		if id, ok := ref["id"].(string); ok {
			return id
		}
	}
	return ""
}
