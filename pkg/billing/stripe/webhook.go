package stripe

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/devhubhq/billing/pkg/billing"
	"github.com/devhubhq/billing/pkg/billing/internal"
)

// webhookAck is the success body the provider expects back.
type webhookAck struct {
	Received bool `json:"received"`
}

// handleWebhook processes one inbound Stripe webhook delivery. Each delivery
// carries exactly one event; the provider's own retry mechanism is the sole
// recovery path, so the response code is the contract: 2xx acknowledges the
// event, anything else causes redelivery.
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		internal.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if len(p.webhookSecret) == 0 {
		internal.WriteError(w, http.StatusServiceUnavailable, "billing provider not configured")
		return
	}

	select {
	case <-r.Context().Done():
		internal.WriteError(w, http.StatusRequestTimeout, "request timeout")
		return
	default:
	}

	// The signature is computed over the exact bytes received; the body must
	// not be parsed or re-serialized before verification.
	body, err := internal.ReadBodyStrict(w, r, maxWebhookBodyBytes)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			internal.WriteError(w, http.StatusRequestEntityTooLarge, "payload too large")
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			internal.WriteError(w, http.StatusBadRequest, "invalid payload")
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		internal.WriteError(w, http.StatusBadRequest, "missing signature")
		p.metrics.RecordWebhookError(providerName, "missing_signature")
		return
	}

	// ConstructEvent recomputes the HMAC over the raw body and compares it in
	// constant time.
	event, err := stripe.ConstructEvent(body, sig, string(p.webhookSecret))
	if err != nil {
		internal.WriteError(w, http.StatusBadRequest, "invalid signature")
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		return
	}

	eventType := string(event.Type)
	if eventType == "" {
		eventType = "UNKNOWN"
	}

	kind := eventKind(event.Type)
	if kind == billing.EventKindUnknown {
		// Forward compatibility: acknowledge kinds we don't act on so the
		// provider never redelivers them.
		p.metrics.RecordWebhookEvent(providerName, eventType, "ignored")
		_ = internal.WriteJSON(w, http.StatusOK, webhookAck{Received: true})
		return
	}

	if !p.markEventProcessed(r.Context(), event.ID) {
		p.metrics.RecordWebhookEvent(providerName, eventType, "duplicate")
		_ = internal.WriteJSON(w, http.StatusOK, webhookAck{Received: true})
		return
	}

	if err := p.processEvent(r.Context(), &event, kind); err != nil {
		// Fail this delivery so the provider retries it. Other deliveries
		// are independent request/response units and are unaffected. The
		// journal entry must be withdrawn, or the retry would be swallowed
		// as a duplicate.
		p.forgetEvent(r.Context(), event.ID)
		p.logger.Error("webhook processing failed",
			billing.Field{Key: "event_id", Value: event.ID},
			billing.Field{Key: "event_type", Value: eventType},
			billing.Field{Key: "error", Value: err.Error()})
		internal.WriteError(w, http.StatusInternalServerError, "failed to process webhook")
		p.metrics.RecordWebhookEvent(providerName, eventType, "error")
		p.metrics.RecordWebhookError(providerName, "processing_error")
		p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
		return
	}

	_ = internal.WriteJSON(w, http.StatusOK, webhookAck{Received: true})
	p.metrics.RecordWebhookEvent(providerName, eventType, "success")
	p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
}

// markEventProcessed journals the event id when an EventLog is configured.
// Returns false for a duplicate delivery. Journal failures never block the
// event: reconciliation is idempotent, so processing twice beats dropping.
func (p *Provider) markEventProcessed(ctx context.Context, eventID string) bool {
	if p.events == nil || eventID == "" {
		return true
	}
	fresh, err := p.events.MarkProcessed(ctx, eventID, p.dedupTTL)
	if err != nil {
		p.logger.Warn("event dedup journal unavailable",
			billing.Field{Key: "event_id", Value: eventID},
			billing.Field{Key: "error", Value: err.Error()})
		return true
	}
	return fresh
}

// forgetEvent withdraws a journaled event id after its delivery failed, so
// the provider's redelivery is processed instead of suppressed.
func (p *Provider) forgetEvent(ctx context.Context, eventID string) {
	if p.events == nil || eventID == "" {
		return
	}
	if err := p.events.Forget(ctx, eventID); err != nil {
		p.logger.Warn("failed to withdraw journaled event id",
			billing.Field{Key: "event_id", Value: eventID},
			billing.Field{Key: "error", Value: err.Error()})
	}
}

// processEvent dispatches a verified event to exactly one reconciliation
// handler based on its kind.
func (p *Provider) processEvent(ctx context.Context, event *stripe.Event, kind billing.EventKind) error {
	switch kind {
	case billing.EventKindSubscriptionCreated, billing.EventKindSubscriptionUpdated:
		// An "updated" event can arrive before its "created" counterpart,
		// so both converge on the same snapshot upsert.
		return p.applySubscriptionSnapshot(ctx, event, kind)
	case billing.EventKindSubscriptionDeleted:
		return p.cancelSubscription(ctx, event)
	case billing.EventKindInvoicePaymentSucceeded:
		return p.markPaymentOutcome(ctx, event, billing.EventKindInvoicePaymentSucceeded, billing.StatusActive)
	case billing.EventKindInvoicePaymentFailed:
		return p.markPaymentOutcome(ctx, event, billing.EventKindInvoicePaymentFailed, billing.StatusPastDue)
	default:
		return nil
	}
}

// eventKind normalizes the provider's free-form event type string into the
// closed EventKind set.
func eventKind(t stripe.EventType) billing.EventKind {
	switch t {
	case "customer.subscription.created":
		return billing.EventKindSubscriptionCreated
	case "customer.subscription.updated":
		return billing.EventKindSubscriptionUpdated
	case "customer.subscription.deleted":
		return billing.EventKindSubscriptionDeleted
	case "invoice.payment_succeeded":
		return billing.EventKindInvoicePaymentSucceeded
	case "invoice.payment_failed":
		return billing.EventKindInvoicePaymentFailed
	default:
		return billing.EventKindUnknown
	}
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
