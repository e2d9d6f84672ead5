package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/devhubhq/billing/pkg/billing"
	"github.com/devhubhq/billing/storage/memory"
)

// signedWebhookRequest builds a POST with a valid Stripe-Signature header
// computed over the exact payload bytes.
func signedWebhookRequest(t *testing.T, payload []byte, secret string) *http.Request {
	t.Helper()

	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	sig := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, sig))
	return req
}

// webhookPayload builds an event envelope the SDK's verifier accepts.
func webhookPayload(t *testing.T, eventID, eventType string, object interface{}) []byte {
	t.Helper()

	raw, err := json.Marshal(object)
	if err != nil {
		t.Fatalf("Failed to marshal event object: %v", err)
	}
	payload, err := json.Marshal(map[string]interface{}{
		"id":          eventID,
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"created":     time.Now().Unix(),
		"data":        map[string]interface{}{"object": json.RawMessage(raw)},
	})
	if err != nil {
		t.Fatalf("Failed to marshal event payload: %v", err)
	}
	return payload
}

func subscriptionObject(subscriptionID, customerID, priceID, status string, periodEnd int64) map[string]interface{} {
	return map[string]interface{}{
		"id":                 subscriptionID,
		"status":             status,
		"customer":           customerID,
		"current_period_end": periodEnd,
		"items": map[string]interface{}{
			"data": []map[string]interface{}{
				{"price": map[string]interface{}{"id": priceID}},
			},
		},
	}
}

func TestHandleWebhook_MissingSecret(t *testing.T) {
	store := memory.New()
	provider := newTestProvider(t, store, func(c *Config) {
		c.StripeWebhookSecret = ""
	})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	provider.handleWebhook(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", rec.Code)
	}
}

func TestHandleWebhook_MissingSignature(t *testing.T) {
	provider := newTestProvider(t, memory.New())

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	provider.handleWebhook(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	provider := newTestProvider(t, memory.New())

	payload := webhookPayload(t, "evt_bad_sig", "customer.subscription.updated",
		subscriptionObject(testSubscriptionID, testCustomerID, testPriceIDBasic, "active", 0))
	req := signedWebhookRequest(t, payload, "whsec_wrong_secret")
	rec := httptest.NewRecorder()
	provider.handleWebhook(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad signature, got %d", rec.Code)
	}
}

func TestHandleWebhook_MethodNotAllowed(t *testing.T) {
	provider := newTestProvider(t, memory.New())

	req := httptest.NewRequest(http.MethodGet, "/api/webhooks/stripe", nil)
	rec := httptest.NewRecorder()
	provider.handleWebhook(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rec.Code)
	}
}

func TestHandleWebhook_ValidEvent(t *testing.T) {
	store := memory.New()
	seedUser(t, store, testUserID)
	provider := newTestProvider(t, store, func(c *Config) {
		c.OwnerResolver = resolveToUser(testUserID)
	})

	periodEnd := time.Now().Add(30 * 24 * time.Hour).Unix()
	payload := webhookPayload(t, "evt_valid_1", "customer.subscription.created",
		subscriptionObject(testSubscriptionID, testCustomerID, testPriceIDBasic, "active", periodEnd))

	req := signedWebhookRequest(t, payload, testStripeWebhookSecret)
	rec := httptest.NewRecorder()
	provider.handleWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var ack webhookAck
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("Failed to parse ack: %v", err)
	}
	if !ack.Received {
		t.Error("Expected received=true in ack body")
	}

	sub, err := store.FindBySubscriptionID(context.Background(), testSubscriptionID)
	if err != nil {
		t.Fatalf("Expected subscription row to exist: %v", err)
	}
	if sub.UserID != testUserID {
		t.Errorf("Expected user %q, got %q", testUserID, sub.UserID)
	}
	if sub.Status != billing.StatusActive {
		t.Errorf("Expected status ACTIVE, got %q", sub.Status)
	}
	if sub.PriceID != testPriceIDBasic {
		t.Errorf("Expected price %q, got %q", testPriceIDBasic, sub.PriceID)
	}
	if sub.CurrentPeriodEnd.Unix() != periodEnd {
		t.Errorf("Expected period end %d, got %d", periodEnd, sub.CurrentPeriodEnd.Unix())
	}
}

func TestHandleWebhook_UnknownEventTypeAcknowledged(t *testing.T) {
	store := memory.New()
	provider := newTestProvider(t, store)

	payload := webhookPayload(t, "evt_unknown", "customer.created",
		map[string]interface{}{"id": testCustomerID})

	req := signedWebhookRequest(t, payload, testStripeWebhookSecret)
	rec := httptest.NewRecorder()
	provider.handleWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected unknown event type to be acknowledged with 200, got %d", rec.Code)
	}
}

func TestHandleWebhook_DuplicateDelivery(t *testing.T) {
	store := memory.New()
	seedUser(t, store, testUserID)
	provider := newTestProvider(t, store, func(c *Config) {
		c.OwnerResolver = resolveToUser(testUserID)
	})

	payload := webhookPayload(t, "evt_dup_1", "customer.subscription.created",
		subscriptionObject(testSubscriptionID, testCustomerID, testPriceIDBasic, "active", 0))

	for i := 0; i < 2; i++ {
		req := signedWebhookRequest(t, payload, testStripeWebhookSecret)
		rec := httptest.NewRecorder()
		provider.handleWebhook(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("Delivery %d: expected status 200, got %d", i+1, rec.Code)
		}
	}

	// The duplicate is acknowledged without touching storage again. Flip the
	// row first to observe whether the duplicate overwrites it.
	if _, err := store.UpdateStatusBySubscriptionID(context.Background(), testSubscriptionID, billing.StatusPastDue); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}
	req := signedWebhookRequest(t, payload, testStripeWebhookSecret)
	rec := httptest.NewRecorder()
	provider.handleWebhook(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for duplicate, got %d", rec.Code)
	}

	sub, err := store.FindBySubscriptionID(context.Background(), testSubscriptionID)
	if err != nil {
		t.Fatalf("Expected subscription row to exist: %v", err)
	}
	if sub.Status != billing.StatusPastDue {
		t.Errorf("Duplicate delivery reprocessed the event: status %q", sub.Status)
	}
}

// upsertFailingStore fails a fixed number of Upsert calls before recovering,
// standing in for a store with a transient outage.
type upsertFailingStore struct {
	*memory.Store
	failures int
}

func (s *upsertFailingStore) Upsert(ctx context.Context, sub *billing.Subscription) error {
	if s.failures > 0 {
		s.failures--
		return fmt.Errorf("store unavailable")
	}
	return s.Store.Upsert(ctx, sub)
}

func TestHandleWebhook_RetryAfterProcessingFailure(t *testing.T) {
	mem := memory.New()
	seedUser(t, mem, testUserID)
	store := &upsertFailingStore{Store: mem, failures: 1}
	provider := newTestProvider(t, mem, func(c *Config) {
		c.Store = store
		c.OwnerResolver = resolveToUser(testUserID)
	})

	payload := webhookPayload(t, "evt_retry_1", "customer.subscription.created",
		subscriptionObject(testSubscriptionID, testCustomerID, testPriceIDBasic, "active", 0))

	req := signedWebhookRequest(t, payload, testStripeWebhookSecret)
	rec := httptest.NewRecorder()
	provider.handleWebhook(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500 while the store is down, got %d", rec.Code)
	}

	// The provider redelivers with the same event id. The failed delivery
	// must not occupy the dedup journal, or the retry is swallowed and the
	// row is lost for good.
	req = signedWebhookRequest(t, payload, testStripeWebhookSecret)
	rec = httptest.NewRecorder()
	provider.handleWebhook(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200 on redelivery, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	sub, err := mem.FindBySubscriptionID(context.Background(), testSubscriptionID)
	if err != nil {
		t.Fatalf("Expected redelivery to create the subscription row: %v", err)
	}
	if sub.Status != billing.StatusActive {
		t.Errorf("Expected status ACTIVE, got %q", sub.Status)
	}
}

func TestHandleWebhook_ProcessingFailure(t *testing.T) {
	store := memory.New()
	provider := newTestProvider(t, store)

	// Malformed subscription object: id is a number, so the snapshot
	// unmarshal fails and the delivery must be retried.
	payload := webhookPayload(t, "evt_broken", "customer.subscription.updated",
		map[string]interface{}{"id": 12345, "status": "active"})

	req := signedWebhookRequest(t, payload, testStripeWebhookSecret)
	rec := httptest.NewRecorder()
	provider.handleWebhook(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500 for processing failure, got %d", rec.Code)
	}
}

func TestEventKind_Mapping(t *testing.T) {
	cases := map[stripe.EventType]billing.EventKind{
		"customer.subscription.created": billing.EventKindSubscriptionCreated,
		"customer.subscription.updated": billing.EventKindSubscriptionUpdated,
		"customer.subscription.deleted": billing.EventKindSubscriptionDeleted,
		"invoice.payment_succeeded":     billing.EventKindInvoicePaymentSucceeded,
		"invoice.payment_failed":        billing.EventKindInvoicePaymentFailed,
		"checkout.session.completed":    billing.EventKindUnknown,
		"":                              billing.EventKindUnknown,
	}
	for eventType, want := range cases {
		if got := eventKind(eventType); got != want {
			t.Errorf("eventKind(%q) = %v, want %v", eventType, got, want)
		}
	}
}
