package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devhubhq/billing/pkg/billing"
)

func TestStore_UpsertAndFind(t *testing.T) {
	store := New()
	ctx := context.Background()

	sub := &billing.Subscription{
		ID:             "local-1",
		UserID:         "user1",
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
		PriceID:        "price_1",
		Status:         billing.StatusActive,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := store.Upsert(ctx, sub); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	bySub, err := store.FindBySubscriptionID(ctx, "sub_1")
	if err != nil {
		t.Fatalf("FindBySubscriptionID failed: %v", err)
	}
	if bySub.UserID != "user1" {
		t.Errorf("Expected user1, got %q", bySub.UserID)
	}

	byCus, err := store.FindByCustomerID(ctx, "cus_1")
	if err != nil {
		t.Fatalf("FindByCustomerID failed: %v", err)
	}
	if byCus.ID != "local-1" {
		t.Errorf("Expected local-1, got %q", byCus.ID)
	}

	byUser, err := store.FindByUserID(ctx, "user1")
	if err != nil {
		t.Fatalf("FindByUserID failed: %v", err)
	}
	if byUser.SubscriptionID != "sub_1" {
		t.Errorf("Expected sub_1, got %q", byUser.SubscriptionID)
	}
}

func TestStore_FindNotFound(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.FindBySubscriptionID(ctx, "sub_missing"); !errors.Is(err, billing.ErrSubscriptionNotFound) {
		t.Errorf("Expected ErrSubscriptionNotFound, got %v", err)
	}
	if _, err := store.FindBySubscriptionID(ctx, ""); !errors.Is(err, billing.ErrSubscriptionNotFound) {
		t.Errorf("Expected ErrSubscriptionNotFound for empty id, got %v", err)
	}
	if _, err := store.FindByCustomerID(ctx, "cus_missing"); !errors.Is(err, billing.ErrSubscriptionNotFound) {
		t.Errorf("Expected ErrSubscriptionNotFound, got %v", err)
	}
	if _, err := store.FindByUserID(ctx, "nobody"); !errors.Is(err, billing.ErrSubscriptionNotFound) {
		t.Errorf("Expected ErrSubscriptionNotFound, got %v", err)
	}
}

func TestStore_FindActiveByUserID(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.Upsert(ctx, &billing.Subscription{
		ID:     "local-1",
		UserID: "user1",
		Status: billing.StatusCanceled,
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Canceled rows never count as active.
	if _, err := store.FindActiveByUserID(ctx, "user1"); !errors.Is(err, billing.ErrSubscriptionNotFound) {
		t.Errorf("Expected ErrSubscriptionNotFound for canceled-only user, got %v", err)
	}

	if err := store.Upsert(ctx, &billing.Subscription{
		ID:     "local-2",
		UserID: "user1",
		Status: billing.StatusActive,
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	active, err := store.FindActiveByUserID(ctx, "user1")
	if err != nil {
		t.Fatalf("FindActiveByUserID failed: %v", err)
	}
	if active.ID != "local-2" {
		t.Errorf("Expected local-2, got %q", active.ID)
	}
}

func TestStore_UpdateStatusBySubscriptionID(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.Upsert(ctx, &billing.Subscription{
		ID:             "local-1",
		UserID:         "user1",
		SubscriptionID: "sub_1",
		Status:         billing.StatusActive,
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	n, err := store.UpdateStatusBySubscriptionID(ctx, "sub_1", billing.StatusCanceled)
	if err != nil {
		t.Fatalf("UpdateStatusBySubscriptionID failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 row updated, got %d", n)
	}

	sub, err := store.FindBySubscriptionID(ctx, "sub_1")
	if err != nil {
		t.Fatalf("FindBySubscriptionID failed: %v", err)
	}
	if sub.Status != billing.StatusCanceled {
		t.Errorf("Expected CANCELED, got %q", sub.Status)
	}

	n, err = store.UpdateStatusBySubscriptionID(ctx, "sub_missing", billing.StatusCanceled)
	if err != nil {
		t.Fatalf("UpdateStatusBySubscriptionID failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 rows for unknown subscription, got %d", n)
	}
}

func TestStore_DefensiveCopies(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.Upsert(ctx, &billing.Subscription{
		ID:             "local-1",
		UserID:         "user1",
		SubscriptionID: "sub_1",
		Status:         billing.StatusActive,
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.FindBySubscriptionID(ctx, "sub_1")
	if err != nil {
		t.Fatalf("FindBySubscriptionID failed: %v", err)
	}
	got.Status = billing.StatusPastDue

	again, err := store.FindBySubscriptionID(ctx, "sub_1")
	if err != nil {
		t.Fatalf("FindBySubscriptionID failed: %v", err)
	}
	if again.Status != billing.StatusActive {
		t.Error("Mutating a returned row must not affect stored state")
	}
}

func TestStore_Users(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.Find(ctx, "user1"); !errors.Is(err, billing.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}

	if err := store.Create(ctx, &billing.User{ID: "user1", Email: "u@example.com"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	u, err := store.Find(ctx, "user1")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if u.Email != "u@example.com" {
		t.Errorf("Expected stored email, got %q", u.Email)
	}
}

func TestStore_MarkProcessed(t *testing.T) {
	store := New()
	ctx := context.Background()

	fresh, err := store.MarkProcessed(ctx, "evt_1", time.Minute)
	if err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	if !fresh {
		t.Error("First delivery should be fresh")
	}

	fresh, err = store.MarkProcessed(ctx, "evt_1", time.Minute)
	if err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	if fresh {
		t.Error("Second delivery should be a duplicate")
	}

	// Expired entries are forgotten.
	if _, err := store.MarkProcessed(ctx, "evt_2", time.Millisecond); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	fresh, err = store.MarkProcessed(ctx, "evt_2", time.Minute)
	if err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	if !fresh {
		t.Error("Delivery after TTL expiry should be fresh again")
	}
}

func TestStore_Forget(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.MarkProcessed(ctx, "evt_1", time.Minute); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	if err := store.Forget(ctx, "evt_1"); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}

	fresh, err := store.MarkProcessed(ctx, "evt_1", time.Minute)
	if err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	if !fresh {
		t.Error("Forgotten event id should be fresh again")
	}

	// Unknown ids are a no-op.
	if err := store.Forget(ctx, "evt_missing"); err != nil {
		t.Errorf("Forget of unknown id failed: %v", err)
	}
}
