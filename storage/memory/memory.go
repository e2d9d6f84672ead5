// Package memory provides in-memory implementations of the billing.Store,
// billing.UserStore and billing.EventLog interfaces. Primarily intended for
// testing and development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devhubhq/billing/pkg/billing"
)

// Store implements billing.Store, billing.UserStore and billing.EventLog
// using in-memory maps.
type Store struct {
	mu            sync.RWMutex
	subscriptions map[string]*billing.Subscription // keyed by local id
	users         map[string]*billing.User
	processed     map[string]time.Time // event id -> expiry
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		subscriptions: make(map[string]*billing.Subscription),
		users:         make(map[string]*billing.User),
		processed:     make(map[string]time.Time),
	}
}

// FindBySubscriptionID implements billing.Store.
func (s *Store) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*billing.Subscription, error) {
	if subscriptionID == "" {
		return nil, billing.ErrSubscriptionNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscriptions {
		if sub.SubscriptionID == subscriptionID {
			return copyOf(sub), nil
		}
	}
	return nil, billing.ErrSubscriptionNotFound
}

// FindByCustomerID implements billing.Store.
func (s *Store) FindByCustomerID(ctx context.Context, customerID string) (*billing.Subscription, error) {
	if customerID == "" {
		return nil, billing.ErrSubscriptionNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscriptions {
		if sub.CustomerID == customerID {
			return copyOf(sub), nil
		}
	}
	return nil, billing.ErrSubscriptionNotFound
}

// FindByUserID implements billing.Store.
func (s *Store) FindByUserID(ctx context.Context, userID string) (*billing.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *billing.Subscription
	for _, sub := range s.subscriptions {
		if sub.UserID != userID {
			continue
		}
		if newest == nil || sub.UpdatedAt.After(newest.UpdatedAt) {
			newest = sub
		}
	}
	if newest == nil {
		return nil, billing.ErrSubscriptionNotFound
	}
	return copyOf(newest), nil
}

// FindActiveByUserID implements billing.Store.
func (s *Store) FindActiveByUserID(ctx context.Context, userID string) (*billing.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscriptions {
		if sub.UserID == userID && sub.Status == billing.StatusActive {
			return copyOf(sub), nil
		}
	}
	return nil, billing.ErrSubscriptionNotFound
}

// Upsert implements billing.Store.
func (s *Store) Upsert(ctx context.Context, sub *billing.Subscription) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("invalid subscription")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscriptions[sub.ID] = copyOf(sub)
	return nil
}

// UpdateStatusBySubscriptionID implements billing.Store.
func (s *Store) UpdateStatusBySubscriptionID(
	ctx context.Context, subscriptionID string, status billing.Status,
) (int64, error) {
	if subscriptionID == "" {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, sub := range s.subscriptions {
		if sub.SubscriptionID == subscriptionID {
			sub.Status = status
			sub.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

// Find implements billing.UserStore.
func (s *Store) Find(ctx context.Context, id string) (*billing.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, billing.ErrUserNotFound
	}
	userCopy := *u
	return &userCopy, nil
}

// Create implements billing.UserStore.
func (s *Store) Create(ctx context.Context, u *billing.User) error {
	if u == nil || u.ID == "" {
		return fmt.Errorf("invalid user")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userCopy := *u
	s.users[u.ID] = &userCopy
	return nil
}

// MarkProcessed implements billing.EventLog.
func (s *Store) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, expiry := range s.processed {
		if now.After(expiry) {
			delete(s.processed, id)
		}
	}

	if expiry, ok := s.processed[eventID]; ok && now.Before(expiry) {
		return false, nil
	}
	s.processed[eventID] = now.Add(ttl)
	return true, nil
}

// Forget implements billing.EventLog.
func (s *Store) Forget(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.processed, eventID)
	return nil
}

// copyOf returns a copy to prevent external mutations of stored rows.
func copyOf(sub *billing.Subscription) *billing.Subscription {
	subCopy := *sub
	return &subCopy
}
