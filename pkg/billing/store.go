package billing

import (
	"context"
	"time"
)

// Store is the persistence collaborator for Subscription rows.
// Implementations must return ErrSubscriptionNotFound when no row matches a
// lookup.
type Store interface {
	// FindBySubscriptionID looks up the row carrying the external
	// subscription id. Lookups by external subscription id are unique.
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*Subscription, error)

	// FindByCustomerID looks up the row linked to the external customer id.
	FindByCustomerID(ctx context.Context, customerID string) (*Subscription, error)

	// FindByUserID returns the user's subscription row regardless of status.
	FindByUserID(ctx context.Context, userID string) (*Subscription, error)

	// FindActiveByUserID returns the user's subscription only when its
	// status is ACTIVE.
	FindActiveByUserID(ctx context.Context, userID string) (*Subscription, error)

	// Upsert inserts or fully overwrites a subscription row, keyed by ID.
	Upsert(ctx context.Context, sub *Subscription) error

	// UpdateStatusBySubscriptionID sets the status on every row matching the
	// external subscription id (normally exactly one) and returns how many
	// rows changed. All other fields are left untouched.
	UpdateStatusBySubscriptionID(ctx context.Context, subscriptionID string, status Status) (int64, error)
}

// UserStore resolves and creates local users. Implementations must return
// ErrUserNotFound when no user matches.
type UserStore interface {
	Find(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, u *User) error
}

// EventLog suppresses duplicate webhook deliveries by provider event id.
// MarkProcessed records the id and returns false when it was already recorded
// inside the TTL window. Forget removes a journaled id so a delivery that
// failed after being marked can be retried by the provider. Reconciliation is
// idempotent without the log; it only saves redundant work and provider API
// calls on redelivery.
type EventLog interface {
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, eventID string) error
}
