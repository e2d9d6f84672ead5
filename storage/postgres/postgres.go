// Package postgres provides a PostgreSQL implementation of the billing.Store
// and billing.UserStore interfaces, backed by a pgx connection pool.
//
// Subscription rows are never deleted: cancellation and payment outcomes are
// single-statement status updates, so concurrent webhook deliveries rely on
// row-level atomicity rather than explicit locking.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devhubhq/billing/pkg/billing"
)

// Schema is the DDL the store expects. Shipped as a constant rather than a
// migration tool; apply it with your migration pipeline of choice.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id    TEXT PRIMARY KEY,
	email TEXT NOT NULL DEFAULT '',
	name  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL REFERENCES users(id),
	subscription_id    TEXT NOT NULL DEFAULT '',
	customer_id        TEXT NOT NULL DEFAULT '',
	price_id           TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL,
	current_period_end TIMESTAMPTZ,
	updated_at         TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS subscriptions_subscription_id_key
	ON subscriptions (subscription_id) WHERE subscription_id <> '';
CREATE INDEX IF NOT EXISTS subscriptions_customer_id_idx
	ON subscriptions (customer_id);
CREATE INDEX IF NOT EXISTS subscriptions_user_id_idx
	ON subscriptions (user_id);
`

// Config holds PostgreSQL store configuration.
type Config struct {
	// ConnectionString is the PostgreSQL connection string.
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Store implements billing.Store and billing.UserStore using PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	config Config
}

// New creates a new PostgreSQL store.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool, config: config}, nil
}

// EnsureSchema creates the billing tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const subscriptionColumns = `id, user_id, subscription_id, customer_id, price_id, status, current_period_end, updated_at`

// FindBySubscriptionID implements billing.Store.
func (s *Store) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*billing.Subscription, error) {
	if subscriptionID == "" {
		return nil, billing.ErrSubscriptionNotFound
	}
	return s.findOne(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE subscription_id = $1`,
		subscriptionID)
}

// FindByCustomerID implements billing.Store.
func (s *Store) FindByCustomerID(ctx context.Context, customerID string) (*billing.Subscription, error) {
	if customerID == "" {
		return nil, billing.ErrSubscriptionNotFound
	}
	return s.findOne(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
			WHERE customer_id = $1 ORDER BY updated_at DESC LIMIT 1`,
		customerID)
}

// FindByUserID implements billing.Store.
func (s *Store) FindByUserID(ctx context.Context, userID string) (*billing.Subscription, error) {
	return s.findOne(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
			WHERE user_id = $1 ORDER BY updated_at DESC LIMIT 1`,
		userID)
}

// FindActiveByUserID implements billing.Store.
func (s *Store) FindActiveByUserID(ctx context.Context, userID string) (*billing.Subscription, error) {
	return s.findOne(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
			WHERE user_id = $1 AND status = $2 ORDER BY updated_at DESC LIMIT 1`,
		userID, billing.StatusActive)
}

func (s *Store) findOne(ctx context.Context, query string, args ...interface{}) (*billing.Subscription, error) {
	var sub billing.Subscription
	var periodEnd *time.Time

	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&sub.ID,
		&sub.UserID,
		&sub.SubscriptionID,
		&sub.CustomerID,
		&sub.PriceID,
		&sub.Status,
		&periodEnd,
		&sub.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, billing.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	if periodEnd != nil {
		sub.CurrentPeriodEnd = *periodEnd
	}
	return &sub, nil
}

// Upsert implements billing.Store.
func (s *Store) Upsert(ctx context.Context, sub *billing.Subscription) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("invalid subscription")
	}

	var periodEnd *time.Time
	if !sub.CurrentPeriodEnd.IsZero() {
		periodEnd = &sub.CurrentPeriodEnd
	}
	updatedAt := sub.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO subscriptions (id, user_id, subscription_id, customer_id, price_id, status, current_period_end, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				subscription_id = EXCLUDED.subscription_id,
				customer_id = EXCLUDED.customer_id,
				price_id = EXCLUDED.price_id,
				status = EXCLUDED.status,
				current_period_end = EXCLUDED.current_period_end,
				updated_at = EXCLUDED.updated_at`,
		sub.ID, sub.UserID, sub.SubscriptionID, sub.CustomerID, sub.PriceID, sub.Status, periodEnd, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// UpdateStatusBySubscriptionID implements billing.Store.
func (s *Store) UpdateStatusBySubscriptionID(
	ctx context.Context, subscriptionID string, status billing.Status,
) (int64, error) {
	if subscriptionID == "" {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE subscriptions SET status = $2, updated_at = $3 WHERE subscription_id = $1`,
		subscriptionID, status, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update subscription status: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Find implements billing.UserStore.
func (s *Store) Find(ctx context.Context, id string) (*billing.User, error) {
	var u billing.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, name FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.Name)
	if err == pgx.ErrNoRows {
		return nil, billing.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// Create implements billing.UserStore.
func (s *Store) Create(ctx context.Context, u *billing.User) error {
	if u == nil || u.ID == "" {
		return fmt.Errorf("invalid user")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, name) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name`,
		u.ID, u.Email, u.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}
