// Package http provides HTTP middleware for subscription entitlement checks
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/devhubhq/billing/pkg/billing"
)

// UserIDExtractor extracts the user ID from an HTTP request
// Return empty string if user is not authenticated
type UserIDExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Store is the subscription store (required)
	Store billing.Store

	// GetUserID extracts user ID from request (required)
	GetUserID UserIDExtractor

	// Plans maps price ids to plans. Optional; required when MinPlanWeight
	// is set.
	Plans *billing.Catalog

	// MinPlanWeight gates the route to plans at or above this weight.
	// Zero means any entitled subscription passes.
	MinPlanWeight int

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnPaymentRequired is called when the user has no entitled subscription
	// If nil, returns 402 Payment Required
	OnPaymentRequired func(w http.ResponseWriter, r *http.Request, sub *billing.Subscription)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// RequireSubscription creates an HTTP middleware that rejects requests from
// users without an entitled subscription. ACTIVE and TRIALING statuses pass;
// everything else, including no subscription row at all, is turned away.
func RequireSubscription(config Config) func(http.Handler) http.Handler {
	if config.Store == nil {
		panic("billing/http: Config.Store is required")
	}
	if config.GetUserID == nil {
		panic("billing/http: Config.GetUserID is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := config.GetUserID(r)
			if userID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			sub, err := config.Store.FindByUserID(r.Context(), userID)
			if err != nil && !errors.Is(err, billing.ErrSubscriptionNotFound) {
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
				return
			}

			if !entitled(sub, config.Plans, config.MinPlanWeight) {
				if config.OnPaymentRequired != nil {
					config.OnPaymentRequired(w, r, sub)
				} else {
					http.Error(w, "Payment Required", http.StatusPaymentRequired)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HandlerFunc creates an entitlement middleware (HandlerFunc version)
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := RequireSubscription(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

func entitled(sub *billing.Subscription, plans *billing.Catalog, minWeight int) bool {
	if sub == nil || !sub.Status.Entitled() {
		return false
	}
	if minWeight > 0 && plans != nil {
		return plans.ByPriceID(sub.PriceID).Weight >= minWeight
	}
	return true
}

// ContextKey is a type for context keys
type ContextKey string

const (
	// UserIDKey is the context key for user ID
	UserIDKey ContextKey = "billing:userID"
)

// FromContext returns an UserIDExtractor that gets user ID from request context
func FromContext(key ContextKey) UserIDExtractor {
	return func(r *http.Request) string {
		if userID, ok := r.Context().Value(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FromHeader returns an UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// WithUserID adds user ID to request context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}
