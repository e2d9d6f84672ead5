// Package gin provides Gin middleware for subscription entitlement checks
package gin

import (
	"errors"
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/devhubhq/billing/pkg/billing"
)

// UserIDExtractor extracts the user ID from a Gin context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *gongin.Context) string

// Config holds middleware configuration
type Config struct {
	// Store is the subscription store (required)
	Store billing.Store

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// Plans maps price ids to plans. Optional; required when MinPlanWeight
	// is set.
	Plans *billing.Catalog

	// MinPlanWeight gates the route to plans at or above this weight.
	// Zero means any entitled subscription passes.
	MinPlanWeight int

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gongin.Context)

	// OnPaymentRequired is called when the user has no entitled subscription
	// If nil, returns 402 Payment Required
	OnPaymentRequired func(c *gongin.Context, sub *billing.Subscription)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *gongin.Context, err error)
}

// RequireSubscription creates a Gin middleware that rejects requests from
// users without an entitled subscription
func RequireSubscription(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Store == nil {
		panic("billing/gin: Config.Store is required")
	}
	if cfg.GetUserID == nil {
		panic("billing/gin: Config.GetUserID is required")
	}

	return func(c *gongin.Context) {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				c.JSON(http.StatusUnauthorized, gongin.H{"error": "Unauthorized"})
			}
			c.Abort()
			return
		}

		sub, err := cfg.Store.FindByUserID(c.Request.Context(), userID)
		if err != nil && !errors.Is(err, billing.ErrSubscriptionNotFound) {
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				c.JSON(http.StatusInternalServerError, gongin.H{"error": "Internal Server Error"})
			}
			c.Abort()
			return
		}

		if !entitled(sub, cfg.Plans, cfg.MinPlanWeight) {
			if cfg.OnPaymentRequired != nil {
				cfg.OnPaymentRequired(c, sub)
			} else {
				defaultPaymentRequired(c, sub)
			}
			c.Abort()
			return
		}

		c.Next()
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

func defaultPaymentRequired(c *gongin.Context, sub *billing.Subscription) {
	resp := gongin.H{"error": "Payment Required"}
	if sub != nil {
		resp["status"] = sub.Status
	}
	c.JSON(http.StatusPaymentRequired, resp)
}

// Convenience extractors for User ID

// FromContext returns a UserIDExtractor that gets user ID from Gin context values
// This is the recommended approach for integrating with auth middleware that sets
// user information via c.Set("UserID", "...") or similar.
//
// Example:
//
//	// In your auth middleware:
//	c.Set("UserID", userID)
//
//	// In entitlement middleware config:
//	GetUserID: gin.FromContext("UserID")
func FromContext(key string) UserIDExtractor {
	return func(c *gongin.Context) string {
		if val, exists := c.Get(key); exists {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.Param(paramName)
	}
}

// FromQuery returns a UserIDExtractor that gets user ID from a query parameter
func FromQuery(queryName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.Query(queryName)
	}
}
