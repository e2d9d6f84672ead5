// Package echo provides Echo middleware for subscription entitlement checks
package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/devhubhq/billing/pkg/billing"
)

// UserIDExtractor extracts the user ID from an Echo context
// Return empty string if user is not authenticated
type UserIDExtractor func(c echo.Context) string

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
	OnUnauthorized func(c echo.Context) error

	// OnPaymentRequired is called when the user has no entitled subscription
	// If nil, returns 402 Payment Required
	OnPaymentRequired func(c echo.Context, sub *billing.Subscription) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c echo.Context, err error) error
}

// RequireSubscription creates an Echo middleware that rejects requests from
// users without an entitled subscription
func RequireSubscription(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Store == nil {
		panic("billing/echo: Config.Store is required")
	}
	if cfg.GetUserID == nil {
		panic("billing/echo: Config.GetUserID is required")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := cfg.GetUserID(c)
			if userID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			sub, err := cfg.Store.FindByUserID(c.Request().Context(), userID)
			if err != nil && !errors.Is(err, billing.ErrSubscriptionNotFound) {
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
			}

			if !entitled(sub, cfg.Plans, cfg.MinPlanWeight) {
				if cfg.OnPaymentRequired != nil {
					return cfg.OnPaymentRequired(c, sub)
				}
				return defaultPaymentRequired(c, sub)
			}

			return next(c)
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

func defaultPaymentRequired(c echo.Context, sub *billing.Subscription) error {
	resp := map[string]interface{}{"error": "Payment Required"}
	if sub != nil {
		resp["status"] = sub.Status
	}
	return c.JSON(http.StatusPaymentRequired, resp)
}

// Convenience extractors for User ID

// FromContext returns a UserIDExtractor that gets user ID from Echo context values
// This is the recommended approach for integrating with auth middleware that sets
// user information via c.Set("UserID", "...") or similar.
func FromContext(key string) UserIDExtractor {
	return func(c echo.Context) string {
		if val := c.Get(key); val != nil {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Param(paramName)
	}
}

// FromQuery returns a UserIDExtractor that gets user ID from a query parameter
func FromQuery(queryName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.QueryParam(queryName)
	}
}
