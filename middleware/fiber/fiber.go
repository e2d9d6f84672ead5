// Package fiber provides Fiber middleware for subscription entitlement checks
package fiber

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/devhubhq/billing/pkg/billing"
)

// UserIDExtractor extracts the user ID from a Fiber context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *fiber.Ctx) string

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
	OnUnauthorized func(c *fiber.Ctx) error

	// OnPaymentRequired is called when the user has no entitled subscription
	// If nil, returns 402 Payment Required
	OnPaymentRequired func(c *fiber.Ctx, sub *billing.Subscription) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *fiber.Ctx, err error) error
}

// RequireSubscription creates a Fiber middleware that rejects requests from
// users without an entitled subscription
func RequireSubscription(cfg Config) fiber.Handler {
	// Validate required configuration at startup (fail fast)
	if cfg.Store == nil {
		panic("billing/fiber: Config.Store is required")
	}
	if cfg.GetUserID == nil {
		panic("billing/fiber: Config.GetUserID is required")
	}

	return func(c *fiber.Ctx) error {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}

		sub, err := cfg.Store.FindByUserID(c.UserContext(), userID)
		if err != nil && !errors.Is(err, billing.ErrSubscriptionNotFound) {
			if cfg.OnError != nil {
				return cfg.OnError(c, err)
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
		}

		if !entitled(sub, cfg.Plans, cfg.MinPlanWeight) {
			if cfg.OnPaymentRequired != nil {
				return cfg.OnPaymentRequired(c, sub)
			}
			return defaultPaymentRequired(c, sub)
		}

		return c.Next()
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

func defaultPaymentRequired(c *fiber.Ctx, sub *billing.Subscription) error {
	resp := fiber.Map{"error": "Payment Required"}
	if sub != nil {
		resp["status"] = sub.Status
	}
	return c.Status(fiber.StatusPaymentRequired).JSON(resp)
}

// Convenience extractors for User ID

// FromLocals returns a UserIDExtractor that gets user ID from Fiber locals
// This is the recommended approach for integrating with auth middleware that
// sets user information via c.Locals("UserID", "...") or similar.
func FromLocals(key string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		if val := c.Locals(key); val != nil {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Params(paramName)
	}
}

// FromQuery returns a UserIDExtractor that gets user ID from a query parameter
func FromQuery(queryName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Query(queryName)
	}
}
