package api

import "time"

// SubscriptionResponse represents the billing state for a user
type SubscriptionResponse struct {
	UserID           string     `json:"user_id"`
	Plan             string     `json:"plan"`
	PriceID          string     `json:"price_id,omitempty"`
	Status           string     `json:"status"` // "ACTIVE", "TRIALING", "PAST_DUE", "CANCELED", "INCOMPLETE", "none"
	Entitled         bool       `json:"entitled"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	MaxProjects      int        `json:"max_projects"`
}
