// Package api provides an HTTP endpoint for subscription inspection
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/devhubhq/billing/pkg/billing"
)

const (
	statusNone   = "none"
	maxUserIDLen = 255
)

// Handler provides HTTP endpoints for subscription inspection
type Handler struct {
	config Config
}

// GetSubscription returns a standardized JSON response of the user's current
// billing standing. Users with no subscription row get the free plan with
// status "none" rather than an error.
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	userID := h.config.GetUserID(r)
	if userID == "" {
		h.handleError(w, r, fmt.Errorf("user ID not found"), http.StatusUnauthorized)
		return
	}
	if len(userID) > maxUserIDLen {
		h.handleError(w, r, fmt.Errorf("invalid user ID format"), http.StatusBadRequest)
		return
	}

	response := SubscriptionResponse{
		UserID: userID,
		Plan:   h.config.Plans.Free().Name,
		Status: statusNone,
	}
	response.MaxProjects = h.config.Plans.Free().MaxProjects

	sub, err := h.config.Store.FindByUserID(ctx, userID)
	if err != nil && !errors.Is(err, billing.ErrSubscriptionNotFound) {
		h.config.Metrics.RecordAPICall("api", "get_subscription", "error")
		h.handleError(w, r, fmt.Errorf("failed to get subscription: %w", err), http.StatusInternalServerError)
		return
	}

	if sub != nil {
		plan := h.config.Plans.ByPriceID(sub.PriceID)
		response.Plan = plan.Name
		response.MaxProjects = plan.MaxProjects
		response.PriceID = sub.PriceID
		response.Status = string(sub.Status)
		response.Entitled = sub.Status.Entitled()
		if !sub.CurrentPeriodEnd.IsZero() {
			end := sub.CurrentPeriodEnd
			response.CurrentPeriodEnd = &end
		}
	}

	h.config.Metrics.RecordAPICall("api", "get_subscription", "success")
	h.config.Metrics.RecordAPICallDuration("api", "get_subscription", time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		// Response already sent, nothing to do
		return
	}
}

// handleError handles errors with appropriate HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	errorResponse := map[string]string{
		"error": err.Error(),
	}
	if encodeErr := json.NewEncoder(w).Encode(errorResponse); encodeErr != nil {
		_ = encodeErr
	}
}
