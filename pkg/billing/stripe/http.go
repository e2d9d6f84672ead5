package stripe

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/devhubhq/billing/pkg/billing"
	"github.com/devhubhq/billing/pkg/billing/internal"
)

type checkoutRequest struct {
	PriceID string `json:"priceId"`
}

type sessionResponse struct {
	URL string `json:"url"`
}

// handleCheckout is the authenticated endpoint that creates a checkout
// session: POST {"priceId": "..."} -> 200 {"url": "..."}.
func (p *Provider) handleCheckout(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		internal.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	user, ok := p.requireUser(w, r)
	if !ok {
		return
	}

	body, err := internal.ReadBodyStrict(w, r, maxSessionBodyBytes)
	if err != nil {
		internal.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var req checkoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		internal.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PriceID == "" {
		internal.WriteError(w, http.StatusBadRequest, "price id is required")
		return
	}

	url, err := p.CheckoutURL(r.Context(), user, req.PriceID)
	if err != nil {
		p.writeSessionError(w, err)
		return
	}
	_ = internal.WriteJSON(w, http.StatusOK, sessionResponse{URL: url})
}

// handlePortal is the authenticated endpoint that creates a billing-portal
// session: POST -> 200 {"url": "..."}.
func (p *Provider) handlePortal(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		internal.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	user, ok := p.requireUser(w, r)
	if !ok {
		return
	}

	url, err := p.PortalURL(r.Context(), user.ID)
	if err != nil {
		p.writeSessionError(w, err)
		return
	}
	_ = internal.WriteJSON(w, http.StatusOK, sessionResponse{URL: url})
}

func (p *Provider) requireUser(w http.ResponseWriter, r *http.Request) (*billing.User, bool) {
	if p.authenticate == nil {
		internal.WriteError(w, http.StatusInternalServerError, "no authenticator configured")
		return nil, false
	}
	user, err := p.authenticate(r)
	if err != nil || user == nil || user.ID == "" {
		internal.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return user, true
}

// writeSessionError maps the session-issuer error taxonomy onto client-facing
// responses. Provider credential failures are distinguished from malformed
// requests so operators can tell a key rotation problem from a bad price id.
func (p *Provider) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrProviderNotConfigured):
		internal.WriteError(w, http.StatusServiceUnavailable, "billing provider not configured")
	case errors.Is(err, billing.ErrProviderAuthFailed):
		internal.WriteError(w, http.StatusServiceUnavailable, "billing provider authentication failed; check API keys")
	case errors.Is(err, billing.ErrActiveSubscription):
		internal.WriteError(w, http.StatusBadRequest, "user already has an active subscription")
	case errors.Is(err, billing.ErrInvalidRequest):
		internal.WriteError(w, http.StatusBadRequest, "invalid request; check price configuration")
	case errors.Is(err, billing.ErrSubscriptionNotFound), errors.Is(err, billing.ErrCustomerNotFound):
		internal.WriteError(w, http.StatusNotFound, "no active subscription found")
	case errors.Is(err, billing.ErrUnauthenticated):
		internal.WriteError(w, http.StatusUnauthorized, "unauthorized")
	default:
		p.logger.Error("session creation failed", billing.Field{Key: "error", Value: err.Error()})
		internal.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
