/**
 * @description
 * HTTP handlers for provider payouts: requesting a withdrawal, reading payout
 * history, and managing the payout destination preference.
 */

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/giglane/settlement-service/internal/domain"
)

// RequestPayoutHandler initiates a withdrawal of settled funds.
func (h *SettlementHandlers) RequestPayoutHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payout, err := h.service.RequestPayout(r.Context(), actor, req.Amount)
	if err != nil {
		h.writeServiceError(w, "request_payout", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, payout)
}

// GetPayoutRequestHandler returns a single payout request to its owner.
func (h *SettlementHandlers) GetPayoutRequestHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	payoutID, ok := h.pathUUID(w, chi.URLParam(r, "payoutID"), "payout id")
	if !ok {
		return
	}

	payout, err := h.service.GetPayoutRequest(r.Context(), actor, payoutID)
	if err != nil {
		h.writeServiceError(w, "get_payout_request", err)
		return
	}
	h.writeJSON(w, http.StatusOK, payout)
}

// ListPayoutRequestsHandler returns the caller's payout history.
func (h *SettlementHandlers) ListPayoutRequestsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}

	payouts, err := h.service.ListPayoutRequests(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, "list_payout_requests", err)
		return
	}
	if payouts == nil {
		payouts = []domain.PayoutRequest{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"payout_requests": payouts})
}

// GetPayoutPreferenceHandler returns the caller's payout destination settings.
func (h *SettlementHandlers) GetPayoutPreferenceHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}

	pref, err := h.service.GetPayoutPreference(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, "get_payout_preference", err)
		return
	}
	h.writeJSON(w, http.StatusOK, pref)
}

// UpdatePayoutPreferenceHandler sets the caller's payout destination settings.
func (h *SettlementHandlers) UpdatePayoutPreferenceHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}

	var req struct {
		DestinationAccountRef string `json:"destination_account_ref"`
		Schedule              string `json:"schedule"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Schedule == "" {
		req.Schedule = "manual"
	}

	pref, err := h.service.UpdatePayoutPreference(r.Context(), actor, req.DestinationAccountRef, req.Schedule)
	if err != nil {
		h.writeServiceError(w, "update_payout_preference", err)
		return
	}
	h.writeJSON(w, http.StatusOK, pref)
}
