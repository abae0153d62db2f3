/**
 * @description
 * Internal server-to-server endpoints, guarded by the internal API key:
 * dispute resolution for the operations console, and HTTP relays for the
 * processor's charge/payout status notifications (the same notifications also
 * arrive over the message broker; both paths are idempotent).
 */

package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/giglane/settlement-service/internal/domain"
)

// ResolveDisputeHandler applies an operations decision to an open dispute.
func (h *SettlementHandlers) ResolveDisputeHandler(w http.ResponseWriter, r *http.Request) {
	disputeID, ok := h.pathUUID(w, chi.URLParam(r, "disputeID"), "dispute id")
	if !ok {
		return
	}

	var req struct {
		Outcome    string `json:"outcome"`
		Resolution string `json:"resolution"`
		ResolvedBy string `json:"resolved_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	outcome := domain.DisputeOutcome(strings.TrimSpace(req.Outcome))
	switch outcome {
	case domain.DisputeOutcomeRelease, domain.DisputeOutcomeRefund, domain.DisputeOutcomeResume:
	default:
		h.writeError(w, http.StatusBadRequest, "Outcome must be release, refund or resume")
		return
	}
	if strings.TrimSpace(req.ResolvedBy) == "" {
		h.writeError(w, http.StatusBadRequest, "resolved_by is required")
		return
	}

	order, err := h.service.ResolveDispute(r.Context(), disputeID, outcome, req.Resolution, req.ResolvedBy)
	if err != nil {
		h.writeServiceError(w, "resolve_dispute", err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

// ChargeStatusRelayHandler ingests a charge status notification over HTTP.
func (h *SettlementHandlers) ChargeStatusRelayHandler(w http.ResponseWriter, r *http.Request) {
	var event domain.ChargeStatusEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if event.Reference == "" {
		h.writeError(w, http.StatusBadRequest, "reference is required")
		return
	}

	var err error
	switch event.Status {
	case "succeeded":
		err = h.service.ApplyChargeSucceeded(r.Context(), event.Reference)
	case "failed":
		err = h.service.ApplyChargeFailed(r.Context(), event.Reference, event.FailureCode, event.FailureMessage)
	default:
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		h.writeServiceError(w, "charge_status_relay", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

// PayoutStatusRelayHandler ingests a payout status notification over HTTP.
func (h *SettlementHandlers) PayoutStatusRelayHandler(w http.ResponseWriter, r *http.Request) {
	var event domain.PayoutStatusEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if event.PayoutRef == "" {
		h.writeError(w, http.StatusBadRequest, "payout_ref is required")
		return
	}

	if err := h.service.ApplyPayoutStatus(r.Context(), event.PayoutRef, event.Status, event.FailureReason); err != nil {
		h.writeServiceError(w, "payout_status_relay", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}
