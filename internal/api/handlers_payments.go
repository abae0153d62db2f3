/**
 * @description
 * HTTP handlers for the failed-payment retry tracker: listing the caller's
 * failed payments, retrying one with a chosen payment method, and abandoning
 * a tracker.
 */

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/giglane/settlement-service/internal/app"
	"github.com/giglane/settlement-service/internal/domain"
)

// ListFailedPaymentsHandler returns the caller's failed payments.
func (h *SettlementHandlers) ListFailedPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}

	payments, err := h.service.ListFailedPayments(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, "list_failed_payments", err)
		return
	}
	if payments == nil {
		payments = []domain.FailedPayment{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"failed_payments": payments})
}

// RetryFailedPaymentHandler re-attempts a failed payment immediately. The
// response carries the updated tracker even when the charge is declined, so
// clients can show remaining attempts.
func (h *SettlementHandlers) RetryFailedPaymentHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	paymentID, ok := h.pathUUID(w, chi.URLParam(r, "paymentID"), "failed payment id")
	if !ok {
		return
	}

	var req struct {
		PaymentMethod string `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.service.RetryPayment(r.Context(), actor, paymentID, req.PaymentMethod)
	if errors.Is(err, app.ErrChargeDeclined) {
		// Declined but the attempt was consumed; report the tracker state.
		h.writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
			"error":          "The payment was declined",
			"failed_payment": updated,
		})
		return
	}
	if err != nil {
		h.writeServiceError(w, "retry_failed_payment", err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

// CancelFailedPaymentHandler abandons a retry tracker.
func (h *SettlementHandlers) CancelFailedPaymentHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	paymentID, ok := h.pathUUID(w, chi.URLParam(r, "paymentID"), "failed payment id")
	if !ok {
		return
	}

	if err := h.service.CancelFailedPayment(r.Context(), actor, paymentID); err != nil {
		h.writeServiceError(w, "cancel_failed_payment", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
