/**
 * @description
 * This file contains the shared plumbing for the settlement-service's HTTP
 * handlers: the handler struct, actor resolution from the validated JWT
 * subject, JSON response helpers, and the mapping from business errors to
 * HTTP status codes. The endpoint handlers live in the handlers_*.go files.
 *
 * @dependencies
 * - encoding/json, errors, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/giglane/settlement-service/internal/app"
	"github.com/giglane/settlement-service/internal/domain"
	"github.com/giglane/settlement-service/internal/store"
)

// SettlementHandlers holds the application service that handlers will use.
type SettlementHandlers struct {
	service *app.Service
}

// NewSettlementHandlers creates a new instance of SettlementHandlers.
func NewSettlementHandlers(service *app.Service) *SettlementHandlers {
	return &SettlementHandlers{service: service}
}

// resolveActor turns the JWT subject set by the auth middleware into the
// internal actor identity every service call requires.
func (h *SettlementHandlers) resolveActor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	subject, ok := GetAuthSubject(r.Context())
	if !ok {
		http.Error(w, "Could not get subject from context", http.StatusInternalServerError)
		return domain.Actor{}, false
	}

	userID, err := h.service.ResolveInternalUserID(r.Context(), subject)
	if err != nil {
		log.Printf("level=warn component=api outcome=reject reason=user_resolution_failed subject=%s err=%v", subject, err)
		h.writeError(w, http.StatusBadRequest, "User not found")
		return domain.Actor{}, false
	}

	return domain.Actor{UserID: userID}, true
}

func (h *SettlementHandlers) pathUUID(w http.ResponseWriter, raw, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func (h *SettlementHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (h *SettlementHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps business errors to HTTP status codes. Anything not
// recognized is logged and reported as an internal error.
func (h *SettlementHandlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, app.ErrNotAuthorized):
		h.writeError(w, http.StatusForbidden, "You are not allowed to perform this action")
	case errors.Is(err, app.ErrInvalidTransition):
		h.writeError(w, http.StatusConflict, "This action is not valid for the order's current state")
	case errors.Is(err, store.ErrConflictingTransition):
		h.writeError(w, http.StatusConflict, "The order changed while processing your action. Please reload and try again.")
	case errors.Is(err, app.ErrOpenDisputeExists):
		h.writeError(w, http.StatusConflict, "This order already has an open dispute")
	case errors.Is(err, app.ErrDisputeAlreadyResolved):
		h.writeError(w, http.StatusConflict, "This dispute has already been resolved")
	case errors.Is(err, app.ErrNotRetryable):
		h.writeError(w, http.StatusConflict, "This payment can no longer be retried")
	case errors.Is(err, app.ErrReasonRequired):
		h.writeError(w, http.StatusBadRequest, "A reason is required for this action")
	case errors.Is(err, app.ErrPaymentMethodRequired):
		h.writeError(w, http.StatusBadRequest, "A payment method is required")
	case errors.Is(err, app.ErrInvalidPayoutSchedule):
		h.writeError(w, http.StatusBadRequest, "Payout schedule must be manual, weekly or monthly")
	case errors.Is(err, app.ErrAmountOutOfBounds):
		h.writeError(w, http.StatusBadRequest, "Amount is outside the allowed range")
	case errors.Is(err, app.ErrBelowPayoutMinimum):
		h.writeError(w, http.StatusUnprocessableEntity, "Payout amount is below the minimum")
	case errors.Is(err, app.ErrInsufficientProcessorBalance):
		h.writeError(w, http.StatusUnprocessableEntity, "Insufficient balance for this payout")
	case errors.Is(err, app.ErrNoPayoutAccount):
		h.writeError(w, http.StatusPreconditionFailed, "No payout account on file. Please add one first.")
	case errors.Is(err, app.ErrChargeDeclined):
		h.writeError(w, http.StatusPaymentRequired, "The payment was declined")
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "Too many requests. Please wait and try again.")
	case errors.Is(err, app.ErrExternalProcessor):
		h.writeError(w, http.StatusBadGateway, "Payment processor is unavailable. Please try again later.")
	case errors.Is(err, store.ErrOrderNotFound),
		errors.Is(err, store.ErrDisputeNotFound),
		errors.Is(err, store.ErrTopUpIntentNotFound),
		errors.Is(err, store.ErrFailedPaymentNotFound),
		errors.Is(err, store.ErrPayoutRequestNotFound),
		errors.Is(err, store.ErrPayoutPreferenceNotSet),
		errors.Is(err, store.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusUnprocessableEntity, "Insufficient wallet balance")
	default:
		log.Printf("level=error component=api endpoint=%s msg=\"unhandled service error\" err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "An internal error occurred")
	}
}
