/**
 * @description
 * HTTP handlers for the order lifecycle: reading an order, listing the actions
 * the caller may take, and dispatching a lifecycle action. The action endpoint
 * is the single write surface for the order state machine.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: For URL parameters.
 * - internal/domain: For order models and actions.
 */

package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/giglane/settlement-service/internal/domain"
)

type orderActionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// GetOrderHandler returns a single order to one of its participants.
func (h *SettlementHandlers) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	orderID, ok := h.pathUUID(w, chi.URLParam(r, "orderID"), "order id")
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), actor, orderID)
	if err != nil {
		h.writeServiceError(w, "get_order", err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

// ListOrderActionsHandler returns the actions the caller may currently take.
func (h *SettlementHandlers) ListOrderActionsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	orderID, ok := h.pathUUID(w, chi.URLParam(r, "orderID"), "order id")
	if !ok {
		return
	}

	actions, err := h.service.AvailableOrderActions(r.Context(), actor, orderID)
	if err != nil {
		h.writeServiceError(w, "list_order_actions", err)
		return
	}
	if actions == nil {
		actions = []domain.OrderAction{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"actions": actions})
}

// DispatchOrderActionHandler applies a lifecycle action to an order. The
// action name comes from the URL so each action has a stable, loggable
// endpoint; the optional reason comes from the body.
func (h *SettlementHandlers) DispatchOrderActionHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	orderID, ok := h.pathUUID(w, chi.URLParam(r, "orderID"), "order id")
	if !ok {
		return
	}

	action := domain.OrderAction(chi.URLParam(r, "action"))
	if !validOrderAction(action) {
		h.writeError(w, http.StatusBadRequest, "Unknown order action")
		return
	}

	var req orderActionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	order, err := h.service.DispatchOrderAction(r.Context(), actor, orderID, action, req.Reason)
	if err != nil {
		h.writeServiceError(w, "dispatch_order_action", err)
		return
	}

	log.Printf("level=info component=api endpoint=dispatch_order_action outcome=applied order_id=%s action=%s status=%s", order.ID, action, order.Status)
	h.writeJSON(w, http.StatusOK, order)
}

func validOrderAction(action domain.OrderAction) bool {
	switch action {
	case domain.ActionAccept, domain.ActionDecline, domain.ActionStart,
		domain.ActionComplete, domain.ActionApproveCompletion,
		domain.ActionCancel, domain.ActionDispute, domain.ActionResumeWork:
		return true
	}
	return false
}

// QuoteFeeHandler computes the gross/fee/net split for a prospective order.
func (h *SettlementHandlers) QuoteFeeHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.resolveActor(w, r); !ok {
		return
	}

	var req struct {
		Amount    int64  `json:"amount"`
		Role      string `json:"role"`
		OrderType string `json:"order_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	breakdown, err := h.service.QuoteFee(r.Context(), req.Amount, req.Role, req.OrderType)
	if err != nil {
		h.writeServiceError(w, "quote_fee", err)
		return
	}
	h.writeJSON(w, http.StatusOK, breakdown)
}
