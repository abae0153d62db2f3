/**
 * @description
 * HTTP handlers for the wallet: balance, ledger history, and the two-step
 * top-up flow (create a charge, confirm it after the processor settles).
 */

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/giglane/settlement-service/internal/domain"
)

// GetWalletBalanceHandler returns the caller's current wallet balance.
func (h *SettlementHandlers) GetWalletBalanceHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetWalletBalance(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, "get_wallet_balance", err)
		return
	}
	h.writeJSON(w, http.StatusOK, balance)
}

// ListWalletTransactionsHandler returns the caller's ledger history.
func (h *SettlementHandlers) ListWalletTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}

	opts := domain.LedgerListOptions{}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			opts.Limit = v
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			opts.Offset = v
		}
	}

	transactions, err := h.service.ListWalletTransactions(r.Context(), actor, opts)
	if err != nil {
		h.writeServiceError(w, "list_wallet_transactions", err)
		return
	}
	if transactions == nil {
		transactions = []domain.BalanceTransaction{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": transactions})
}

// CreateTopUpHandler starts a wallet top-up by creating a charge with the
// payment processor. The wallet is credited on confirmation, not here.
func (h *SettlementHandlers) CreateTopUpHandler(w http.ResponseWriter, r *http.Request) {
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

	intent, err := h.service.CreateTopUp(r.Context(), actor, req.Amount)
	if err != nil {
		h.writeServiceError(w, "create_top_up", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, intent)
}

// ConfirmTopUpHandler verifies a charge with the processor and credits the
// wallet. Idempotent: repeated confirmations return the original outcome.
func (h *SettlementHandlers) ConfirmTopUpHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}

	providerRef := strings.TrimSpace(chi.URLParam(r, "providerRef"))
	if providerRef == "" {
		h.writeError(w, http.StatusBadRequest, "Missing charge reference")
		return
	}

	adjustment, err := h.service.ConfirmTopUp(r.Context(), actor.UserID, providerRef)
	if err != nil {
		h.writeServiceError(w, "confirm_top_up", err)
		return
	}
	h.writeJSON(w, http.StatusOK, adjustment)
}
