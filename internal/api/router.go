/**
 * @description
 * This file sets up the HTTP router for the settlement-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SettlementRoutes creates and returns the router for the settlement service.
func SettlementRoutes(h *SettlementHandlers, jwksURL, internalKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Internal server-to-server endpoints.
	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))
		r.Post("/disputes/{disputeID}/resolve", h.ResolveDisputeHandler)
		r.Post("/charges/status", h.ChargeStatusRelayHandler)
		r.Post("/payouts/status", h.PayoutStatusRelayHandler)
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		// Order lifecycle
		r.Get("/orders/{orderID}", h.GetOrderHandler)
		r.Get("/orders/{orderID}/actions", h.ListOrderActionsHandler)
		r.Post("/orders/{orderID}/actions/{action}", h.DispatchOrderActionHandler)

		// Fee quoting
		r.Post("/fees/quote", h.QuoteFeeHandler)

		// Wallet
		r.Get("/wallet/balance", h.GetWalletBalanceHandler)
		r.Get("/wallet/transactions", h.ListWalletTransactionsHandler)
		r.Post("/wallet/top-ups", h.CreateTopUpHandler)
		r.Post("/wallet/top-ups/{providerRef}/confirm", h.ConfirmTopUpHandler)

		// Failed payment retries
		r.Get("/failed-payments", h.ListFailedPaymentsHandler)
		r.Post("/failed-payments/{paymentID}/retry", h.RetryFailedPaymentHandler)
		r.Post("/failed-payments/{paymentID}/cancel", h.CancelFailedPaymentHandler)

		// Payouts
		r.Post("/payouts", h.RequestPayoutHandler)
		r.Get("/payouts", h.ListPayoutRequestsHandler)
		r.Get("/payouts/{payoutID}", h.GetPayoutRequestHandler)
		r.Get("/payout-preference", h.GetPayoutPreferenceHandler)
		r.Put("/payout-preference", h.UpdatePayoutPreferenceHandler)
	})

	return r
}
