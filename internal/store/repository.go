/**
 * @description
 * This file defines the `Repository` interface: the contract for all data
 * access the settlement engine performs. The business logic in internal/app
 * depends only on this interface, which keeps it testable with in-memory
 * stubs and decouples it from the PostgreSQL implementation.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the engine's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/giglane/settlement-service/internal/domain"
	"github.com/google/uuid"
)

// ApplyOrderTransitionParams describes one atomic order transition: the status
// compare-and-set plus every side effect that must commit with it. ExpectedStatus
// (and ExpectedCompletionState, when set) are the optimistic-concurrency guard:
// if another actor moved the order first, the update matches zero rows and the
// store returns ErrConflictingTransition.
type ApplyOrderTransitionParams struct {
	OrderID                 uuid.UUID
	ExpectedStatus          domain.OrderStatus
	ExpectedCompletionState *domain.CompletionState
	NewStatus               domain.OrderStatus
	NewEscrowStatus         *domain.EscrowStatus
	NewCompletionState      *domain.CompletionState
	SetCompletedAt          bool
	ClearCompletedAt        bool
	SetHasOpenDispute       *bool
	OpenDispute             *domain.Dispute // inserted in the same transaction
}

// ResolveOrderDisputeParams applies a mediator's resolution: the dispute row
// update and the order's resulting status/escrow change in one transaction.
type ResolveOrderDisputeParams struct {
	DisputeID       uuid.UUID
	DisputeStatus   domain.DisputeStatus
	Resolution      string
	ResolvedBy      string
	NewOrderStatus  *domain.OrderStatus // nil leaves the order in disputed
	NewEscrowStatus *domain.EscrowStatus
	SetCompletedAt  bool
}

// AdjustBalanceParams is one atomic wallet ledger adjustment. When
// PaymentIntentRef is set it acts as the idempotency key: a second call with
// the same reference returns the original outcome without mutating anything.
type AdjustBalanceParams struct {
	UserID           uuid.UUID
	Amount           int64 // signed; negative debits must not overdraw
	Type             domain.BalanceTransactionType
	PaymentIntentRef *string
	Reference        string
	Description      string
	Currency         string
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Identity projections
	FindUserIDBySubject(ctx context.Context, subject string) (uuid.UUID, error)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)

	// Orders and disputes
	FindOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	ApplyOrderTransition(ctx context.Context, params ApplyOrderTransitionParams) (*domain.Order, error)
	MarkOrderPaymentRecovered(ctx context.Context, orderID uuid.UUID, paymentRef string) error
	FindDisputeByID(ctx context.Context, disputeID uuid.UUID) (*domain.Dispute, error)
	ResolveOrderDispute(ctx context.Context, params ResolveOrderDisputeParams) (*domain.Order, error)

	// Wallet ledger
	AdjustBalance(ctx context.Context, params AdjustBalanceParams) (*domain.BalanceAdjustment, error)
	GetAccountBalance(ctx context.Context, userID uuid.UUID) (*domain.AccountBalance, error)
	ListBalanceTransactions(ctx context.Context, userID uuid.UUID, opts domain.LedgerListOptions) ([]domain.BalanceTransaction, error)
	CreateTopUpIntent(ctx context.Context, intent *domain.TopUpIntent) error
	FindTopUpIntentByProviderRef(ctx context.Context, providerRef string) (*domain.TopUpIntent, error)
	MarkTopUpIntentConfirmed(ctx context.Context, intentID uuid.UUID, confirmedAt time.Time) error
	MarkTopUpIntentFailed(ctx context.Context, intentID uuid.UUID) error

	// Failed payments
	CreateFailedPayment(ctx context.Context, fp *domain.FailedPayment) error
	FindFailedPaymentByID(ctx context.Context, id uuid.UUID) (*domain.FailedPayment, error)
	ListFailedPaymentsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.FailedPayment, error)
	MarkFailedPaymentSucceeded(ctx context.Context, id uuid.UUID, resolvedAt time.Time) error
	RecordFailedPaymentAttempt(ctx context.Context, id uuid.UUID, attemptedAt time.Time) (*domain.FailedPayment, error)
	CancelFailedPayment(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	// Payout requests and preferences
	CreatePayoutRequest(ctx context.Context, req *domain.PayoutRequest) error
	MarkPayoutRequestProcessing(ctx context.Context, id uuid.UUID, processorRef string, processedAt time.Time) error
	MarkPayoutRequestFailed(ctx context.Context, id uuid.UUID, failureReason string) error
	FinalizePayoutRequestByRef(ctx context.Context, processorRef string, status domain.PayoutRequestStatus, failureReason *string, completedAt time.Time) (*domain.PayoutRequest, error)
	FindPayoutRequestByID(ctx context.Context, id uuid.UUID) (*domain.PayoutRequest, error)
	ListPayoutRequestsByProviderID(ctx context.Context, providerID uuid.UUID) ([]domain.PayoutRequest, error)
	GetPayoutPreference(ctx context.Context, userID uuid.UUID) (*domain.PayoutPreference, error)
	UpsertPayoutPreference(ctx context.Context, pref *domain.PayoutPreference) error

	// Fee policy
	FindFeePercent(ctx context.Context, role, orderType string) (int, bool, error)
}
