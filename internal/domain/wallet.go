/**
 * @description
 * Wallet domain models: the per-user account balance, the append-only balance
 * transaction ledger, and the top-up intent that tracks a processor-side
 * charge from creation to confirmation.
 *
 * Amounts are stored as `int64` in the smallest currency unit to avoid
 * floating-point inaccuracies with financial data.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// BalanceTransactionType classifies entries in the wallet ledger.
type BalanceTransactionType string

const (
	TransactionTypeTopUp      BalanceTransactionType = "top_up"
	TransactionTypeSpend      BalanceTransactionType = "spend"
	TransactionTypeRefund     BalanceTransactionType = "refund"
	TransactionTypeAdjustment BalanceTransactionType = "adjustment"
)

// AccountBalance is a buyer's pre-funded spendable credit. The balance never
// goes negative; every mutation happens through the ledger's atomic
// adjustment, never by direct overwrite.
type AccountBalance struct {
	UserID         uuid.UUID  `json:"user_id"`
	BalanceAmount  int64      `json:"balance_amount"`
	Currency       string     `json:"currency"`
	LastToppedUpAt *time.Time `json:"last_topped_up_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// BalanceTransaction is an immutable ledger row. BalanceAfter always equals
// BalanceBefore + Amount, and the running total of a user's rows equals their
// current AccountBalance. PaymentIntentRef is the idempotency key: at most one
// row may exist per distinct external payment-intent reference.
type BalanceTransaction struct {
	ID               uuid.UUID              `json:"id"`
	UserID           uuid.UUID              `json:"user_id"`
	Type             BalanceTransactionType `json:"type"`
	Amount           int64                  `json:"amount"` // signed; negative for spend
	BalanceBefore    int64                  `json:"balance_before"`
	BalanceAfter     int64                  `json:"balance_after"`
	Reference        string                 `json:"reference"`
	PaymentIntentRef *string                `json:"payment_intent_ref,omitempty"`
	Description      string                 `json:"description"`
	CreatedAt        time.Time              `json:"created_at"`
}

// BalanceAdjustment is the result of a ledger adjustment. Applied is false
// when the idempotency key had already been consumed, in which case NewBalance
// reports the balance the original application produced.
type BalanceAdjustment struct {
	Applied     bool                `json:"applied"`
	NewBalance  int64               `json:"new_balance"`
	Transaction *BalanceTransaction `json:"transaction,omitempty"`
}

// TopUpIntentStatus is the lifecycle of a processor-side top-up charge.
type TopUpIntentStatus string

const (
	TopUpIntentPending   TopUpIntentStatus = "pending"
	TopUpIntentConfirmed TopUpIntentStatus = "confirmed"
	TopUpIntentFailed    TopUpIntentStatus = "failed"
)

// TopUpIntent is the local audit row for a wallet top-up charge created with
// the external processor. ProviderRef is the processor's charge id and doubles
// as the ledger idempotency key at confirmation time.
type TopUpIntent struct {
	ID          uuid.UUID         `json:"id"`
	UserID      uuid.UUID         `json:"user_id"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	ProviderRef string            `json:"provider_ref"`
	Status      TopUpIntentStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	ConfirmedAt *time.Time        `json:"confirmed_at,omitempty"`
}

// LedgerListOptions clamps pagination for ledger history queries.
type LedgerListOptions struct {
	Limit  int
	Offset int
}
