/**
 * @description
 * Failed-payment domain model. A FailedPayment row is created when a charge
 * attempt comes back with a processor-declared failure; it tracks the retry
 * budget and outcome. The engine only records retry attempts and counts;
 * scheduling of future attempts belongs to an external scheduler.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// FailedPaymentStatus is the retry-tracker state machine:
// pending -> retrying -> {succeeded | exhausted}, or -> cancelled from any
// non-terminal state.
type FailedPaymentStatus string

const (
	FailedPaymentPending   FailedPaymentStatus = "pending"
	FailedPaymentRetrying  FailedPaymentStatus = "retrying"
	FailedPaymentSucceeded FailedPaymentStatus = "succeeded"
	FailedPaymentExhausted FailedPaymentStatus = "exhausted"
	FailedPaymentCancelled FailedPaymentStatus = "cancelled"
)

// IsTerminal reports whether the tracker permits further retries.
func (s FailedPaymentStatus) IsTerminal() bool {
	return s == FailedPaymentSucceeded || s == FailedPaymentExhausted || s == FailedPaymentCancelled
}

// FailedPayment tracks a payment attempt that did not succeed and is eligible
// for retry. RetryCount never exceeds MaxRetries; once the status is terminal
// the row is immutable apart from the ResolvedAt audit stamp.
type FailedPayment struct {
	ID             uuid.UUID           `json:"id"`
	UserID         uuid.UUID           `json:"user_id"`
	OrderID        *uuid.UUID          `json:"order_id,omitempty"`
	Amount         int64               `json:"amount"`
	Currency       string              `json:"currency"`
	FailureCode    string              `json:"failure_code"`
	FailureMessage string              `json:"failure_message"`
	RetryCount     int                 `json:"retry_count"`
	MaxRetries     int                 `json:"max_retries"`
	NextRetryAt    *time.Time          `json:"next_retry_at,omitempty"`
	LastRetryAt    *time.Time          `json:"last_retry_at,omitempty"`
	Status         FailedPaymentStatus `json:"status"`
	ResolvedAt     *time.Time          `json:"resolved_at,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}
