/**
 * @description
 * Payout domain models: a provider's request to withdraw available settlement
 * balance to an external payout rail, and the provider's payout preference.
 * Payout request rows are never deleted; failed attempts stay on record as an
 * audit trail.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// PayoutRequestStatus is the payout lifecycle. pending -> processing is local;
// processing -> {completed | failed} is driven by the external processor's
// notification.
type PayoutRequestStatus string

const (
	PayoutStatusPending    PayoutRequestStatus = "pending"
	PayoutStatusProcessing PayoutRequestStatus = "processing"
	PayoutStatusCompleted  PayoutRequestStatus = "completed"
	PayoutStatusFailed     PayoutRequestStatus = "failed"
)

// PayoutRequest is one withdrawal attempt by a provider. The amount was
// validated against the provider's available external balance and the
// configured minimum before this row was created.
type PayoutRequest struct {
	ID                 uuid.UUID           `json:"id"`
	ProviderID         uuid.UUID           `json:"provider_id"`
	Amount             int64               `json:"amount"`
	Currency           string              `json:"currency"`
	Status             PayoutRequestStatus `json:"status"`
	ProcessorPayoutRef *string             `json:"processor_payout_ref,omitempty"`
	FailureReason      *string             `json:"failure_reason,omitempty"`
	RequestedAt        time.Time           `json:"requested_at"`
	ProcessedAt        *time.Time          `json:"processed_at,omitempty"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
}

// PayoutPreference stores where and on what cadence a provider wants to be
// paid out. DestinationAccountRef is the processor-side connected account.
type PayoutPreference struct {
	UserID                uuid.UUID `json:"user_id"`
	DestinationAccountRef string    `json:"destination_account_ref"`
	Schedule              string    `json:"schedule"` // manual | weekly | monthly
	UpdatedAt             time.Time `json:"updated_at"`
}
