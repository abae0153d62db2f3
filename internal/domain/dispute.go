/**
 * @description
 * Dispute domain model. Opening a dispute freezes the order's escrow until a
 * mediator resolves it; the resolution outcome decides whether escrow is
 * released to the seller, refunded to the buyer, or work resumes.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// DisputeStatus tracks a dispute from opening to resolution.
type DisputeStatus string

const (
	DisputeStatusOpen            DisputeStatus = "open"
	DisputeStatusResolvedRelease DisputeStatus = "resolved_release"
	DisputeStatusResolvedRefund  DisputeStatus = "resolved_refund"
	DisputeStatusResolvedResume  DisputeStatus = "resolved_resume"
)

// DisputeOutcome is the mediator's decision when resolving a dispute.
type DisputeOutcome string

const (
	DisputeOutcomeRelease DisputeOutcome = "release"
	DisputeOutcomeRefund  DisputeOutcome = "refund"
	DisputeOutcomeResume  DisputeOutcome = "resume"
)

// Dispute is the audit record for a disputed order.
type Dispute struct {
	ID          uuid.UUID     `json:"id"`
	OrderID     uuid.UUID     `json:"order_id"`
	InitiatorID uuid.UUID     `json:"initiator_id"`
	Reason      string        `json:"reason"`
	Status      DisputeStatus `json:"status"`
	Resolution  *string       `json:"resolution,omitempty"`
	ResolvedBy  *string       `json:"resolved_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}
