/**
 * @description
 * Event payloads exchanged with the message broker: the fire-and-forget order
 * transition events the engine publishes for the notification/audit
 * collaborator, and the charge/payout status notifications it consumes from
 * the external payment processor's webhook relay.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderTransitionEvent is published after every committed order transition.
// Publication is best-effort and never part of the datastore transaction.
type OrderTransitionEvent struct {
	OrderID     uuid.UUID   `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	Action      OrderAction `json:"action"`
	FromStatus  OrderStatus `json:"from_status"`
	ToStatus    OrderStatus `json:"to_status"`
	ActorID     uuid.UUID   `json:"actor_id"`
	ActorRole   Role        `json:"actor_role"`
	Reason      string      `json:"reason,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// ChargeStatusEvent is the asynchronous charge notification from the payment
// processor relay. For top-up charges Reference is the charge id used as the
// ledger idempotency key, so redelivery is harmless.
type ChargeStatusEvent struct {
	Reference      string `json:"reference"`
	Status         string `json:"status"` // succeeded | failed
	FailureCode    string `json:"failure_code,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`
}

// PayoutStatusEvent is the asynchronous payout notification from the payment
// processor relay, finalizing a processing payout request.
type PayoutStatusEvent struct {
	PayoutRef     string `json:"payout_ref"`
	Status        string `json:"status"` // completed | failed
	FailureReason string `json:"failure_reason,omitempty"`
}
