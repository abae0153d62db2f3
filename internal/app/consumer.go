/**
 * @description
 * Handlers for asynchronous payment processor notifications delivered over
 * RabbitMQ. Charge events settle or fail wallet top-ups; payout events
 * finalize processing payout requests. Handlers return true to ack and false
 * to requeue, matching the consumer contract in pkg/rabbitmq.
 */

package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/giglane/settlement-service/internal/domain"
)

const consumerTimeout = 30 * time.Second

// HandleChargeStatusMessage processes one charge.status.* delivery. Malformed
// payloads are acked and dropped; transient store errors requeue.
func (s *Service) HandleChargeStatusMessage(body []byte) bool {
	var event domain.ChargeStatusEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=consumer msg=\"dropping malformed charge event\" err=%v", err)
		return true
	}
	if event.Reference == "" {
		log.Printf("level=error component=consumer msg=\"dropping charge event without reference\"")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), consumerTimeout)
	defer cancel()

	var err error
	switch event.Status {
	case "succeeded":
		err = s.ApplyChargeSucceeded(ctx, event.Reference)
	case "failed":
		err = s.ApplyChargeFailed(ctx, event.Reference, event.FailureCode, event.FailureMessage)
	default:
		log.Printf("level=info component=consumer msg=\"ignoring charge status\" reference=%s status=%s", event.Reference, event.Status)
		return true
	}
	if err != nil {
		log.Printf("level=error component=consumer msg=\"charge event handling failed, requeueing\" reference=%s status=%s err=%v", event.Reference, event.Status, err)
		return false
	}
	return true
}

// HandlePayoutStatusMessage processes one payout.status.* delivery. Stale or
// duplicate notifications ack without effect.
func (s *Service) HandlePayoutStatusMessage(body []byte) bool {
	var event domain.PayoutStatusEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=consumer msg=\"dropping malformed payout event\" err=%v", err)
		return true
	}
	if event.PayoutRef == "" {
		log.Printf("level=error component=consumer msg=\"dropping payout event without reference\"")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), consumerTimeout)
	defer cancel()

	if err := s.ApplyPayoutStatus(ctx, event.PayoutRef, event.Status, event.FailureReason); err != nil {
		log.Printf("level=error component=consumer msg=\"payout event handling failed, requeueing\" processor_ref=%s err=%v", event.PayoutRef, err)
		return false
	}
	return true
}
