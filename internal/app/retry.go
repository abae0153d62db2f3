/**
 * @description
 * Failed-payment retry use cases. A failed payment is a bounded retry tracker:
 * each user-initiated retry issues a fresh charge immediately, and a declined
 * charge consumes one attempt. Once retry_count reaches max_retries the
 * tracker exhausts and rejects further retries.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/giglane/settlement-service/internal/domain"
	"github.com/giglane/settlement-service/pkg/processorclient"
)

// RetryPayment re-attempts a failed payment with the given payment method.
// A processor-declared decline consumes a retry attempt; a transport failure
// does not, because the charge may never have reached the processor.
func (s *Service) RetryPayment(ctx context.Context, actor domain.Actor, failedPaymentID uuid.UUID, methodRef string) (*domain.FailedPayment, error) {
	fp, err := s.repo.FindFailedPaymentByID(ctx, failedPaymentID)
	if err != nil {
		return nil, err
	}
	if fp.UserID != actor.UserID {
		return nil, ErrNotAuthorized
	}
	if fp.Status.IsTerminal() {
		return nil, ErrNotRetryable
	}
	if strings.TrimSpace(methodRef) == "" {
		return nil, ErrPaymentMethodRequired
	}

	user, err := s.repo.FindUserByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	charge, err := s.processor.CreateCharge(ctx, processorclient.ChargeRequest{
		Amount:      fp.Amount,
		Currency:    fp.Currency,
		CustomerRef: user.ProcessorCustomerRef,
		MethodRef:   methodRef,
		Description: "Payment retry",
		Metadata:    map[string]string{"failed_payment_id": fp.ID.String()},
	})
	if err != nil {
		var apiErr *processorclient.ErrorResponse
		if errors.As(err, &apiErr) {
			// The processor saw and rejected the charge; count the attempt.
			return s.recordDecline(ctx, fp, apiErr.Code, apiErr.Message)
		}
		log.Printf("level=warn component=app msg=\"retry charge did not reach processor, attempt not counted\" failed_payment_id=%s err=%v", fp.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrExternalProcessor, err)
	}

	switch charge.Status {
	case processorclient.ChargeStatusSucceeded:
		return s.recordRecovery(ctx, fp, charge.ID)
	case processorclient.ChargeStatusFailed:
		return s.recordDecline(ctx, fp, charge.FailureCode, charge.FailureMessage)
	default:
		// Pending charges resolve via the broker; leave the tracker untouched.
		log.Printf("level=info component=app msg=\"retry charge pending asynchronous confirmation\" failed_payment_id=%s charge_id=%s", fp.ID, charge.ID)
		return fp, nil
	}
}

func (s *Service) recordRecovery(ctx context.Context, fp *domain.FailedPayment, chargeID string) (*domain.FailedPayment, error) {
	now := time.Now().UTC()
	if err := s.repo.MarkFailedPaymentSucceeded(ctx, fp.ID, now); err != nil {
		log.Printf("level=error component=app msg=\"CRITICAL: charge succeeded but tracker update failed\" failed_payment_id=%s charge_id=%s err=%v", fp.ID, chargeID, err)
		return nil, err
	}
	if fp.OrderID != nil {
		if err := s.repo.MarkOrderPaymentRecovered(ctx, *fp.OrderID, chargeID); err != nil {
			log.Printf("level=error component=app msg=\"payment recovered but order update failed\" order_id=%s charge_id=%s err=%v", *fp.OrderID, chargeID, err)
		}
	}
	log.Printf("level=info component=app msg=\"failed payment recovered\" failed_payment_id=%s charge_id=%s", fp.ID, chargeID)

	recovered := *fp
	recovered.Status = domain.FailedPaymentSucceeded
	recovered.ResolvedAt = &now
	return &recovered, nil
}

func (s *Service) recordDecline(ctx context.Context, fp *domain.FailedPayment, code, message string) (*domain.FailedPayment, error) {
	updated, err := s.repo.RecordFailedPaymentAttempt(ctx, fp.ID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=app msg=\"retry declined\" failed_payment_id=%s retry_count=%d status=%s code=%s", updated.ID, updated.RetryCount, updated.Status, code)
	return updated, fmt.Errorf("%w: %s", ErrChargeDeclined, message)
}

// ListFailedPayments returns the actor's failed payments, newest first.
func (s *Service) ListFailedPayments(ctx context.Context, actor domain.Actor) ([]domain.FailedPayment, error) {
	return s.repo.ListFailedPaymentsByUserID(ctx, actor.UserID)
}

// CancelFailedPayment abandons a retry tracker. Only the owner may cancel, and
// only from a non-terminal state.
func (s *Service) CancelFailedPayment(ctx context.Context, actor domain.Actor, failedPaymentID uuid.UUID) error {
	return s.repo.CancelFailedPayment(ctx, failedPaymentID, actor.UserID)
}
