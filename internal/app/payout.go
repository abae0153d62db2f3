/**
 * @description
 * Payout request processing for providers withdrawing their settled earnings.
 * Every eligibility check (payout account on file, external balance, minimum
 * amount) runs before a request row is created, so the payout_requests table
 * only ever contains requests that were actually attempted. Failed rows are
 * kept forever as an audit trail.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/giglane/settlement-service/internal/domain"
	"github.com/giglane/settlement-service/internal/store"
	"github.com/giglane/settlement-service/pkg/processorclient"
)

// RequestPayout initiates a withdrawal of settled funds for a provider. The
// destination comes from the payout preference when set, otherwise the payout
// account on the user record.
func (s *Service) RequestPayout(ctx context.Context, actor domain.Actor, amount int64) (*domain.PayoutRequest, error) {
	if err := s.consumeRateLimit(ctx, "payout_request", actor.UserID, s.limits.PayoutPerMinute); err != nil {
		return nil, err
	}

	user, err := s.repo.FindUserByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	destination, err := s.payoutDestination(ctx, user)
	if err != nil {
		return nil, err
	}

	if amount < s.limits.PayoutMin {
		return nil, ErrBelowPayoutMinimum
	}

	balance, err := s.processor.GetBalance(ctx, destination)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalProcessor, err)
	}
	if amount > balance.AvailableIn(s.currency) {
		return nil, ErrInsufficientProcessorBalance
	}

	// All checks passed; only now does a request row exist.
	req := &domain.PayoutRequest{
		ID:          uuid.New(),
		ProviderID:  actor.UserID,
		Amount:      amount,
		Currency:    s.currency,
		Status:      domain.PayoutStatusPending,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.repo.CreatePayoutRequest(ctx, req); err != nil {
		return nil, err
	}

	payout, err := s.processor.CreatePayout(ctx, processorclient.PayoutRequest{
		Amount:             amount,
		Currency:           s.currency,
		DestinationAccount: destination,
		Description:        fmt.Sprintf("Payout request %s", req.ID),
	})
	if err != nil {
		// The row stays as a failed attempt; never delete it.
		reason := err.Error()
		if markErr := s.repo.MarkPayoutRequestFailed(ctx, req.ID, reason); markErr != nil {
			log.Printf("level=error component=app msg=\"failed to mark payout request failed\" payout_request_id=%s err=%v", req.ID, markErr)
		}
		req.Status = domain.PayoutStatusFailed
		req.FailureReason = &reason
		log.Printf("level=error component=app msg=\"payout initiation failed\" payout_request_id=%s provider_id=%s err=%v", req.ID, actor.UserID, err)
		return req, fmt.Errorf("%w: %v", ErrExternalProcessor, err)
	}

	now := time.Now().UTC()
	if err := s.repo.MarkPayoutRequestProcessing(ctx, req.ID, payout.ID, now); err != nil {
		log.Printf("level=error component=app msg=\"payout created but status update failed\" payout_request_id=%s processor_ref=%s err=%v", req.ID, payout.ID, err)
		return nil, err
	}
	req.Status = domain.PayoutStatusProcessing
	req.ProcessorPayoutRef = &payout.ID
	req.ProcessedAt = &now

	log.Printf("level=info component=app msg=\"payout processing\" payout_request_id=%s processor_ref=%s amount=%d", req.ID, payout.ID, amount)
	return req, nil
}

func (s *Service) payoutDestination(ctx context.Context, user *domain.User) (string, error) {
	pref, err := s.repo.GetPayoutPreference(ctx, user.ID)
	switch {
	case err == nil && strings.TrimSpace(pref.DestinationAccountRef) != "":
		return pref.DestinationAccountRef, nil
	case err != nil && err != store.ErrPayoutPreferenceNotSet:
		return "", err
	}
	if user.PayoutAccountRef != nil && strings.TrimSpace(*user.PayoutAccountRef) != "" {
		return *user.PayoutAccountRef, nil
	}
	return "", ErrNoPayoutAccount
}

// ApplyPayoutStatus finalizes a processing payout request from an
// asynchronous processor notification. Unknown references and repeated
// notifications are tolerated; only the first transition out of processing
// takes effect.
func (s *Service) ApplyPayoutStatus(ctx context.Context, processorRef, status, failureReason string) error {
	var target domain.PayoutRequestStatus
	switch status {
	case processorclient.PayoutStatusCompleted:
		target = domain.PayoutStatusCompleted
	case processorclient.PayoutStatusFailed:
		target = domain.PayoutStatusFailed
	default:
		log.Printf("level=info component=app msg=\"ignoring payout status\" processor_ref=%s status=%s", processorRef, status)
		return nil
	}

	var reason *string
	if target == domain.PayoutStatusFailed && failureReason != "" {
		reason = &failureReason
	}

	req, err := s.repo.FinalizePayoutRequestByRef(ctx, processorRef, target, reason, time.Now().UTC())
	if err != nil {
		if err == store.ErrPayoutRequestNotFound {
			// Either never ours or already finalized by an earlier delivery.
			log.Printf("level=info component=app msg=\"payout notification without matching processing request, ignoring\" processor_ref=%s", processorRef)
			return nil
		}
		return err
	}

	log.Printf("level=info component=app msg=\"payout finalized\" payout_request_id=%s status=%s", req.ID, req.Status)
	return nil
}

// GetPayoutRequest returns a single payout request, restricted to its owner.
func (s *Service) GetPayoutRequest(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.PayoutRequest, error) {
	req, err := s.repo.FindPayoutRequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.ProviderID != actor.UserID {
		return nil, ErrNotAuthorized
	}
	return req, nil
}

// ListPayoutRequests returns the actor's payout history, newest first.
func (s *Service) ListPayoutRequests(ctx context.Context, actor domain.Actor) ([]domain.PayoutRequest, error) {
	return s.repo.ListPayoutRequestsByProviderID(ctx, actor.UserID)
}

// GetPayoutPreference returns the actor's payout destination and schedule.
func (s *Service) GetPayoutPreference(ctx context.Context, actor domain.Actor) (*domain.PayoutPreference, error) {
	return s.repo.GetPayoutPreference(ctx, actor.UserID)
}

// UpdatePayoutPreference sets the actor's payout destination and schedule.
func (s *Service) UpdatePayoutPreference(ctx context.Context, actor domain.Actor, destinationAccountRef, schedule string) (*domain.PayoutPreference, error) {
	destinationAccountRef = strings.TrimSpace(destinationAccountRef)
	if destinationAccountRef == "" {
		return nil, ErrNoPayoutAccount
	}
	switch schedule {
	case "manual", "weekly", "monthly":
	default:
		return nil, ErrInvalidPayoutSchedule
	}
	pref := &domain.PayoutPreference{
		UserID:                actor.UserID,
		DestinationAccountRef: destinationAccountRef,
		Schedule:              schedule,
		UpdatedAt:             time.Now().UTC(),
	}
	if err := s.repo.UpsertPayoutPreference(ctx, pref); err != nil {
		return nil, err
	}
	return pref, nil
}
