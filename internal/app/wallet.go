/**
 * @description
 * Wallet top-up and ledger use cases. A top-up is a two-step flow: a charge is
 * created with the external processor (recorded locally as a top-up intent),
 * and the wallet is credited only once the charge is confirmed, using the
 * charge id as the ledger idempotency key so webhook redelivery,
 * double-confirmation, and polling races all credit exactly once.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/giglane/settlement-service/internal/domain"
	"github.com/giglane/settlement-service/internal/store"
	"github.com/giglane/settlement-service/pkg/processorclient"
)

// CreateTopUp validates the amount, creates a charge with the processor, and
// records a pending top-up intent. No wallet credit happens here.
func (s *Service) CreateTopUp(ctx context.Context, actor domain.Actor, amount int64) (*domain.TopUpIntent, error) {
	if amount < s.limits.TopUpMin || amount > s.limits.TopUpMax {
		return nil, ErrAmountOutOfBounds
	}
	if err := s.consumeRateLimit(ctx, "wallet_top_up", actor.UserID, s.limits.TopUpPerMinute); err != nil {
		return nil, err
	}

	user, err := s.repo.FindUserByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	charge, err := s.processor.CreateCharge(ctx, processorclient.ChargeRequest{
		Amount:      amount,
		Currency:    s.currency,
		CustomerRef: user.ProcessorCustomerRef,
		Description: "Wallet top-up",
		Metadata:    map[string]string{"purpose": "wallet_top_up", "user_id": user.ID.String()},
	})
	if err != nil {
		log.Printf("level=error component=app msg=\"top-up charge creation failed\" user_id=%s amount=%d err=%v", actor.UserID, amount, err)
		return nil, fmt.Errorf("%w: %v", ErrExternalProcessor, err)
	}

	intent := &domain.TopUpIntent{
		ID:          uuid.New(),
		UserID:      actor.UserID,
		Amount:      amount,
		Currency:    s.currency,
		ProviderRef: charge.ID,
		Status:      domain.TopUpIntentPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateTopUpIntent(ctx, intent); err != nil {
		// The charge exists on the processor side; confirmation will recover it.
		log.Printf("level=error component=app msg=\"failed to persist top-up intent\" charge_id=%s err=%v", charge.ID, err)
		return nil, err
	}

	log.Printf("level=info component=app msg=\"top-up intent created\" intent_id=%s charge_id=%s amount=%d", intent.ID, charge.ID, amount)
	return intent, nil
}

// ConfirmTopUp verifies the charge with the processor and credits the wallet.
// actorID restricts confirmation to the intent's owner; pass uuid.Nil for
// trusted callers (the broker consumer). Safe to call any number of times.
func (s *Service) ConfirmTopUp(ctx context.Context, actorID uuid.UUID, providerRef string) (*domain.BalanceAdjustment, error) {
	intent, err := s.repo.FindTopUpIntentByProviderRef(ctx, providerRef)
	if err != nil {
		return nil, err
	}
	if actorID != uuid.Nil && intent.UserID != actorID {
		return nil, ErrNotAuthorized
	}

	charge, err := s.processor.RetrieveCharge(ctx, providerRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalProcessor, err)
	}

	switch charge.Status {
	case processorclient.ChargeStatusSucceeded:
		return s.settleTopUp(ctx, intent)
	case processorclient.ChargeStatusFailed:
		s.failTopUp(ctx, intent, charge.FailureCode, charge.FailureMessage)
		return nil, ErrChargeDeclined
	default:
		return nil, fmt.Errorf("%w: charge %s still %s", ErrExternalProcessor, providerRef, charge.Status)
	}
}

// ApplyChargeSucceeded credits the wallet for an asynchronously confirmed
// charge. Called by the broker consumer, which has already verified the
// event's origin, so no processor round trip is needed.
func (s *Service) ApplyChargeSucceeded(ctx context.Context, providerRef string) error {
	intent, err := s.repo.FindTopUpIntentByProviderRef(ctx, providerRef)
	if err != nil {
		if errors.Is(err, store.ErrTopUpIntentNotFound) {
			// A charge we did not originate (e.g. an order checkout charge).
			log.Printf("level=info component=app msg=\"charge event without matching top-up intent, ignoring\" reference=%s", providerRef)
			return nil
		}
		return err
	}
	_, err = s.settleTopUp(ctx, intent)
	return err
}

// ApplyChargeFailed records an asynchronously reported charge failure: the
// top-up intent is marked failed and a failed-payment row is opened so the
// user can retry from a saved payment method.
func (s *Service) ApplyChargeFailed(ctx context.Context, providerRef, failureCode, failureMessage string) error {
	intent, err := s.repo.FindTopUpIntentByProviderRef(ctx, providerRef)
	if err != nil {
		if errors.Is(err, store.ErrTopUpIntentNotFound) {
			log.Printf("level=info component=app msg=\"charge failure without matching top-up intent, ignoring\" reference=%s", providerRef)
			return nil
		}
		return err
	}
	s.failTopUp(ctx, intent, failureCode, failureMessage)
	return nil
}

func (s *Service) settleTopUp(ctx context.Context, intent *domain.TopUpIntent) (*domain.BalanceAdjustment, error) {
	ref := intent.ProviderRef
	adj, err := s.repo.AdjustBalance(ctx, store.AdjustBalanceParams{
		UserID:           intent.UserID,
		Amount:           intent.Amount,
		Type:             domain.TransactionTypeTopUp,
		PaymentIntentRef: &ref,
		Reference:        fmt.Sprintf("top_up:%s", intent.ID),
		Description:      "Wallet top-up",
		Currency:         intent.Currency,
	})
	if err != nil {
		return nil, err
	}
	if !adj.Applied {
		log.Printf("level=info component=app msg=\"top-up already credited, skipping\" intent_id=%s charge_id=%s", intent.ID, intent.ProviderRef)
		return adj, nil
	}

	if err := s.repo.MarkTopUpIntentConfirmed(ctx, intent.ID, time.Now().UTC()); err != nil {
		// The credit committed; the intent row is only audit state.
		log.Printf("level=warn component=app msg=\"credited wallet but failed to mark intent confirmed\" intent_id=%s err=%v", intent.ID, err)
	}
	log.Printf("level=info component=app msg=\"wallet credited\" user_id=%s amount=%d new_balance=%d", intent.UserID, intent.Amount, adj.NewBalance)
	return adj, nil
}

func (s *Service) failTopUp(ctx context.Context, intent *domain.TopUpIntent, failureCode, failureMessage string) {
	if intent.Status != domain.TopUpIntentPending {
		return
	}
	if err := s.repo.MarkTopUpIntentFailed(ctx, intent.ID); err != nil {
		log.Printf("level=warn component=app msg=\"failed to mark top-up intent failed\" intent_id=%s err=%v", intent.ID, err)
	}
	fp := &domain.FailedPayment{
		ID:             uuid.New(),
		UserID:         intent.UserID,
		Amount:         intent.Amount,
		Currency:       intent.Currency,
		FailureCode:    failureCode,
		FailureMessage: failureMessage,
		MaxRetries:     s.limits.FailedPaymentRetries,
		Status:         domain.FailedPaymentPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.CreateFailedPayment(ctx, fp); err != nil {
		log.Printf("level=error component=app msg=\"failed to open failed-payment record\" intent_id=%s err=%v", intent.ID, err)
		return
	}
	log.Printf("level=info component=app msg=\"failed payment recorded for top-up\" intent_id=%s failed_payment_id=%s code=%s", intent.ID, fp.ID, failureCode)
}

// GetWalletBalance returns the actor's current wallet balance. A user who has
// never topped up gets a zero balance, not an error.
func (s *Service) GetWalletBalance(ctx context.Context, actor domain.Actor) (*domain.AccountBalance, error) {
	return s.repo.GetAccountBalance(ctx, actor.UserID)
}

// ListWalletTransactions returns the actor's ledger history, newest first.
func (s *Service) ListWalletTransactions(ctx context.Context, actor domain.Actor, opts domain.LedgerListOptions) ([]domain.BalanceTransaction, error) {
	return s.repo.ListBalanceTransactions(ctx, actor.UserID, opts)
}
