package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/giglane/settlement-service/internal/domain"
	"github.com/giglane/settlement-service/internal/store"
	"github.com/giglane/settlement-service/pkg/processorclient"
)

// walletRepoStub keeps an in-memory ledger keyed by payment intent ref so the
// idempotency contract of AdjustBalance can be exercised end to end. Every
// applied adjustment appends a transaction row, so tests can check that the
// running balance always equals the sum of the ledger.
type walletRepoStub struct {
	store.Repository

	user    *domain.User
	intents map[string]*domain.TopUpIntent

	balance        int64
	entries        []domain.BalanceTransaction
	appliedRefs    map[string]int64 // payment_intent_ref -> balance after application
	adjustments    int
	failedPayments []*domain.FailedPayment
	confirmedIDs   []uuid.UUID

	dispute *domain.Dispute
	order   *domain.Order
}

func newWalletRepoStub(user *domain.User) *walletRepoStub {
	return &walletRepoStub{
		user:        user,
		intents:     map[string]*domain.TopUpIntent{},
		appliedRefs: map[string]int64{},
	}
}

func (s *walletRepoStub) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	if s.user == nil || s.user.ID != userID {
		return nil, store.ErrUserNotFound
	}
	return s.user, nil
}

func (s *walletRepoStub) CreateTopUpIntent(ctx context.Context, intent *domain.TopUpIntent) error {
	s.intents[intent.ProviderRef] = intent
	return nil
}

func (s *walletRepoStub) FindTopUpIntentByProviderRef(ctx context.Context, providerRef string) (*domain.TopUpIntent, error) {
	intent, ok := s.intents[providerRef]
	if !ok {
		return nil, store.ErrTopUpIntentNotFound
	}
	return intent, nil
}

func (s *walletRepoStub) MarkTopUpIntentConfirmed(ctx context.Context, intentID uuid.UUID, confirmedAt time.Time) error {
	s.confirmedIDs = append(s.confirmedIDs, intentID)
	return nil
}

func (s *walletRepoStub) MarkTopUpIntentFailed(ctx context.Context, intentID uuid.UUID) error {
	for _, intent := range s.intents {
		if intent.ID == intentID {
			intent.Status = domain.TopUpIntentFailed
		}
	}
	return nil
}

func (s *walletRepoStub) CreateFailedPayment(ctx context.Context, fp *domain.FailedPayment) error {
	s.failedPayments = append(s.failedPayments, fp)
	return nil
}

func (s *walletRepoStub) AdjustBalance(ctx context.Context, params store.AdjustBalanceParams) (*domain.BalanceAdjustment, error) {
	if params.PaymentIntentRef != nil {
		if prior, seen := s.appliedRefs[*params.PaymentIntentRef]; seen {
			return &domain.BalanceAdjustment{Applied: false, NewBalance: prior}, nil
		}
	}
	if s.balance+params.Amount < 0 {
		return nil, store.ErrInsufficientFunds
	}
	entry := domain.BalanceTransaction{
		ID:               uuid.New(),
		UserID:           params.UserID,
		Type:             params.Type,
		Amount:           params.Amount,
		BalanceBefore:    s.balance,
		BalanceAfter:     s.balance + params.Amount,
		Reference:        params.Reference,
		PaymentIntentRef: params.PaymentIntentRef,
	}
	s.balance = entry.BalanceAfter
	s.entries = append(s.entries, entry)
	s.adjustments++
	if params.PaymentIntentRef != nil {
		s.appliedRefs[*params.PaymentIntentRef] = s.balance
	}
	return &domain.BalanceAdjustment{Applied: true, NewBalance: s.balance, Transaction: &entry}, nil
}

func (s *walletRepoStub) FindDisputeByID(ctx context.Context, disputeID uuid.UUID) (*domain.Dispute, error) {
	if s.dispute == nil || s.dispute.ID != disputeID {
		return nil, store.ErrDisputeNotFound
	}
	return s.dispute, nil
}

func (s *walletRepoStub) FindOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	if s.order == nil || s.order.ID != orderID {
		return nil, store.ErrOrderNotFound
	}
	return s.order, nil
}

func (s *walletRepoStub) ResolveOrderDispute(ctx context.Context, params store.ResolveOrderDisputeParams) (*domain.Order, error) {
	updated := *s.order
	updated.HasOpenDispute = false
	if params.NewOrderStatus != nil {
		updated.Status = *params.NewOrderStatus
	}
	if params.NewEscrowStatus != nil {
		updated.EscrowStatus = *params.NewEscrowStatus
	}
	return &updated, nil
}

type processorStub struct {
	createCharge   func(req processorclient.ChargeRequest) (*processorclient.ChargeResponse, error)
	retrieveCharge func(chargeID string) (*processorclient.ChargeResponse, error)
	createPayout   func(req processorclient.PayoutRequest) (*processorclient.PayoutResponse, error)
	getBalance     func(accountRef string) (*processorclient.BalanceResponse, error)
}

func (p *processorStub) CreateCharge(ctx context.Context, req processorclient.ChargeRequest) (*processorclient.ChargeResponse, error) {
	return p.createCharge(req)
}

func (p *processorStub) RetrieveCharge(ctx context.Context, chargeID string) (*processorclient.ChargeResponse, error) {
	return p.retrieveCharge(chargeID)
}

func (p *processorStub) CreatePayout(ctx context.Context, req processorclient.PayoutRequest) (*processorclient.PayoutResponse, error) {
	return p.createPayout(req)
}

func (p *processorStub) GetBalance(ctx context.Context, accountRef string) (*processorclient.BalanceResponse, error) {
	return p.getBalance(accountRef)
}

func walletLimits() Limits {
	return Limits{TopUpMin: 500, TopUpMax: 10000000, PayoutMin: 100, FailedPaymentRetries: 3}
}

func testUser() *domain.User {
	return &domain.User{ID: uuid.New(), Subject: "usr_stub", ProcessorCustomerRef: "cus_123"}
}

func TestCreateTopUp_RejectsOutOfBoundsAmounts(t *testing.T) {
	user := testUser()
	repo := newWalletRepoStub(user)
	svc := NewService(repo, &processorStub{}, "USD", walletLimits(), nil)
	actor := domain.Actor{UserID: user.ID}

	for _, amount := range []int64{0, 499, -500, 10000001} {
		if _, err := svc.CreateTopUp(context.Background(), actor, amount); !errors.Is(err, ErrAmountOutOfBounds) {
			t.Fatalf("expected ErrAmountOutOfBounds for amount %d, got %v", amount, err)
		}
	}
	if len(repo.intents) != 0 {
		t.Fatal("no intent should be created for an out-of-bounds amount")
	}
}

func TestCreateTopUp_AcceptsBoundaryAmounts(t *testing.T) {
	user := testUser()
	repo := newWalletRepoStub(user)
	processor := &processorStub{
		createCharge: func(req processorclient.ChargeRequest) (*processorclient.ChargeResponse, error) {
			return &processorclient.ChargeResponse{ID: "ch_" + uuid.NewString(), Status: processorclient.ChargeStatusPending}, nil
		},
	}
	svc := NewService(repo, processor, "USD", walletLimits(), nil)
	actor := domain.Actor{UserID: user.ID}

	for _, amount := range []int64{500, 10000000} {
		intent, err := svc.CreateTopUp(context.Background(), actor, amount)
		if err != nil {
			t.Fatalf("expected boundary amount %d to be accepted, got %v", amount, err)
		}
		if intent.Status != domain.TopUpIntentPending {
			t.Fatalf("expected a pending intent, got %s", intent.Status)
		}
	}
	if repo.balance != 0 {
		t.Fatal("creating a top-up must not credit the wallet")
	}
}

func TestConfirmTopUp_CreditsExactlyOnce(t *testing.T) {
	user := testUser()
	repo := newWalletRepoStub(user)
	repo.intents["pi_123"] = &domain.TopUpIntent{
		ID: uuid.New(), UserID: user.ID, Amount: 5000, Currency: "USD",
		ProviderRef: "pi_123", Status: domain.TopUpIntentPending,
	}
	processor := &processorStub{
		retrieveCharge: func(chargeID string) (*processorclient.ChargeResponse, error) {
			return &processorclient.ChargeResponse{ID: chargeID, Status: processorclient.ChargeStatusSucceeded}, nil
		},
	}
	svc := NewService(repo, processor, "USD", walletLimits(), nil)

	first, err := svc.ConfirmTopUp(context.Background(), user.ID, "pi_123")
	if err != nil {
		t.Fatalf("expected first confirmation to succeed, got %v", err)
	}
	if !first.Applied || first.NewBalance != 5000 {
		t.Fatalf("expected first confirmation to credit 5000, got applied=%t balance=%d", first.Applied, first.NewBalance)
	}

	second, err := svc.ConfirmTopUp(context.Background(), user.ID, "pi_123")
	if err != nil {
		t.Fatalf("expected repeated confirmation to be tolerated, got %v", err)
	}
	if second.Applied {
		t.Fatal("second confirmation must not credit again")
	}
	if repo.balance != 5000 || repo.adjustments != 1 {
		t.Fatalf("expected exactly one credit of 5000, got balance=%d adjustments=%d", repo.balance, repo.adjustments)
	}
}

func TestConfirmTopUp_OwnershipEnforced(t *testing.T) {
	user := testUser()
	repo := newWalletRepoStub(user)
	repo.intents["pi_owner"] = &domain.TopUpIntent{
		ID: uuid.New(), UserID: user.ID, Amount: 5000, Currency: "USD",
		ProviderRef: "pi_owner", Status: domain.TopUpIntentPending,
	}
	svc := NewService(repo, &processorStub{}, "USD", walletLimits(), nil)

	if _, err := svc.ConfirmTopUp(context.Background(), uuid.New(), "pi_owner"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for a stranger's confirmation, got %v", err)
	}
}

func TestApplyChargeFailed_OpensFailedPaymentTracker(t *testing.T) {
	user := testUser()
	repo := newWalletRepoStub(user)
	repo.intents["pi_fail"] = &domain.TopUpIntent{
		ID: uuid.New(), UserID: user.ID, Amount: 5000, Currency: "USD",
		ProviderRef: "pi_fail", Status: domain.TopUpIntentPending,
	}
	svc := NewService(repo, &processorStub{}, "USD", walletLimits(), nil)

	if err := svc.ApplyChargeFailed(context.Background(), "pi_fail", "card_declined", "insufficient funds"); err != nil {
		t.Fatalf("expected failure handling to succeed, got %v", err)
	}
	if len(repo.failedPayments) != 1 {
		t.Fatalf("expected one failed-payment record, got %d", len(repo.failedPayments))
	}
	fp := repo.failedPayments[0]
	if fp.Status != domain.FailedPaymentPending || fp.MaxRetries != 3 || fp.FailureCode != "card_declined" {
		t.Fatalf("unexpected failed payment record: %+v", fp)
	}
	if repo.balance != 0 {
		t.Fatal("a failed charge must not credit the wallet")
	}
}

func TestWalletLedger_BalanceEqualsSumOfTransactions(t *testing.T) {
	user := testUser()
	repo := newWalletRepoStub(user)
	repo.intents["pi_a"] = &domain.TopUpIntent{
		ID: uuid.New(), UserID: user.ID, Amount: 5000, Currency: "USD",
		ProviderRef: "pi_a", Status: domain.TopUpIntentPending,
	}
	repo.intents["pi_b"] = &domain.TopUpIntent{
		ID: uuid.New(), UserID: user.ID, Amount: 2500, Currency: "USD",
		ProviderRef: "pi_b", Status: domain.TopUpIntentPending,
	}
	order := testOrder(user.ID, uuid.New(), domain.OrderStatusDisputed)
	order.Amount = 4000
	order.HasOpenDispute = true
	repo.order = order
	repo.dispute = &domain.Dispute{
		ID: uuid.New(), OrderID: order.ID, InitiatorID: user.ID,
		Reason: "not delivered", Status: domain.DisputeStatusOpen,
	}
	processor := &processorStub{
		retrieveCharge: func(chargeID string) (*processorclient.ChargeResponse, error) {
			return &processorclient.ChargeResponse{ID: chargeID, Status: processorclient.ChargeStatusSucceeded}, nil
		},
	}
	svc := NewService(repo, processor, "USD", walletLimits(), nil)

	for _, ref := range []string{"pi_a", "pi_b", "pi_a"} { // third confirmation replays pi_a
		if _, err := svc.ConfirmTopUp(context.Background(), user.ID, ref); err != nil {
			t.Fatalf("expected confirmation of %s to succeed, got %v", ref, err)
		}
	}
	if _, err := svc.ResolveDispute(context.Background(), repo.dispute.ID, domain.DisputeOutcomeRefund, "seller unresponsive", "ops_admin"); err != nil {
		t.Fatalf("expected refund resolution to succeed, got %v", err)
	}

	if len(repo.entries) != 3 {
		t.Fatalf("expected 3 ledger rows (two top-ups, one refund), got %d", len(repo.entries))
	}
	var sum int64
	for _, entry := range repo.entries {
		if entry.BalanceAfter != entry.BalanceBefore+entry.Amount {
			t.Fatalf("ledger row %s breaks before+amount=after: %+v", entry.ID, entry)
		}
		sum += entry.Amount
	}
	if sum != repo.balance {
		t.Fatalf("ledger sum %d does not equal balance %d", sum, repo.balance)
	}
	if repo.balance != 5000+2500+4000 {
		t.Fatalf("expected balance 11500 after two top-ups and a refund, got %d", repo.balance)
	}
}

func TestApplyChargeSucceeded_UnknownReferenceIgnored(t *testing.T) {
	repo := newWalletRepoStub(testUser())
	svc := NewService(repo, &processorStub{}, "USD", walletLimits(), nil)

	if err := svc.ApplyChargeSucceeded(context.Background(), "pi_not_ours"); err != nil {
		t.Fatalf("expected unknown charge reference to be ignored, got %v", err)
	}
	if repo.balance != 0 {
		t.Fatal("unknown charge must not credit anything")
	}
}
