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

type payoutRepoStub struct {
	store.Repository

	user *domain.User
	pref *domain.PayoutPreference

	created      *domain.PayoutRequest
	processing   bool
	processorRef string
	failedReason string
	finalized    *domain.PayoutRequest
	finalizedErr error
}

func (s *payoutRepoStub) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.user, nil
}

func (s *payoutRepoStub) GetPayoutPreference(ctx context.Context, userID uuid.UUID) (*domain.PayoutPreference, error) {
	if s.pref == nil {
		return nil, store.ErrPayoutPreferenceNotSet
	}
	return s.pref, nil
}

func (s *payoutRepoStub) CreatePayoutRequest(ctx context.Context, req *domain.PayoutRequest) error {
	s.created = req
	return nil
}

func (s *payoutRepoStub) MarkPayoutRequestProcessing(ctx context.Context, id uuid.UUID, processorRef string, processedAt time.Time) error {
	s.processing = true
	s.processorRef = processorRef
	return nil
}

func (s *payoutRepoStub) MarkPayoutRequestFailed(ctx context.Context, id uuid.UUID, failureReason string) error {
	s.failedReason = failureReason
	return nil
}

func (s *payoutRepoStub) FinalizePayoutRequestByRef(ctx context.Context, processorRef string, status domain.PayoutRequestStatus, failureReason *string, completedAt time.Time) (*domain.PayoutRequest, error) {
	if s.finalizedErr != nil {
		return nil, s.finalizedErr
	}
	s.finalized = &domain.PayoutRequest{ID: uuid.New(), Status: status, ProcessorPayoutRef: &processorRef, FailureReason: failureReason}
	if status == domain.PayoutStatusCompleted {
		s.finalized.CompletedAt = &completedAt
	}
	return s.finalized, nil
}

func usdBalance(amount int64) *processorclient.BalanceResponse {
	return &processorclient.BalanceResponse{Available: []processorclient.BalanceEntry{{Currency: "USD", Amount: amount}}}
}

func payoutUser(accountRef string) *domain.User {
	user := testUser()
	if accountRef != "" {
		user.PayoutAccountRef = &accountRef
	}
	return user
}

func newPayoutService(repo store.Repository, processor ProcessorClient) *Service {
	return NewService(repo, processor, "USD", walletLimits(), nil)
}

func TestRequestPayout_NoAccountRejectedBeforeRowCreation(t *testing.T) {
	repo := &payoutRepoStub{user: payoutUser("")}
	svc := newPayoutService(repo, &processorStub{})

	_, err := svc.RequestPayout(context.Background(), domain.Actor{UserID: repo.user.ID}, 5000)
	if !errors.Is(err, ErrNoPayoutAccount) {
		t.Fatalf("expected ErrNoPayoutAccount, got %v", err)
	}
	if repo.created != nil {
		t.Fatal("no payout request row may exist for a rejected request")
	}
}

func TestRequestPayout_BelowMinimumRejectedBeforeRowCreation(t *testing.T) {
	repo := &payoutRepoStub{user: payoutUser("acct_1")}
	svc := newPayoutService(repo, &processorStub{})

	_, err := svc.RequestPayout(context.Background(), domain.Actor{UserID: repo.user.ID}, 99)
	if !errors.Is(err, ErrBelowPayoutMinimum) {
		t.Fatalf("expected ErrBelowPayoutMinimum, got %v", err)
	}
	if repo.created != nil {
		t.Fatal("no payout request row may exist for a below-minimum request")
	}
}

func TestRequestPayout_InsufficientBalanceRejectedBeforeRowCreation(t *testing.T) {
	repo := &payoutRepoStub{user: payoutUser("acct_1")}
	processor := &processorStub{
		getBalance: func(accountRef string) (*processorclient.BalanceResponse, error) {
			return usdBalance(4999), nil
		},
	}
	svc := newPayoutService(repo, processor)

	_, err := svc.RequestPayout(context.Background(), domain.Actor{UserID: repo.user.ID}, 5000)
	if !errors.Is(err, ErrInsufficientProcessorBalance) {
		t.Fatalf("expected ErrInsufficientProcessorBalance, got %v", err)
	}
	if repo.created != nil {
		t.Fatal("no payout request row may exist for an insufficient-balance request")
	}
}

func TestRequestPayout_SuccessMovesToProcessing(t *testing.T) {
	repo := &payoutRepoStub{user: payoutUser("acct_1")}
	processor := &processorStub{
		getBalance: func(accountRef string) (*processorclient.BalanceResponse, error) {
			return usdBalance(100000), nil
		},
		createPayout: func(req processorclient.PayoutRequest) (*processorclient.PayoutResponse, error) {
			if req.DestinationAccount != "acct_1" {
				t.Fatalf("expected payout to the user's account, got %s", req.DestinationAccount)
			}
			return &processorclient.PayoutResponse{ID: "po_1", Status: processorclient.PayoutStatusProcessing}, nil
		},
	}
	svc := newPayoutService(repo, processor)

	req, err := svc.RequestPayout(context.Background(), domain.Actor{UserID: repo.user.ID}, 5000)
	if err != nil {
		t.Fatalf("expected payout to succeed, got %v", err)
	}
	if req.Status != domain.PayoutStatusProcessing {
		t.Fatalf("expected processing status, got %s", req.Status)
	}
	if !repo.processing || repo.processorRef != "po_1" {
		t.Fatal("expected the request to be marked processing with the processor reference")
	}
}

func TestRequestPayout_PreferenceDestinationWins(t *testing.T) {
	repo := &payoutRepoStub{
		user: payoutUser("acct_fallback"),
		pref: &domain.PayoutPreference{UserID: uuid.New(), DestinationAccountRef: "acct_pref", Schedule: "manual"},
	}
	var destination string
	processor := &processorStub{
		getBalance: func(accountRef string) (*processorclient.BalanceResponse, error) {
			return usdBalance(100000), nil
		},
		createPayout: func(req processorclient.PayoutRequest) (*processorclient.PayoutResponse, error) {
			destination = req.DestinationAccount
			return &processorclient.PayoutResponse{ID: "po_2", Status: processorclient.PayoutStatusProcessing}, nil
		},
	}
	svc := newPayoutService(repo, processor)

	if _, err := svc.RequestPayout(context.Background(), domain.Actor{UserID: repo.user.ID}, 5000); err != nil {
		t.Fatalf("expected payout to succeed, got %v", err)
	}
	if destination != "acct_pref" {
		t.Fatalf("expected the preference destination to win, got %s", destination)
	}
}

func TestRequestPayout_InitiationFailureKeepsRow(t *testing.T) {
	repo := &payoutRepoStub{user: payoutUser("acct_1")}
	processor := &processorStub{
		getBalance: func(accountRef string) (*processorclient.BalanceResponse, error) {
			return usdBalance(100000), nil
		},
		createPayout: func(req processorclient.PayoutRequest) (*processorclient.PayoutResponse, error) {
			return nil, &processorclient.ErrorResponse{Code: "account_frozen", Message: "destination frozen", Status: 422}
		},
	}
	svc := newPayoutService(repo, processor)

	req, err := svc.RequestPayout(context.Background(), domain.Actor{UserID: repo.user.ID}, 5000)
	if !errors.Is(err, ErrExternalProcessor) {
		t.Fatalf("expected ErrExternalProcessor, got %v", err)
	}
	if repo.created == nil {
		t.Fatal("the request row must be created before the processor call")
	}
	if req == nil || req.Status != domain.PayoutStatusFailed {
		t.Fatalf("expected the returned row marked failed, got %+v", req)
	}
	if repo.failedReason == "" {
		t.Fatal("expected the failure reason to be recorded on the row")
	}
}

func TestApplyPayoutStatus_FinalizesProcessingRequest(t *testing.T) {
	repo := &payoutRepoStub{}
	svc := newPayoutService(repo, &processorStub{})

	if err := svc.ApplyPayoutStatus(context.Background(), "po_1", "completed", ""); err != nil {
		t.Fatalf("expected finalization to succeed, got %v", err)
	}
	if repo.finalized == nil || repo.finalized.Status != domain.PayoutStatusCompleted {
		t.Fatal("expected the payout request to be finalized as completed")
	}
	if repo.finalized.CompletedAt == nil {
		t.Fatal("expected completed_at stamped on the completed outcome")
	}
}

func TestApplyPayoutStatus_UnknownReferenceIgnored(t *testing.T) {
	repo := &payoutRepoStub{finalizedErr: store.ErrPayoutRequestNotFound}
	svc := newPayoutService(repo, &processorStub{})

	if err := svc.ApplyPayoutStatus(context.Background(), "po_ghost", "failed", "unknown"); err != nil {
		t.Fatalf("expected unknown payout reference to be tolerated, got %v", err)
	}
}
