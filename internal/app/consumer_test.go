package app

import (
	"testing"

	"github.com/google/uuid"

	"github.com/giglane/settlement-service/internal/domain"
)

func TestHandleChargeStatusMessage_MalformedPayloadAcked(t *testing.T) {
	svc := NewService(newWalletRepoStub(testUser()), &processorStub{}, "USD", walletLimits(), nil)

	if !svc.HandleChargeStatusMessage([]byte("{not json")) {
		t.Fatal("malformed payloads must be acked, not requeued")
	}
	if !svc.HandleChargeStatusMessage([]byte(`{"status":"succeeded"}`)) {
		t.Fatal("payloads without a reference must be acked, not requeued")
	}
}

func TestHandleChargeStatusMessage_SucceededCreditsWallet(t *testing.T) {
	user := testUser()
	repo := newWalletRepoStub(user)
	repo.intents["pi_evt"] = &domain.TopUpIntent{
		ID: uuid.New(), UserID: user.ID, Amount: 7500, Currency: "USD",
		ProviderRef: "pi_evt", Status: domain.TopUpIntentPending,
	}
	svc := NewService(repo, &processorStub{}, "USD", walletLimits(), nil)

	body := []byte(`{"reference":"pi_evt","status":"succeeded"}`)
	if !svc.HandleChargeStatusMessage(body) {
		t.Fatal("expected the event to be acked")
	}
	if repo.balance != 7500 {
		t.Fatalf("expected wallet credited 7500, got %d", repo.balance)
	}

	// Redelivery of the same event must not credit twice.
	if !svc.HandleChargeStatusMessage(body) {
		t.Fatal("expected the redelivered event to be acked")
	}
	if repo.balance != 7500 || repo.adjustments != 1 {
		t.Fatalf("expected exactly one credit after redelivery, got balance=%d adjustments=%d", repo.balance, repo.adjustments)
	}
}

func TestHandleChargeStatusMessage_UnknownStatusIgnored(t *testing.T) {
	svc := NewService(newWalletRepoStub(testUser()), &processorStub{}, "USD", walletLimits(), nil)

	if !svc.HandleChargeStatusMessage([]byte(`{"reference":"pi_x","status":"requires_action"}`)) {
		t.Fatal("unknown statuses must be acked and ignored")
	}
}

func TestHandlePayoutStatusMessage_FailureFinalizesRequest(t *testing.T) {
	repo := &payoutRepoStub{}
	svc := NewService(repo, &processorStub{}, "USD", walletLimits(), nil)

	body := []byte(`{"payout_ref":"po_9","status":"failed","failure_reason":"account closed"}`)
	if !svc.HandlePayoutStatusMessage(body) {
		t.Fatal("expected the event to be acked")
	}
	if repo.finalized == nil || repo.finalized.Status != domain.PayoutStatusFailed {
		t.Fatal("expected the payout request finalized as failed")
	}
	if repo.finalized.FailureReason == nil || *repo.finalized.FailureReason != "account closed" {
		t.Fatal("expected the failure reason to be carried onto the row")
	}
	if repo.finalized.CompletedAt != nil {
		t.Fatal("a failed payout must not carry a completed_at stamp")
	}
}

func TestHandlePayoutStatusMessage_MalformedPayloadAcked(t *testing.T) {
	svc := NewService(&payoutRepoStub{}, &processorStub{}, "USD", walletLimits(), nil)

	if !svc.HandlePayoutStatusMessage([]byte("oops")) {
		t.Fatal("malformed payloads must be acked, not requeued")
	}
}
