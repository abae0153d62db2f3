package app

import (
	"context"
	"testing"

	"github.com/giglane/settlement-service/internal/domain"
	"github.com/giglane/settlement-service/internal/store"
)

type feePolicyRepoStub struct {
	store.Repository

	policies map[[2]string]int
	lookups  [][2]string
	failAll  bool
}

func (s *feePolicyRepoStub) FindFeePercent(ctx context.Context, role, orderType string) (int, bool, error) {
	s.lookups = append(s.lookups, [2]string{role, orderType})
	if s.failAll {
		return 0, false, context.DeadlineExceeded
	}
	percent, ok := s.policies[[2]string{role, orderType}]
	return percent, ok, nil
}

func newFeeService(repo store.Repository) *Service {
	return NewService(repo, nil, "USD", Limits{}, nil)
}

func TestResolveFeePercent_FallbackChain(t *testing.T) {
	tests := []struct {
		name     string
		policies map[[2]string]int
		role     string
		ordType  string
		want     int
	}{
		{
			name:     "exact role and order type match wins",
			policies: map[[2]string]int{{"seller", "booking"}: 12, {"seller", "default"}: 10, {"default", "booking"}: 9},
			role:     "seller",
			ordType:  "booking",
			want:     12,
		},
		{
			name:     "role default beats order type default",
			policies: map[[2]string]int{{"seller", "default"}: 10, {"default", "booking"}: 9},
			role:     "seller",
			ordType:  "booking",
			want:     10,
		},
		{
			name:     "order type default when role has no entries",
			policies: map[[2]string]int{{"default", "booking"}: 9},
			role:     "seller",
			ordType:  "booking",
			want:     9,
		},
		{
			name:     "hard fallback when nothing matches",
			policies: map[[2]string]int{},
			role:     "seller",
			ordType:  "booking",
			want:     8,
		},
		{
			name:     "out of range configured percent is skipped",
			policies: map[[2]string]int{{"seller", "booking"}: 150, {"seller", "default"}: 10},
			role:     "seller",
			ordType:  "booking",
			want:     10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &feePolicyRepoStub{policies: tt.policies}
			svc := newFeeService(repo)
			got := svc.ResolveFeePercent(context.Background(), tt.role, tt.ordType)
			if got != tt.want {
				t.Fatalf("expected fee percent %d, got %d", tt.want, got)
			}
		})
	}
}

func TestResolveFeePercent_LookupErrorsFallThrough(t *testing.T) {
	repo := &feePolicyRepoStub{failAll: true}
	svc := newFeeService(repo)

	got := svc.ResolveFeePercent(context.Background(), "buyer", "service")
	if got != domain.FallbackFeePercent {
		t.Fatalf("expected hard fallback %d on lookup errors, got %d", domain.FallbackFeePercent, got)
	}
	if len(repo.lookups) != 3 {
		t.Fatalf("expected all 3 chain lookups to be attempted, got %d", len(repo.lookups))
	}
}

func TestQuoteFee_BreakdownReassemblesGross(t *testing.T) {
	tests := []struct {
		name    string
		gross   int64
		percent int
		wantFee int64
	}{
		{name: "eight percent of 10000", gross: 10000, percent: 8, wantFee: 800},
		{name: "rounds half up", gross: 1050, percent: 10, wantFee: 105},
		{name: "exact half rounds up", gross: 50, percent: 1, wantFee: 1},
		{name: "just below half rounds down", gross: 49, percent: 1, wantFee: 0},
		{name: "zero gross", gross: 0, percent: 8, wantFee: 0},
		{name: "zero percent", gross: 99999, percent: 0, wantFee: 0},
		{name: "hundred percent", gross: 777, percent: 100, wantFee: 777},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &feePolicyRepoStub{policies: map[[2]string]int{{"seller", "booking"}: tt.percent}}
			svc := newFeeService(repo)

			breakdown, err := svc.QuoteFee(context.Background(), tt.gross, "seller", "booking")
			if err != nil {
				t.Fatalf("expected quote to succeed, got %v", err)
			}
			if breakdown.FeeAmount != tt.wantFee {
				t.Fatalf("expected fee %d, got %d", tt.wantFee, breakdown.FeeAmount)
			}
			if breakdown.FeeAmount+breakdown.NetAmount != breakdown.GrossAmount {
				t.Fatalf("fee %d + net %d does not reassemble gross %d", breakdown.FeeAmount, breakdown.NetAmount, breakdown.GrossAmount)
			}
		})
	}
}

func TestQuoteFee_RejectsNegativeAmount(t *testing.T) {
	svc := newFeeService(&feePolicyRepoStub{})
	if _, err := svc.QuoteFee(context.Background(), -1, "buyer", "service"); err != ErrAmountOutOfBounds {
		t.Fatalf("expected ErrAmountOutOfBounds, got %v", err)
	}
}
