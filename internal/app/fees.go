/**
 * @description
 * Platform fee resolution and quoting. Percentages come from the fee policy
 * table and are resolved through a fixed fallback chain, ending in a
 * hard-coded literal so fee math keeps working even with an empty table.
 */

package app

import (
	"context"
	"log"

	"github.com/giglane/settlement-service/internal/domain"
)

// ResolveFeePercent walks the fee policy fallback chain for a role and order
// type: (role, orderType), then (role, default), then (default, orderType),
// and finally the hard-coded fallback. Lookup errors are logged and treated as
// a miss so a degraded policy store never blocks a quote.
func (s *Service) ResolveFeePercent(ctx context.Context, role, orderType string) int {
	chain := [][2]string{
		{role, orderType},
		{role, domain.FeePolicyDefaultKey},
		{domain.FeePolicyDefaultKey, orderType},
	}
	for _, key := range chain {
		percent, ok, err := s.repo.FindFeePercent(ctx, key[0], key[1])
		if err != nil {
			log.Printf("level=warn component=app msg=\"fee policy lookup failed\" role=%s order_type=%s err=%v", key[0], key[1], err)
			continue
		}
		if ok && percent >= 0 && percent <= 100 {
			return percent
		}
	}
	return domain.FallbackFeePercent
}

// QuoteFee computes the gross/fee/net split for an order amount in minor
// units. The fee is percent-of-gross rounded half-up, so fee + net always
// reassembles the gross exactly.
func (s *Service) QuoteFee(ctx context.Context, grossAmount int64, role, orderType string) (*domain.FeeBreakdown, error) {
	if grossAmount < 0 {
		return nil, ErrAmountOutOfBounds
	}
	percent := s.ResolveFeePercent(ctx, role, orderType)
	fee := roundHalfUpPercent(grossAmount, percent)
	return &domain.FeeBreakdown{
		GrossAmount: grossAmount,
		FeePercent:  percent,
		FeeAmount:   fee,
		NetAmount:   grossAmount - fee,
	}, nil
}

// roundHalfUpPercent returns percent% of amount, rounded half-up to the
// nearest minor unit. amount and percent are both non-negative here, so the
// +50 bias implements half-up exactly.
func roundHalfUpPercent(amount int64, percent int) int64 {
	return (amount*int64(percent) + 50) / 100
}
