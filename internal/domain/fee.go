/**
 * @description
 * Platform fee policy models. Fee percentages are resolved from a policy table
 * keyed by (role, order type) with a "default" wildcard on either side; the
 * resolver in the app layer walks an explicit fallback chain ending in a
 * hard-coded literal so a missing or unreachable policy store can never block
 * a quote or a settlement.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// FeePolicyDefaultKey is the wildcard key used in the fee config table for
// both the role and order-type columns.
const FeePolicyDefaultKey = "default"

// FallbackFeePercent is the hard-coded last resort when no policy row matches.
const FallbackFeePercent = 8

// PlatformFeeConfig is one row of the fee policy table.
type PlatformFeeConfig struct {
	ID        uuid.UUID `json:"id"`
	Role      string    `json:"role"`       // buyer | seller | default
	OrderType string    `json:"order_type"` // booking | product_request | service | default
	Percent   int       `json:"percent"`    // 0-100
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FeeBreakdown is the gross/fee/net split for a single order amount. The fee
// amount persists on the order at creation time; settlement reads the stored
// value so a later policy change never retroactively alters an order.
type FeeBreakdown struct {
	GrossAmount int64 `json:"gross_amount"`
	FeePercent  int   `json:"fee_percent"`
	FeeAmount   int64 `json:"fee_amount"`
	NetAmount   int64 `json:"net_amount"`
}
