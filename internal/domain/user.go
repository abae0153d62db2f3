/**
 * @description
 * Identity projection consumed by the engine. Authentication lives with the
 * external identity provider; the engine only keeps the narrow typed shape it
 * needs: the internal UUID, the token subject it maps from, the marketplace
 * role, and the processor-side account references.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the engine's projection of a marketplace account.
type User struct {
	ID                   uuid.UUID `json:"id"`
	Subject              string    `json:"subject"` // JWT sub from the identity provider
	Role                 Role      `json:"role"`
	DisplayName          string    `json:"display_name"`
	ProcessorCustomerRef string    `json:"processor_customer_ref"`
	PayoutAccountRef     *string   `json:"payout_account_ref,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// Actor is the authenticated identity every engine operation receives
// explicitly. Nothing in the engine reaches into ambient request state.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}
