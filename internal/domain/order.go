/**
 * @description
 * This file defines the order lifecycle domain model: the order entity itself,
 * its status and escrow-status enums, and the pure state machine that decides
 * which action a given actor may perform on an order in a given state.
 *
 * The state machine is deliberately side-effect free. It answers two questions:
 * which transitions exist (`TransitionFor`), and which actions the UI may offer
 * (`AvailableActions`). Applying a transition, including the optimistic
 * compare-and-set against the database, is the store's job.
 *
 * @dependencies
 * - time: Standard Go library.
 * - github.com/google/uuid: For entity identifiers.
 */

package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle status of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusAccepted   OrderStatus = "accepted"
	OrderStatusDeclined   OrderStatus = "declined"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusDisputed   OrderStatus = "disputed"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// IsTerminal reports whether no further lifecycle action can move the order.
// completed is not terminal here: a buyer may still dispute a completed order.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDeclined || s == OrderStatusCancelled
}

// EscrowStatus tracks the held funds independently of the order status,
// because release can lag the status change (e.g. during a dispute).
type EscrowStatus string

const (
	EscrowStatusPending        EscrowStatus = "pending"
	EscrowStatusHeld           EscrowStatus = "held"
	EscrowStatusPartialRelease EscrowStatus = "partial_release"
	EscrowStatusReleased       EscrowStatus = "released"
	EscrowStatusRefunded       EscrowStatus = "refunded"
)

// OrderType classifies the engagement between buyer and seller.
type OrderType string

const (
	OrderTypeBooking        OrderType = "booking"
	OrderTypeProductRequest OrderType = "product_request"
	OrderTypeService        OrderType = "service"
)

// Role identifies which side of the marketplace the actor is on.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// CompletionState models the buyer-approval gate for order types that require
// the buyer to sign off on a submitted completion before the order reaches the
// terminal completed status. It is orthogonal to OrderStatus.
type CompletionState string

const (
	CompletionStateNone      CompletionState = "none"
	CompletionStateSubmitted CompletionState = "submitted"
	CompletionStateApproved  CompletionState = "approved"
)

// OrderAction is a lifecycle action dispatched by a buyer or seller.
type OrderAction string

const (
	ActionAccept            OrderAction = "accept"
	ActionDecline           OrderAction = "decline"
	ActionStart             OrderAction = "start"
	ActionComplete          OrderAction = "complete"
	ActionApproveCompletion OrderAction = "approve_completion"
	ActionCancel            OrderAction = "cancel"
	ActionDispute           OrderAction = "dispute"
	ActionResumeWork        OrderAction = "resume_work"
)

// allActions is the canonical ordering used by AvailableActions.
var allActions = []OrderAction{
	ActionAccept,
	ActionDecline,
	ActionStart,
	ActionComplete,
	ActionApproveCompletion,
	ActionCancel,
	ActionDispute,
	ActionResumeWork,
}

// Order is the central record of a buyer/seller engagement. Amounts are in
// integer minor units. ProgressPercent and LastNudgedAt are UI convenience
// state and carry no settlement invariants.
type Order struct {
	ID              uuid.UUID       `json:"id"`
	OrderNumber     string          `json:"order_number"`
	BuyerID         uuid.UUID       `json:"buyer_id"`
	SellerID        uuid.UUID       `json:"seller_id"`
	OrderType       OrderType       `json:"order_type"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	FeeAmount       int64           `json:"fee_amount"`
	VATAmount       int64           `json:"vat_amount"`
	Status          OrderStatus     `json:"status"`
	EscrowStatus    EscrowStatus    `json:"escrow_status"`
	CompletionState CompletionState `json:"completion_state"`
	HasOpenDispute  bool            `json:"has_open_dispute"`
	PaymentRef      *string         `json:"payment_ref,omitempty"`
	ProgressPercent int             `json:"progress_percent"`
	LastNudgedAt    *time.Time      `json:"last_nudged_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// RoleFor returns the role the given user holds on this order, or an empty
// Role when the user is not a party to it.
func (o *Order) RoleFor(userID uuid.UUID) Role {
	switch userID {
	case o.BuyerID:
		return RoleBuyer
	case o.SellerID:
		return RoleSeller
	default:
		return ""
	}
}

// ActionContext carries everything the state machine needs to authorize an
// action. AwaitingApproval is true when a completion has been submitted and
// not yet approved; RequiresApproval is the per-order-type policy flag.
type ActionContext struct {
	Status           OrderStatus
	Role             Role
	HasOpenDispute   bool
	AwaitingApproval bool
	RequiresApproval bool
}

// OrderTransition describes the full effect of an authorized action: the
// status compare-and-set, the escrow side effect, and the completion bookkeeping.
type OrderTransition struct {
	Action            OrderAction
	FromStatus        OrderStatus
	ToStatus          OrderStatus
	EscrowTo          *EscrowStatus
	CompletionStateTo *CompletionState
	SetCompletedAt    bool
	ClearCompletedAt  bool
	RequiresReason    bool
	Settles           bool // triggers the seller payout side of settlement
}

// ErrNoSuchTransition is returned by TransitionFor when the action is not
// legal for the given context. Callers translate it to their own error kind.
var ErrNoSuchTransition = errors.New("no such transition")

func escrowPtr(s EscrowStatus) *EscrowStatus           { return &s }
func completionPtr(s CompletionState) *CompletionState { return &s }

// TransitionFor returns the transition the given action performs in the given
// context, or ErrNoSuchTransition when the action is not permitted. A disputed
// order admits no action other than resume_work, and resume_work itself is
// only legal once the dispute has been resolved (HasOpenDispute is false).
func TransitionFor(action OrderAction, ctx ActionContext) (OrderTransition, error) {
	if ctx.HasOpenDispute && action != ActionResumeWork {
		// Escrow and status are frozen while a dispute is open.
		return OrderTransition{}, ErrNoSuchTransition
	}

	switch action {
	case ActionAccept:
		if ctx.Role == RoleSeller && ctx.Status == OrderStatusPending {
			return OrderTransition{
				Action:     action,
				FromStatus: OrderStatusPending,
				ToStatus:   OrderStatusAccepted,
			}, nil
		}

	case ActionDecline:
		if ctx.Role == RoleSeller && ctx.Status == OrderStatusPending {
			return OrderTransition{
				Action:         action,
				FromStatus:     OrderStatusPending,
				ToStatus:       OrderStatusDeclined,
				EscrowTo:       escrowPtr(EscrowStatusRefunded),
				RequiresReason: true,
			}, nil
		}

	case ActionStart:
		if ctx.Role == RoleSeller && ctx.Status == OrderStatusAccepted {
			return OrderTransition{
				Action:     action,
				FromStatus: OrderStatusAccepted,
				ToStatus:   OrderStatusInProgress,
			}, nil
		}

	case ActionComplete:
		if ctx.Role == RoleSeller && ctx.Status == OrderStatusInProgress && !ctx.AwaitingApproval {
			if ctx.RequiresApproval {
				// Submit for buyer approval; the order stays in progress.
				return OrderTransition{
					Action:            action,
					FromStatus:        OrderStatusInProgress,
					ToStatus:          OrderStatusInProgress,
					CompletionStateTo: completionPtr(CompletionStateSubmitted),
				}, nil
			}
			return OrderTransition{
				Action:         action,
				FromStatus:     OrderStatusInProgress,
				ToStatus:       OrderStatusCompleted,
				EscrowTo:       escrowPtr(EscrowStatusReleased),
				SetCompletedAt: true,
				Settles:        true,
			}, nil
		}

	case ActionApproveCompletion:
		if ctx.Role == RoleBuyer && ctx.Status == OrderStatusInProgress && ctx.AwaitingApproval {
			return OrderTransition{
				Action:            action,
				FromStatus:        OrderStatusInProgress,
				ToStatus:          OrderStatusCompleted,
				EscrowTo:          escrowPtr(EscrowStatusReleased),
				CompletionStateTo: completionPtr(CompletionStateApproved),
				SetCompletedAt:    true,
				Settles:           true,
			}, nil
		}

	case ActionCancel:
		if ctx.Role != RoleBuyer && ctx.Role != RoleSeller {
			break
		}
		switch ctx.Status {
		case OrderStatusPending, OrderStatusAccepted, OrderStatusInProgress:
			return OrderTransition{
				Action:         action,
				FromStatus:     ctx.Status,
				ToStatus:       OrderStatusCancelled,
				EscrowTo:       escrowPtr(EscrowStatusRefunded),
				RequiresReason: true,
			}, nil
		}

	case ActionDispute:
		if ctx.Role != RoleBuyer && ctx.Role != RoleSeller {
			break
		}
		switch ctx.Status {
		case OrderStatusInProgress, OrderStatusCompleted:
			t := OrderTransition{
				Action:         action,
				FromStatus:     ctx.Status,
				ToStatus:       OrderStatusDisputed,
				RequiresReason: true,
			}
			// A completed order loses its terminal marker while disputed.
			if ctx.Status == OrderStatusCompleted {
				t.ClearCompletedAt = true
			}
			return t, nil
		}

	case ActionResumeWork:
		if ctx.Status == OrderStatusDisputed && !ctx.HasOpenDispute {
			if ctx.Role == RoleBuyer || ctx.Role == RoleSeller {
				return OrderTransition{
					Action:     action,
					FromStatus: OrderStatusDisputed,
					ToStatus:   OrderStatusInProgress,
				}, nil
			}
		}
	}

	return OrderTransition{}, ErrNoSuchTransition
}

// AvailableActions computes the set of actions the given actor may dispatch in
// the given context. The surface exposed to clients is computed from the same
// table that authorizes transitions, so UI and authority can never disagree.
func AvailableActions(ctx ActionContext) []OrderAction {
	var actions []OrderAction
	for _, action := range allActions {
		if _, err := TransitionFor(action, ctx); err == nil {
			actions = append(actions, action)
		}
	}
	return actions
}
