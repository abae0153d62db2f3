/**
 * @description
 * This file contains the core business logic for the settlement-service. The `Service`
 * struct orchestrates the order lifecycle, coordinating between the database repository,
 * the payment processor API client, and the message broker.
 *
 * Key features:
 * - Dispatches order lifecycle actions through the pure transition table and applies
 *   them with a compare-and-set guard so concurrent actors cannot double-apply.
 * - Resolves disputes through an internal operations endpoint, including the
 *   idempotent wallet refund on a refund outcome.
 * - Publishes order transition events to RabbitMQ for asynchronous consumers.
 *
 * @dependencies
 * - context, errors, fmt, log, strings, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/processorclient: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/giglane/settlement-service/internal/domain"
	"github.com/giglane/settlement-service/internal/store"
	"github.com/giglane/settlement-service/pkg/processorclient"
)

// Business rule violations surfaced to the API layer. Handlers map these to
// HTTP status codes; everything else is treated as an internal error.
var (
	ErrNotAuthorized                = errors.New("actor is not a participant with permission for this action")
	ErrInvalidTransition            = errors.New("action is not valid for the order's current state")
	ErrReasonRequired               = errors.New("a non-empty reason is required for this action")
	ErrOpenDisputeExists            = errors.New("order already has an open dispute")
	ErrDisputeAlreadyResolved       = errors.New("dispute has already been resolved")
	ErrAmountOutOfBounds            = errors.New("amount is outside the allowed range")
	ErrNotRetryable                 = errors.New("failed payment is in a terminal state and cannot be retried")
	ErrPaymentMethodRequired        = errors.New("a payment method reference is required")
	ErrChargeDeclined               = errors.New("payment processor declined the charge")
	ErrNoPayoutAccount              = errors.New("provider has no payout account on file")
	ErrInsufficientProcessorBalance = errors.New("processor balance is insufficient for the requested payout")
	ErrBelowPayoutMinimum           = errors.New("payout amount is below the minimum")
	ErrInvalidPayoutSchedule        = errors.New("payout schedule must be manual, weekly or monthly")
	ErrExternalProcessor            = errors.New("payment processor request failed")
	ErrRateLimited                  = errors.New("rate limit exceeded")
)

// ProcessorClient is the subset of the payment processor API the service uses.
// Declared here so tests can substitute a stub without a live processor.
type ProcessorClient interface {
	CreateCharge(ctx context.Context, req processorclient.ChargeRequest) (*processorclient.ChargeResponse, error)
	RetrieveCharge(ctx context.Context, chargeID string) (*processorclient.ChargeResponse, error)
	CreatePayout(ctx context.Context, req processorclient.PayoutRequest) (*processorclient.PayoutResponse, error)
	GetBalance(ctx context.Context, accountRef string) (*processorclient.BalanceResponse, error)
}

// RateLimiter counts a hit against a scoped per-subject window. A nil limiter
// disables rate limiting entirely.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Publisher is the subset of the event producer the service needs.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// Limits carries the money-movement guardrails loaded from configuration.
type Limits struct {
	TopUpMin             int64
	TopUpMax             int64
	PayoutMin            int64
	FailedPaymentRetries int
	TopUpPerMinute       int
	PayoutPerMinute      int
}

// Service provides the core business logic for order settlement.
type Service struct {
	repo          store.Repository
	processor     ProcessorClient
	eventProducer Publisher
	eventExchange string
	rateLimiter   RateLimiter
	currency      string
	limits        Limits
	approvalTypes map[domain.OrderType]bool
}

// NewService creates a new settlement service instance. approvalOrderTypes lists
// the order types whose completion must be approved by the buyer before the
// order settles.
func NewService(repo store.Repository, processor ProcessorClient, currency string, limits Limits, approvalOrderTypes []string) *Service {
	approval := make(map[domain.OrderType]bool, len(approvalOrderTypes))
	for _, t := range approvalOrderTypes {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			approval[domain.OrderType(trimmed)] = true
		}
	}
	return &Service{
		repo:          repo,
		processor:     processor,
		currency:      currency,
		limits:        limits,
		approvalTypes: approval,
	}
}

// SetEventProducer wires the message broker producer. A nil producer leaves
// event publication disabled; nothing in the engine blocks on it.
func (s *Service) SetEventProducer(producer Publisher, exchange string) {
	s.eventProducer = producer
	s.eventExchange = exchange
}

// SetRateLimiter wires the distributed rate limiter for money movement
// endpoints. A nil limiter disables rate limiting.
func (s *Service) SetRateLimiter(limiter RateLimiter) {
	s.rateLimiter = limiter
}

// ResolveInternalUserID converts an identity-provider subject (from a validated
// JWT) into the internal UUID used by our database.
func (s *Service) ResolveInternalUserID(ctx context.Context, subject string) (uuid.UUID, error) {
	return s.repo.FindUserIDBySubject(ctx, subject)
}

// GetOrder returns an order, restricted to its two participants.
func (s *Service) GetOrder(ctx context.Context, actor domain.Actor, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.RoleFor(actor.UserID) == "" {
		return nil, ErrNotAuthorized
	}
	return order, nil
}

// AvailableOrderActions lists the actions the acting participant may take on
// the order right now. Used by clients to render action buttons.
func (s *Service) AvailableOrderActions(ctx context.Context, actor domain.Actor, orderID uuid.UUID) ([]domain.OrderAction, error) {
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	role := order.RoleFor(actor.UserID)
	if role == "" {
		return nil, ErrNotAuthorized
	}
	return domain.AvailableActions(s.actionContext(order, role)), nil
}

// DispatchOrderAction validates and applies a lifecycle action on behalf of a
// participant. The transition is applied with a compare-and-set on the order's
// current status, so if two actors race, exactly one wins and the loser gets
// store.ErrConflictingTransition.
func (s *Service) DispatchOrderAction(ctx context.Context, actor domain.Actor, orderID uuid.UUID, action domain.OrderAction, reason string) (*domain.Order, error) {
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	role := order.RoleFor(actor.UserID)
	if role == "" {
		return nil, ErrNotAuthorized
	}

	if action == domain.ActionDispute && order.HasOpenDispute {
		return nil, ErrOpenDisputeExists
	}

	transition, err := domain.TransitionFor(action, s.actionContext(order, role))
	if err != nil {
		log.Printf("level=info component=app msg=\"rejected order action\" order_id=%s action=%s status=%s role=%s", orderID, action, order.Status, role)
		return nil, ErrInvalidTransition
	}

	reason = strings.TrimSpace(reason)
	if transition.RequiresReason && reason == "" {
		return nil, ErrReasonRequired
	}

	params := store.ApplyOrderTransitionParams{
		OrderID:            orderID,
		ExpectedStatus:     order.Status,
		NewStatus:          transition.ToStatus,
		NewEscrowStatus:    transition.EscrowTo,
		NewCompletionState: transition.CompletionStateTo,
		SetCompletedAt:     transition.SetCompletedAt,
		ClearCompletedAt:   transition.ClearCompletedAt,
	}
	if action == domain.ActionApproveCompletion {
		expected := domain.CompletionStateSubmitted
		params.ExpectedCompletionState = &expected
	}
	if action == domain.ActionComplete {
		// Guards a race between two complete calls when approval is required.
		expected := domain.CompletionStateNone
		params.ExpectedCompletionState = &expected
	}
	if action == domain.ActionDispute {
		setOpen := true
		params.SetHasOpenDispute = &setOpen
		params.OpenDispute = &domain.Dispute{
			ID:          uuid.New(),
			OrderID:     orderID,
			InitiatorID: actor.UserID,
			Reason:      reason,
			Status:      domain.DisputeStatusOpen,
			CreatedAt:   time.Now().UTC(),
		}
	}

	updated, err := s.repo.ApplyOrderTransition(ctx, params)
	if err != nil {
		return nil, err
	}

	s.publishTransition(ctx, updated, actor, role, action, order.Status, reason)

	if transition.Settles {
		s.recordSettlement(ctx, updated)
	}

	return updated, nil
}

// ResolveDispute applies an operations decision to an open dispute. Outcomes:
//   - release: funds go to the seller, the order completes.
//   - refund:  funds return to the buyer, the order is cancelled, and the
//     buyer's wallet is credited idempotently.
//   - resume:  the dispute closes and work continues; the order stays disputed
//     until a participant resumes it.
func (s *Service) ResolveDispute(ctx context.Context, disputeID uuid.UUID, outcome domain.DisputeOutcome, resolution string, resolvedBy string) (*domain.Order, error) {
	dispute, err := s.repo.FindDisputeByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status != domain.DisputeStatusOpen {
		return nil, ErrDisputeAlreadyResolved
	}

	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return nil, ErrReasonRequired
	}

	params := store.ResolveOrderDisputeParams{
		DisputeID:  disputeID,
		Resolution: resolution,
		ResolvedBy: resolvedBy,
	}
	switch outcome {
	case domain.DisputeOutcomeRelease:
		completed := domain.OrderStatusCompleted
		released := domain.EscrowStatusReleased
		params.DisputeStatus = domain.DisputeStatusResolvedRelease
		params.NewOrderStatus = &completed
		params.NewEscrowStatus = &released
		params.SetCompletedAt = true
	case domain.DisputeOutcomeRefund:
		cancelled := domain.OrderStatusCancelled
		refunded := domain.EscrowStatusRefunded
		params.DisputeStatus = domain.DisputeStatusResolvedRefund
		params.NewOrderStatus = &cancelled
		params.NewEscrowStatus = &refunded
	case domain.DisputeOutcomeResume:
		// Order stays disputed; a participant moves it back with resume_work.
		params.DisputeStatus = domain.DisputeStatusResolvedResume
	default:
		return nil, fmt.Errorf("unknown dispute outcome: %q", outcome)
	}

	updated, err := s.repo.ResolveOrderDispute(ctx, params)
	if err != nil {
		return nil, err
	}

	if outcome == domain.DisputeOutcomeRefund {
		s.creditRefund(ctx, updated)
	}
	if outcome == domain.DisputeOutcomeRelease {
		s.recordSettlement(ctx, updated)
	}

	if s.eventProducer != nil {
		event := map[string]interface{}{
			"dispute_id":  disputeID,
			"order_id":    updated.ID,
			"outcome":     string(outcome),
			"resolved_by": resolvedBy,
			"resolved_at": time.Now().UTC(),
		}
		if err := s.eventProducer.Publish(ctx, s.eventExchange, "order.dispute.resolved", event); err != nil {
			log.Printf("level=warn component=app msg=\"failed to publish dispute resolution event\" dispute_id=%s err=%v", disputeID, err)
		}
	}

	return updated, nil
}

// creditRefund returns escrowed funds to the buyer's wallet. The idempotency
// key is derived from the order id so a refund can only ever land once, no
// matter how many paths attempt it.
func (s *Service) creditRefund(ctx context.Context, order *domain.Order) {
	key := fmt.Sprintf("refund_order_%s", order.ID)
	adj, err := s.repo.AdjustBalance(ctx, store.AdjustBalanceParams{
		UserID:           order.BuyerID,
		Amount:           order.Amount,
		Type:             domain.TransactionTypeRefund,
		PaymentIntentRef: &key,
		Reference:        fmt.Sprintf("order:%s", order.ID),
		Description:      "Refund for cancelled order",
		Currency:         order.Currency,
	})
	if err != nil {
		// The order transition already committed; ops must retry this credit.
		log.Printf("level=error component=app msg=\"CRITICAL: failed to credit refund to buyer wallet\" order_id=%s buyer_id=%s amount=%d err=%v", order.ID, order.BuyerID, order.Amount, err)
		return
	}
	if !adj.Applied {
		log.Printf("level=info component=app msg=\"refund already credited, skipping\" order_id=%s", order.ID)
	}
}

// recordSettlement logs the final money split once an order settles and
// publishes it for the payout side. The stored fee amount is authoritative;
// policy changes after order creation never alter it.
func (s *Service) recordSettlement(ctx context.Context, order *domain.Order) {
	net := order.Amount - order.FeeAmount
	log.Printf("level=info component=app msg=\"order settled\" order_id=%s gross=%d fee=%d net=%d currency=%s", order.ID, order.Amount, order.FeeAmount, net, order.Currency)

	if s.eventProducer == nil {
		return
	}
	event := map[string]interface{}{
		"order_id":     order.ID,
		"seller_id":    order.SellerID,
		"gross_amount": order.Amount,
		"fee_amount":   order.FeeAmount,
		"net_amount":   net,
		"currency":     order.Currency,
		"settled_at":   time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, s.eventExchange, "order.settled", event); err != nil {
		log.Printf("level=warn component=app msg=\"failed to publish settlement event\" order_id=%s err=%v", order.ID, err)
	}
}

func (s *Service) publishTransition(ctx context.Context, order *domain.Order, actor domain.Actor, role domain.Role, action domain.OrderAction, fromStatus domain.OrderStatus, reason string) {
	if s.eventProducer == nil {
		return
	}
	event := domain.OrderTransitionEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Action:      action,
		FromStatus:  fromStatus,
		ToStatus:    order.Status,
		ActorID:     actor.UserID,
		ActorRole:   role,
		Reason:      reason,
		Timestamp:   time.Now().UTC(),
	}
	routingKey := fmt.Sprintf("order.status.%s", order.Status)
	if err := s.eventProducer.Publish(ctx, s.eventExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=app msg=\"failed to publish order transition event\" order_id=%s action=%s err=%v", order.ID, action, err)
	}
}

func (s *Service) actionContext(order *domain.Order, role domain.Role) domain.ActionContext {
	return domain.ActionContext{
		Status:           order.Status,
		Role:             role,
		HasOpenDispute:   order.HasOpenDispute,
		AwaitingApproval: order.CompletionState == domain.CompletionStateSubmitted,
		RequiresApproval: s.approvalTypes[order.OrderType],
	}
}

// consumeRateLimit applies a per-user limit to a money movement scope. Errors
// from Redis fail open so an outage never blocks payments.
func (s *Service) consumeRateLimit(ctx context.Context, scope string, userID uuid.UUID, limit int) error {
	if s.rateLimiter == nil || limit <= 0 {
		return nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, scope, userID.String(), limit, time.Minute)
	if err != nil {
		log.Printf("level=warn component=app msg=\"rate limiter unavailable, allowing request\" scope=%s err=%v", scope, err)
		return nil
	}
	if count > limit {
		log.Printf("level=info component=app msg=\"rate limit hit\" scope=%s user_id=%s count=%d retry_after=%d", scope, userID, count, retryAfter)
		return ErrRateLimited
	}
	return nil
}
