/**
 * @description
 * PostgreSQL implementation of the `Repository` interface: identity
 * projections, order transitions, and dispute resolution. Order transitions
 * are applied with a compare-and-set on the expected current status so that
 * concurrent actors racing to move the same order cannot silently overwrite
 * each other; the loser gets ErrConflictingTransition.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"

	"github.com/giglane/settlement-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrConflictingTransition  = errors.New("conflicting transition: order status changed concurrently")
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrTopUpIntentNotFound    = errors.New("top-up intent not found")
	ErrDisputeNotFound        = errors.New("dispute not found")
	ErrFailedPaymentNotFound  = errors.New("failed payment not found")
	ErrPayoutRequestNotFound  = errors.New("payout request not found")
	ErrPayoutPreferenceNotSet = errors.New("payout preference not set")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindUserIDBySubject resolves the internal UUID from the identity provider's
// token subject. Handlers accept validated JWT subjects while the repositories
// continue to operate on UUIDs.
func (r *PostgresRepository) FindUserIDBySubject(ctx context.Context, subject string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, "SELECT id FROM users WHERE subject = $1", subject).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, ErrUserNotFound
		}
		return uuid.Nil, err
	}
	return id, nil
}

// FindUserByID retrieves a user projection by internal id.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `
		SELECT id, subject, role, display_name, processor_customer_ref, payout_account_ref, created_at
		FROM users
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.Subject,
		&user.Role,
		&user.DisplayName,
		&user.ProcessorCustomerRef,
		&user.PayoutAccountRef,
		&user.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

const orderColumns = `
	id, order_number, buyer_id, seller_id, order_type, amount, currency,
	fee_amount, vat_amount, status, escrow_status, completion_state,
	has_open_dispute, payment_ref, progress_percent, last_nudged_at,
	created_at, completed_at, updated_at
`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.BuyerID, &o.SellerID, &o.OrderType, &o.Amount,
		&o.Currency, &o.FeeAmount, &o.VATAmount, &o.Status, &o.EscrowStatus,
		&o.CompletionState, &o.HasOpenDispute, &o.PaymentRef, &o.ProgressPercent,
		&o.LastNudgedAt, &o.CreatedAt, &o.CompletedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// FindOrderByID retrieves an order by its id.
func (r *PostgresRepository) FindOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRow(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", orderID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// ApplyOrderTransition performs the optimistic status transition and every
// side effect that must commit with it (escrow status, completion state,
// completed_at, dispute flag, dispute row) in a single transaction. The
// UPDATE is conditioned on the expected current status; zero matched rows
// means another actor won the race.
func (r *PostgresRepository) ApplyOrderTransition(ctx context.Context, params ApplyOrderTransitionParams) (*domain.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var escrowTo, completionTo, expectedCompletion *string
	if params.NewEscrowStatus != nil {
		s := string(*params.NewEscrowStatus)
		escrowTo = &s
	}
	if params.NewCompletionState != nil {
		s := string(*params.NewCompletionState)
		completionTo = &s
	}
	if params.ExpectedCompletionState != nil {
		s := string(*params.ExpectedCompletionState)
		expectedCompletion = &s
	}

	query := `
		UPDATE orders SET
			status = $2,
			escrow_status = COALESCE($3, escrow_status),
			completion_state = COALESCE($4, completion_state),
			completed_at = CASE
				WHEN $5 THEN NOW()
				WHEN $6 THEN NULL
				ELSE completed_at
			END,
			has_open_dispute = COALESCE($7, has_open_dispute),
			updated_at = NOW()
		WHERE id = $1
		  AND status = $8
		  AND ($9::text IS NULL OR completion_state = $9)
		RETURNING ` + orderColumns

	order, err := scanOrder(tx.QueryRow(ctx, query,
		params.OrderID,
		string(params.NewStatus),
		escrowTo,
		completionTo,
		params.SetCompletedAt,
		params.ClearCompletedAt,
		params.SetHasOpenDispute,
		string(params.ExpectedStatus),
		expectedCompletion,
	))
	if err != nil {
		if err != pgx.ErrNoRows {
			return nil, err
		}
		// Distinguish a lost race from a missing order.
		var exists bool
		if checkErr := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)", params.OrderID).Scan(&exists); checkErr != nil {
			return nil, checkErr
		}
		if !exists {
			return nil, ErrOrderNotFound
		}
		return nil, ErrConflictingTransition
	}

	if params.OpenDispute != nil {
		d := params.OpenDispute
		_, err = tx.Exec(ctx, `
			INSERT INTO disputes (id, order_id, initiator_id, reason, status, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
		`, d.ID, d.OrderID, d.InitiatorID, d.Reason, string(d.Status))
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return order, nil
}

// MarkOrderPaymentRecovered records a successful payment retry against an
// order: the escrow moves to held and the new charge reference is stored.
func (r *PostgresRepository) MarkOrderPaymentRecovered(ctx context.Context, orderID uuid.UUID, paymentRef string) error {
	query := `
		UPDATE orders
		SET escrow_status = $2, payment_ref = $3, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, orderID, string(domain.EscrowStatusHeld), paymentRef)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

const disputeColumns = `
	id, order_id, initiator_id, reason, status, resolution, resolved_by, created_at, resolved_at
`

func scanDispute(row pgx.Row) (*domain.Dispute, error) {
	var d domain.Dispute
	err := row.Scan(
		&d.ID, &d.OrderID, &d.InitiatorID, &d.Reason, &d.Status,
		&d.Resolution, &d.ResolvedBy, &d.CreatedAt, &d.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// FindDisputeByID retrieves a dispute by id.
func (r *PostgresRepository) FindDisputeByID(ctx context.Context, disputeID uuid.UUID) (*domain.Dispute, error) {
	query := "SELECT " + disputeColumns + " FROM disputes WHERE id = $1"
	dispute, err := scanDispute(r.db.QueryRow(ctx, query, disputeID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDisputeNotFound
		}
		return nil, err
	}
	return dispute, nil
}

// ResolveOrderDispute applies a mediator resolution: the dispute row is closed
// and the order's resulting status/escrow change commits in the same
// transaction. The dispute update is guarded on status = open so a second
// resolution attempt conflicts instead of overwriting the first.
func (r *PostgresRepository) ResolveOrderDispute(ctx context.Context, params ResolveOrderDisputeParams) (*domain.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var orderID uuid.UUID
	err = tx.QueryRow(ctx, `
		UPDATE disputes
		SET status = $2, resolution = $3, resolved_by = $4, resolved_at = NOW()
		WHERE id = $1 AND status = $5
		RETURNING order_id
	`, params.DisputeID, string(params.DisputeStatus), params.Resolution, params.ResolvedBy, string(domain.DisputeStatusOpen)).Scan(&orderID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDisputeNotFound
		}
		return nil, err
	}

	var newStatus, newEscrow *string
	if params.NewOrderStatus != nil {
		s := string(*params.NewOrderStatus)
		newStatus = &s
	}
	if params.NewEscrowStatus != nil {
		s := string(*params.NewEscrowStatus)
		newEscrow = &s
	}

	query := `
		UPDATE orders SET
			status = COALESCE($2, status),
			escrow_status = COALESCE($3, escrow_status),
			has_open_dispute = FALSE,
			completed_at = CASE WHEN $4 THEN NOW() ELSE completed_at END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + orderColumns

	order, err := scanOrder(tx.QueryRow(ctx, query, orderID, newStatus, newEscrow, params.SetCompletedAt))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return order, nil
}

// FindFeePercent looks up one (role, orderType) row of the fee policy table.
// The second return value is false when no row matches; the resolver in the
// app layer walks its fallback chain on that signal.
func (r *PostgresRepository) FindFeePercent(ctx context.Context, role, orderType string) (int, bool, error) {
	var percent int
	err := r.db.QueryRow(ctx,
		"SELECT percent FROM platform_fee_configs WHERE role = $1 AND order_type = $2",
		role, orderType,
	).Scan(&percent)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return percent, true, nil
}
