/**
 * @description
 * Persistence for the failed-payment retry tracker and the payout request
 * processor. Retry bookkeeping happens in single guarded UPDATE statements so
 * a terminal row can never be mutated and retry_count can never pass
 * max_retries, regardless of concurrent retry submissions. Payout request
 * rows are append-plus-update only; failed attempts are kept as audit trail.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/giglane/settlement-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const failedPaymentColumns = `
	id, user_id, order_id, amount, currency, failure_code, failure_message,
	retry_count, max_retries, next_retry_at, last_retry_at, status,
	resolved_at, created_at, updated_at
`

func scanFailedPayment(row pgx.Row) (*domain.FailedPayment, error) {
	var fp domain.FailedPayment
	err := row.Scan(
		&fp.ID, &fp.UserID, &fp.OrderID, &fp.Amount, &fp.Currency,
		&fp.FailureCode, &fp.FailureMessage, &fp.RetryCount, &fp.MaxRetries,
		&fp.NextRetryAt, &fp.LastRetryAt, &fp.Status, &fp.ResolvedAt,
		&fp.CreatedAt, &fp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &fp, nil
}

// CreateFailedPayment records a processor-declared charge failure.
func (r *PostgresRepository) CreateFailedPayment(ctx context.Context, fp *domain.FailedPayment) error {
	query := `
		INSERT INTO failed_payments (
			id, user_id, order_id, amount, currency, failure_code,
			failure_message, retry_count, max_retries, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		fp.ID, fp.UserID, fp.OrderID, fp.Amount, fp.Currency, fp.FailureCode,
		fp.FailureMessage, fp.RetryCount, fp.MaxRetries, string(fp.Status),
	)
	return err
}

// FindFailedPaymentByID retrieves a failed payment by id.
func (r *PostgresRepository) FindFailedPaymentByID(ctx context.Context, id uuid.UUID) (*domain.FailedPayment, error) {
	fp, err := scanFailedPayment(r.db.QueryRow(ctx,
		"SELECT "+failedPaymentColumns+" FROM failed_payments WHERE id = $1", id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrFailedPaymentNotFound
		}
		return nil, err
	}
	return fp, nil
}

// ListFailedPaymentsByUserID returns a user's failed payments, newest first.
func (r *PostgresRepository) ListFailedPaymentsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.FailedPayment, error) {
	query := "SELECT " + failedPaymentColumns + " FROM failed_payments WHERE user_id = $1 ORDER BY created_at DESC"
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.FailedPayment
	for rows.Next() {
		fp, err := scanFailedPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *fp)
	}
	return payments, rows.Err()
}

// MarkFailedPaymentSucceeded resolves a failed payment after a successful
// retry charge. Guarded on non-terminal status so a late duplicate submission
// cannot resurrect a resolved row.
func (r *PostgresRepository) MarkFailedPaymentSucceeded(ctx context.Context, id uuid.UUID, resolvedAt time.Time) error {
	query := `
		UPDATE failed_payments
		SET status = $2, resolved_at = $3, last_retry_at = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ($4, $5)
	`
	result, err := r.db.Exec(ctx, query, id,
		string(domain.FailedPaymentSucceeded), resolvedAt,
		string(domain.FailedPaymentPending), string(domain.FailedPaymentRetrying),
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrFailedPaymentNotFound
	}
	return nil
}

// RecordFailedPaymentAttempt counts one unsuccessful retry. The status flips
// to exhausted exactly when the incremented count reaches max_retries; the
// CASE runs inside the guarded UPDATE so concurrent attempts cannot push the
// count past the budget.
func (r *PostgresRepository) RecordFailedPaymentAttempt(ctx context.Context, id uuid.UUID, attemptedAt time.Time) (*domain.FailedPayment, error) {
	query := `
		UPDATE failed_payments
		SET retry_count = retry_count + 1,
		    last_retry_at = $2,
		    status = CASE
				WHEN retry_count + 1 >= max_retries THEN $3
				ELSE $4
			END,
		    updated_at = NOW()
		WHERE id = $1 AND status IN ($4, $5)
		RETURNING ` + failedPaymentColumns
	fp, err := scanFailedPayment(r.db.QueryRow(ctx, query, id, attemptedAt,
		string(domain.FailedPaymentExhausted),
		string(domain.FailedPaymentRetrying),
		string(domain.FailedPaymentPending),
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrFailedPaymentNotFound
		}
		return nil, err
	}
	return fp, nil
}

// CancelFailedPayment is the user-initiated abandonment of a retryable
// payment. Only non-terminal rows owned by the caller can be cancelled.
func (r *PostgresRepository) CancelFailedPayment(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	query := `
		UPDATE failed_payments
		SET status = $3, resolved_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status IN ($4, $5)
	`
	result, err := r.db.Exec(ctx, query, id, userID,
		string(domain.FailedPaymentCancelled),
		string(domain.FailedPaymentPending), string(domain.FailedPaymentRetrying),
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrFailedPaymentNotFound
	}
	return nil
}

const payoutRequestColumns = `
	id, provider_id, amount, currency, status, processor_payout_ref,
	failure_reason, requested_at, processed_at, completed_at
`

func scanPayoutRequest(row pgx.Row) (*domain.PayoutRequest, error) {
	var pr domain.PayoutRequest
	err := row.Scan(
		&pr.ID, &pr.ProviderID, &pr.Amount, &pr.Currency, &pr.Status,
		&pr.ProcessorPayoutRef, &pr.FailureReason, &pr.RequestedAt,
		&pr.ProcessedAt, &pr.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

// CreatePayoutRequest inserts a pending payout request.
func (r *PostgresRepository) CreatePayoutRequest(ctx context.Context, req *domain.PayoutRequest) error {
	query := `
		INSERT INTO payout_requests (id, provider_id, amount, currency, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := r.db.Exec(ctx, query, req.ID, req.ProviderID, req.Amount, req.Currency, string(req.Status))
	return err
}

// MarkPayoutRequestProcessing records a successfully initiated payout.
func (r *PostgresRepository) MarkPayoutRequestProcessing(ctx context.Context, id uuid.UUID, processorRef string, processedAt time.Time) error {
	query := `
		UPDATE payout_requests
		SET status = $2, processor_payout_ref = $3, processed_at = $4
		WHERE id = $1 AND status = $5
	`
	result, err := r.db.Exec(ctx, query, id,
		string(domain.PayoutStatusProcessing), processorRef, processedAt,
		string(domain.PayoutStatusPending),
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPayoutRequestNotFound
	}
	return nil
}

// MarkPayoutRequestFailed records a failed initiation. The row stays on
// record as the audit trail of the attempt.
func (r *PostgresRepository) MarkPayoutRequestFailed(ctx context.Context, id uuid.UUID, failureReason string) error {
	query := `
		UPDATE payout_requests
		SET status = $2, failure_reason = $3
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, id, string(domain.PayoutStatusFailed), failureReason)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPayoutRequestNotFound
	}
	return nil
}

// FinalizePayoutRequestByRef applies the downstream completed/failed state
// from the external notification, keyed by the processor's payout reference.
// Guarded on processing so replays of the same notification, or notifications
// racing the initiation, cannot regress state. completed_at is stamped only
// on the completed outcome; failed rows carry their failure_reason instead.
func (r *PostgresRepository) FinalizePayoutRequestByRef(ctx context.Context, processorRef string, status domain.PayoutRequestStatus, failureReason *string, completedAt time.Time) (*domain.PayoutRequest, error) {
	query := `
		UPDATE payout_requests
		SET status = $2,
		    failure_reason = COALESCE($3, failure_reason),
		    completed_at = CASE WHEN $2 = 'completed' THEN $4 ELSE completed_at END
		WHERE processor_payout_ref = $1 AND status = $5
		RETURNING ` + payoutRequestColumns
	pr, err := scanPayoutRequest(r.db.QueryRow(ctx, query, processorRef, string(status), failureReason, completedAt,
		string(domain.PayoutStatusProcessing)))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutRequestNotFound
		}
		return nil, err
	}
	return pr, nil
}

// FindPayoutRequestByID retrieves one payout request.
func (r *PostgresRepository) FindPayoutRequestByID(ctx context.Context, id uuid.UUID) (*domain.PayoutRequest, error) {
	pr, err := scanPayoutRequest(r.db.QueryRow(ctx,
		"SELECT "+payoutRequestColumns+" FROM payout_requests WHERE id = $1", id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutRequestNotFound
		}
		return nil, err
	}
	return pr, nil
}

// ListPayoutRequestsByProviderID returns a provider's payout history, newest first.
func (r *PostgresRepository) ListPayoutRequestsByProviderID(ctx context.Context, providerID uuid.UUID) ([]domain.PayoutRequest, error) {
	query := "SELECT " + payoutRequestColumns + " FROM payout_requests WHERE provider_id = $1 ORDER BY requested_at DESC"
	rows, err := r.db.Query(ctx, query, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []domain.PayoutRequest
	for rows.Next() {
		pr, err := scanPayoutRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *pr)
	}
	return requests, rows.Err()
}

// GetPayoutPreference retrieves a provider's payout preference.
func (r *PostgresRepository) GetPayoutPreference(ctx context.Context, userID uuid.UUID) (*domain.PayoutPreference, error) {
	var pref domain.PayoutPreference
	query := `
		SELECT user_id, destination_account_ref, schedule, updated_at
		FROM payout_preferences
		WHERE user_id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&pref.UserID, &pref.DestinationAccountRef, &pref.Schedule, &pref.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutPreferenceNotSet
		}
		return nil, err
	}
	return &pref, nil
}

// UpsertPayoutPreference creates or replaces a provider's payout preference.
func (r *PostgresRepository) UpsertPayoutPreference(ctx context.Context, pref *domain.PayoutPreference) error {
	query := `
		INSERT INTO payout_preferences (user_id, destination_account_ref, schedule, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET destination_account_ref = EXCLUDED.destination_account_ref,
		    schedule = EXCLUDED.schedule,
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, pref.UserID, pref.DestinationAccountRef, pref.Schedule)
	return err
}
