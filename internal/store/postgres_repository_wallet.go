/**
 * @description
 * Wallet ledger persistence. AdjustBalance is the only way balances move: one
 * database transaction that locks the balance row, checks the idempotency key,
 * verifies the overdraft rule, appends the immutable ledger entry, and updates
 * the balance. The idempotency lookup runs after the row lock is held, so two
 * concurrent deliveries of the same external payment confirmation serialize on
 * the lock and the second one sees the first one's ledger entry. The unique
 * index on payment_intent_ref backstops the same guarantee at the schema
 * level.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/giglane/settlement-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const balanceTransactionColumns = `
	id, user_id, type, amount, balance_before, balance_after, reference,
	payment_intent_ref, description, created_at
`

func scanBalanceTransaction(row pgx.Row) (*domain.BalanceTransaction, error) {
	var bt domain.BalanceTransaction
	err := row.Scan(
		&bt.ID, &bt.UserID, &bt.Type, &bt.Amount, &bt.BalanceBefore,
		&bt.BalanceAfter, &bt.Reference, &bt.PaymentIntentRef, &bt.Description,
		&bt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &bt, nil
}

// AdjustBalance applies one signed adjustment to a user's wallet atomically.
// A repeated call carrying an already-consumed payment-intent reference
// returns the original resulting balance with Applied=false and performs no
// mutation, which is what makes webhook redelivery and client retries safe.
func (r *PostgresRepository) AdjustBalance(ctx context.Context, params AdjustBalanceParams) (*domain.BalanceAdjustment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Lazily create the balance row, then lock it for the adjustment.
	_, err = tx.Exec(ctx, `
		INSERT INTO account_balances (user_id, balance_amount, currency, updated_at)
		VALUES ($1, 0, $2, NOW())
		ON CONFLICT (user_id) DO NOTHING
	`, params.UserID, params.Currency)
	if err != nil {
		return nil, err
	}

	var balanceBefore int64
	err = tx.QueryRow(ctx,
		"SELECT balance_amount FROM account_balances WHERE user_id = $1 FOR UPDATE",
		params.UserID,
	).Scan(&balanceBefore)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}

	// The idempotency check must run with the row lock held. Two concurrent
	// deliveries of the same confirmation both pass a pre-lock check; behind
	// the lock the loser sees the winner's committed ledger entry instead.
	if params.PaymentIntentRef != nil {
		existing, err := scanBalanceTransaction(tx.QueryRow(ctx,
			"SELECT "+balanceTransactionColumns+" FROM balance_transactions WHERE payment_intent_ref = $1",
			*params.PaymentIntentRef,
		))
		if err != nil && err != pgx.ErrNoRows {
			return nil, err
		}
		if err == nil {
			// Idempotent replay: report the original outcome, mutate nothing.
			if commitErr := tx.Commit(ctx); commitErr != nil {
				return nil, commitErr
			}
			return &domain.BalanceAdjustment{
				Applied:     false,
				NewBalance:  existing.BalanceAfter,
				Transaction: existing,
			}, nil
		}
	}

	balanceAfter := balanceBefore + params.Amount
	if balanceAfter < 0 {
		return nil, ErrInsufficientFunds
	}

	entry := &domain.BalanceTransaction{
		ID:               uuid.New(),
		UserID:           params.UserID,
		Type:             params.Type,
		Amount:           params.Amount,
		BalanceBefore:    balanceBefore,
		BalanceAfter:     balanceAfter,
		Reference:        params.Reference,
		PaymentIntentRef: params.PaymentIntentRef,
		Description:      params.Description,
		CreatedAt:        time.Now().UTC(),
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO balance_transactions (
			id, user_id, type, amount, balance_before, balance_after,
			reference, payment_intent_ref, description, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`, entry.ID, entry.UserID, string(entry.Type), entry.Amount, entry.BalanceBefore,
		entry.BalanceAfter, entry.Reference, entry.PaymentIntentRef, entry.Description)
	if err != nil {
		if params.PaymentIntentRef != nil && isUniqueViolation(err) {
			// Schema-level backstop: a writer outside this lock consumed the
			// key first. Report its outcome as the idempotent replay.
			return r.replayAdjustment(ctx, *params.PaymentIntentRef)
		}
		return nil, err
	}

	query := `
		UPDATE account_balances
		SET balance_amount = $2,
		    last_topped_up_at = CASE WHEN $3 THEN NOW() ELSE last_topped_up_at END,
		    updated_at = NOW()
		WHERE user_id = $1
	`
	_, err = tx.Exec(ctx, query, params.UserID, balanceAfter, params.Type == domain.TransactionTypeTopUp)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &domain.BalanceAdjustment{
		Applied:     true,
		NewBalance:  balanceAfter,
		Transaction: entry,
	}, nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// replayAdjustment resolves a lost unique-index race on payment_intent_ref by
// reading the winner's ledger entry and reporting it as an idempotent replay.
func (r *PostgresRepository) replayAdjustment(ctx context.Context, paymentIntentRef string) (*domain.BalanceAdjustment, error) {
	existing, err := scanBalanceTransaction(r.db.QueryRow(ctx,
		"SELECT "+balanceTransactionColumns+" FROM balance_transactions WHERE payment_intent_ref = $1",
		paymentIntentRef,
	))
	if err != nil {
		return nil, err
	}
	return &domain.BalanceAdjustment{
		Applied:     false,
		NewBalance:  existing.BalanceAfter,
		Transaction: existing,
	}, nil
}

// GetAccountBalance retrieves a user's wallet. A user who never topped up has
// no row yet; that reads as a zero balance rather than an error.
func (r *PostgresRepository) GetAccountBalance(ctx context.Context, userID uuid.UUID) (*domain.AccountBalance, error) {
	var balance domain.AccountBalance
	query := `
		SELECT user_id, balance_amount, currency, last_topped_up_at, updated_at
		FROM account_balances
		WHERE user_id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&balance.UserID, &balance.BalanceAmount, &balance.Currency,
		&balance.LastToppedUpAt, &balance.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return &domain.AccountBalance{UserID: userID, BalanceAmount: 0}, nil
		}
		return nil, err
	}
	return &balance, nil
}

// ListBalanceTransactions returns a user's ledger history, newest first.
func (r *PostgresRepository) ListBalanceTransactions(ctx context.Context, userID uuid.UUID, opts domain.LedgerListOptions) ([]domain.BalanceTransaction, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT ` + balanceTransactionColumns + `
		FROM balance_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.BalanceTransaction
	for rows.Next() {
		bt, err := scanBalanceTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *bt)
	}
	return transactions, rows.Err()
}

// CreateTopUpIntent records the local audit row for a processor-side charge.
func (r *PostgresRepository) CreateTopUpIntent(ctx context.Context, intent *domain.TopUpIntent) error {
	query := `
		INSERT INTO top_up_intents (id, user_id, amount, currency, provider_ref, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	_, err := r.db.Exec(ctx, query,
		intent.ID, intent.UserID, intent.Amount, intent.Currency,
		intent.ProviderRef, string(intent.Status),
	)
	return err
}

// FindTopUpIntentByProviderRef retrieves a top-up intent by the processor's
// charge reference.
func (r *PostgresRepository) FindTopUpIntentByProviderRef(ctx context.Context, providerRef string) (*domain.TopUpIntent, error) {
	var intent domain.TopUpIntent
	query := `
		SELECT id, user_id, amount, currency, provider_ref, status, created_at, confirmed_at
		FROM top_up_intents
		WHERE provider_ref = $1
	`
	err := r.db.QueryRow(ctx, query, providerRef).Scan(
		&intent.ID, &intent.UserID, &intent.Amount, &intent.Currency,
		&intent.ProviderRef, &intent.Status, &intent.CreatedAt, &intent.ConfirmedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTopUpIntentNotFound
		}
		return nil, err
	}
	return &intent, nil
}

// MarkTopUpIntentConfirmed stamps an intent as confirmed.
func (r *PostgresRepository) MarkTopUpIntentConfirmed(ctx context.Context, intentID uuid.UUID, confirmedAt time.Time) error {
	result, err := r.db.Exec(ctx,
		"UPDATE top_up_intents SET status = $2, confirmed_at = $3 WHERE id = $1",
		intentID, string(domain.TopUpIntentConfirmed), confirmedAt,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTopUpIntentNotFound
	}
	return nil
}

// MarkTopUpIntentFailed stamps an intent as failed.
func (r *PostgresRepository) MarkTopUpIntentFailed(ctx context.Context, intentID uuid.UUID) error {
	result, err := r.db.Exec(ctx,
		"UPDATE top_up_intents SET status = $2 WHERE id = $1",
		intentID, string(domain.TopUpIntentFailed),
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTopUpIntentNotFound
	}
	return nil
}
