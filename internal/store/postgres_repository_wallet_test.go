package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "balance_transactions_payment_intent_ref_key"}
	if !isUniqueViolation(dup) {
		t.Fatal("expected SQLSTATE 23505 to be recognized as a unique violation")
	}
	if !isUniqueViolation(fmt.Errorf("insert ledger entry: %w", dup)) {
		t.Fatal("expected a wrapped unique violation to be recognized")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("a foreign-key violation must not read as a unique violation")
	}
	if isUniqueViolation(errors.New("connection reset by peer")) {
		t.Fatal("plain errors must not read as unique violations")
	}
}
