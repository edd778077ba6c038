package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blessandsoul/glow-server/internal/domain"
)

const (
	billingActionDeduct = "deduct"
	billingActionRefund = "refund"
)

// CreditLedgerPG implements domain.CreditLedger backed by PostgreSQL.
//
// Every balance mutation records a billing event keyed by (job_id, action),
// which makes deductions and refunds idempotent per job: replaying a
// reconciliation after a crash cannot double-charge or double-refund.
type CreditLedgerPG struct {
	pool *pgxpool.Pool
}

// NewCreditLedger creates a new credit ledger backed by PostgreSQL.
func NewCreditLedger(pool *pgxpool.Pool) *CreditLedgerPG {
	return &CreditLedgerPG{pool: pool}
}

var _ domain.CreditLedger = (*CreditLedgerPG)(nil)

// Account fetches the owner's credit account.
func (l *CreditLedgerPG) Account(ctx context.Context, ownerID string) (*domain.CreditAccount, error) {
	query := `SELECT owner_id, plan, balance, created_at, updated_at FROM credit_accounts WHERE owner_id = $1`
	var acc domain.CreditAccount
	row := l.pool.QueryRow(ctx, query, ownerID)
	if err := row.Scan(&acc.OwnerID, &acc.Plan, &acc.Balance, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &acc, nil
}

// Balance returns the owner's current credit balance.
func (l *CreditLedgerPG) Balance(ctx context.Context, ownerID string) (int, error) {
	var balance int
	row := l.pool.QueryRow(ctx, `SELECT balance FROM credit_accounts WHERE owner_id = $1`, ownerID)
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}

// Deduct atomically subtracts amount from the owner's balance if it covers
// the amount, recording a deduct event for jobID in the same transaction.
// It returns domain.ErrInsufficientCredits when the balance is short and
// domain.ErrDuplicateOperation when a deduction for jobID already happened.
func (l *CreditLedgerPG) Deduct(ctx context.Context, ownerID string, amount int, jobID string) (int, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin deduct: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
INSERT INTO billing_events (job_id, action, owner_id, amount)
VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING;
`, jobID, billingActionDeduct, ownerID, amount)
	if err != nil {
		return 0, fmt.Errorf("record deduct event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, domain.ErrDuplicateOperation
	}

	var remaining int
	row := tx.QueryRow(ctx, `
UPDATE credit_accounts
SET balance = balance - $2, updated_at = NOW()
WHERE owner_id = $1 AND balance >= $2
RETURNING balance;
`, ownerID, amount)
	if err := row.Scan(&remaining); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Account missing or balance short; tell them apart for callers.
			if _, balErr := l.Balance(ctx, ownerID); errors.Is(balErr, domain.ErrNotFound) {
				return 0, domain.ErrNotFound
			}
			return 0, domain.ErrInsufficientCredits
		}
		return 0, fmt.Errorf("apply deduct: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit deduct: %w", err)
	}
	return remaining, nil
}

// Refund adds amount back to the owner's balance at most once per job. A
// replayed refund is a silent no-op; refunds run off the request path and are
// best-effort by contract.
func (l *CreditLedgerPG) Refund(ctx context.Context, ownerID string, amount int, jobID string) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin refund: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
INSERT INTO billing_events (job_id, action, owner_id, amount)
VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING;
`, jobID, billingActionRefund, ownerID, amount)
	if err != nil {
		return fmt.Errorf("record refund event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `
UPDATE credit_accounts
SET balance = balance + $2, updated_at = NOW()
WHERE owner_id = $1;
`, ownerID, amount); err != nil {
		return fmt.Errorf("apply refund: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit refund: %w", err)
	}
	return nil
}
