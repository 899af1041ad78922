package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/timothylidede/vendai-credit/internal/domain"
)

// LedgerRepository owns credit accounts and the append-only transaction log.
// No method reads a balance and writes it back: every balance change is a
// single conditional UPDATE that also bumps the account version, so two
// concurrent reservations cannot both fit inside the same headroom.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

func (r *LedgerRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *LedgerRepository) GetAccount(ctx context.Context, orgID string) (domain.CreditAccount, error) {
	const query = `
SELECT org_id, credit_limit, outstanding_balance, reserved_amount, status, version, created_at, updated_at
FROM credit_accounts
WHERE org_id = $1`

	var a domain.CreditAccount
	var status string
	err := r.queryRow(ctx, query, orgID).Scan(
		&a.OrgID, &a.CreditLimit, &a.OutstandingBalance, &a.ReservedAmount,
		&status, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.CreditAccount{}, domain.ErrAccountNotFound
		}
		return domain.CreditAccount{}, fmt.Errorf("get account: %w", err)
	}
	a.Status = domain.AccountStatus(status)
	return a, nil
}

// UpsertCreditLimit provisions an account on first approval and raises (or
// lowers) the limit on subsequent ones. Lowering below the committed amount
// is refused so the limit invariant cannot be broken from the outside.
func (r *LedgerRepository) UpsertCreditLimit(ctx context.Context, orgID string, limit decimal.Decimal, now time.Time) error {
	const stmt = `
INSERT INTO credit_accounts (org_id, credit_limit, outstanding_balance, reserved_amount, status, version, created_at, updated_at)
VALUES ($1, $2, 0, 0, 'active', 1, $3, $3)
ON CONFLICT (org_id) DO UPDATE
SET credit_limit = EXCLUDED.credit_limit,
    status = 'active',
    version = credit_accounts.version + 1,
    updated_at = EXCLUDED.updated_at
WHERE credit_accounts.outstanding_balance + credit_accounts.reserved_amount <= EXCLUDED.credit_limit`

	tag, err := r.exec(ctx, stmt, orgID, limit, now)
	if err != nil {
		return fmt.Errorf("upsert credit limit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: new limit %s below committed amount for org %s", domain.ErrBalanceMismatch, limit, orgID)
	}
	return nil
}

// Reserve places a provisional hold against available credit.
func (r *LedgerRepository) Reserve(ctx context.Context, orgID string, amount decimal.Decimal, now time.Time) error {
	const stmt = `
UPDATE credit_accounts
SET reserved_amount = reserved_amount + $2,
    version = version + 1,
    updated_at = $3
WHERE org_id = $1
  AND status = 'active'
  AND outstanding_balance + reserved_amount + $2 <= credit_limit`

	tag, err := r.exec(ctx, stmt, orgID, amount, now)
	if err != nil {
		return fmt.Errorf("reserve: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// The guard failed; look at the row to report why.
	account, err := r.GetAccount(ctx, orgID)
	if err != nil {
		return err
	}
	if account.Status != domain.AccountStatusActive {
		return domain.ErrAccountNotActive
	}
	return domain.ErrInsufficientCredit
}

// Release returns a reservation to available credit.
func (r *LedgerRepository) Release(ctx context.Context, orgID string, amount decimal.Decimal, now time.Time) error {
	const stmt = `
UPDATE credit_accounts
SET reserved_amount = reserved_amount - $2,
    version = version + 1,
    updated_at = $3
WHERE org_id = $1
  AND reserved_amount >= $2`

	tag, err := r.exec(ctx, stmt, orgID, amount, now)
	if err != nil {
		return fmt.Errorf("release: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: release of %s exceeds reserved amount for org %s", domain.ErrBalanceMismatch, amount, orgID)
	}
	return nil
}

// ApplyDisbursement converts a reservation into outstanding balance.
func (r *LedgerRepository) ApplyDisbursement(ctx context.Context, orgID string, amount decimal.Decimal, now time.Time) error {
	const stmt = `
UPDATE credit_accounts
SET reserved_amount = reserved_amount - $2,
    outstanding_balance = outstanding_balance + $2,
    version = version + 1,
    updated_at = $3
WHERE org_id = $1
  AND reserved_amount >= $2`

	tag, err := r.exec(ctx, stmt, orgID, amount, now)
	if err != nil {
		return fmt.Errorf("apply disbursement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: disbursement of %s without matching reservation for org %s", domain.ErrBalanceMismatch, amount, orgID)
	}
	return nil
}

// ApplyRepayment reduces outstanding balance. Accounts never go below zero;
// an overpayment aborts instead of partially applying.
func (r *LedgerRepository) ApplyRepayment(ctx context.Context, orgID string, amount decimal.Decimal, now time.Time) error {
	const stmt = `
UPDATE credit_accounts
SET outstanding_balance = outstanding_balance - $2,
    version = version + 1,
    updated_at = $3
WHERE org_id = $1
  AND outstanding_balance >= $2`

	tag, err := r.exec(ctx, stmt, orgID, amount, now)
	if err != nil {
		return fmt.Errorf("apply repayment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: repayment of %s exceeds outstanding balance for org %s", domain.ErrBalanceMismatch, amount, orgID)
	}
	return nil
}

// ApplyReversal voids previously confirmed, disbursed funds.
func (r *LedgerRepository) ApplyReversal(ctx context.Context, orgID string, amount decimal.Decimal, now time.Time) error {
	return r.ApplyRepayment(ctx, orgID, amount, now)
}

func (r *LedgerRepository) AppendTransaction(ctx context.Context, txn domain.LedgerTransaction) error {
	const stmt = `
INSERT INTO ledger_transactions (id, org_id, type, amount, related_request_id, posted_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.exec(ctx, stmt, txn.ID, txn.OrgID, string(txn.Type), txn.Amount, txn.RelatedRequestID, txn.PostedAt)
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func (r *LedgerRepository) ListTransactions(ctx context.Context, orgID string) ([]domain.LedgerTransaction, error) {
	const query = `
SELECT id, org_id, type, amount, related_request_id, posted_at
FROM ledger_transactions
WHERE org_id = $1
ORDER BY posted_at, id`

	rows, err := r.query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerTransaction
	for rows.Next() {
		var t domain.LedgerTransaction
		var typ string
		if err := rows.Scan(&t.ID, &t.OrgID, &typ, &t.Amount, &t.RelatedRequestID, &t.PostedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = domain.TransactionType(typ)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func (r *LedgerRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *LedgerRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *LedgerRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
