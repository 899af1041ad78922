package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/timothylidede/vendai-credit/internal/domain"
)

// RepaymentRepository persists mobile-money collection attempts. Transitions
// are guarded on the expected current state; the checkout request id carries
// a unique index because it is the only correlation key for callbacks.
type RepaymentRepository struct {
	pool *pgxpool.Pool
}

func NewRepaymentRepository(pool *pgxpool.Pool) *RepaymentRepository {
	return &RepaymentRepository{pool: pool}
}

func (r *RepaymentRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *RepaymentRepository) Create(ctx context.Context, req domain.RepaymentRequest) error {
	const stmt = `
INSERT INTO repayment_requests (id, org_id, amount, phone_number, checkout_request_id, state, failure_reason, receipt, created_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)`

	_, err := r.exec(ctx, stmt,
		req.ID, req.OrgID, req.Amount, req.PhoneNumber, req.CheckoutRequestID,
		string(req.State), req.FailureReason, req.Receipt, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create repayment request: %w", err)
	}
	return nil
}

func (r *RepaymentRepository) GetByID(ctx context.Context, id string) (domain.RepaymentRequest, error) {
	req, err := r.get(ctx, `WHERE id = $1`, id)
	if err != nil {
		return domain.RepaymentRequest{}, err
	}
	if req == nil {
		return domain.RepaymentRequest{}, domain.ErrRequestNotFound
	}
	return *req, nil
}

// FindByCheckoutRequestID returns nil without error when no request matches.
func (r *RepaymentRepository) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.RepaymentRequest, error) {
	return r.get(ctx, `WHERE checkout_request_id = $1`, checkoutRequestID)
}

func (r *RepaymentRepository) MarkPushed(ctx context.Context, id, checkoutRequestID string) error {
	const stmt = `
UPDATE repayment_requests
SET state = 'pushed', checkout_request_id = $2
WHERE id = $1 AND state = 'initiated'`

	tag, err := r.exec(ctx, stmt, id, checkoutRequestID)
	if err != nil {
		return fmt.Errorf("mark repayment pushed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

func (r *RepaymentRepository) MarkCompleted(ctx context.Context, id, receipt string, at time.Time) error {
	const stmt = `
UPDATE repayment_requests
SET state = 'completed', receipt = $2, resolved_at = $3
WHERE id = $1 AND state = 'pushed'`

	tag, err := r.exec(ctx, stmt, id, receipt, at)
	if err != nil {
		return fmt.Errorf("complete repayment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

func (r *RepaymentRepository) MarkFailed(ctx context.Context, id string, from domain.RepaymentState, reason string, at time.Time) error {
	const stmt = `
UPDATE repayment_requests
SET state = 'failed', failure_reason = $3, resolved_at = $4
WHERE id = $1 AND state = $2`

	tag, err := r.exec(ctx, stmt, id, string(from), reason, at)
	if err != nil {
		return fmt.Errorf("fail repayment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

func (r *RepaymentRepository) MarkTimedOut(ctx context.Context, id string, from domain.RepaymentState, at time.Time) error {
	const stmt = `
UPDATE repayment_requests
SET state = 'timed_out', resolved_at = $3
WHERE id = $1 AND state = $2`

	tag, err := r.exec(ctx, stmt, id, string(from), at)
	if err != nil {
		return fmt.Errorf("time out repayment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

// ListUnresolvedBefore returns initiated and pushed requests created at or
// before the cutoff, oldest first; the timeout sweep feeds on it.
func (r *RepaymentRepository) ListUnresolvedBefore(ctx context.Context, cutoff time.Time) ([]domain.RepaymentRequest, error) {
	const query = `
SELECT id, org_id, amount, phone_number, COALESCE(checkout_request_id, ''), state, failure_reason, receipt, created_at, resolved_at
FROM repayment_requests
WHERE state IN ('initiated', 'pushed') AND created_at <= $1
ORDER BY created_at`

	rows, err := r.query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list unresolved repayments: %w", err)
	}
	defer rows.Close()

	var out []domain.RepaymentRequest
	for rows.Next() {
		var req domain.RepaymentRequest
		var state string
		if err := rows.Scan(
			&req.ID, &req.OrgID, &req.Amount, &req.PhoneNumber, &req.CheckoutRequestID,
			&state, &req.FailureReason, &req.Receipt, &req.CreatedAt, &req.ResolvedAt,
		); err != nil {
			return nil, fmt.Errorf("scan repayment: %w", err)
		}
		req.State = domain.RepaymentState(state)
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list unresolved repayments: %w", err)
	}
	return out, nil
}

func (r *RepaymentRepository) get(ctx context.Context, where string, arg any) (*domain.RepaymentRequest, error) {
	query := `
SELECT id, org_id, amount, phone_number, COALESCE(checkout_request_id, ''), state, failure_reason, receipt, created_at, resolved_at
FROM repayment_requests ` + where

	var req domain.RepaymentRequest
	var state string
	err := r.queryRow(ctx, query, arg).Scan(
		&req.ID, &req.OrgID, &req.Amount, &req.PhoneNumber, &req.CheckoutRequestID,
		&state, &req.FailureReason, &req.Receipt, &req.CreatedAt, &req.ResolvedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get repayment request: %w", err)
	}
	req.State = domain.RepaymentState(state)
	return &req, nil
}

func (r *RepaymentRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *RepaymentRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *RepaymentRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
