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

// DisbursementRepository persists disbursement requests. All transitions are
// guarded on the expected current state, so an out-of-order or duplicate
// signal surfaces as ErrStaleTransition instead of silently re-applying.
type DisbursementRepository struct {
	pool *pgxpool.Pool
}

func NewDisbursementRepository(pool *pgxpool.Pool) *DisbursementRepository {
	return &DisbursementRepository{pool: pool}
}

func (r *DisbursementRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *DisbursementRepository) Create(ctx context.Context, req domain.DisbursementRequest) error {
	const stmt = `
INSERT INTO disbursement_requests (id, org_id, supplier_id, amount, reference, state, failure_reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.exec(ctx, stmt,
		req.ID, req.OrgID, req.SupplierID, req.Amount, req.Reference,
		string(req.State), req.FailureReason, req.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrStaleTransition
		}
		return fmt.Errorf("create disbursement request: %w", err)
	}
	return nil
}

func (r *DisbursementRepository) GetByID(ctx context.Context, id string) (domain.DisbursementRequest, error) {
	req, err := r.get(ctx, `WHERE id = $1`, id)
	if err != nil {
		return domain.DisbursementRequest{}, err
	}
	if req == nil {
		return domain.DisbursementRequest{}, domain.ErrRequestNotFound
	}
	return *req, nil
}

// FindByReference returns nil without error when no request matches: an
// unknown reference on a webhook is a drop, not a failure.
func (r *DisbursementRepository) FindByReference(ctx context.Context, reference string) (*domain.DisbursementRequest, error) {
	return r.get(ctx, `WHERE reference = $1`, reference)
}

func (r *DisbursementRepository) Transition(ctx context.Context, id string, from, to domain.DisbursementState) error {
	const stmt = `UPDATE disbursement_requests SET state = $3 WHERE id = $1 AND state = $2`

	tag, err := r.exec(ctx, stmt, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("transition disbursement request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

func (r *DisbursementRepository) MarkConfirmed(ctx context.Context, id string, at time.Time) error {
	const stmt = `
UPDATE disbursement_requests
SET state = 'confirmed', confirmed_at = $2
WHERE id = $1 AND state = 'submitted'`

	tag, err := r.exec(ctx, stmt, id, at)
	if err != nil {
		return fmt.Errorf("confirm disbursement request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

func (r *DisbursementRepository) MarkFailed(ctx context.Context, id string, from domain.DisbursementState, reason string) error {
	const stmt = `
UPDATE disbursement_requests
SET state = 'failed', failure_reason = $3
WHERE id = $1 AND state = $2`

	tag, err := r.exec(ctx, stmt, id, string(from), reason)
	if err != nil {
		return fmt.Errorf("fail disbursement request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

func (r *DisbursementRepository) MarkReversed(ctx context.Context, id string) error {
	const stmt = `UPDATE disbursement_requests SET state = 'reversed' WHERE id = $1 AND state = 'confirmed'`

	tag, err := r.exec(ctx, stmt, id)
	if err != nil {
		return fmt.Errorf("reverse disbursement request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

func (r *DisbursementRepository) get(ctx context.Context, where string, arg any) (*domain.DisbursementRequest, error) {
	query := `
SELECT id, org_id, supplier_id, amount, reference, state, failure_reason, created_at, confirmed_at
FROM disbursement_requests ` + where

	var req domain.DisbursementRequest
	var state string
	err := r.queryRow(ctx, query, arg).Scan(
		&req.ID, &req.OrgID, &req.SupplierID, &req.Amount, &req.Reference,
		&state, &req.FailureReason, &req.CreatedAt, &req.ConfirmedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get disbursement request: %w", err)
	}
	req.State = domain.DisbursementState(state)
	return &req, nil
}

func (r *DisbursementRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *DisbursementRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
