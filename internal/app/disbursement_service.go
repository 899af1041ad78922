package app

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/timothylidede/vendai-credit/internal/clock"
	"github.com/timothylidede/vendai-credit/internal/domain"
)

type DisbursementRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Create(ctx context.Context, req domain.DisbursementRequest) error
	GetByID(ctx context.Context, id string) (domain.DisbursementRequest, error)
	FindByReference(ctx context.Context, reference string) (*domain.DisbursementRequest, error)
	Transition(ctx context.Context, id string, from, to domain.DisbursementState) error
	MarkConfirmed(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, from domain.DisbursementState, reason string) error
	MarkReversed(ctx context.Context, id string) error
}

// LendingClient submits disbursements to the lending partner. The reference
// is the partner-side idempotency key: a retried call with the same
// reference cannot double-disburse.
type LendingClient interface {
	Disburse(ctx context.Context, reference, supplierID string, amount decimal.Decimal) error
}

// DisbursementService coordinates the outbound disbursement flow and applies
// the partner's asynchronous verdicts to the ledger.
type DisbursementService struct {
	repo    DisbursementRepository
	ledger  *LedgerService
	partner LendingClient
	clock   clock.Clock
}

func NewDisbursementService(repo DisbursementRepository, ledger *LedgerService, partner LendingClient, clk clock.Clock) *DisbursementService {
	return &DisbursementService{
		repo:    repo,
		ledger:  ledger,
		partner: partner,
		clock:   clk,
	}
}

type RequestDisbursementInput struct {
	OrgID      string
	SupplierID string
	Amount     decimal.Decimal
}

// RequestDisbursement reserves credit and submits the disbursement to the
// partner. The reservation and the request row are written in one
// transaction, so a crash cannot leave a reservation with no owner. The
// request is returned in the submitted state; confirmation arrives later by
// webhook.
func (s *DisbursementService) RequestDisbursement(ctx context.Context, in RequestDisbursementInput) (domain.DisbursementRequest, error) {
	if in.OrgID == "" || in.SupplierID == "" {
		return domain.DisbursementRequest{}, domain.ErrRequestNotFound
	}
	if in.Amount.Sign() <= 0 {
		return domain.DisbursementRequest{}, domain.ErrInvalidAmount
	}

	now := s.clock.Now()
	req := domain.DisbursementRequest{
		ID:         uuid.NewString(),
		OrgID:      in.OrgID,
		SupplierID: in.SupplierID,
		Amount:     in.Amount,
		State:      domain.DisbursementStateReserved,
		CreatedAt:  now,
	}
	req.Reference = DisbursementReference(req.ID)

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.ledger.Reserve(txCtx, in.OrgID, in.Amount); err != nil {
			return err
		}
		return s.repo.Create(txCtx, req)
	})
	if err != nil {
		return domain.DisbursementRequest{}, err
	}

	if err := s.repo.Transition(ctx, req.ID, domain.DisbursementStateReserved, domain.DisbursementStateSubmitted); err != nil {
		return domain.DisbursementRequest{}, err
	}
	req.State = domain.DisbursementStateSubmitted

	if err := s.partner.Disburse(ctx, req.Reference, in.SupplierID, in.Amount); err != nil {
		if ferr := s.failAndRelease(ctx, req, domain.DisbursementStateSubmitted, err.Error()); ferr != nil {
			return domain.DisbursementRequest{}, ferr
		}
		return domain.DisbursementRequest{}, err
	}

	return req, nil
}

// HandlePartnerEvent applies one admitted lending-partner event. Unknown
// references come back as ErrRequestNotFound and already-settled requests as
// ErrStaleTransition; the supervisor logs and drops both.
func (s *DisbursementService) HandlePartnerEvent(ctx context.Context, ev domain.InboundEvent) error {
	switch ev := ev.(type) {
	case domain.ApplicationApproved:
		return s.ledger.SetCreditLimit(ctx, ev.OrgID, ev.CreditLimit)
	case domain.ApplicationRejected:
		return s.failByReference(ctx, ev.Reference, ev.Reason)
	case domain.DisbursementCompleted:
		return s.confirm(ctx, ev.Reference)
	case domain.DisbursementFailed:
		return s.failByReference(ctx, ev.Reference, ev.Reason)
	default:
		return domain.ErrRequestNotFound
	}
}

// Reverse voids a confirmed disbursement on a partner-initiated correction.
func (s *DisbursementService) Reverse(ctx context.Context, requestID string) (domain.LedgerTransaction, error) {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return domain.LedgerTransaction{}, err
	}
	if req.State != domain.DisbursementStateConfirmed {
		return domain.LedgerTransaction{}, domain.ErrStaleTransition
	}

	var txn domain.LedgerTransaction
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.MarkReversed(txCtx, req.ID); err != nil {
			return err
		}
		var perr error
		txn, perr = s.ledger.Reverse(txCtx, req.OrgID, req.ID, req.Amount)
		return perr
	})
	if err != nil {
		return domain.LedgerTransaction{}, err
	}
	return txn, nil
}

func (s *DisbursementService) confirm(ctx context.Context, reference string) error {
	req, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		return err
	}
	if req == nil {
		return domain.ErrRequestNotFound
	}
	if req.Settled() {
		return domain.ErrStaleTransition
	}

	now := s.clock.Now()
	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.MarkConfirmed(txCtx, req.ID, now); err != nil {
			return err
		}
		_, err := s.ledger.PostDisbursement(txCtx, req.OrgID, req.ID, req.Amount)
		return err
	})
}

func (s *DisbursementService) failByReference(ctx context.Context, reference, reason string) error {
	req, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		return err
	}
	if req == nil {
		return domain.ErrRequestNotFound
	}
	switch req.State {
	case domain.DisbursementStateReserved, domain.DisbursementStateSubmitted:
		return s.failAndRelease(ctx, *req, req.State, reason)
	default:
		return domain.ErrStaleTransition
	}
}

func (s *DisbursementService) failAndRelease(ctx context.Context, req domain.DisbursementRequest, from domain.DisbursementState, reason string) error {
	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.MarkFailed(txCtx, req.ID, from, reason); err != nil {
			return err
		}
		return s.ledger.Release(txCtx, req.OrgID, req.Amount)
	})
}

// DisbursementReference derives the partner-facing reference from the
// request id. Deterministic, so a retried call is recognized by the partner
// as the same disbursement.
func DisbursementReference(requestID string) string {
	compact := strings.ToUpper(strings.ReplaceAll(requestID, "-", ""))
	if len(compact) > 12 {
		compact = compact[:12]
	}
	return "DSB-" + compact
}
