package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/timothylidede/vendai-credit/internal/clock"
	"github.com/timothylidede/vendai-credit/internal/domain"
)

type RepaymentRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Create(ctx context.Context, req domain.RepaymentRequest) error
	GetByID(ctx context.Context, id string) (domain.RepaymentRequest, error)
	FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.RepaymentRequest, error)
	MarkPushed(ctx context.Context, id, checkoutRequestID string) error
	MarkCompleted(ctx context.Context, id, receipt string, at time.Time) error
	MarkFailed(ctx context.Context, id string, from domain.RepaymentState, reason string, at time.Time) error
	MarkTimedOut(ctx context.Context, id string, from domain.RepaymentState, at time.Time) error
	ListUnresolvedBefore(ctx context.Context, cutoff time.Time) ([]domain.RepaymentRequest, error)
}

// MobileMoneyClient drives the STK push flow against the gateway.
type MobileMoneyClient interface {
	STKPush(ctx context.Context, phoneNumber string, amount decimal.Decimal, accountReference string) (checkoutRequestID string, err error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (resultCode int, resultDesc string, err error)
}

const defaultCallbackWindow = 2 * time.Minute

// RepaymentService coordinates mobile-money collections: it pushes, waits
// for the callback, and times out requests whose callback never arrives.
type RepaymentService struct {
	repo           RepaymentRepository
	ledger         *LedgerService
	gateway        MobileMoneyClient
	clock          clock.Clock
	callbackWindow time.Duration
}

func NewRepaymentService(repo RepaymentRepository, ledger *LedgerService, gateway MobileMoneyClient, clk clock.Clock, opts ...RepaymentServiceOption) *RepaymentService {
	svc := &RepaymentService{
		repo:           repo,
		ledger:         ledger,
		gateway:        gateway,
		clock:          clk,
		callbackWindow: defaultCallbackWindow,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type RepaymentServiceOption func(*RepaymentService)

// WithCallbackWindow overrides how long a pushed request may wait for its
// callback before the sweep resolves it.
func WithCallbackWindow(d time.Duration) RepaymentServiceOption {
	return func(s *RepaymentService) {
		if d > 0 {
			s.callbackWindow = d
		}
	}
}

type RequestRepaymentInput struct {
	OrgID       string
	Amount      decimal.Decimal
	PhoneNumber string
}

// RequestRepayment creates the collection attempt and fires the STK push.
// On acceptance the gateway's checkout request id is recorded as the
// correlation key; on synchronous rejection the request fails immediately.
func (s *RepaymentService) RequestRepayment(ctx context.Context, in RequestRepaymentInput) (domain.RepaymentRequest, error) {
	if in.Amount.Sign() <= 0 {
		return domain.RepaymentRequest{}, domain.ErrInvalidAmount
	}
	phone, err := domain.NormalizePhone(in.PhoneNumber)
	if err != nil {
		return domain.RepaymentRequest{}, err
	}
	if _, err := s.ledger.Account(ctx, in.OrgID); err != nil {
		return domain.RepaymentRequest{}, err
	}

	now := s.clock.Now()
	req := domain.RepaymentRequest{
		ID:          uuid.NewString(),
		OrgID:       in.OrgID,
		Amount:      in.Amount,
		PhoneNumber: phone,
		State:       domain.RepaymentStateInitiated,
		CreatedAt:   now,
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return domain.RepaymentRequest{}, err
	}

	checkoutID, err := s.gateway.STKPush(ctx, phone, in.Amount, repaymentReference(req.ID))
	if err != nil {
		resolved := s.clock.Now()
		if ferr := s.repo.MarkFailed(ctx, req.ID, domain.RepaymentStateInitiated, err.Error(), resolved); ferr != nil {
			return domain.RepaymentRequest{}, ferr
		}
		return domain.RepaymentRequest{}, err
	}

	if err := s.repo.MarkPushed(ctx, req.ID, checkoutID); err != nil {
		return domain.RepaymentRequest{}, err
	}
	req.State = domain.RepaymentStatePushed
	req.CheckoutRequestID = checkoutID
	return req, nil
}

// HandlePaymentCallback applies one admitted gateway callback. Unknown
// checkout ids come back as ErrRequestNotFound and already-resolved requests
// as ErrStaleTransition; the supervisor logs and drops both, which is what
// keeps a late callback after a timeout from double-posting.
func (s *RepaymentService) HandlePaymentCallback(ctx context.Context, ev domain.PaymentCallback) error {
	req, err := s.repo.FindByCheckoutRequestID(ctx, ev.CheckoutRequestID)
	if err != nil {
		return err
	}
	if req == nil {
		return domain.ErrRequestNotFound
	}
	if req.State != domain.RepaymentStatePushed {
		return domain.ErrStaleTransition
	}

	now := s.clock.Now()
	if ev.ResultCode != 0 {
		return s.repo.MarkFailed(ctx, req.ID, domain.RepaymentStatePushed, ev.ResultDesc, now)
	}

	if !ev.Amount.IsZero() && !ev.Amount.Equal(req.Amount) {
		return domain.ErrAmountMismatch
	}

	return s.complete(ctx, *req, ev.Receipt, now)
}

// SweepTimedOut resolves requests whose callback window has closed. Each
// pushed request gets exactly one status query before giving up: a success
// answer completes it, a definitive failure fails it, anything else times it
// out. Requests stuck in initiated (the push itself failed mid-flight) have
// no checkout id, so no callback can ever arrive; they time out directly.
func (s *RepaymentService) SweepTimedOut(ctx context.Context) (int, error) {
	now := s.clock.Now()
	stale, err := s.repo.ListUnresolvedBefore(ctx, now.Add(-s.callbackWindow))
	if err != nil {
		return 0, err
	}

	var resolved int
	var errs []error
	for _, req := range stale {
		var rerr error
		switch req.State {
		case domain.RepaymentStateInitiated:
			rerr = s.repo.MarkTimedOut(ctx, req.ID, domain.RepaymentStateInitiated, now)
		case domain.RepaymentStatePushed:
			rerr = s.resolvePushed(ctx, req, now)
		}
		if rerr != nil {
			// A callback can land between the listing and the transition;
			// losing that race means the request is already resolved.
			if errors.Is(rerr, domain.ErrStaleTransition) {
				continue
			}
			errs = append(errs, rerr)
			continue
		}
		resolved++
	}
	return resolved, errors.Join(errs...)
}

func (s *RepaymentService) resolvePushed(ctx context.Context, req domain.RepaymentRequest, now time.Time) error {
	code, desc, err := s.gateway.QueryStatus(ctx, req.CheckoutRequestID)
	switch {
	case err != nil:
		return s.repo.MarkTimedOut(ctx, req.ID, domain.RepaymentStatePushed, now)
	case code == 0:
		return s.complete(ctx, req, "", now)
	default:
		return s.repo.MarkFailed(ctx, req.ID, domain.RepaymentStatePushed, desc, now)
	}
}

func (s *RepaymentService) complete(ctx context.Context, req domain.RepaymentRequest, receipt string, now time.Time) error {
	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.MarkCompleted(txCtx, req.ID, receipt, now); err != nil {
			return err
		}
		_, err := s.ledger.PostRepayment(txCtx, req.OrgID, req.ID, req.Amount)
		return err
	})
}

func repaymentReference(requestID string) string {
	compact := requestID
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return "REPAY-" + compact
}
