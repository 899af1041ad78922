package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/timothylidede/vendai-credit/internal/clock"
	"github.com/timothylidede/vendai-credit/internal/domain"
	"github.com/timothylidede/vendai-credit/internal/metrics"
)

type LedgerRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetAccount(ctx context.Context, orgID string) (domain.CreditAccount, error)
	UpsertCreditLimit(ctx context.Context, orgID string, limit decimal.Decimal, now time.Time) error
	Reserve(ctx context.Context, orgID string, amount decimal.Decimal, now time.Time) error
	Release(ctx context.Context, orgID string, amount decimal.Decimal, now time.Time) error
	ApplyDisbursement(ctx context.Context, orgID string, amount decimal.Decimal, now time.Time) error
	ApplyRepayment(ctx context.Context, orgID string, amount decimal.Decimal, now time.Time) error
	ApplyReversal(ctx context.Context, orgID string, amount decimal.Decimal, now time.Time) error
	AppendTransaction(ctx context.Context, txn domain.LedgerTransaction) error
	ListTransactions(ctx context.Context, orgID string) ([]domain.LedgerTransaction, error)
}

// LedgerService is the only writer of credit account balances. Posting and
// the matching log append happen in one transaction, so the materialized
// balance and the replayed log can never drift.
type LedgerService struct {
	repo  LedgerRepository
	clock clock.Clock
}

func NewLedgerService(repo LedgerRepository, clk clock.Clock) *LedgerService {
	return &LedgerService{repo: repo, clock: clk}
}

func (s *LedgerService) Account(ctx context.Context, orgID string) (domain.CreditAccount, error) {
	return s.repo.GetAccount(ctx, orgID)
}

func (s *LedgerService) Transactions(ctx context.Context, orgID string) ([]domain.LedgerTransaction, error) {
	return s.repo.ListTransactions(ctx, orgID)
}

func (s *LedgerService) SetCreditLimit(ctx context.Context, orgID string, limit decimal.Decimal) error {
	if orgID == "" {
		return domain.ErrAccountNotFound
	}
	if limit.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	return s.repo.UpsertCreditLimit(ctx, orgID, limit, s.clock.Now())
}

func (s *LedgerService) Reserve(ctx context.Context, orgID string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	return s.repo.Reserve(ctx, orgID, amount, s.clock.Now())
}

func (s *LedgerService) Release(ctx context.Context, orgID string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	return s.repo.Release(ctx, orgID, amount, s.clock.Now())
}

// PostDisbursement consumes the request's reservation and appends the
// disbursement transaction.
func (s *LedgerService) PostDisbursement(ctx context.Context, orgID, requestID string, amount decimal.Decimal) (domain.LedgerTransaction, error) {
	return s.post(ctx, domain.TransactionTypeDisbursement, orgID, requestID, amount, s.repo.ApplyDisbursement)
}

// PostRepayment reduces outstanding balance and appends the repayment
// transaction.
func (s *LedgerService) PostRepayment(ctx context.Context, orgID, requestID string, amount decimal.Decimal) (domain.LedgerTransaction, error) {
	return s.post(ctx, domain.TransactionTypeRepayment, orgID, requestID, amount, s.repo.ApplyRepayment)
}

// Reverse voids confirmed, disbursed funds on a partner-initiated correction.
func (s *LedgerService) Reverse(ctx context.Context, orgID, requestID string, amount decimal.Decimal) (domain.LedgerTransaction, error) {
	return s.post(ctx, domain.TransactionTypeReversal, orgID, requestID, amount, s.repo.ApplyReversal)
}

func (s *LedgerService) post(
	ctx context.Context,
	typ domain.TransactionType,
	orgID, requestID string,
	amount decimal.Decimal,
	apply func(ctx context.Context, orgID string, amount decimal.Decimal, now time.Time) error,
) (domain.LedgerTransaction, error) {
	if amount.Sign() <= 0 {
		return domain.LedgerTransaction{}, domain.ErrInvalidAmount
	}

	now := s.clock.Now()
	txn := domain.LedgerTransaction{
		ID:               uuid.NewString(),
		OrgID:            orgID,
		Type:             typ,
		Amount:           amount,
		RelatedRequestID: requestID,
		PostedAt:         now,
	}

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := apply(txCtx, orgID, amount, now); err != nil {
			return err
		}
		return s.repo.AppendTransaction(txCtx, txn)
	})
	if err != nil {
		return domain.LedgerTransaction{}, err
	}

	metrics.IncLedgerTransaction(string(typ))
	return txn, nil
}

// Replay recomputes the outstanding balance from the transaction log.
func (s *LedgerService) Replay(ctx context.Context, orgID string) (decimal.Decimal, error) {
	txns, err := s.repo.ListTransactions(ctx, orgID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	balance := decimal.Zero
	for _, txn := range txns {
		balance = balance.Add(txn.BalanceEffect())
	}
	return balance, nil
}

// VerifyBalance compares the materialized balance against the replayed log.
// A mismatch is an invariant violation and must be raised loudly.
func (s *LedgerService) VerifyBalance(ctx context.Context, orgID string) error {
	account, err := s.repo.GetAccount(ctx, orgID)
	if err != nil {
		return err
	}
	replayed, err := s.Replay(ctx, orgID)
	if err != nil {
		return err
	}
	if !replayed.Equal(account.OutstandingBalance) {
		return fmt.Errorf("%w: org %s stored %s replayed %s",
			domain.ErrBalanceMismatch, orgID, account.OutstandingBalance, replayed)
	}
	return nil
}
