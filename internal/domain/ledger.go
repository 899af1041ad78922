package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeDisbursement TransactionType = "disbursement"
	TransactionTypeRepayment    TransactionType = "repayment"
	TransactionTypeReversal     TransactionType = "reversal"
)

// LedgerTransaction is one immutable, append-only record of a
// balance-affecting event. Replaying an organization's log from zero must
// reproduce its materialized outstanding balance.
type LedgerTransaction struct {
	ID               string
	OrgID            string
	Type             TransactionType
	Amount           decimal.Decimal
	RelatedRequestID string
	PostedAt         time.Time
}

// BalanceEffect is the transaction's signed contribution to the outstanding
// balance: disbursements increase it, repayments and reversals decrease it.
func (t LedgerTransaction) BalanceEffect() decimal.Decimal {
	if t.Type == TransactionTypeDisbursement {
		return t.Amount
	}
	return t.Amount.Neg()
}
