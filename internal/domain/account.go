package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusClosed    AccountStatus = "closed"
)

// CreditAccount is the per-organization credit facility. The stored balances
// are a materialized view of the ledger; outstanding + reserved never exceeds
// the limit, and every mutation bumps Version.
type CreditAccount struct {
	OrgID              string
	CreditLimit        decimal.Decimal
	OutstandingBalance decimal.Decimal
	ReservedAmount     decimal.Decimal
	Status             AccountStatus
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AvailableCredit is what a new reservation may draw on.
func (a CreditAccount) AvailableCredit() decimal.Decimal {
	return a.CreditLimit.Sub(a.OutstandingBalance).Sub(a.ReservedAmount)
}
