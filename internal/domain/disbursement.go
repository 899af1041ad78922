package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DisbursementState string

const (
	DisbursementStateCreated   DisbursementState = "created"
	DisbursementStateReserved  DisbursementState = "reserved"
	DisbursementStateSubmitted DisbursementState = "submitted"
	DisbursementStateConfirmed DisbursementState = "confirmed"
	DisbursementStateFailed    DisbursementState = "failed"
	DisbursementStateReversed  DisbursementState = "reversed"
)

// DisbursementRequest is one ask to move approved credit to a supplier.
// Reference is derived from ID and doubles as the partner-side idempotency
// key, so a retried outbound call cannot double-disburse.
type DisbursementRequest struct {
	ID            string
	OrgID         string
	SupplierID    string
	Amount        decimal.Decimal
	Reference     string
	State         DisbursementState
	FailureReason string
	CreatedAt     time.Time
	ConfirmedAt   *time.Time
}

// Settled reports whether the request has left the submitted state. A webhook
// for a settled request is a duplicate or a stale signal and must be dropped.
func (r DisbursementRequest) Settled() bool {
	switch r.State {
	case DisbursementStateConfirmed, DisbursementStateFailed, DisbursementStateReversed:
		return true
	}
	return false
}
