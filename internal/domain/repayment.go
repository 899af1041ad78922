package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RepaymentState string

const (
	RepaymentStateInitiated RepaymentState = "initiated"
	RepaymentStatePushed    RepaymentState = "pushed"
	RepaymentStateCompleted RepaymentState = "completed"
	RepaymentStateFailed    RepaymentState = "failed"
	RepaymentStateTimedOut  RepaymentState = "timed_out"
)

// RepaymentRequest is one mobile-money collection attempt.
// CheckoutRequestID is assigned by the gateway when the push is accepted and
// is the only correlation key for the eventual callback; a request that never
// received one can only be resolved by the timeout sweep.
type RepaymentRequest struct {
	ID                string
	OrgID             string
	Amount            decimal.Decimal
	PhoneNumber       string
	CheckoutRequestID string
	State             RepaymentState
	FailureReason     string
	Receipt           string
	CreatedAt         time.Time
	ResolvedAt        *time.Time
}

// Resolved reports whether the request reached a terminal state.
func (r RepaymentRequest) Resolved() bool {
	switch r.State {
	case RepaymentStateCompleted, RepaymentStateFailed, RepaymentStateTimedOut:
		return true
	}
	return false
}
