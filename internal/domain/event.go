package domain

import "github.com/shopspring/decimal"

// EventSource identifies which external system delivered an inbound event.
type EventSource string

const (
	SourceLendingPartner EventSource = "lending"
	SourceMobileMoney    EventSource = "mpesa"
)

// InboundEvent is the closed set of external events the core consumes.
// Payloads are parsed into one of these exactly once, at the boundary.
type InboundEvent interface {
	inboundEvent()
}

// ApplicationApproved provisions or raises an organization's credit limit.
type ApplicationApproved struct {
	OrgID       string
	CreditLimit decimal.Decimal
}

// ApplicationRejected fails the disbursement identified by Reference.
type ApplicationRejected struct {
	Reference string
	Reason    string
}

// DisbursementCompleted confirms the disbursement identified by Reference.
type DisbursementCompleted struct {
	Reference string
}

// DisbursementFailed fails the disbursement identified by Reference.
type DisbursementFailed struct {
	Reference string
	Reason    string
}

// RepaymentReceived reports a repayment recorded on the partner's side,
// e.g. a bank transfer that never touched the mobile-money flow.
type RepaymentReceived struct {
	OrgID     string
	Amount    decimal.Decimal
	Reference string
}

// PaymentCallback is the mobile-money gateway's asynchronous answer to an
// STK push. ResultCode zero means the payer completed the payment.
type PaymentCallback struct {
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Amount            decimal.Decimal
	Receipt           string
}

func (ApplicationApproved) inboundEvent()   {}
func (ApplicationRejected) inboundEvent()   {}
func (DisbursementCompleted) inboundEvent() {}
func (DisbursementFailed) inboundEvent()    {}
func (RepaymentReceived) inboundEvent()     {}
func (PaymentCallback) inboundEvent()       {}
