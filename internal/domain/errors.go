package domain

import "errors"

var (
	ErrAccountNotFound    = errors.New("credit account not found")
	ErrAccountNotActive   = errors.New("credit account not active")
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidPhoneNumber = errors.New("invalid phone number")
	ErrRequestNotFound    = errors.New("request not found")
	ErrStaleTransition    = errors.New("stale state transition")
	ErrPartnerRejected    = errors.New("disbursement rejected by lending partner")
	ErrPushRejected       = errors.New("payment push rejected by gateway")
	ErrAmountMismatch     = errors.New("callback amount does not match request")
	ErrBalanceMismatch    = errors.New("ledger balance mismatch")
)
