package app

import (
	"context"
	"errors"
	"log"

	"github.com/shopspring/decimal"
	"github.com/timothylidede/vendai-credit/internal/alerts"
	"github.com/timothylidede/vendai-credit/internal/domain"
	"github.com/timothylidede/vendai-credit/internal/metrics"
)

// Outcome is the internal result of handling one inbound event. It feeds
// metrics and alerting only; the wire acknowledgement to the provider is a
// fixed success regardless, because these providers treat anything else as
// an instruction to retry delivery forever.
type Outcome string

const (
	OutcomeProcessed   Outcome = "processed"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeDropped     Outcome = "dropped"
	OutcomeParseFailed Outcome = "parse_failed"
	OutcomeFailed      Outcome = "failed"
)

type Admitter interface {
	Admit(ctx context.Context, source domain.EventSource, eventKey string) (bool, error)
}

type PartnerEventHandler interface {
	HandlePartnerEvent(ctx context.Context, ev domain.InboundEvent) error
}

type CallbackHandler interface {
	HandlePaymentCallback(ctx context.Context, ev domain.PaymentCallback) error
}

type RepaymentPoster interface {
	PostRepayment(ctx context.Context, orgID, requestID string, amount decimal.Decimal) (domain.LedgerTransaction, error)
}

// ParsePartnerFunc turns a raw lending-partner webhook body into an event
// plus the provider's event identifier.
type ParsePartnerFunc func(raw []byte) (domain.InboundEvent, string, error)

// ParseCallbackFunc turns a raw mobile-money callback body into an event.
type ParseCallbackFunc func(raw []byte) (domain.PaymentCallback, error)

// Supervisor is the single entry point for all inbound external events:
// derive the event key, admit it, parse the payload once, dispatch, and
// report the internal outcome. It never returns an error to the transport.
type Supervisor struct {
	guard         Admitter
	disbursements PartnerEventHandler
	repayments    CallbackHandler
	ledger        RepaymentPoster
	parsePartner  ParsePartnerFunc
	parseCallback ParseCallbackFunc
	alerts        alerts.Publisher
	logger        *log.Logger
}

func NewSupervisor(
	guard Admitter,
	disbursements PartnerEventHandler,
	repayments CallbackHandler,
	ledger RepaymentPoster,
	parsePartner ParsePartnerFunc,
	parseCallback ParseCallbackFunc,
	publisher alerts.Publisher,
	logger *log.Logger,
) *Supervisor {
	if logger == nil {
		logger = log.Default()
	}
	return &Supervisor{
		guard:         guard,
		disbursements: disbursements,
		repayments:    repayments,
		ledger:        ledger,
		parsePartner:  parsePartner,
		parseCallback: parseCallback,
		alerts:        publisher,
		logger:        logger,
	}
}

// HandleInbound processes one delivery from an external system.
func (s *Supervisor) HandleInbound(ctx context.Context, source domain.EventSource, raw []byte) Outcome {
	outcome := s.handle(ctx, source, raw)
	metrics.IncInbound(string(source), string(outcome))
	return outcome
}

func (s *Supervisor) handle(ctx context.Context, source domain.EventSource, raw []byte) Outcome {
	var ev domain.InboundEvent
	var providerEventID string
	var err error

	switch source {
	case domain.SourceLendingPartner:
		ev, providerEventID, err = s.parsePartner(raw)
	case domain.SourceMobileMoney:
		var cb domain.PaymentCallback
		cb, err = s.parseCallback(raw)
		ev = cb
	default:
		err = errors.New("unknown event source")
	}
	if err != nil {
		// Re-requesting the same malformed payload would not help; ack it
		// and raise the alarm internally instead.
		s.logger.Printf("WARN: inbound parse failed source=%s err=%v", source, err)
		s.alert(ctx, alerts.SeverityWarning, "inbound_parse_failed", string(source), err.Error())
		return OutcomeParseFailed
	}

	key := EventKey(source, providerEventID, raw)
	admitted, err := s.guard.Admit(ctx, source, key)
	if err != nil {
		s.logger.Printf("WARN: event admission failed source=%s key=%s err=%v", source, key, err)
		s.alert(ctx, alerts.SeverityCritical, "event_admission_failed", key, err.Error())
		return OutcomeFailed
	}
	if !admitted {
		return OutcomeDuplicate
	}

	if err := s.dispatch(ctx, ev); err != nil {
		if errors.Is(err, domain.ErrRequestNotFound) || errors.Is(err, domain.ErrStaleTransition) {
			s.logger.Printf("inbound event dropped source=%s key=%s reason=%v", source, key, err)
			return OutcomeDropped
		}
		s.logger.Printf("WARN: inbound dispatch failed source=%s key=%s err=%v", source, key, err)
		s.alert(ctx, alerts.SeverityCritical, "inbound_dispatch_failed", key, err.Error())
		return OutcomeFailed
	}
	return OutcomeProcessed
}

func (s *Supervisor) dispatch(ctx context.Context, ev domain.InboundEvent) error {
	switch ev := ev.(type) {
	case domain.PaymentCallback:
		return s.repayments.HandlePaymentCallback(ctx, ev)
	case domain.RepaymentReceived:
		_, err := s.ledger.PostRepayment(ctx, ev.OrgID, ev.Reference, ev.Amount)
		return err
	default:
		return s.disbursements.HandlePartnerEvent(ctx, ev)
	}
}

func (s *Supervisor) alert(ctx context.Context, severity alerts.Severity, kind, key, detail string) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Publish(ctx, alerts.Event{
		Severity: severity,
		Kind:     kind,
		Key:      key,
		Detail:   detail,
	}); err != nil {
		s.logger.Printf("WARN: alert publish failed kind=%s err=%v", kind, err)
	}
}
