package app

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/timothylidede/vendai-credit/internal/alerts"
	"github.com/timothylidede/vendai-credit/internal/clock"
	"github.com/timothylidede/vendai-credit/internal/domain"
)

func TestSupervisor_HandleInbound(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	parsePartner := func(ev domain.InboundEvent, id string, err error) ParsePartnerFunc {
		return func([]byte) (domain.InboundEvent, string, error) { return ev, id, err }
	}
	parseCallback := func(cb domain.PaymentCallback, err error) ParseCallbackFunc {
		return func([]byte) (domain.PaymentCallback, error) { return cb, err }
	}

	makeSup := func(partner ParsePartnerFunc, callback ParseCallbackFunc, disb *fakePartnerHandler, repay *fakeCallbackHandler, poster *fakeRepaymentPoster, pub alerts.Publisher) *Supervisor {
		guard := NewIdempotencyGuard(newFakeEventRepo(), clock.NewFixed(now))
		return NewSupervisor(guard, disb, repay, poster, partner, callback, pub, log.New(io.Discard, "", 0))
	}

	t.Run("processes a fresh partner event once", func(t *testing.T) {
		disb := &fakePartnerHandler{}
		sup := makeSup(
			parsePartner(domain.DisbursementCompleted{Reference: "DSB-1"}, "evt-1", nil),
			nil, disb, &fakeCallbackHandler{}, &fakeRepaymentPoster{}, nil,
		)

		for i := 0; i < 5; i++ {
			outcome := sup.HandleInbound(context.Background(), domain.SourceLendingPartner, []byte(`{}`))
			want := OutcomeDuplicate
			if i == 0 {
				want = OutcomeProcessed
			}
			if outcome != want {
				t.Fatalf("delivery %d: expected %s, got %s", i, want, outcome)
			}
		}
		if disb.calls != 1 {
			t.Fatalf("expected exactly one dispatch, got %d", disb.calls)
		}
	})

	t.Run("routes payment callbacks to the repayment handler", func(t *testing.T) {
		repay := &fakeCallbackHandler{}
		sup := makeSup(
			nil,
			parseCallback(domain.PaymentCallback{CheckoutRequestID: "ws_CO_1", ResultCode: 0}, nil),
			&fakePartnerHandler{}, repay, &fakeRepaymentPoster{}, nil,
		)

		if outcome := sup.HandleInbound(context.Background(), domain.SourceMobileMoney, []byte(`{}`)); outcome != OutcomeProcessed {
			t.Fatalf("expected processed, got %s", outcome)
		}
		if repay.calls != 1 {
			t.Fatalf("expected one callback dispatch, got %d", repay.calls)
		}
	})

	t.Run("routes partner-side repayments to the ledger", func(t *testing.T) {
		poster := &fakeRepaymentPoster{}
		sup := makeSup(
			parsePartner(domain.RepaymentReceived{OrgID: "org-1", Amount: dec("500"), Reference: "bank-77"}, "evt-2", nil),
			nil, &fakePartnerHandler{}, &fakeCallbackHandler{}, poster, nil,
		)

		if outcome := sup.HandleInbound(context.Background(), domain.SourceLendingPartner, []byte(`{}`)); outcome != OutcomeProcessed {
			t.Fatalf("expected processed, got %s", outcome)
		}
		if poster.calls != 1 {
			t.Fatalf("expected one ledger posting, got %d", poster.calls)
		}
	})

	t.Run("unknown reference is dropped without alert", func(t *testing.T) {
		pub := &capturePublisher{}
		sup := makeSup(
			parsePartner(domain.DisbursementCompleted{Reference: "DSB-UNKNOWN"}, "evt-3", nil),
			nil, &fakePartnerHandler{err: domain.ErrRequestNotFound}, &fakeCallbackHandler{}, &fakeRepaymentPoster{}, pub,
		)

		if outcome := sup.HandleInbound(context.Background(), domain.SourceLendingPartner, []byte(`{}`)); outcome != OutcomeDropped {
			t.Fatalf("expected dropped, got %s", outcome)
		}
		if len(pub.events) != 0 {
			t.Fatalf("expected no alerts, got %d", len(pub.events))
		}
	})

	t.Run("stale transition is dropped without alert", func(t *testing.T) {
		pub := &capturePublisher{}
		sup := makeSup(
			parsePartner(domain.DisbursementCompleted{Reference: "DSB-1"}, "evt-4", nil),
			nil, &fakePartnerHandler{err: domain.ErrStaleTransition}, &fakeCallbackHandler{}, &fakeRepaymentPoster{}, pub,
		)

		if outcome := sup.HandleInbound(context.Background(), domain.SourceLendingPartner, []byte(`{}`)); outcome != OutcomeDropped {
			t.Fatalf("expected dropped, got %s", outcome)
		}
		if len(pub.events) != 0 {
			t.Fatalf("expected no alerts, got %d", len(pub.events))
		}
	})

	t.Run("dispatch failure raises a critical alert", func(t *testing.T) {
		pub := &capturePublisher{}
		sup := makeSup(
			parsePartner(domain.DisbursementCompleted{Reference: "DSB-1"}, "evt-5", nil),
			nil, &fakePartnerHandler{err: errors.New("db down")}, &fakeCallbackHandler{}, &fakeRepaymentPoster{}, pub,
		)

		if outcome := sup.HandleInbound(context.Background(), domain.SourceLendingPartner, []byte(`{}`)); outcome != OutcomeFailed {
			t.Fatalf("expected failed, got %s", outcome)
		}
		if len(pub.events) != 1 || pub.events[0].Severity != alerts.SeverityCritical {
			t.Fatalf("expected one critical alert, got %+v", pub.events)
		}
	})

	t.Run("malformed payload raises a warning alert", func(t *testing.T) {
		pub := &capturePublisher{}
		sup := makeSup(
			parsePartner(nil, "", errors.New("unknown event type")),
			nil, &fakePartnerHandler{}, &fakeCallbackHandler{}, &fakeRepaymentPoster{}, pub,
		)

		if outcome := sup.HandleInbound(context.Background(), domain.SourceLendingPartner, []byte(`garbage`)); outcome != OutcomeParseFailed {
			t.Fatalf("expected parse_failed, got %s", outcome)
		}
		if len(pub.events) != 1 || pub.events[0].Severity != alerts.SeverityWarning {
			t.Fatalf("expected one warning alert, got %+v", pub.events)
		}
	})

	t.Run("concurrent duplicate deliveries admit exactly one", func(t *testing.T) {
		disb := &fakePartnerHandler{}
		sup := makeSup(
			parsePartner(domain.DisbursementCompleted{Reference: "DSB-1"}, "evt-6", nil),
			nil, disb, &fakeCallbackHandler{}, &fakeRepaymentPoster{}, nil,
		)

		const n = 16
		outcomes := make([]Outcome, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				outcomes[i] = sup.HandleInbound(context.Background(), domain.SourceLendingPartner, []byte(`{}`))
			}(i)
		}
		wg.Wait()

		var processed int
		for _, outcome := range outcomes {
			if outcome == OutcomeProcessed {
				processed++
			}
		}
		if processed != 1 {
			t.Fatalf("expected exactly one processed delivery, got %d", processed)
		}
		if disb.calls != 1 {
			t.Fatalf("expected exactly one dispatch, got %d", disb.calls)
		}
	})
}

func TestEventKey(t *testing.T) {
	t.Parallel()

	if key := EventKey(domain.SourceLendingPartner, "evt-1", nil); key != "lending:evt-1" {
		t.Fatalf("expected lending:evt-1, got %s", key)
	}

	a := EventKey(domain.SourceMobileMoney, "", []byte(`{"a":1}`))
	b := EventKey(domain.SourceMobileMoney, "", []byte(`{"a":1}`))
	c := EventKey(domain.SourceMobileMoney, "", []byte(`{"a":2}`))
	if a != b {
		t.Fatalf("expected identical payloads to share a key, got %s vs %s", a, b)
	}
	if a == c {
		t.Fatalf("expected distinct payloads to differ, both %s", a)
	}
	if EventKey(domain.SourceLendingPartner, "", []byte(`{"a":1}`)) == a {
		t.Fatalf("expected source namespacing to separate keys")
	}
}

func TestIdempotencyGuard_Admit(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	guard := NewIdempotencyGuard(newFakeEventRepo(), clock.NewFixed(now))
	ctx := context.Background()

	admitted, err := guard.Admit(ctx, domain.SourceLendingPartner, "lending:evt-1")
	if err != nil || !admitted {
		t.Fatalf("expected first admission, got admitted=%v err=%v", admitted, err)
	}
	admitted, err = guard.Admit(ctx, domain.SourceLendingPartner, "lending:evt-1")
	if err != nil || admitted {
		t.Fatalf("expected duplicate refusal, got admitted=%v err=%v", admitted, err)
	}
	if _, err := guard.Admit(ctx, domain.SourceLendingPartner, ""); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

type fakeEventRepo struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{seen: make(map[string]struct{})}
}

func (f *fakeEventRepo) Admit(_ context.Context, _ domain.EventSource, eventKey string, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[eventKey]; ok {
		return false, nil
	}
	f.seen[eventKey] = struct{}{}
	return true, nil
}

type fakePartnerHandler struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakePartnerHandler) HandlePartnerEvent(context.Context, domain.InboundEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type fakeCallbackHandler struct {
	err   error
	calls int
}

func (f *fakeCallbackHandler) HandlePaymentCallback(context.Context, domain.PaymentCallback) error {
	f.calls++
	return f.err
}

type fakeRepaymentPoster struct {
	err   error
	calls int
}

func (f *fakeRepaymentPoster) PostRepayment(_ context.Context, orgID, requestID string, amount decimal.Decimal) (domain.LedgerTransaction, error) {
	f.calls++
	return domain.LedgerTransaction{OrgID: orgID, RelatedRequestID: requestID, Amount: amount}, f.err
}

type capturePublisher struct {
	events []alerts.Event
}

func (c *capturePublisher) Publish(_ context.Context, ev alerts.Event) error {
	c.events = append(c.events, ev)
	return nil
}
