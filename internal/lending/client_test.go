package lending

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/timothylidede/vendai-credit/internal/domain"
)

func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestClient_Disburse(t *testing.T) {
	t.Parallel()

	amount := decimal.RequireFromString("700")

	t.Run("submits signed request", func(t *testing.T) {
		var got disburseRequest
		var apiKey, ts, sig string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/disbursements" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			apiKey = r.Header.Get("X-API-Key")
			ts = r.Header.Get("X-Timestamp")
			sig = r.Header.Get("X-Signature")
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode body: %v", err)
			}
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		client := NewClient(Config{BaseURL: srv.URL, APIKey: "key-1", APISecret: "secret-1"})
		if err := client.Disburse(context.Background(), "DSB-1", "sup-1", amount); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if got.ReferenceNumber != "DSB-1" || got.SupplierID != "sup-1" || !got.Amount.Equal(amount) {
			t.Fatalf("unexpected request body: %+v", got)
		}
		if apiKey != "key-1" || ts == "" || sig == "" {
			t.Fatalf("expected auth headers, got key=%q ts=%q sig=%q", apiKey, ts, sig)
		}
	})

	t.Run("retries transient failures", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		client := NewClient(Config{BaseURL: srv.URL})
		if err := client.Disburse(context.Background(), "DSB-1", "sup-1", amount); err != nil {
			t.Fatalf("expected eventual success, got %v", err)
		}
		if hits.Load() != 3 {
			t.Fatalf("expected 3 attempts, got %d", hits.Load())
		}
	})

	t.Run("gives up after repeated server errors", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := NewClient(Config{BaseURL: srv.URL})
		err := client.Disburse(context.Background(), "DSB-1", "sup-1", amount)
		if err == nil {
			t.Fatalf("expected error")
		}
		if hits.Load() != 3 {
			t.Fatalf("expected 3 attempts, got %d", hits.Load())
		}
	})

	t.Run("rejection is final and carries the partner message", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "supplier not onboarded"})
		}))
		defer srv.Close()

		client := NewClient(Config{BaseURL: srv.URL})
		err := client.Disburse(context.Background(), "DSB-1", "sup-1", amount)
		if !errors.Is(err, domain.ErrPartnerRejected) {
			t.Fatalf("expected ErrPartnerRejected, got %v", err)
		}
		if hits.Load() != 1 {
			t.Fatalf("expected no retry on rejection, got %d attempts", hits.Load())
		}
	})
}

func TestParseWebhook(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		eventID string
		check   func(t *testing.T, ev domain.InboundEvent)
	}{
		{
			name:    "application approved uses credit limit",
			body:    `{"event":"application.approved","eventId":"evt-1","data":{"organizationId":"org-1","creditLimit":"50000"}}`,
			eventID: "evt-1",
			check: func(t *testing.T, ev domain.InboundEvent) {
				got, ok := ev.(domain.ApplicationApproved)
				if !ok || got.OrgID != "org-1" || !got.CreditLimit.Equal(decimal.RequireFromString("50000")) {
					t.Fatalf("unexpected event: %+v", ev)
				}
			},
		},
		{
			name:    "application approved falls back to amount",
			body:    `{"event":"application.approved","eventId":"evt-2","data":{"organizationId":"org-1","amount":"30000"}}`,
			eventID: "evt-2",
			check: func(t *testing.T, ev domain.InboundEvent) {
				got := ev.(domain.ApplicationApproved)
				if !got.CreditLimit.Equal(decimal.RequireFromString("30000")) {
					t.Fatalf("expected amount fallback, got %s", got.CreditLimit)
				}
			},
		},
		{
			name:    "application rejected",
			body:    `{"event":"application.rejected","eventId":"evt-3","data":{"reference":"DSB-1","message":"kyc incomplete"}}`,
			eventID: "evt-3",
			check: func(t *testing.T, ev domain.InboundEvent) {
				got := ev.(domain.ApplicationRejected)
				if got.Reference != "DSB-1" || got.Reason != "kyc incomplete" {
					t.Fatalf("unexpected event: %+v", got)
				}
			},
		},
		{
			name:    "disbursement completed",
			body:    `{"event":"disbursement.completed","eventId":"evt-4","data":{"reference":"DSB-1"}}`,
			eventID: "evt-4",
			check: func(t *testing.T, ev domain.InboundEvent) {
				if got := ev.(domain.DisbursementCompleted); got.Reference != "DSB-1" {
					t.Fatalf("unexpected event: %+v", got)
				}
			},
		},
		{
			name:    "disbursement failed",
			body:    `{"event":"disbursement.failed","eventId":"evt-5","data":{"reference":"DSB-1","message":"insufficient float"}}`,
			eventID: "evt-5",
			check: func(t *testing.T, ev domain.InboundEvent) {
				got := ev.(domain.DisbursementFailed)
				if got.Reference != "DSB-1" || got.Reason != "insufficient float" {
					t.Fatalf("unexpected event: %+v", got)
				}
			},
		},
		{
			name:    "repayment received",
			body:    `{"event":"repayment.received","eventId":"evt-6","data":{"organizationId":"org-1","amount":"500","reference":"bank-77"}}`,
			eventID: "evt-6",
			check: func(t *testing.T, ev domain.InboundEvent) {
				got := ev.(domain.RepaymentReceived)
				if got.OrgID != "org-1" || !got.Amount.Equal(decimal.RequireFromString("500")) || got.Reference != "bank-77" {
					t.Fatalf("unexpected event: %+v", got)
				}
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev, eventID, err := ParseWebhook([]byte(tt.body))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if eventID != tt.eventID {
				t.Fatalf("expected event id %s, got %s", tt.eventID, eventID)
			}
			tt.check(t, ev)
		})
	}

	t.Run("unknown event type fails", func(t *testing.T) {
		if _, _, err := ParseWebhook([]byte(`{"event":"loan.whatever","eventId":"evt-9"}`)); err == nil {
			t.Fatalf("expected error for unknown event type")
		}
	})

	t.Run("malformed body fails", func(t *testing.T) {
		if _, _, err := ParseWebhook([]byte(`not json`)); err == nil {
			t.Fatalf("expected error for malformed body")
		}
	})
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	body := []byte(`{"event":"disbursement.completed"}`)
	const secret = "webhook-secret"

	sig := signPayload(secret, body)
	if !VerifySignature(secret, body, sig) {
		t.Fatalf("expected valid signature to verify")
	}
	if VerifySignature(secret, body, "deadbeef") {
		t.Fatalf("expected bogus signature to fail")
	}
	if VerifySignature("other-secret", body, sig) {
		t.Fatalf("expected wrong secret to fail")
	}
}
