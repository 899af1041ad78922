package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/timothylidede/vendai-credit/internal/app"
	"github.com/timothylidede/vendai-credit/internal/domain"
)

func TestHandleRequestDisbursement(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	submitted := domain.DisbursementRequest{
		ID:        "dsb-123",
		OrgID:     "org-1",
		Reference: "DSB-ABCDEF123456",
		Amount:    decimal.RequireFromString("700"),
		State:     domain.DisbursementStateSubmitted,
		CreatedAt: now,
	}

	tests := []struct {
		name           string
		body           string
		serviceErr     error
		expectedStatus int
		expectedSubstr string
	}{
		{
			name:           "accepted",
			body:           `{"org_id":"org-1","supplier_id":"sup-1","amount":"700"}`,
			expectedStatus: http.StatusAccepted,
			expectedSubstr: `"reference":"DSB-ABCDEF123456"`,
		},
		{
			name:           "invalid json",
			body:           `{"org_id":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown field",
			body:           `{"org_id":"org-1","supplier_id":"sup-1","amount":"700","extra":1}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing supplier",
			body:           `{"org_id":"org-1","amount":"700"}`,
			expectedStatus: http.StatusBadRequest,
			expectedSubstr: `"missing_required_field"`,
		},
		{
			name:           "invalid amount",
			body:           `{"org_id":"org-1","supplier_id":"sup-1","amount":"-5"}`,
			serviceErr:     domain.ErrInvalidAmount,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "account not found",
			body:           `{"org_id":"org-1","supplier_id":"sup-1","amount":"700"}`,
			serviceErr:     domain.ErrAccountNotFound,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "account not active",
			body:           `{"org_id":"org-1","supplier_id":"sup-1","amount":"700"}`,
			serviceErr:     domain.ErrAccountNotActive,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "insufficient credit",
			body:           `{"org_id":"org-1","supplier_id":"sup-1","amount":"700"}`,
			serviceErr:     domain.ErrInsufficientCredit,
			expectedStatus: http.StatusConflict,
			expectedSubstr: `"insufficient_credit"`,
		},
		{
			name:           "partner rejected",
			body:           `{"org_id":"org-1","supplier_id":"sup-1","amount":"700"}`,
			serviceErr:     domain.ErrPartnerRejected,
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "transient partner failure",
			body:           `{"org_id":"org-1","supplier_id":"sup-1","amount":"700"}`,
			serviceErr:     errors.New("connection reset"),
			expectedStatus: http.StatusServiceUnavailable,
			expectedSubstr: `"processing_delayed"`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := &stubDisbursementService{req: submitted, err: tt.serviceErr}
			req := httptest.NewRequest(http.MethodPost, "/credit/disbursements", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()

			HandleRequestDisbursement(svc).ServeHTTP(rec, req)

			res := rec.Result()
			if res.StatusCode != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d", tt.expectedStatus, res.StatusCode)
			}
			if tt.expectedSubstr != "" {
				body := rec.Body.String()
				if !strings.Contains(body, tt.expectedSubstr) {
					t.Fatalf("expected response to contain %q, got %q", tt.expectedSubstr, body)
				}
			}
		})
	}
}

type stubDisbursementService struct {
	req domain.DisbursementRequest
	err error
}

func (s *stubDisbursementService) RequestDisbursement(_ context.Context, _ app.RequestDisbursementInput) (domain.DisbursementRequest, error) {
	if s.err != nil {
		return domain.DisbursementRequest{}, s.err
	}
	return s.req, nil
}
