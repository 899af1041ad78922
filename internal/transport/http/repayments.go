package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/timothylidede/vendai-credit/internal/app"
	"github.com/timothylidede/vendai-credit/internal/domain"
)

// RepaymentRequester is the minimal interface needed to start a
// mobile-money collection.
type RepaymentRequester interface {
	RequestRepayment(ctx context.Context, in app.RequestRepaymentInput) (domain.RepaymentRequest, error)
}

// HandleRequestRepayment returns an HTTP handler for initiating credit
// repayments via STK push.
func HandleRequestRepayment(svc RepaymentRequester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req repayRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.OrgID == "" || req.PhoneNumber == "" {
			writeError(w, http.StatusBadRequest, codeMissingField, "org_id and phone_number are required")
			return
		}

		out, err := svc.RequestRepayment(r.Context(), app.RequestRepaymentInput{
			OrgID:       req.OrgID,
			Amount:      req.Amount,
			PhoneNumber: req.PhoneNumber,
		})
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidAmount):
				writeError(w, http.StatusBadRequest, codeInvalidAmount, err.Error())
			case errors.Is(err, domain.ErrInvalidPhoneNumber):
				writeError(w, http.StatusBadRequest, codeInvalidPhoneNumber, err.Error())
			case errors.Is(err, domain.ErrAccountNotFound):
				writeError(w, http.StatusNotFound, codeAccountNotFound, err.Error())
			case errors.Is(err, domain.ErrPushRejected):
				writeError(w, http.StatusUnprocessableEntity, codePushRejected, err.Error())
			default:
				writeError(w, http.StatusServiceUnavailable, codeProcessingDelayed, "processing delayed, we'll update you")
			}
			return
		}

		writeJSON(w, http.StatusAccepted, repayResponse{
			ID:                out.ID,
			State:             string(out.State),
			CheckoutRequestID: out.CheckoutRequestID,
			Amount:            out.Amount,
			CreatedAt:         out.CreatedAt,
		})
	}
}

type repayRequest struct {
	OrgID       string          `json:"org_id"`
	Amount      decimal.Decimal `json:"amount"`
	PhoneNumber string          `json:"phone_number"`
}

type repayResponse struct {
	ID                string          `json:"id"`
	State             string          `json:"state"`
	CheckoutRequestID string          `json:"checkout_request_id"`
	Amount            decimal.Decimal `json:"amount"`
	CreatedAt         time.Time       `json:"created_at"`
}
