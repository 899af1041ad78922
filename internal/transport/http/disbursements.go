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

// DisbursementRequester is the minimal interface needed to start a
// disbursement.
type DisbursementRequester interface {
	RequestDisbursement(ctx context.Context, in app.RequestDisbursementInput) (domain.DisbursementRequest, error)
}

// HandleRequestDisbursement returns an HTTP handler for initiating supplier
// disbursements against an organization's credit line.
func HandleRequestDisbursement(svc DisbursementRequester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req disburseRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.OrgID == "" || req.SupplierID == "" {
			writeError(w, http.StatusBadRequest, codeMissingField, "org_id and supplier_id are required")
			return
		}

		out, err := svc.RequestDisbursement(r.Context(), app.RequestDisbursementInput{
			OrgID:      req.OrgID,
			SupplierID: req.SupplierID,
			Amount:     req.Amount,
		})
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidAmount):
				writeError(w, http.StatusBadRequest, codeInvalidAmount, err.Error())
			case errors.Is(err, domain.ErrAccountNotFound):
				writeError(w, http.StatusNotFound, codeAccountNotFound, err.Error())
			case errors.Is(err, domain.ErrAccountNotActive):
				writeError(w, http.StatusConflict, codeAccountNotActive, err.Error())
			case errors.Is(err, domain.ErrInsufficientCredit):
				writeError(w, http.StatusConflict, codeInsufficientCredit, err.Error())
			case errors.Is(err, domain.ErrPartnerRejected):
				writeError(w, http.StatusUnprocessableEntity, codePartnerRejected, err.Error())
			default:
				// Transient integration failures resolve asynchronously; the
				// caller cannot be promised an immediate answer.
				writeError(w, http.StatusServiceUnavailable, codeProcessingDelayed, "processing delayed, we'll update you")
			}
			return
		}

		writeJSON(w, http.StatusAccepted, disburseResponse{
			ID:        out.ID,
			Reference: out.Reference,
			State:     string(out.State),
			Amount:    out.Amount,
			CreatedAt: out.CreatedAt,
		})
	}
}

type disburseRequest struct {
	OrgID      string          `json:"org_id"`
	SupplierID string          `json:"supplier_id"`
	Amount     decimal.Decimal `json:"amount"`
}

type disburseResponse struct {
	ID        string          `json:"id"`
	Reference string          `json:"reference"`
	State     string          `json:"state"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}
