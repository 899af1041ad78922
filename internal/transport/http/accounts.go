package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/timothylidede/vendai-credit/internal/domain"
)

// AccountReader is the read-model the dashboard queries; it never mutates
// core state.
type AccountReader interface {
	Account(ctx context.Context, orgID string) (domain.CreditAccount, error)
	Transactions(ctx context.Context, orgID string) ([]domain.LedgerTransaction, error)
}

// HandleGetAccount returns an HTTP handler for reading one organization's
// credit account.
func HandleGetAccount(svc AccountReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := mux.Vars(r)["orgID"]

		account, err := svc.Account(r.Context(), orgID)
		if err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				writeError(w, http.StatusNotFound, codeAccountNotFound, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, accountResponse{
			OrgID:              account.OrgID,
			CreditLimit:        account.CreditLimit,
			OutstandingBalance: account.OutstandingBalance,
			ReservedAmount:     account.ReservedAmount,
			AvailableCredit:    account.AvailableCredit(),
			Status:             string(account.Status),
		})
	}
}

// HandleListTransactions returns an HTTP handler for an organization's
// ledger history.
func HandleListTransactions(svc AccountReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := mux.Vars(r)["orgID"]

		txns, err := svc.Transactions(r.Context(), orgID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		out := make([]transactionResponse, 0, len(txns))
		for _, t := range txns {
			out = append(out, transactionResponse{
				ID:               t.ID,
				Type:             string(t.Type),
				Amount:           t.Amount,
				RelatedRequestID: t.RelatedRequestID,
				PostedAt:         t.PostedAt,
			})
		}
		writeJSON(w, http.StatusOK, transactionListResponse{Transactions: out})
	}
}

type accountResponse struct {
	OrgID              string          `json:"org_id"`
	CreditLimit        decimal.Decimal `json:"credit_limit"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	ReservedAmount     decimal.Decimal `json:"reserved_amount"`
	AvailableCredit    decimal.Decimal `json:"available_credit"`
	Status             string          `json:"status"`
}

type transactionResponse struct {
	ID               string          `json:"id"`
	Type             string          `json:"type"`
	Amount           decimal.Decimal `json:"amount"`
	RelatedRequestID string          `json:"related_request_id"`
	PostedAt         time.Time       `json:"posted_at"`
}

type transactionListResponse struct {
	Transactions []transactionResponse `json:"transactions"`
}
