package http

import (
	"context"
	"io"
	"net/http"

	"github.com/timothylidede/vendai-credit/internal/app"
	"github.com/timothylidede/vendai-credit/internal/domain"
	"github.com/timothylidede/vendai-credit/internal/lending"
)

const lendingSignatureHeader = "X-Lending-Signature"

// InboundHandler is the supervisor's entry point for external deliveries.
type InboundHandler interface {
	HandleInbound(ctx context.Context, source domain.EventSource, raw []byte) app.Outcome
}

// HandleLendingWebhook receives lending-partner events. When a webhook
// secret is configured the signature is checked before admission; past that
// gate the response is a fixed success no matter what happens internally,
// because the partner retries anything else indefinitely.
func HandleLendingWebhook(supervisor InboundHandler, webhookSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "unreadable request body")
			return
		}

		if webhookSecret != "" {
			sig := r.Header.Get(lendingSignatureHeader)
			if !lending.VerifySignature(webhookSecret, body, sig) {
				writeError(w, http.StatusUnauthorized, codeInvalidSignature, "invalid signature")
				return
			}
		}

		_ = supervisor.HandleInbound(r.Context(), domain.SourceLendingPartner, body)
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

// HandleMpesaCallback receives mobile-money callbacks. The gateway does not
// distinguish "processed" from "retry me", so the acknowledgement is always
// the fixed success body; internal failures surface via alerts, not here.
func HandleMpesaCallback(supervisor InboundHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err == nil {
			_ = supervisor.HandleInbound(r.Context(), domain.SourceMobileMoney, body)
		}
		writeJSON(w, http.StatusOK, mpesaAck{ResultCode: 0, ResultDesc: "Success"})
	}
}

type mpesaAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}
