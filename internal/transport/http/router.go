package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig collects the services the HTTP surface exposes.
type RouterConfig struct {
	Disbursements DisbursementRequester
	Repayments    RepaymentRequester
	Accounts      AccountReader
	Supervisor    InboundHandler
	WebhookSecret string
}

// NewRouter wires all routes. Webhook endpoints are deliberately separate
// from the operation endpoints: the former always acknowledge success, the
// latter report real errors to callers.
func NewRouter(cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", HealthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.Handle("/credit/disbursements", HandleRequestDisbursement(cfg.Disbursements)).Methods(http.MethodPost)
	r.Handle("/credit/repayments", HandleRequestRepayment(cfg.Repayments)).Methods(http.MethodPost)
	r.Handle("/credit/accounts/{orgID}", HandleGetAccount(cfg.Accounts)).Methods(http.MethodGet)
	r.Handle("/credit/accounts/{orgID}/transactions", HandleListTransactions(cfg.Accounts)).Methods(http.MethodGet)

	r.Handle("/webhooks/lending", HandleLendingWebhook(cfg.Supervisor, cfg.WebhookSecret)).Methods(http.MethodPost)
	r.Handle("/payments/mpesa/callback", HandleMpesaCallback(cfg.Supervisor)).Methods(http.MethodPost)

	r.NotFoundHandler = NotFoundHandler()
	r.MethodNotAllowedHandler = MethodNotAllowedHandler()
	return r
}
