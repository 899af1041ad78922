package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	InboundEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "credit",
			Name:      "inbound_events_total",
			Help:      "Inbound webhook/callback deliveries by source and internal outcome",
		},
		[]string{"source", "outcome"},
	)

	LedgerTransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "credit",
			Name:      "ledger_transactions_total",
			Help:      "Ledger transactions appended, by type",
		},
		[]string{"type"},
	)

	OutboundCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "credit",
			Name:      "outbound_call_duration_seconds",
			Help:      "Duration of outbound partner/gateway calls",
			Buckets: []float64{
				0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.2, 2, 3, 5, 8, 13,
			},
		},
		[]string{"target", "status"},
	)
)

func init() {
	prometheus.MustRegister(InboundEventsTotal, LedgerTransactionsTotal, OutboundCallDuration)
}

func IncInbound(source, outcome string) {
	InboundEventsTotal.WithLabelValues(source, outcome).Inc()
}

func IncLedgerTransaction(typ string) {
	LedgerTransactionsTotal.WithLabelValues(typ).Inc()
}

func ObserveOutbound(target, status string, seconds float64) {
	OutboundCallDuration.WithLabelValues(target, status).Observe(seconds)
}
