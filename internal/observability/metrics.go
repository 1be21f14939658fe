package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_transitions_total",
			Help: "Escrow state transitions by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	TxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "escrow_tx_seconds",
			Help:    "Duration of ledger transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	EscrowHeld = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "escrow_held_amount",
			Help: "Total amount currently in custody, atomic units",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "escrow_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox record",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "escrow_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	ReconciliationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "escrow_reconciliation_failures_total",
			Help: "Fund intents the payment layer reported as failed after commit",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "escrow_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
