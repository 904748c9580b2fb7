// Package metrics provides Prometheus metrics for transaction attempts and
// pre-commit hook dispatch.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Attempt outcomes
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

var (
	// transactionAttempts counts transaction attempts by outcome. A retried
	// transaction contributes one attempt per try.
	transactionAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbext_transaction_attempts_total",
			Help: "Total number of transaction attempts",
		},
		[]string{"outcome"},
	)

	transactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbext_transaction_duration_seconds",
			Help:    "Duration of a transaction attempt, from enter to leave",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	transactionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dbext_transactions_in_flight",
			Help: "Current number of open transaction attempts",
		},
	)

	precommitActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbext_precommit_actions_total",
			Help: "Total number of pre-commit hook actions executed",
		},
		[]string{"type", "change"},
	)
)

// RecordAttempt records the outcome and duration of one transaction attempt.
func RecordAttempt(outcome string, duration time.Duration) {
	transactionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	transactionAttempts.WithLabelValues(outcome).Inc()
}

// IncrementInFlight increments the open attempts gauge.
func IncrementInFlight() {
	transactionsInFlight.Inc()
}

// DecrementInFlight decrements the open attempts gauge.
func DecrementInFlight() {
	transactionsInFlight.Dec()
}

// RecordPreCommitAction counts one executed pre-commit action.
func RecordPreCommitAction(entityType, change string) {
	precommitActions.WithLabelValues(entityType, change).Inc()
}
