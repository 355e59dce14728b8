package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TransactionMetrics records the payment transaction lifecycle.
type TransactionMetrics struct {
	created        *prometheus.CounterVec
	outcomes       *prometheus.CounterVec
	erpSyncFailure prometheus.Counter
	commitDuration prometheus.Histogram
}

// NewTransactionMetrics registers the transaction metrics on the provided registerer.
func NewTransactionMetrics(reg prometheus.Registerer) *TransactionMetrics {
	if reg == nil {
		return &TransactionMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transactions_created",
		Help: "Gateway transactions created, by tenant.",
	}, []string{"tenant"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transactions_committed",
		Help: "Commit callbacks processed, by outcome.",
	}, []string{"outcome"})
	erpSyncFailure := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "erp_sync_failures",
		Help: "Successful payments whose ERP reconciliation failed.",
	})
	commitDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "commit_duration_seconds",
		Help:    "Duration of gateway commit calls in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(created, outcomes, erpSyncFailure, commitDuration)
	return &TransactionMetrics{
		created:        created,
		outcomes:       outcomes,
		erpSyncFailure: erpSyncFailure,
		commitDuration: commitDuration,
	}
}

// IncCreated increments the created counter for the given tenant.
func (m *TransactionMetrics) IncCreated(tenant string) {
	if m == nil || m.created == nil {
		return
	}
	m.created.WithLabelValues(normalizeLabel(tenant)).Inc()
}

// IncOutcome increments the callback counter for the given outcome.
func (m *TransactionMetrics) IncOutcome(outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncERPSyncFailure counts a best-effort ERP sync that did not complete.
func (m *TransactionMetrics) IncERPSyncFailure() {
	if m == nil || m.erpSyncFailure == nil {
		return
	}
	m.erpSyncFailure.Inc()
}

// ObserveCommit records the duration of one gateway commit call.
func (m *TransactionMetrics) ObserveCommit(d time.Duration) {
	if m == nil || m.commitDuration == nil {
		return
	}
	m.commitDuration.Observe(d.Seconds())
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}
