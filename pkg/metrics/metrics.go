// Package metrics provides Prometheus metrics for the connection manager:
// registry size, live handle counts, cache effectiveness, import outcomes
// and per-operation latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RegisteredConnections tracks the number of connection records in the
	// in-memory registry.
	RegisteredConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tablelink",
		Name:      "registered_connections",
		Help:      "Number of registered external database connections",
	})

	// LiveHandles tracks the number of materialized connection pools.
	LiveHandles = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tablelink",
		Name:      "live_handles",
		Help:      "Number of materialized pooled connection handles",
	})

	// Operations counts service operations by action and status.
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tablelink",
		Name:      "operations_total",
		Help:      "Total service operations by action and status",
	}, []string{"action", "status"})

	// SchemaCacheHits counts schema cache hits.
	SchemaCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tablelink",
		Name:      "schema_cache_hits_total",
		Help:      "Total schema cache hits",
	})

	// SchemaCacheMisses counts schema cache misses, including TTL expiries.
	SchemaCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tablelink",
		Name:      "schema_cache_misses_total",
		Help:      "Total schema cache misses including expiries",
	})

	// ImportedTables counts single-table imports by outcome.
	ImportedTables = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tablelink",
		Name:      "imported_tables_total",
		Help:      "Total single-table imports by outcome",
	}, []string{"outcome"})

	// ReapedHandles counts handles closed by the idle reaper.
	ReapedHandles = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tablelink",
		Name:      "reaped_handles_total",
		Help:      "Total pooled handles closed for idleness",
	})

	// OperationLatency observes service operation latency in seconds.
	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tablelink",
		Name:      "operation_latency_seconds",
		Help:      "Service operation latency distribution",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"action"})
)

// Timer measures one operation's duration for the latency histogram.
type Timer struct {
	action string
	start  time.Time
}

// NewTimer starts a timer for the given action.
func NewTimer(action string) *Timer {
	return &Timer{action: action, start: time.Now()}
}

// Stop records the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	OperationLatency.WithLabelValues(t.action).Observe(elapsed.Seconds())
	return elapsed
}

// RecordOperation increments the operation counter with a success or error
// status derived from err.
func RecordOperation(action string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	Operations.WithLabelValues(action, status).Inc()
}
