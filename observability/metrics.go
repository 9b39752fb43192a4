package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by the drop.
const Namespace = "nengajo"

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	dropMetricsOnce sync.Once
	dropRegistry    *DropMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record
// JSON-RPC activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a JSON-RPC call. code is zero on success.
func (m *moduleMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// DropMetrics tracks transaction execution inside the node.
type DropMetrics struct {
	txs        *prometheus.CounterVec
	txLatency  *prometheus.HistogramVec
	designs    prometheus.Counter
	mints      *prometheus.CounterVec
	mintable   prometheus.Gauge
	height     prometheus.Gauge
	commitFail prometheus.Counter
}

// Drop returns the singleton registry for transaction execution metrics.
func Drop() *DropMetrics {
	dropMetricsOnce.Do(func() {
		dropRegistry = &DropMetrics{
			txs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "node",
				Name:      "transactions_total",
				Help:      "Count of executed transactions segmented by type and result reason.",
			}, []string{"type", "result"}),
			txLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "node",
				Name:      "transaction_duration_seconds",
				Help:      "Time spent executing and committing a transaction.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"type"}),
			designs: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "drop",
				Name:      "designs_registered_total",
				Help:      "Count of registered designs.",
			}),
			mints: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "drop",
				Name:      "copies_minted_total",
				Help:      "Count of minted copies segmented by design.",
			}, []string{"design"}),
			mintable: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "drop",
				Name:      "mintable_override",
				Help:      "1 when the admin override is on.",
			}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "node",
				Name:      "height",
				Help:      "Number of committed transactions.",
			}),
			commitFail: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "node",
				Name:      "commit_failures_total",
				Help:      "Count of journal commits that failed to reach storage.",
			}),
		}
		prometheus.MustRegister(
			dropRegistry.txs,
			dropRegistry.txLatency,
			dropRegistry.designs,
			dropRegistry.mints,
			dropRegistry.mintable,
			dropRegistry.height,
			dropRegistry.commitFail,
		)
	})
	return dropRegistry
}

// RecordTx records a transaction result. result is "ok" or a rejection reason.
func (m *DropMetrics) RecordTx(txType, result string, duration time.Duration) {
	if m == nil {
		return
	}
	txType = strings.TrimSpace(txType)
	if txType == "" {
		txType = "unknown"
	}
	if result == "" {
		result = "ok"
	}
	m.txs.WithLabelValues(txType, result).Inc()
	m.txLatency.WithLabelValues(txType).Observe(duration.Seconds())
}

// RecordDesign increments the design counter.
func (m *DropMetrics) RecordDesign() {
	if m == nil {
		return
	}
	m.designs.Inc()
}

// RecordMint increments the per-design mint counter.
func (m *DropMetrics) RecordMint(designID string) {
	if m == nil {
		return
	}
	m.mints.WithLabelValues(designID).Inc()
}

// SetMintable mirrors the override flag.
func (m *DropMetrics) SetMintable(on bool) {
	if m == nil {
		return
	}
	if on {
		m.mintable.Set(1)
		return
	}
	m.mintable.Set(0)
}

// SetHeight mirrors the committed transaction count.
func (m *DropMetrics) SetHeight(height uint64) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
}

// RecordCommitFailure increments the commit failure counter.
func (m *DropMetrics) RecordCommitFailure() {
	if m == nil {
		return
	}
	m.commitFail.Inc()
}
