package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics groups the collectors exported by the demo backend. All
// methods are safe on a nil receiver so components can run without metrics.
type EscrowMetrics struct {
	flowRuns      *prometheus.CounterVec
	txSubmitted   *prometheus.CounterVec
	receiptWait   prometheus.Histogram
	viewCache     *prometheus.CounterVec
	eventsFetched *prometheus.CounterVec
	eventsSkipped *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
}

var (
	escrowOnce     sync.Once
	escrowRegistry *EscrowMetrics
)

// Escrow returns the lazily-initialised metrics registry.
func Escrow() *EscrowMetrics {
	escrowOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			flowRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Name:      "flow_runs_total",
				Help:      "Transaction flows run, segmented by flow and outcome.",
			}, []string{"flow", "outcome"}),
			txSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Name:      "tx_submitted_total",
				Help:      "Transactions submitted to the chain, segmented by contract method.",
			}, []string{"method"}),
			receiptWait: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "escrow",
				Name:      "receipt_wait_seconds",
				Help:      "Time spent waiting for transaction receipts.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
			}),
			viewCache: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Name:      "view_cache_total",
				Help:      "Dashboard view cache lookups, segmented by view and result.",
			}, []string{"view", "result"}),
			eventsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Name:      "events_fetched_total",
				Help:      "Escrow logs decoded, segmented by event kind.",
			}, []string{"kind"}),
			eventsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Name:      "events_skipped_total",
				Help:      "Escrow logs dropped because they failed to decode.",
			}, []string{"kind"}),
			httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Name:      "http_requests_total",
				Help:      "HTTP requests served, segmented by route and status code.",
			}, []string{"route", "status"}),
			httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "escrow",
				Name:      "http_request_duration_seconds",
				Help:      "Latency distribution of HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
		}
		prometheus.MustRegister(
			escrowRegistry.flowRuns,
			escrowRegistry.txSubmitted,
			escrowRegistry.receiptWait,
			escrowRegistry.viewCache,
			escrowRegistry.eventsFetched,
			escrowRegistry.eventsSkipped,
			escrowRegistry.httpRequests,
			escrowRegistry.httpLatency,
		)
	})
	return escrowRegistry
}

func (m *EscrowMetrics) ObserveFlow(flow string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.flowRuns.WithLabelValues(flow, outcome).Inc()
}

func (m *EscrowMetrics) TxSubmitted(method string) {
	if m == nil {
		return
	}
	m.txSubmitted.WithLabelValues(method).Inc()
}

func (m *EscrowMetrics) ReceiptWait(d time.Duration) {
	if m == nil {
		return
	}
	m.receiptWait.Observe(d.Seconds())
}

func (m *EscrowMetrics) CacheResult(view string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.viewCache.WithLabelValues(view, result).Inc()
}

func (m *EscrowMetrics) EventsFetched(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsFetched.WithLabelValues(kind).Add(float64(n))
}

func (m *EscrowMetrics) EventSkipped(kind string) {
	if m == nil {
		return
	}
	m.eventsSkipped.WithLabelValues(kind).Inc()
}

// ObserveHTTP records a served request. Unmatched routes are folded into
// "unknown" to keep label cardinality bounded.
func (m *EscrowMetrics) ObserveHTTP(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(route).Observe(d.Seconds())
}
