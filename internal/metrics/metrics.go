// Package metrics records subscription flow and RPC metrics on a private
// Prometheus registry, plus cheap atomic totals for end-of-run summaries.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "subpass"

// Metrics implements subscription.Recorder and rpc.Observer.
type Metrics struct {
	registry *prometheus.Registry

	readFetch       *prometheus.CounterVec
	invalidations   *prometheus.CounterVec
	writeTransition *prometheus.CounterVec
	rpcCalls        *prometheus.CounterVec
	rpcLatency      *prometheus.HistogramVec

	rpcCallsTotal   atomic.Int64
	rpcErrorsTotal  atomic.Int64
	rpcLatencyNanos atomic.Int64
	readsTotal      atomic.Int64
	readErrorsTotal atomic.Int64
}

//nolint:gochecknoglobals // Process-wide default instance
var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Default returns the process-wide metrics instance.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New returns metrics registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		readFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_fetch_total",
			Help:      "Completed ledger reads by query and result",
		}, []string{"query", "result"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalidation_total",
			Help:      "Read cache invalidations by query",
		}, []string{"query"}),
		writeTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_transition_total",
			Help:      "Write tracker transitions by kind and state entered",
		}, []string{"kind", "state"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "JSON-RPC calls by method and result",
		}, []string{"method", "result"}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_latency_seconds",
			Help:      "JSON-RPC call latency by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	m.registry.MustRegister(m.readFetch, m.invalidations, m.writeTransition, m.rpcCalls, m.rpcLatency)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordRead records a completed ledger read.
func (m *Metrics) RecordRead(query string, err error) {
	m.readFetch.WithLabelValues(query, result(err)).Inc()
	m.readsTotal.Add(1)
	if err != nil {
		m.readErrorsTotal.Add(1)
	}
}

// RecordInvalidation records a read cache invalidation.
func (m *Metrics) RecordInvalidation(query string) {
	m.invalidations.WithLabelValues(query).Inc()
}

// RecordWriteTransition records a write tracker entering state.
func (m *Metrics) RecordWriteTransition(kind, state string) {
	m.writeTransition.WithLabelValues(kind, state).Inc()
}

// ObserveRPC records one JSON-RPC round trip.
func (m *Metrics) ObserveRPC(method string, elapsed time.Duration, err error) {
	m.rpcCalls.WithLabelValues(method, result(err)).Inc()
	m.rpcLatency.WithLabelValues(method).Observe(elapsed.Seconds())

	m.rpcCallsTotal.Add(1)
	m.rpcLatencyNanos.Add(elapsed.Nanoseconds())
	if err != nil {
		m.rpcErrorsTotal.Add(1)
	}
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Snapshot is a point-in-time copy of the run totals.
type Snapshot struct {
	RPCCallsTotal   int64
	RPCErrorsTotal  int64
	RPCLatencyNanos int64
	ReadsTotal      int64
	ReadErrorsTotal int64
}

// Snapshot returns a point-in-time copy of the run totals.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		RPCCallsTotal:   m.rpcCallsTotal.Load(),
		RPCErrorsTotal:  m.rpcErrorsTotal.Load(),
		RPCLatencyNanos: m.rpcLatencyNanos.Load(),
		ReadsTotal:      m.readsTotal.Load(),
		ReadErrorsTotal: m.readErrorsTotal.Load(),
	}
}

// RPCLatencyAvgMs returns the average RPC latency in milliseconds.
// Returns 0 if no calls have been made.
func (s Snapshot) RPCLatencyAvgMs() float64 {
	if s.RPCCallsTotal == 0 {
		return 0
	}
	return float64(s.RPCLatencyNanos) / float64(s.RPCCallsTotal) / 1e6
}
