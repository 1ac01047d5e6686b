// Package metrics owns the service's Prometheus collectors. Collectors are
// registered on an explicit registry so tests can build isolated instances.
// All recording methods are safe on a nil *Metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "copilot"

type Metrics struct {
	chatRequests     *prometheus.CounterVec
	upstreamCalls    *prometheus.CounterVec
	historyFallbacks prometheus.Counter
	extractDuration  *prometheus.HistogramVec
	extractCacheHits prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Labels: status (success or an error kind)
		chatRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Chat turns handled, by outcome",
		}, []string{"status"}),
		// Labels: outcome (success, cancelled, rate_limit, auth, validation, upstream, timeout)
		upstreamCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "Completion API calls, by outcome",
		}, []string{"outcome"}),
		historyFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "history_fallbacks_total",
			Help:      "Retries with a shorter history after a rate limit",
		}),
		// Labels: format (extension), result (ok, error)
		extractDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "duration_seconds",
			Help:      "Text extraction latency per attachment",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"format", "result"}),
		extractCacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "cache_hits_total",
			Help:      "Attachments served from the extraction cache",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests, by route and status code",
		}, []string{"method", "route", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) ChatRequest(status string) {
	if m == nil {
		return
	}
	m.chatRequests.WithLabelValues(status).Inc()
}

func (m *Metrics) UpstreamCall(outcome string) {
	if m == nil {
		return
	}
	m.upstreamCalls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) HistoryFallback() {
	if m == nil {
		return
	}
	m.historyFallbacks.Inc()
}

func (m *Metrics) ObserveExtraction(format string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.extractDuration.WithLabelValues(format, result).Observe(d.Seconds())
}

func (m *Metrics) ExtractCacheHit() {
	if m == nil {
		return
	}
	m.extractCacheHits.Inc()
}

func (m *Metrics) HTTPRequest(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
