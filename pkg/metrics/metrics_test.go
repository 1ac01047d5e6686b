package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.UpstreamCall("rate_limit")
	m.UpstreamCall("rate_limit")
	m.UpstreamCall("success")
	m.HistoryFallback()
	m.ChatRequest("success")
	m.ExtractCacheHit()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.upstreamCalls.WithLabelValues("rate_limit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamCalls.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.historyFallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chatRequests.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.extractCacheHits))
}

func TestHistogramsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveExtraction(".pdf", nil, 20*time.Millisecond)
	m.ObserveExtraction(".pdf", errors.New("bad"), time.Millisecond)
	m.HTTPRequest("POST", "/chat", 200, time.Second)
	m.HTTPRequest("GET", "", 404, time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(m.extractDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unmatched", "404")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ChatRequest("success")
		m.UpstreamCall("success")
		m.HistoryFallback()
		m.ObserveExtraction(".txt", nil, time.Millisecond)
		m.ExtractCacheHit()
		m.HTTPRequest("GET", "/health", 200, time.Millisecond)
	})
}
