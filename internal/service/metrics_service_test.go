package service

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceWorkflowCounters(t *testing.T) {
	m := NewMetricsService()
	m.RecordDecision("approved")
	m.RecordDecision("refused")
	m.RecordDecision("refused")
	m.RecordIssuance(2, true)
	m.RecordCodeCollision()
	m.RecordEntry("DENIED", "ALREADY_USED")
	m.RecordExpired(3)
	m.RecordExpired(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.decisions.WithLabelValues("refused")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.codesIssued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.codeCollisions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.entries.WithLabelValues("DENIED", "ALREADY_USED")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.expiredRequests))
}

func TestMetricsServiceHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest("GET", "/api/v1/rooms", 200, 15*time.Millisecond)
	m.RecordEventPublish("request.decided", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "http_requests_total"))
	assert.True(t, strings.Contains(body, `domain_events_published_total{result="ok",type="request.decided"} 1`))
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.RecordDecision("approved")
		m.RecordIssuance(1, false)
		m.RecordEntry("GRANTED", "")
		m.RecordCacheOperation(true, time.Millisecond)
		m.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
	})
}

func TestMetricsServiceExposesCacheHistograms(t *testing.T) {
	m := NewMetricsService()
	m.RecordCacheOperation(true, 2*time.Millisecond)
	m.RecordCacheOperation(false, 3*time.Millisecond)
	m.ObserveCacheWrite(time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "cache_latency_seconds_count 2")
	assert.Contains(t, body, "cache_write_seconds_count 1")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheMisses))
}
