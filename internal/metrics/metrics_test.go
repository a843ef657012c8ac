package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.RecordTurn("create_project", "ok", 120*time.Millisecond)
	m.RecordTurn("create_project", "ok", 80*time.Millisecond)
	m.RecordTurn("unknown", "parse_failure", time.Millisecond)
	m.SetActiveSessions(3)
	m.AddEvictions(2)
	m.RecordError("store", "insert")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("create_project", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("unknown", "parse_failure")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EvictionsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("store", "insert")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveProvider("gpt-4o-mini", "ok", time.Second)
	m.RecordHTTP("/api/voice/webhook", "200")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "joinery_llm_request_duration_seconds")
	assert.Contains(t, body, "joinery_http_requests_total")
	assert.Contains(t, body, "go_goroutines")
}
