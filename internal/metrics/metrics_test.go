package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scrape serves one /metrics request against reg and returns the body.
func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestRecordSync_CountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSync(true, 200*time.Millisecond)
	c.RecordSync(true, 100*time.Millisecond)
	c.RecordSync(false, time.Second)

	body := scrape(t, reg)
	assert.Contains(t, body, `coin_tracker_sync_total{result="success"} 2`)
	assert.Contains(t, body, `coin_tracker_sync_total{result="failure"} 1`)
	assert.Contains(t, body, "coin_tracker_sync_duration_seconds_count 3")
}

func TestSetCatalogSize(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetCatalogSize(100)
	c.SetCatalogSize(42)

	assert.Contains(t, scrape(t, reg), "coin_tracker_catalog_items 42")
}

func TestRecordHTTPRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest(http.MethodGet, http.StatusOK)
	c.RecordHTTPRequest(http.MethodPost, http.StatusSeeOther)
	c.RecordHTTPRequest(http.MethodGet, http.StatusOK)

	body := scrape(t, reg)
	assert.Contains(t, body, `coin_tracker_http_requests_total{method="GET",status="200"} 2`)
	assert.Contains(t, body, `coin_tracker_http_requests_total{method="POST",status="303"} 1`)
}

func TestNewCollector_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	assert.Panics(t, func() { NewCollector(reg) })
}
