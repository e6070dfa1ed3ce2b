// Package metrics collects Prometheus metrics and serves them for scraping.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SyncRecorder is what the price syncer reports to.
type SyncRecorder interface {
	RecordSync(success bool, duration time.Duration)
	SetCatalogSize(n int)
}

// Collector holds every metric the app exports.
type Collector struct {
	syncTotal    *prometheus.CounterVec
	syncDuration prometheus.Histogram
	catalogItems prometheus.Gauge
	httpRequests *prometheus.CounterVec
}

var _ SyncRecorder = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics on reg.
// Pass a fresh prometheus.NewRegistry() in tests so runs don't collide.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coin_tracker_sync_total",
			Help: "Price sync attempts by result (success or failure).",
		}, []string{"result"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coin_tracker_sync_duration_seconds",
			Help:    "Time spent fetching and storing one price snapshot.",
			Buckets: prometheus.DefBuckets,
		}),
		catalogItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coin_tracker_catalog_items",
			Help: "Number of items written by the last successful sync.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coin_tracker_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
	}

	reg.MustRegister(
		c.syncTotal,
		c.syncDuration,
		c.catalogItems,
		c.httpRequests,
	)

	return c
}

// RecordSync counts one sync attempt and observes its duration.
func (c *Collector) RecordSync(success bool, duration time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	c.syncTotal.WithLabelValues(result).Inc()
	c.syncDuration.Observe(duration.Seconds())
}

func (c *Collector) SetCatalogSize(n int) {
	c.catalogItems.Set(float64(n))
}

// RecordHTTPRequest counts one served request.
func (c *Collector) RecordHTTPRequest(method string, status int) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// Handler returns the HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
