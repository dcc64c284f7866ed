// Package telemetry exposes Prometheus metrics for the scrape pipeline.
package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scraperPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Total number of page fetches, labeled by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	scraperRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_records_total",
			Help: "Total number of company records produced, labeled by stage.",
		},
		[]string{"stage"},
	)

	scraperBlockEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_block_events_total",
			Help: "Total anti-bot block/CAPTCHA detections, labeled by type.",
		},
		[]string{"type"},
	)

	scraperBackoffWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_backoff_wait_seconds",
			Help:    "Histogram of waits imposed by the backoff controller.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	scraperActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_active_workers",
			Help: "Number of enrichment workers currently processing a record.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests served, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// ObserveFetch records a completed page fetch.
func ObserveFetch(kind, outcome string) {
	scraperPagesTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveRecords records extracted or enriched record counts.
func ObserveRecords(stage string, n int) {
	if n > 0 {
		scraperRecordsTotal.WithLabelValues(stage).Add(float64(n))
	}
}

// ObserveBlockEvent records an anti-bot detection.
func ObserveBlockEvent(eventType string) {
	scraperBlockEventsTotal.WithLabelValues(eventType).Inc()
}

// ObserveBackoffWait records the duration of a pacing wait.
func ObserveBackoffWait(kind string, duration time.Duration) {
	scraperBackoffWaitSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active worker count.
func IncActiveWorkers() {
	scraperActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active worker count.
func DecActiveWorkers() {
	scraperActiveWorkers.Dec()
}

// ObserveHTTPRequest records metrics for a served HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
