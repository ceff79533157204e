// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	importRunsTotal            *prometheus.CounterVec
	importRunDurationSeconds   *prometheus.HistogramVec
	importMessagesTotal        *prometheus.CounterVec
	listingsCreatedTotal       *prometheus.CounterVec
	photosDownloadedTotal      *prometheus.CounterVec
	mediaDownloadFailuresTotal *prometheus.CounterVec
	importActiveRuns           prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		importRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carfeed_import_runs_total",
				Help: "Finished import runs, labeled by channel and terminal status.",
			},
			[]string{"channel", "status"},
		)

		importRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "carfeed_import_run_duration_seconds",
				Help:    "Wall time of import runs.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"channel"},
		)

		importMessagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carfeed_import_messages_total",
				Help: "Processed messages, labeled by channel and outcome.",
			},
			[]string{"channel", "outcome"},
		)

		listingsCreatedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carfeed_listings_created_total",
				Help: "Listings created from channel posts.",
			},
			[]string{"channel"},
		)

		photosDownloadedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carfeed_photos_downloaded_total",
				Help: "Photos downloaded and stored.",
			},
			[]string{"channel"},
		)

		mediaDownloadFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carfeed_media_download_failures_total",
				Help: "Photo downloads that failed or were rejected.",
			},
			[]string{"channel"},
		)

		importActiveRuns = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "carfeed_import_active_runs",
				Help: "Import runs currently in progress.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RunStarted marks a run as in progress.
func RunStarted() {
	Init()
	importActiveRuns.Inc()
}

// RunFinished records a finished run.
func RunFinished(channel, status string, d time.Duration) {
	Init()
	importActiveRuns.Dec()
	importRunsTotal.WithLabelValues(channel, status).Inc()
	importRunDurationSeconds.WithLabelValues(channel).Observe(d.Seconds())
}

// ObserveMessage counts one processed message.
func ObserveMessage(channel, outcome string) {
	Init()
	importMessagesTotal.WithLabelValues(channel, outcome).Inc()
}

// ObserveListingCreated counts a created listing.
func ObserveListingCreated(channel string) {
	Init()
	listingsCreatedTotal.WithLabelValues(channel).Inc()
}

// ObservePhoto counts a stored photo.
func ObservePhoto(channel string) {
	Init()
	photosDownloadedTotal.WithLabelValues(channel).Inc()
}

// ObserveMediaFailure counts a failed photo download.
func ObserveMediaFailure(channel string) {
	Init()
	mediaDownloadFailuresTotal.WithLabelValues(channel).Inc()
}
