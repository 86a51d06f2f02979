package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cycle metrics
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_cycles_total",
			Help: "Total number of producer cycles by outcome",
		},
		[]string{"outcome"},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_cycle_duration_seconds",
			Help:    "Producer cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AnnouncedVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_announced_version",
			Help: "Most recently announced dataset version",
		},
	)

	// Blob metrics
	BlobsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_blobs_published_total",
			Help: "Total number of published blobs by kind",
		},
		[]string{"kind"},
	)

	BlobPublishedBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_blob_published_bytes_total",
			Help: "Total published blob bytes by kind",
		},
		[]string{"kind"},
	)

	SnapshotsDeferredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_snapshots_deferred_total",
			Help: "Total number of snapshot publications dispatched to the snapshot executor",
		},
	)

	// Integrity and validation metrics
	IntegrityCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_integrity_check_duration_seconds",
			Help:    "Integrity check duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ValidationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_validation_failures_total",
			Help: "Total number of validator failures across cycles",
		},
	)

	// Restore metrics
	RestoresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_restores_total",
			Help: "Total number of restore attempts by outcome",
		},
		[]string{"outcome"},
	)
)

// Register registers all Burrow metrics with the default registerer.
// Call once from main; library consumers embedding Burrow may register
// the collectors with their own registry instead.
func Register() {
	prometheus.MustRegister(CyclesTotal)
	prometheus.MustRegister(CycleDuration)
	prometheus.MustRegister(AnnouncedVersion)
	prometheus.MustRegister(BlobsPublishedTotal)
	prometheus.MustRegister(BlobPublishedBytes)
	prometheus.MustRegister(SnapshotsDeferredTotal)
	prometheus.MustRegister(IntegrityCheckDuration)
	prometheus.MustRegister(ValidationFailuresTotal)
	prometheus.MustRegister(RestoresTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
