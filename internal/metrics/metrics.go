package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
	annotations   *prometheus.CounterVec
	reviews       *prometheus.CounterVec
	overallScore  prometheus.Histogram
	uploads       *prometheus.CounterVec
	uploadBytes   prometheus.Counter
	cacheLookups  *prometheus.CounterVec
	blobLatency   prometheus.Histogram
	blobBytes     prometheus.Counter
	notifications *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_ms",
				Help:    "Latency of HTTP requests in milliseconds",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
			},
			[]string{"method", "route"},
		),
		annotations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annotations_total",
				Help: "Annotation lifecycle events",
			},
			[]string{"event"},
		),
		reviews: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quality_reviews_total",
				Help: "Quality reviews by resulting annotation status",
			},
			[]string{"status"},
		),
		overallScore: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quality_review_overall_score",
				Help:    "Overall score of submitted quality reviews",
				Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
			},
		),
		uploads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "file_uploads_total",
				Help: "Uploaded project files by file type",
			},
			[]string{"file_type"},
		),
		uploadBytes: f.NewCounter(
			prometheus.CounterOpts{
				Name: "file_upload_bytes_total",
				Help: "Total bytes of uploaded project files",
			},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "file_cache_lookups_total",
				Help: "File content lookups by serving layer",
			},
			[]string{"layer"},
		),
		blobLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "blob_download_latency_ms",
				Help:    "Latency of downloads from blob storage in milliseconds",
				Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
			},
		),
		blobBytes: f.NewCounter(
			prometheus.CounterOpts{
				Name: "blob_read_bytes_total",
				Help: "Bytes read from blob storage",
			},
		),
		notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_total",
				Help: "Notifications created by type",
			},
			[]string{"type"},
		),
	}
}

// Middleware records request counts and latencies per route.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		route := c.Route().Path
		m.httpRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.httpLatency.WithLabelValues(c.Method(), route).Observe(float64(time.Since(start).Milliseconds()))
		return err
	}
}

// AnnotationEvent counts created, submitted and deleted annotations.
func (m *Metrics) AnnotationEvent(event string) {
	if m == nil {
		return
	}
	m.annotations.WithLabelValues(event).Inc()
}

// ReviewRecorded counts a review and observes its overall score.
func (m *Metrics) ReviewRecorded(status string, overall float64) {
	if m == nil {
		return
	}
	m.reviews.WithLabelValues(status).Inc()
	m.overallScore.Observe(overall)
}

// FileUploaded counts an upload of the given type and size.
func (m *Metrics) FileUploaded(fileType string, size int64) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(fileType).Inc()
	m.uploadBytes.Add(float64(size))
}

// CacheLookup records which layer served a file read ("blob" on a full miss).
func (m *Metrics) CacheLookup(layer string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(layer).Inc()
}

// RecordBlobLatency records the latency of a blob storage download.
func (m *Metrics) RecordBlobLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.blobLatency.Observe(float64(d.Milliseconds()))
}

// BlobBytesRead adds n bytes read from blob storage.
func (m *Metrics) BlobBytesRead(n int64) {
	if m == nil {
		return
	}
	m.blobBytes.Add(float64(n))
}

// NotificationCreated counts a notification of the given type.
func (m *Metrics) NotificationCreated(kind string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind).Inc()
}
