package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus collectors for the service.
type Metrics struct {
	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	uploadBytes     *prometheus.CounterVec
	uploadsTotal    *prometheus.CounterVec
}

// NewMetrics registers collectors on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "supportdesk_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "supportdesk_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "supportdesk_errors_total",
				Help: "Total errors by domain error code",
			},
			[]string{"method", "path", "code"},
		),
		uploadBytes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "supportdesk_upload_bytes_total",
				Help: "Bytes accepted by the upload pipeline, by strategy",
			},
			[]string{"strategy"},
		),
		uploadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "supportdesk_uploads_total",
				Help: "Upload operations by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
	}
}

// RecordRequest records counters and latency for a completed request.
func (m *Metrics) RecordRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestsTotal.WithLabelValues(method, path, code).Inc()
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(method, path, code).Inc()
}

// RecordUpload records a finished upload operation.
func (m *Metrics) RecordUpload(strategy, outcome string, size int64) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(strategy, outcome).Inc()
	if size > 0 {
		m.uploadBytes.WithLabelValues(strategy).Add(float64(size))
	}
}
