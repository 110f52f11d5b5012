// Package metrics exposes Prometheus instrumentation for the capture
// pipeline on a private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's counters and histograms.
type Metrics struct {
	registry *prometheus.Registry

	CaptureAttempts prometheus.Counter
	CaptureRetries  prometheus.Counter
	CaptureFailures prometheus.Counter
	PhotosTotal     prometheus.Counter
	PhotoBytes      prometheus.Counter
	CaptureDuration prometheus.Histogram
	CompressPasses  prometheus.Histogram
}

// New creates the metric set on a fresh registry, with Go runtime and
// process collectors registered alongside.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		CaptureAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glasscam_capture_attempts_total",
			Help: "Device open attempts, including retries.",
		}),
		CaptureRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glasscam_capture_retries_total",
			Help: "Capture attempts beyond the first.",
		}),
		CaptureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glasscam_capture_failures_total",
			Help: "Capture requests that exhausted retries or hit a non-recoverable error.",
		}),
		PhotosTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glasscam_photos_total",
			Help: "Photos captured, compressed and persisted.",
		}),
		PhotoBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glasscam_photo_bytes_total",
			Help: "Compressed photo bytes produced for transfer.",
		}),
		CaptureDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "glasscam_capture_duration_seconds",
			Help:    "End-to-end duration of a capture including retries.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
		CompressPasses: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "glasscam_compress_passes",
			Help:    "Encode passes needed to meet the transfer byte budget.",
			Buckets: prometheus.LinearBuckets(1, 1, 7),
		}),
	}

	reg.MustRegister(
		m.CaptureAttempts,
		m.CaptureRetries,
		m.CaptureFailures,
		m.PhotosTotal,
		m.PhotoBytes,
		m.CaptureDuration,
		m.CompressPasses,
	)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
