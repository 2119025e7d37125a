package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the custom Prometheus metrics for the application.
type Metrics struct {
	// Job metrics
	JobsStarted   *prometheus.CounterVec
	JobsCompleted *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobsCancelled *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	JobsActive    prometheus.Gauge

	// OCR metrics
	OCRPagesProcessed prometheus.Counter
	OCRPagesFailed    prometheus.Counter

	// Upload metrics
	UploadsTotal prometheus.Counter
	UploadBytes  prometheus.Counter

	// WebSocket metrics
	WebSocketConnections prometheus.Gauge
}

// InitMetrics registers and returns the Prometheus metrics.
func InitMetrics() *Metrics {
	metrics := &Metrics{
		JobsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pdfoptimizer_jobs_started_total",
			Help: "Total number of jobs started by type",
		}, []string{"type"}),

		JobsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pdfoptimizer_jobs_completed_total",
			Help: "Total number of jobs completed successfully by type",
		}, []string{"type"}),

		JobsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pdfoptimizer_jobs_failed_total",
			Help: "Total number of jobs that failed by type",
		}, []string{"type"}),

		JobsCancelled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pdfoptimizer_jobs_cancelled_total",
			Help: "Total number of jobs cancelled by type",
		}, []string{"type"}),

		JobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pdfoptimizer_job_duration_seconds",
			Help:    "Job duration in seconds by type",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600}, // OCR jobs can run for minutes
		}, []string{"type"}),

		JobsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pdfoptimizer_jobs_active",
			Help: "Number of currently running jobs",
		}),

		OCRPagesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pdfoptimizer_ocr_pages_processed_total",
			Help: "Total number of pages recognized via OCR",
		}),

		OCRPagesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pdfoptimizer_ocr_pages_failed_total",
			Help: "Total number of pages that failed OCR after retries",
		}),

		UploadsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pdfoptimizer_uploads_total",
			Help: "Total number of files uploaded",
		}),

		UploadBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pdfoptimizer_upload_bytes_total",
			Help: "Total bytes uploaded",
		}),

		WebSocketConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pdfoptimizer_websocket_connections_active",
			Help: "Number of active WebSocket progress subscribers",
		}),
	}

	return metrics
}

// RecordJobStart records a started job.
func (m *Metrics) RecordJobStart(jobType string) {
	if m == nil {
		return
	}
	m.JobsStarted.WithLabelValues(jobType).Inc()
	m.JobsActive.Inc()
}

// RecordJobEnd records a finished job with its terminal status.
func (m *Metrics) RecordJobEnd(jobType, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.JobsActive.Dec()
	m.JobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
	switch status {
	case "completed":
		m.JobsCompleted.WithLabelValues(jobType).Inc()
	case "failed":
		m.JobsFailed.WithLabelValues(jobType).Inc()
	case "cancelled":
		m.JobsCancelled.WithLabelValues(jobType).Inc()
	}
}

// RecordOCRPage records a recognized or failed OCR page.
func (m *Metrics) RecordOCRPage(failed bool) {
	if m == nil {
		return
	}
	if failed {
		m.OCRPagesFailed.Inc()
	} else {
		m.OCRPagesProcessed.Inc()
	}
}

// RecordUpload records an accepted upload.
func (m *Metrics) RecordUpload(size int64) {
	if m == nil {
		return
	}
	m.UploadsTotal.Inc()
	m.UploadBytes.Add(float64(size))
}
