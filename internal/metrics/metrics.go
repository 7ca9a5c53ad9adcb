package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Binary execution metrics
var (
	ExecAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minutesgen_exec_attempts_total",
			Help: "Total number of binary execution attempts by strategy and result",
		},
		[]string{"strategy", "result"},
	)

	ProvisionCopiesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "minutesgen_provision_copies_total",
			Help: "Total number of binaries copied into the deployment directory",
		},
	)
)

// Segmentation metrics
var (
	SegmentsExtractedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "minutesgen_segments_extracted_total",
			Help: "Total number of audio segments written",
		},
	)

	SegmentExtractDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "minutesgen_segment_extract_duration_seconds",
			Help:    "Time spent decoding one audio segment",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minutesgen_probes_total",
			Help: "Total number of media probes by result",
		},
		[]string{"result"},
	)
)

// Chunked transfer metrics
var (
	UploadSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "minutesgen_upload_sessions_active",
			Help: "Number of chunked upload sessions currently open",
		},
	)

	UploadChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "minutesgen_upload_chunks_total",
			Help: "Total number of upload chunks written",
		},
	)

	UploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "minutesgen_upload_bytes_total",
			Help: "Total number of bytes written as upload chunks",
		},
	)

	UploadFinalizeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minutesgen_upload_finalize_total",
			Help: "Total number of finalize calls by result",
		},
		[]string{"result"},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minutesgen_http_requests_total",
			Help: "Total number of HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minutesgen_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "minutesgen_http_requests_in_flight",
			Help: "Number of HTTP requests being served",
		},
	)
)

// Transcription metrics
var (
	TranscriptionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minutesgen_transcription_requests_total",
			Help: "Total number of transcription API calls by result, retries included",
		},
		[]string{"result"},
	)
)

// Progress metrics
var (
	ProgressEventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "minutesgen_progress_events_dropped_total",
			Help: "Total number of progress events dropped because a subscriber was not draining",
		},
	)
)

// Result returns the result label for err.
func Result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
