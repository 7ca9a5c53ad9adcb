package metrics

import (
	"errors"
	"testing"
)

func TestMetricsExist(t *testing.T) {
	tests := []struct {
		name   string
		metric interface{}
	}{
		{"ExecAttemptsTotal", ExecAttemptsTotal},
		{"ProvisionCopiesTotal", ProvisionCopiesTotal},
		{"SegmentsExtractedTotal", SegmentsExtractedTotal},
		{"SegmentExtractDuration", SegmentExtractDuration},
		{"ProbesTotal", ProbesTotal},
		{"UploadSessionsActive", UploadSessionsActive},
		{"UploadChunksTotal", UploadChunksTotal},
		{"UploadBytesTotal", UploadBytesTotal},
		{"UploadFinalizeTotal", UploadFinalizeTotal},
		{"HTTPRequestsTotal", HTTPRequestsTotal},
		{"HTTPRequestDuration", HTTPRequestDuration},
		{"HTTPRequestsInFlight", HTTPRequestsInFlight},
		{"TranscriptionRequestsTotal", TranscriptionRequestsTotal},
		{"ProgressEventsDroppedTotal", ProgressEventsDroppedTotal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("%s metric is nil", tt.name)
			}
		})
	}
}

func TestResult(t *testing.T) {
	if got := Result(nil); got != ResultSuccess {
		t.Errorf("Result(nil) = %q, want %q", got, ResultSuccess)
	}
	if got := Result(errors.New("boom")); got != ResultFailure {
		t.Errorf("Result(err) = %q, want %q", got, ResultFailure)
	}
}

func TestExecAttemptsLabels(t *testing.T) {
	// Panics if the label cardinality does not match.
	ExecAttemptsTotal.WithLabelValues("direct", ResultSuccess).Inc()
	UploadFinalizeTotal.WithLabelValues(ResultFailure).Inc()
	ProbesTotal.WithLabelValues(ResultSuccess).Inc()
	HTTPRequestsTotal.WithLabelValues("GET", "/healthz", "200").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/healthz").Observe(0.01)
}
