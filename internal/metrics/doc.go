// Package metrics provides Prometheus instrumentation for the audio core.
//
// All metrics are prefixed with "minutesgen_" and registered on the default
// registry through promauto. Mount promhttp.Handler() to expose them; the
// serve command does this at /metrics.
//
// # Metric Categories
//
// Binary execution:
//   - ExecAttemptsTotal: attempts per execution strategy and result
//   - ProvisionCopiesTotal: binaries copied into the deployment directory
//
// Segmentation:
//   - SegmentsExtractedTotal: segment files produced
//   - SegmentExtractDuration: wall time of one segment decode
//   - ProbesTotal: probe calls by result
//
// Chunked transfer:
//   - UploadSessionsActive: sessions currently open
//   - UploadChunksTotal: chunks written
//   - UploadBytesTotal: bytes written as chunks
//   - UploadFinalizeTotal: finalize calls by result
//
// HTTP:
//   - HTTPRequestsTotal: requests by method, route template and status
//   - HTTPRequestDuration: request latency by method and route template
//   - HTTPRequestsInFlight: requests being served
//
// Transcription:
//   - TranscriptionRequestsTotal: transcription API calls by result
//
// Progress:
//   - ProgressEventsDroppedTotal: events dropped because a subscriber was full
package metrics
