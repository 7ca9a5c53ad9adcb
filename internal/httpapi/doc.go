// Package httpapi serves the audio processor over HTTP.
//
// Routes:
//
//	POST   /api/initialize                   provision and verify binaries
//	POST   /api/process                      {"path", "segmentDuration"} -> segments
//	POST   /api/duration                     raw media body -> duration
//	POST   /api/uploads                      {"fileName", "fileSize"} -> session
//	PUT    /api/uploads/{id}/chunks/{index}  raw chunk body
//	POST   /api/uploads/{id}/finalize        merge chunks
//	DELETE /api/uploads/{id}                 discard session
//	POST   /api/cleanup                      remove every temp file
//	GET    /api/events                       progress as server-sent events
//	GET    /healthz                          liveness
//	GET    /metrics                          Prometheus metrics
//
// Command results keep the processor's tagged shape. A command that ran
// and failed answers 422 with success false; malformed requests answer 400.
package httpapi
