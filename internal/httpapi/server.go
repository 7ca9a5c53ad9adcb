package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alnah/minutesgen/internal/audio"
	"github.com/alnah/minutesgen/internal/processor"
	"github.com/alnah/minutesgen/internal/progress"
	"github.com/alnah/minutesgen/internal/transfer"
)

// maxDurationBody caps the media accepted by the duration endpoint.
const maxDurationBody = 256 * 1024 * 1024

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// commands is the command surface served over HTTP.
// *processor.Processor implements it.
type commands interface {
	Initialize(ctx context.Context) processor.Result
	ProcessFile(ctx context.Context, path string, segmentSeconds float64) processor.ProcessResult
	GetDuration(ctx context.Context, data []byte) processor.DurationResult
	StartChunkedUpload(fileName string, fileSize int64) processor.StartUploadResult
	UploadChunk(sessionID string, index int, data []byte) processor.Result
	FinalizeChunkedUpload(sessionID string) processor.FinalizeUploadResult
	CleanupChunkedUpload(sessionID string) processor.Result
	Cleanup()
}

// subscriber hands out progress event streams.
// *progress.Hub implements it.
type subscriber interface {
	Subscribe() (<-chan progress.Event, func())
}

var (
	_ commands   = (*processor.Processor)(nil)
	_ subscriber = (*progress.Hub)(nil)
)

// Server exposes the processor commands as a JSON API.
type Server struct {
	cmd       commands
	events    subscriber
	chunkSize int64
	started   time.Time
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithChunkSize sets the largest accepted chunk body.
func WithChunkSize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a Server serving cmd and streaming events.
func NewServer(cmd commands, events subscriber, opts ...Option) *Server {
	s := &Server{
		cmd:       cmd,
		events:    events,
		chunkSize: transfer.DefaultChunkSize,
		started:   time.Now(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.recordMetrics)

	r.HandleFunc("/healthz", s.health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/initialize", s.initialize).Methods("POST")
	api.HandleFunc("/process", s.processFile).Methods("POST")
	api.HandleFunc("/duration", s.duration).Methods("POST")
	api.HandleFunc("/uploads", s.startUpload).Methods("POST")
	api.HandleFunc("/uploads/{id}/chunks/{index:[0-9]+}", s.uploadChunk).Methods("PUT")
	api.HandleFunc("/uploads/{id}/finalize", s.finalizeUpload).Methods("POST")
	api.HandleFunc("/uploads/{id}", s.cleanupUpload).Methods("DELETE")
	api.HandleFunc("/cleanup", s.cleanup).Methods("POST")
	api.HandleFunc("/events", s.streamEvents).Methods("GET")

	return r
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "healthy",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}, s.logger)
}

func (s *Server) initialize(w http.ResponseWriter, r *http.Request) {
	res := s.cmd.Initialize(r.Context())
	writeResult(w, res.Success, res, s.logger)
}

type processRequest struct {
	Path            string  `json:"path"`
	SegmentDuration float64 `json:"segmentDuration"`
}

func (s *Server) processFile(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err, s.logger)
		return
	}
	if req.Path == "" {
		writeBadRequest(w, errors.New("path is required"), s.logger)
		return
	}
	if _, err := audio.SegmentDuration(req.SegmentDuration); err != nil {
		writeBadRequest(w, err, s.logger)
		return
	}
	res := s.cmd.ProcessFile(r.Context(), req.Path, req.SegmentDuration)
	writeResult(w, res.Success, res, s.logger)
}

func (s *Server) duration(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDurationBody))
	if err != nil {
		writeBodyError(w, err, s.logger)
		return
	}
	res := s.cmd.GetDuration(r.Context(), data)
	writeResult(w, res.Success, res, s.logger)
}

type startUploadRequest struct {
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
}

func (s *Server) startUpload(w http.ResponseWriter, r *http.Request) {
	var req startUploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err, s.logger)
		return
	}
	res := s.cmd.StartChunkedUpload(req.FileName, req.FileSize)
	status := http.StatusCreated
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res, s.logger)
}

func (s *Server) uploadChunk(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		writeBadRequest(w, fmt.Errorf("invalid chunk index %q", vars["index"]), s.logger)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.chunkSize))
	if err != nil {
		writeBodyError(w, err, s.logger)
		return
	}
	res := s.cmd.UploadChunk(vars["id"], index, data)
	writeResult(w, res.Success, res, s.logger)
}

func (s *Server) finalizeUpload(w http.ResponseWriter, r *http.Request) {
	res := s.cmd.FinalizeChunkedUpload(mux.Vars(r)["id"])
	writeResult(w, res.Success, res, s.logger)
}

func (s *Server) cleanupUpload(w http.ResponseWriter, r *http.Request) {
	res := s.cmd.CleanupChunkedUpload(mux.Vars(r)["id"])
	writeResult(w, res.Success, res, s.logger)
}

func (s *Server) cleanup(w http.ResponseWriter, r *http.Request) {
	s.cmd.Cleanup()
	w.WriteHeader(http.StatusNoContent)
}

// streamEvents sends progress events as server-sent events until the
// client disconnects or the hub closes.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, unsubscribe := s.events.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				s.logger.Warn("encode progress event", slog.Any("error", err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

// ListenAndServe serves the API on addr until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
