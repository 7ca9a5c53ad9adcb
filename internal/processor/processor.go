// Package processor exposes the audio core as a flat set of commands that
// never fail: every call returns a JSON-tagged result carrying success and,
// on failure, a human-readable error string.
package processor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alnah/minutesgen/internal/audio"
	"github.com/alnah/minutesgen/internal/ffmpeg"
	"github.com/alnah/minutesgen/internal/progress"
	"github.com/alnah/minutesgen/internal/transfer"
)

// Result is the common part of every command result.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SegmentInfo describes one produced segment.
type SegmentInfo struct {
	FilePath  string  `json:"filePath"`
	Name      string  `json:"name"`
	Duration  float64 `json:"duration"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
}

// ProcessResult is returned by ProcessFile.
type ProcessResult struct {
	Result
	Segments []SegmentInfo `json:"segments"`
}

// DurationResult is returned by GetDuration.
type DurationResult struct {
	Result
	Duration float64 `json:"duration"`
}

// StartUploadResult is returned by StartChunkedUpload.
type StartUploadResult struct {
	Result
	SessionID string `json:"sessionId"`
	ChunkSize int64  `json:"chunkSize,omitempty"`
	Chunks    int    `json:"chunks"`
}

// FinalizeUploadResult is returned by FinalizeChunkedUpload.
type FinalizeUploadResult struct {
	Result
	TempPath string `json:"tempPath"`
	FileSize int64  `json:"fileSize"`
	// ProcessingTime is the merge time in milliseconds.
	ProcessingTime int64 `json:"processingTime"`
}

// Processor is the command surface of the audio core.
type Processor struct {
	binaries  binarySource
	segmenter splitter
	uploads   uploader
	newProber func(proberPath string) bytesProber

	workDir    string
	chunkSize  int64
	onProgress progress.Func
	logger     *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithSegmenter replaces the default segmenter.
func WithSegmenter(s splitter) Option {
	return func(p *Processor) { p.segmenter = s }
}

// WithUploads replaces the default transfer coordinator.
func WithUploads(u uploader, chunkSize int64) Option {
	return func(p *Processor) {
		p.uploads = u
		p.chunkSize = chunkSize
	}
}

// WithProberFactory sets how a prober is built for the provisioned path.
func WithProberFactory(f func(proberPath string) bytesProber) Option {
	return func(p *Processor) { p.newProber = f }
}

// WithWorkDir sets the directory removed by Cleanup.
func WithWorkDir(dir string) Option {
	return func(p *Processor) { p.workDir = dir }
}

// WithProgress sets the sink for progress events.
func WithProgress(f progress.Func) Option {
	return func(p *Processor) { p.onProgress = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Processor. runner backs the default segmenter and prober.
func New(binaries binarySource, runner commandRunner, opts ...Option) *Processor {
	p := &Processor{
		binaries:  binaries,
		segmenter: audio.NewSegmenter(binaries, runner),
		uploads:   transfer.NewCoordinator(),
		chunkSize: transfer.DefaultChunkSize,
		workDir:   filepath.Join(os.TempDir(), audio.WorkDirName),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	p.newProber = func(path string) bytesProber {
		return ffmpeg.NewProber(runner, path, ffmpeg.WithProbeLogger(p.logger))
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Initialize provisions and verifies the binaries.
func (p *Processor) Initialize(ctx context.Context) Result {
	tracker := progress.NewTracker(p.onProgress, progress.StageInitializing)
	tracker.Update(0, "Preparing audio tools")
	if err := p.binaries.EnsureProvisioned(ctx); err != nil {
		tracker.Fail(err)
		return p.fail("initialize", err)
	}
	tracker.Complete("Audio tools ready")
	return ok()
}

// ProcessFile splits the file at path into segments of segmentSeconds.
// A non-positive duration selects the default of 600 seconds.
func (p *Processor) ProcessFile(ctx context.Context, path string, segmentSeconds float64) ProcessResult {
	seg, err := audio.SegmentDuration(segmentSeconds)
	if err != nil {
		return ProcessResult{Result: p.fail("process file", err)}
	}
	segments, err := p.segmenter.Split(ctx, path, seg, p.onProgress)
	if err != nil {
		return ProcessResult{Result: p.fail("process file", err)}
	}

	infos := make([]SegmentInfo, len(segments))
	for i, s := range segments {
		infos[i] = SegmentInfo{
			FilePath:  s.FilePath,
			Name:      filepath.Base(s.FilePath),
			Duration:  s.Duration,
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
		}
	}
	return ProcessResult{Result: ok(), Segments: infos}
}

// GetDuration probes in-memory media and returns its duration in seconds.
func (p *Processor) GetDuration(ctx context.Context, data []byte) DurationResult {
	if err := p.binaries.EnsureProvisioned(ctx); err != nil {
		return DurationResult{Result: p.fail("get duration", err)}
	}
	res, err := p.newProber(p.binaries.Paths().Prober).ProbeBytes(ctx, data)
	if err != nil {
		return DurationResult{Result: p.fail("get duration", err)}
	}
	return DurationResult{Result: ok(), Duration: res.DurationSeconds}
}

// StartChunkedUpload opens a transfer session for a file of fileSize bytes.
func (p *Processor) StartChunkedUpload(fileName string, fileSize int64) StartUploadResult {
	id, err := p.uploads.StartSession(fileName, fileSize)
	if err != nil {
		return StartUploadResult{Result: p.fail("start upload", err)}
	}
	_, want, _ := p.uploads.Received(id)
	return StartUploadResult{Result: ok(), SessionID: id, ChunkSize: p.chunkSize, Chunks: want}
}

// UploadChunk stores one chunk of a session.
func (p *Processor) UploadChunk(sessionID string, index int, data []byte) Result {
	if err := p.uploads.UploadChunk(sessionID, index, data); err != nil {
		return p.fail("upload chunk", err)
	}
	if have, want, err := p.uploads.Received(sessionID); err == nil && want > 0 {
		p.onProgress.Emit(progress.Event{
			Stage:       progress.StageUploading,
			Percentage:  float64(have) / float64(want) * 100,
			CurrentTask: fmt.Sprintf("Received chunk %d of %d", have, want),
			Logs:        []progress.LogEntry{},
		})
	}
	return ok()
}

// FinalizeChunkedUpload merges a session's chunks into one file.
func (p *Processor) FinalizeChunkedUpload(sessionID string) FinalizeUploadResult {
	start := time.Now()
	tracker := progress.NewTracker(p.onProgress, progress.StageMerging)
	tracker.Update(0, "Merging uploaded chunks")

	res, err := p.uploads.FinalizeSession(sessionID)
	if err != nil {
		tracker.Fail(err)
		return FinalizeUploadResult{Result: p.fail("finalize upload", err)}
	}
	tracker.Complete("Upload complete")
	return FinalizeUploadResult{
		Result:         ok(),
		TempPath:       res.Path,
		FileSize:       res.Size,
		ProcessingTime: time.Since(start).Milliseconds(),
	}
}

// CleanupChunkedUpload discards a session. It always succeeds.
func (p *Processor) CleanupChunkedUpload(sessionID string) Result {
	p.uploads.CleanupSession(sessionID)
	return ok()
}

// Cleanup discards every session and removes the shared work directory.
func (p *Processor) Cleanup() {
	p.uploads.CleanupAll()
	_ = os.RemoveAll(p.workDir) // best-effort cleanup
	p.logger.Debug("work directory removed", slog.String("dir", p.workDir))
}

func ok() Result {
	return Result{Success: true}
}

func (p *Processor) fail(op string, err error) Result {
	p.logger.Warn(op+" failed", slog.Any("error", err))
	return Result{Error: err.Error()}
}
