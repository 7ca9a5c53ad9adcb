package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alnah/minutesgen/internal/ffmpeg"
	"github.com/alnah/minutesgen/internal/format"
	"github.com/alnah/minutesgen/internal/metrics"
	"github.com/alnah/minutesgen/internal/progress"
)

const (
	// DefaultSegmentDuration is used when Split receives a non-positive duration.
	DefaultSegmentDuration = 10 * time.Minute

	// DefaultDecodeTimeout bounds the decoding of one segment.
	DefaultDecodeTimeout = 10 * time.Minute

	// WorkDirName is the directory under the temp dir shared by segments
	// and transfer sessions.
	WorkDirName = "minutes-gen-audio"

	// Output format: mono 16 kHz signed 16-bit PCM, what speech APIs expect.
	sampleRate = 16000
	channels   = 1
	codec      = "pcm_s16le"

	workDirPerm = 0750
)

// Segment is a time window of the source materialized as its own file.
// The caller owns the file once Split returns.
type Segment struct {
	Index     int     `json:"index"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Duration  float64 `json:"duration"`
	FilePath  string  `json:"filePath"`
}

// String returns a human-readable representation for logging.
func (s Segment) String() string {
	return fmt.Sprintf("segment %d: %s-%s",
		s.Index,
		format.Timestamp(s.StartTime),
		format.Timestamp(s.EndTime))
}

// window is a planned [start, end) range in seconds.
type window struct {
	index      int
	start, end float64
}

// Segmenter splits audio files into fixed-length WAV segments.
type Segmenter struct {
	binaries binarySource
	runner   commandRunner
	prober   durationProber

	workers       int
	decodeTimeout time.Duration
	tempDir       string
	now           func() time.Time
	logger        *slog.Logger

	stat   fileStatter
	mkdir  dirCreator
	remove fileRemover
}

// SegmenterOption configures a Segmenter.
type SegmenterOption func(*Segmenter)

// WithWorkers sets how many segments are decoded concurrently.
// Values below 1 mean sequential.
func WithWorkers(n int) SegmenterOption {
	return func(s *Segmenter) { s.workers = max(n, 1) }
}

// WithDecodeTimeout sets the per-segment decode timeout.
func WithDecodeTimeout(d time.Duration) SegmenterOption {
	return func(s *Segmenter) {
		if d > 0 {
			s.decodeTimeout = d
		}
	}
}

// WithTempDir sets the base temp directory. Segments go to
// <dir>/minutes-gen-audio.
func WithTempDir(dir string) SegmenterOption {
	return func(s *Segmenter) { s.tempDir = dir }
}

// WithProber replaces the prober built from the provisioned paths.
func WithProber(p durationProber) SegmenterOption {
	return func(s *Segmenter) { s.prober = p }
}

// WithSegmenterClock sets the time source used in file names.
func WithSegmenterClock(now func() time.Time) SegmenterOption {
	return func(s *Segmenter) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SegmenterOption {
	return func(s *Segmenter) {
		if l != nil {
			s.logger = l
		}
	}
}

// withFS replaces filesystem access (for testing).
func withFS(stat fileStatter, mkdir dirCreator, remove fileRemover) SegmenterOption {
	return func(s *Segmenter) {
		s.stat, s.mkdir, s.remove = stat, mkdir, remove
	}
}

// NewSegmenter creates a Segmenter. Binaries are provisioned lazily on the
// first Split.
func NewSegmenter(binaries binarySource, runner commandRunner, opts ...SegmenterOption) *Segmenter {
	s := &Segmenter{
		binaries:      binaries,
		runner:        runner,
		workers:       1,
		decodeTimeout: DefaultDecodeTimeout,
		tempDir:       os.TempDir(),
		now:           time.Now,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		stat:          osFS{},
		mkdir:         osFS{},
		remove:        osFS{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OutputDir returns the directory segments are written to.
func (s *Segmenter) OutputDir() string {
	return filepath.Join(s.tempDir, WorkDirName)
}

// maxSegmentSeconds is the longest segment duration a time.Duration holds.
const maxSegmentSeconds = float64(math.MaxInt64 / int64(time.Second))

// SegmentDuration converts a segment length in seconds to a Duration.
// Non-positive values pass through so Split applies its default. NaN,
// infinities and values past the Duration range are rejected.
func SegmentDuration(sec float64) (time.Duration, error) {
	if !(sec <= maxSegmentSeconds) {
		return 0, fmt.Errorf("%w: %v seconds", ErrInvalidSegmentDuration, sec)
	}
	return format.Seconds(max(sec, 0)), nil
}

// Split probes inputPath and decodes it into consecutive segments of
// segmentDuration. The returned segments are ordered by index, contiguous,
// and cover the whole input. On failure no segment files are left behind.
func (s *Segmenter) Split(ctx context.Context, inputPath string, segmentDuration time.Duration, onProgress progress.Func) ([]Segment, error) {
	if segmentDuration <= 0 {
		segmentDuration = DefaultSegmentDuration
	}

	tracker := progress.NewTracker(onProgress, progress.StageInitializing)
	segments, err := s.split(ctx, inputPath, segmentDuration, tracker)
	if err != nil {
		tracker.Fail(err)
		return nil, err
	}
	tracker.Complete(fmt.Sprintf("Created %d segments", len(segments)))
	return segments, nil
}

func (s *Segmenter) split(ctx context.Context, inputPath string, segmentDuration time.Duration, tracker *progress.Tracker) ([]Segment, error) {
	if _, err := s.stat.Stat(inputPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, inputPath)
		}
		return nil, fmt.Errorf("stat input: %w", err)
	}

	tracker.Stage(progress.StageInitializing, "Preparing audio tools")
	if err := s.binaries.EnsureProvisioned(ctx); err != nil {
		return nil, err
	}
	paths := s.binaries.Paths()

	tracker.Stage(progress.StageProbing, "Reading audio duration")
	prober := s.prober
	if prober == nil {
		prober = ffmpeg.NewProber(s.runner, paths.Prober, ffmpeg.WithProbeLogger(s.logger))
	}
	probe, err := prober.Probe(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	if probe.DurationSeconds <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDuration, inputPath)
	}

	windows := planWindows(probe.DurationSeconds, segmentDuration.Seconds())
	s.logger.Info("splitting audio",
		slog.String("input", inputPath),
		slog.String("duration", format.Timestamp(probe.DurationSeconds)),
		slog.Int("segments", len(windows)),
		slog.Int("workers", s.workers))
	tracker.Log(progress.LevelInfo, fmt.Sprintf("Audio duration %s, %d segments",
		format.DurationHuman(format.Seconds(probe.DurationSeconds)), len(windows)))

	outDir := s.OutputDir()
	if err := s.mkdir.MkdirAll(outDir, workDirPerm); err != nil {
		return nil, fmt.Errorf("create segment directory: %w", err)
	}

	tracker.Stage(progress.StageSegmenting, "Extracting segments")
	return s.extractAll(ctx, inputPath, paths.Decoder, outDir, windows, tracker)
}

// extractAll decodes every window with at most s.workers decoders in flight.
func (s *Segmenter) extractAll(ctx context.Context, inputPath, decoder, outDir string, windows []window, tracker *progress.Tracker) ([]Segment, error) {
	stamp := s.now().UnixNano()
	segments := make([]Segment, len(windows))

	var (
		mu      sync.Mutex
		written []string
		done    int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, w := range windows {
		if gctx.Err() != nil {
			break
		}
		outPath := filepath.Join(outDir, fmt.Sprintf("segment_%d_%d.wav", w.index, stamp))

		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			mu.Lock()
			written = append(written, outPath)
			mu.Unlock()

			start := time.Now()
			if err := s.extract(gctx, decoder, inputPath, outPath, w); err != nil {
				return &SegmentError{Index: w.index, Err: err}
			}
			metrics.SegmentExtractDuration.Observe(time.Since(start).Seconds())
			metrics.SegmentsExtractedTotal.Inc()

			segments[i] = Segment{
				Index:     w.index,
				StartTime: w.start,
				EndTime:   w.end,
				Duration:  w.end - w.start,
				FilePath:  outPath,
			}

			mu.Lock()
			done++
			n := done
			mu.Unlock()

			tracker.Details(progress.Details{CurrentSegment: n, TotalSegments: len(windows)})
			tracker.Update(float64(n)/float64(len(windows))*100,
				fmt.Sprintf("Extracted segment %d of %d", n, len(windows)))
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		// Parent cancelled before any worker reported an error.
		err = ctx.Err()
	}
	if err != nil {
		// Best-effort cleanup; the extraction error takes precedence.
		for _, p := range written {
			_ = s.remove.Remove(p)
		}
		return nil, err
	}
	return segments, nil
}

// extract decodes one window of inputPath into outPath.
func (s *Segmenter) extract(ctx context.Context, decoder, inputPath, outPath string, w window) error {
	_, err := s.runner.Run(ctx, decoder, decodeArgs(inputPath, outPath, w), s.decodeTimeout)
	if err != nil {
		return err
	}
	if _, err := s.stat.Stat(outPath); err != nil {
		return fmt.Errorf("decoder produced no output: %w", err)
	}
	s.logger.Debug("segment extracted",
		slog.Int("index", w.index),
		slog.String("path", outPath))
	return nil
}

// CleanupSegments removes segment files. Errors are ignored.
func (s *Segmenter) CleanupSegments(segments []Segment) {
	for _, seg := range segments {
		_ = s.remove.Remove(seg.FilePath) // best-effort cleanup
	}
}

// planWindows computes [start, end) windows in seconds covering total.
// A trailing window of zero length is dropped.
func planWindows(total, segment float64) []window {
	if total <= 0 || segment <= 0 {
		return nil
	}
	count := int(math.Ceil(total / segment))
	windows := make([]window, 0, count)
	for i := range count {
		start := float64(i) * segment
		end := min(float64(i+1)*segment, total)
		if i == count-1 {
			end = total
		}
		if end-start <= 0 {
			continue
		}
		windows = append(windows, window{index: len(windows), start: start, end: end})
	}
	return windows
}

// decodeArgs returns decoder arguments extracting w from input as PCM WAV.
// Seeking before -i keeps extraction fast on long inputs.
func decodeArgs(input, output string, w window) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(w.start),
		"-t", formatSeconds(w.end - w.start),
		"-i", input,
		"-vn",
		"-ac", fmt.Sprint(channels),
		"-ar", fmt.Sprint(sampleRate),
		"-c:a", codec,
		output,
	}
}

// formatSeconds formats seconds for -ss/-t with millisecond precision.
func formatSeconds(sec float64) string {
	return fmt.Sprintf("%.3f", sec)
}
