package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/alnah/minutesgen/internal/metrics"
)

// defaultProbeTimeout bounds one probe attempt per strategy.
const defaultProbeTimeout = 30 * time.Second

// commandRunner executes a binary and returns its result. *Runner implements it.
type commandRunner interface {
	Run(ctx context.Context, path string, args []string, timeout time.Duration) (Result, error)
}

var _ commandRunner = (*Runner)(nil)

// FormatInfo is container-level metadata reported by the prober.
type FormatInfo struct {
	Name     string            `json:"name"`
	LongName string            `json:"longName,omitempty"`
	BitRate  int64             `json:"bitRate,omitempty"`
	Size     int64             `json:"size,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
}

// StreamInfo is per-stream metadata reported by the prober.
type StreamInfo struct {
	Index      int    `json:"index"`
	CodecType  string `json:"codecType"`
	CodecName  string `json:"codecName"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

// ProbeResult holds the duration and format metadata of a media file.
type ProbeResult struct {
	// DurationSeconds is 0 when the file carries no usable duration.
	DurationSeconds float64      `json:"durationSeconds"`
	Format          FormatInfo   `json:"format"`
	Streams         []StreamInfo `json:"streams,omitempty"`
}

// HasAudio reports whether any stream is audio.
func (r ProbeResult) HasAudio() bool {
	for _, s := range r.Streams {
		if s.CodecType == "audio" {
			return true
		}
	}
	return false
}

// Prober reads media metadata with ffprobe.
type Prober struct {
	runner     commandRunner
	proberPath string
	timeout    time.Duration
	tempDir    string
	logger     *slog.Logger
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithProbeTimeout sets the per-strategy timeout for a probe.
func WithProbeTimeout(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithProbeTempDir sets where ProbeBytes writes its scratch file.
func WithProbeTempDir(dir string) ProberOption {
	return func(p *Prober) { p.tempDir = dir }
}

// WithProbeLogger sets the logger.
func WithProbeLogger(l *slog.Logger) ProberOption {
	return func(p *Prober) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProber creates a Prober running the binary at proberPath through runner.
func NewProber(runner commandRunner, proberPath string, opts ...ProberOption) *Prober {
	p := &Prober{
		runner:     runner,
		proberPath: proberPath,
		timeout:    defaultProbeTimeout,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe returns duration and format metadata for path.
// A missing duration yields 0, not an error; only subprocess failures
// return an error wrapping ErrProbeFailed.
func (p *Prober) Probe(ctx context.Context, path string) (ProbeResult, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	res, err := p.runner.Run(ctx, p.proberPath, args, p.timeout)
	metrics.ProbesTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return ProbeResult{}, fmt.Errorf("%w: %s: %v", ErrProbeFailed, path, err)
	}

	result, err := parseProbeOutput([]byte(res.Stdout))
	if err != nil {
		p.logger.Warn("unreadable probe output, reporting zero duration",
			slog.String("path", path), slog.Any("error", err))
		return ProbeResult{}, nil
	}
	return result, nil
}

// ProbeBytes probes in-memory media by writing it to a scratch file.
// The scratch file is always removed.
func (p *Prober) ProbeBytes(ctx context.Context, data []byte) (ProbeResult, error) {
	f, err := os.CreateTemp(p.tempDir, "minutesgen-probe-*")
	if err != nil {
		return ProbeResult{}, fmt.Errorf("create probe file: %w", err)
	}
	tmpPath := f.Name()
	defer func() { _ = os.Remove(tmpPath) }() // best-effort cleanup

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return ProbeResult{}, fmt.Errorf("write probe file: %w", err)
	}
	if err := f.Close(); err != nil {
		return ProbeResult{}, fmt.Errorf("close probe file: %w", err)
	}

	return p.Probe(ctx, tmpPath)
}

// probeOutput mirrors the subset of ffprobe's JSON that we read.
// ffprobe encodes most numbers as strings.
type probeOutput struct {
	Format struct {
		FormatName     string            `json:"format_name"`
		FormatLongName string            `json:"format_long_name"`
		Duration       string            `json:"duration"`
		Size           string            `json:"size"`
		BitRate        string            `json:"bit_rate"`
		Tags           map[string]string `json:"tags"`
	} `json:"format"`
	Streams []struct {
		Index      int    `json:"index"`
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		Duration   string `json:"duration"`
	} `json:"streams"`
}

// parseProbeOutput converts ffprobe JSON into a ProbeResult.
// When the container has no duration, the longest audio stream's is used.
func parseProbeOutput(data []byte) (ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return ProbeResult{}, fmt.Errorf("decode probe json: %w", err)
	}

	result := ProbeResult{
		DurationSeconds: parseSeconds(out.Format.Duration),
		Format: FormatInfo{
			Name:     out.Format.FormatName,
			LongName: out.Format.FormatLongName,
			BitRate:  parseInt(out.Format.BitRate),
			Size:     parseInt(out.Format.Size),
			Tags:     out.Format.Tags,
		},
	}

	var streamMax float64
	for _, s := range out.Streams {
		result.Streams = append(result.Streams, StreamInfo{
			Index:      s.Index,
			CodecType:  s.CodecType,
			CodecName:  s.CodecName,
			SampleRate: int(parseInt(s.SampleRate)),
			Channels:   s.Channels,
		})
		if s.CodecType == "audio" {
			streamMax = max(streamMax, parseSeconds(s.Duration))
		}
	}
	if result.DurationSeconds == 0 {
		result.DurationSeconds = streamMax
	}

	return result, nil
}

// parseSeconds parses a decimal seconds string; invalid, negative or
// non-finite values (ffprobe prints "N/A") become 0.
func parseSeconds(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v != v || v > 1e12 {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
