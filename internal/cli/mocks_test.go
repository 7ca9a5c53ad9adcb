package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/alnah/minutesgen/internal/config"
	"github.com/alnah/minutesgen/internal/ffmpeg"
	"github.com/alnah/minutesgen/internal/transcribe"
)

const (
	mockDecoderPath = "/deploy/ffmpeg"
	mockProberPath  = "/deploy/ffprobe"
)

// ---------------------------------------------------------------------------
// Mock ConfigLoader
// ---------------------------------------------------------------------------

type mockConfigLoader struct {
	LoadFunc func() (config.Config, error)

	mu        sync.Mutex
	loadCalls int
}

func (m *mockConfigLoader) Load() (config.Config, error) {
	m.mu.Lock()
	m.loadCalls++
	m.mu.Unlock()

	if m.LoadFunc != nil {
		return m.LoadFunc()
	}
	return config.Default(), nil
}

func (m *mockConfigLoader) LoadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCalls
}

// ---------------------------------------------------------------------------
// Mock ToolchainFactory + Binaries + Runner
// ---------------------------------------------------------------------------

type mockToolchainFactory struct {
	NewToolchainFunc func(cfg config.Config) (Binaries, Runner, error)

	binaries *mockBinaries
	runner   *mockRunner

	mu      sync.Mutex
	configs []config.Config
}

func (m *mockToolchainFactory) NewToolchain(cfg config.Config, logger *slog.Logger) (Binaries, Runner, error) {
	m.mu.Lock()
	m.configs = append(m.configs, cfg)
	m.mu.Unlock()

	if m.NewToolchainFunc != nil {
		return m.NewToolchainFunc(cfg)
	}
	return m.binaries, m.runner, nil
}

func (m *mockToolchainFactory) Configs() []config.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]config.Config(nil), m.configs...)
}

type mockBinaries struct {
	EnsureFunc func(ctx context.Context) error

	mu          sync.Mutex
	ensureCalls int
}

func (m *mockBinaries) EnsureProvisioned(ctx context.Context) error {
	m.mu.Lock()
	m.ensureCalls++
	m.mu.Unlock()

	if m.EnsureFunc != nil {
		return m.EnsureFunc(ctx)
	}
	return nil
}

func (m *mockBinaries) Paths() ffmpeg.Paths {
	return ffmpeg.Paths{Decoder: mockDecoderPath, Prober: mockProberPath}
}

func (m *mockBinaries) EnsureCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureCalls
}

// mockRunner answers probes with a fixed duration and fakes decodes by
// writing the output file, which the decoder receives as its last argument.
type mockRunner struct {
	duration  float64
	probeErr  error
	decodeErr error

	mu      sync.Mutex
	decodes int
}

func (m *mockRunner) Run(ctx context.Context, path string, args []string, timeout time.Duration) (ffmpeg.Result, error) {
	if path == mockProberPath {
		if m.probeErr != nil {
			return ffmpeg.Result{ExitCode: 1}, m.probeErr
		}
		return ffmpeg.Result{Stdout: fmt.Sprintf(
			`{"format":{"format_name":"mov,mp4,m4a","duration":"%.3f"},"streams":[{"index":0,"codec_type":"audio","codec_name":"aac"}]}`,
			m.duration)}, nil
	}

	m.mu.Lock()
	m.decodes++
	m.mu.Unlock()

	if m.decodeErr != nil {
		return ffmpeg.Result{ExitCode: 1}, m.decodeErr
	}
	if err := os.WriteFile(args[len(args)-1], []byte("RIFF"), 0600); err != nil {
		return ffmpeg.Result{ExitCode: -1}, err
	}
	return ffmpeg.Result{}, nil
}

func (m *mockRunner) Decodes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decodes
}

// ---------------------------------------------------------------------------
// Mock TranscriberFactory + Transcriber
// ---------------------------------------------------------------------------

type mockTranscriberFactory struct {
	NewTranscriberFunc func(apiKey string) transcribe.Transcriber

	mu                  sync.Mutex
	newTranscriberCalls []string // API keys passed
}

func (m *mockTranscriberFactory) NewTranscriber(apiKey string, logger *slog.Logger) transcribe.Transcriber {
	m.mu.Lock()
	m.newTranscriberCalls = append(m.newTranscriberCalls, apiKey)
	m.mu.Unlock()

	if m.NewTranscriberFunc != nil {
		return m.NewTranscriberFunc(apiKey)
	}
	return &mockTranscriber{}
}

func (m *mockTranscriberFactory) NewTranscriberCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.newTranscriberCalls...)
}

type mockTranscriber struct {
	TranscribeFunc func(ctx context.Context, audioPath string, opts transcribe.Options) (string, error)

	mu              sync.Mutex
	transcribeCalls []transcribeCall
}

type transcribeCall struct {
	AudioPath string
	Opts      transcribe.Options
}

func (m *mockTranscriber) Transcribe(ctx context.Context, audioPath string, opts transcribe.Options) (string, error) {
	m.mu.Lock()
	m.transcribeCalls = append(m.transcribeCalls, transcribeCall{AudioPath: audioPath, Opts: opts})
	m.mu.Unlock()

	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, audioPath, opts)
	}
	return "transcribed text", nil
}

func (m *mockTranscriber) TranscribeCalls() []transcribeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]transcribeCall, len(m.transcribeCalls))
	copy(result, m.transcribeCalls)
	return result
}

// Compile-time interface verification.
var (
	_ ConfigLoader           = (*mockConfigLoader)(nil)
	_ ToolchainFactory       = (*mockToolchainFactory)(nil)
	_ Binaries               = (*mockBinaries)(nil)
	_ Runner                 = (*mockRunner)(nil)
	_ TranscriberFactory     = (*mockTranscriberFactory)(nil)
	_ transcribe.Transcriber = (*mockTranscriber)(nil)
)
