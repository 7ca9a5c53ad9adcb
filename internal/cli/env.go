package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/minutesgen/internal/config"
	"github.com/alnah/minutesgen/internal/ffmpeg"
	"github.com/alnah/minutesgen/internal/transcribe"
)

// EnvOpenAIAPIKey is the environment variable holding the OpenAI key.
const EnvOpenAIAPIKey = "OPENAI_API_KEY"

// Env holds injectable dependencies for CLI commands.
// This is the central injection point for testing CLI commands in isolation.
//
// All fields have production defaults via DefaultEnv(). Tests override
// specific fields using the With* options or by building an Env directly.
type Env struct {
	// I/O and environment
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string
	Now    func() time.Time
	// TempDir returns the base directory for segments and upload chunks.
	TempDir func() string

	// Factories for domain objects
	ConfigLoader       ConfigLoader
	ToolchainFactory   ToolchainFactory
	TranscriberFactory TranscriberFactory
}

// ConfigLoader loads configuration.
type ConfigLoader interface {
	Load() (config.Config, error)
}

// Binaries locates, deploys and verifies the decoder and prober.
type Binaries interface {
	EnsureProvisioned(ctx context.Context) error
	Paths() ffmpeg.Paths
}

// Runner executes a binary through the execution strategy ladder.
type Runner interface {
	Run(ctx context.Context, path string, args []string, timeout time.Duration) (ffmpeg.Result, error)
}

// ToolchainFactory builds the binary provisioner and the runner that
// executes it, configured from cfg.
type ToolchainFactory interface {
	NewToolchain(cfg config.Config, logger *slog.Logger) (Binaries, Runner, error)
}

// TranscriberFactory creates transcribers for audio-to-text conversion.
type TranscriberFactory interface {
	NewTranscriber(apiKey string, logger *slog.Logger) transcribe.Transcriber
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStdout sets the stdout writer.
func WithStdout(w io.Writer) EnvOption {
	return func(e *Env) {
		e.Stdout = w
	}
}

// WithStderr sets the stderr writer.
func WithStderr(w io.Writer) EnvOption {
	return func(e *Env) {
		e.Stderr = w
	}
}

// WithGetenv sets the environment variable getter.
func WithGetenv(fn func(string) string) EnvOption {
	return func(e *Env) {
		e.Getenv = fn
	}
}

// WithNow sets the time provider.
func WithNow(fn func() time.Time) EnvOption {
	return func(e *Env) {
		e.Now = fn
	}
}

// WithTempDir sets the base temp directory provider.
func WithTempDir(fn func() string) EnvOption {
	return func(e *Env) {
		e.TempDir = fn
	}
}

// WithConfigLoader sets the config loader.
func WithConfigLoader(l ConfigLoader) EnvOption {
	return func(e *Env) {
		e.ConfigLoader = l
	}
}

// WithToolchainFactory sets the toolchain factory.
func WithToolchainFactory(f ToolchainFactory) EnvOption {
	return func(e *Env) {
		e.ToolchainFactory = f
	}
}

// WithTranscriberFactory sets the transcriber factory.
func WithTranscriberFactory(f TranscriberFactory) EnvOption {
	return func(e *Env) {
		e.TranscriberFactory = f
	}
}

// DefaultEnv returns an Env with production defaults.
func DefaultEnv() *Env {
	return &Env{
		Stdout:             os.Stdout,
		Stderr:             os.Stderr,
		Getenv:             os.Getenv,
		Now:                time.Now,
		TempDir:            os.TempDir,
		ConfigLoader:       defaultConfigLoader{},
		ToolchainFactory:   defaultToolchainFactory{},
		TranscriberFactory: defaultTranscriberFactory{},
	}
}

// NewEnv creates an Env with the given options applied to defaults.
func NewEnv(opts ...EnvOption) *Env {
	env := DefaultEnv()
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// ---------------------------------------------------------------------------
// Default implementations - delegate to real packages
// ---------------------------------------------------------------------------

type defaultConfigLoader struct{}

func (defaultConfigLoader) Load() (config.Config, error) {
	return config.Load()
}

// defaultToolchainFactory wires a Provisioner to a Runner; the Runner also
// serves as the Provisioner's verifier.
type defaultToolchainFactory struct{}

func (defaultToolchainFactory) NewToolchain(cfg config.Config, logger *slog.Logger) (Binaries, Runner, error) {
	mode, err := ffmpeg.ParseMode(cfg.Packaging)
	if err != nil {
		return nil, nil, err
	}

	runner := ffmpeg.NewRunner(ffmpeg.WithRunnerLogger(logger))
	opts := []ffmpeg.ProvisionerOption{
		ffmpeg.WithMode(mode),
		ffmpeg.WithLogger(logger),
	}
	if cfg.BinDir != "" {
		opts = append(opts, ffmpeg.WithTargetDir(cfg.BinDir))
	}
	return ffmpeg.NewProvisioner(runner, opts...), runner, nil
}

type defaultTranscriberFactory struct{}

func (defaultTranscriberFactory) NewTranscriber(apiKey string, logger *slog.Logger) transcribe.Transcriber {
	client := openai.NewClient(apiKey)
	return transcribe.NewOpenAITranscriber(client, apiKey, transcribe.WithLogger(logger))
}

// Compile-time interface verification.
var (
	_ ConfigLoader       = defaultConfigLoader{}
	_ ToolchainFactory   = defaultToolchainFactory{}
	_ TranscriberFactory = defaultTranscriberFactory{}
	_ Binaries           = (*ffmpeg.Provisioner)(nil)
	_ Runner             = (*ffmpeg.Runner)(nil)
)
