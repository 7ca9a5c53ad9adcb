package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/alnah/minutesgen/internal/apierr"
	"github.com/alnah/minutesgen/internal/audio"
	"github.com/alnah/minutesgen/internal/cli"
	"github.com/alnah/minutesgen/internal/config"
	"github.com/alnah/minutesgen/internal/ffmpeg"
	"github.com/alnah/minutesgen/internal/transcribe"
	"github.com/alnah/minutesgen/internal/transfer"
)

// Injected at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitGeneral    = 1
	ExitUsage      = 2
	ExitSetup      = 3
	ExitValidation = 4
	ExitProcessing = 5
	ExitInterrupt  = 130
)

func main() {
	// Load .env file if present (ignore error if missing).
	_ = godotenv.Load()

	// Context with signal cancellation.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCmd(cli.DefaultEnv())
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(exitCode(err))
	}
}

// newRootCmd assembles the command tree on env.
func newRootCmd(env *cli.Env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "minutesgen",
		Short: "Split, upload and transcribe meeting recordings",
		Long: `minutesgen prepares meeting recordings for speech recognition.

It deploys a bundled ffmpeg, splits long recordings into 16 kHz mono WAV
segments, reassembles chunked uploads, and can transcribe the segments
into Markdown minutes with OpenAI.`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.AddCommand(cli.InitCmd(env))
	rootCmd.AddCommand(cli.SplitCmd(env))
	rootCmd.AddCommand(cli.DurationCmd(env))
	rootCmd.AddCommand(cli.UploadCmd(env))
	rootCmd.AddCommand(cli.ServeCmd(env))
	rootCmd.AddCommand(cli.TranscribeCmd(env))
	rootCmd.AddCommand(cli.ConfigCmd(env))

	return rootCmd
}

// exitCode maps errors to process exit codes.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	// Check for context cancellation (interrupt).
	if errors.Is(err, context.Canceled) {
		return ExitInterrupt
	}

	// Usage errors (ExitUsage = 2): Cobra flag/arg parsing errors.
	// Cobra doesn't expose typed errors, so we check for known error message patterns.
	if isCobraUsageError(err) {
		return ExitUsage
	}

	// A failed segment wraps the decoder's cause, which may itself be a
	// setup sentinel; the segment failure wins.
	if errors.Is(err, audio.ErrSegmentExtractionFailed) {
		return ExitProcessing
	}

	// Setup errors (ExitSetup = 3).
	if errors.Is(err, ffmpeg.ErrProvisioningFailed) || errors.Is(err, ffmpeg.ErrBinaryUnverified) ||
		errors.Is(err, cli.ErrAPIKeyMissing) || errors.Is(err, config.ErrInvalidSyntax) ||
		errors.Is(err, config.ErrInvalidKey) {
		return ExitSetup
	}

	// Validation errors (ExitValidation = 4).
	if errors.Is(err, cli.ErrFileNotFound) || errors.Is(err, audio.ErrFileNotFound) ||
		errors.Is(err, audio.ErrNoDuration) || errors.Is(err, cli.ErrOutputExists) ||
		errors.Is(err, cli.ErrInvalidDuration) || errors.Is(err, config.ErrUnknownKey) ||
		errors.Is(err, config.ErrInvalidValue) || errors.Is(err, transcribe.ErrInvalidLanguage) {
		return ExitValidation
	}

	// Processing errors (ExitProcessing = 5).
	if errors.Is(err, ffmpeg.ErrProbeFailed) || errors.Is(err, ffmpeg.ErrTimeout) ||
		errors.Is(err, ffmpeg.ErrNonZeroExit) ||
		errors.Is(err, transfer.ErrSessionNotFound) || errors.Is(err, transfer.ErrChunkCountMismatch) ||
		errors.Is(err, transfer.ErrChunkIndexOutOfRange) || errors.Is(err, transfer.ErrChunkTooLarge) ||
		errors.Is(err, transfer.ErrInvalidSize) || errors.Is(err, transfer.ErrIOFailure) ||
		errors.Is(err, apierr.ErrRateLimit) || errors.Is(err, apierr.ErrQuotaExceeded) ||
		errors.Is(err, apierr.ErrTimeout) || errors.Is(err, apierr.ErrAuthFailed) ||
		errors.Is(err, apierr.ErrBadRequest) {
		return ExitProcessing
	}

	return ExitGeneral
}

// cobraUsageErrorPatterns contains error message substrings that indicate Cobra usage errors.
// Cobra doesn't expose typed errors, so string matching is the only reliable approach.
var cobraUsageErrorPatterns = []string{
	"required flag",             // Missing required flag
	"unknown flag",              // Flag doesn't exist
	"unknown shorthand",         // Short flag doesn't exist
	"unknown command",           // Subcommand doesn't exist
	"flag needs an argument",    // Flag provided without value
	"invalid argument",          // Invalid flag value type
	"if any flags in the group", // Mutually exclusive flag violation
	"accepts ",                  // Wrong number of arguments (e.g., "accepts 1 arg(s)")
	"requires at least",         // Too few arguments
	"requires at most",          // Too many arguments
}

// isCobraUsageError checks if an error is a Cobra usage/parsing error.
func isCobraUsageError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	for _, pattern := range cobraUsageErrorPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}
