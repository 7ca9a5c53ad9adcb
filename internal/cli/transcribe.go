package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alnah/minutesgen/internal/format"
	"github.com/alnah/minutesgen/internal/transcribe"
)

// clampParallel constrains parallel request count to valid range [1, MaxRecommendedParallel].
func clampParallel(n int) int {
	if n < 1 {
		return 1
	}
	if n > transcribe.MaxRecommendedParallel {
		return transcribe.MaxRecommendedParallel
	}
	return n
}

// deriveOutputPath converts an audio file path to a markdown output path.
// Example: "session.ogg" -> "session.md"
func deriveOutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	return strings.TrimSuffix(inputPath, ext) + ".md"
}

// transcribeOptions holds the transcribe command flags.
type transcribeOptions struct {
	output   string
	duration time.Duration
	workers  int
	parallel int
	diarize  bool
	language string
	prompt   string
}

// TranscribeCmd creates the transcribe command.
// The env parameter provides injectable dependencies for testing.
func TranscribeCmd(env *Env) *cobra.Command {
	var opts transcribeOptions

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an audio file to text",
		Long: `Split an audio file into segments and transcribe them with OpenAI.

Segments are transcribed in parallel and their text is written in
segment order, one paragraph per segment. Requires OPENAI_API_KEY.`,
		Example: `  minutesgen transcribe meeting.m4a
  minutesgen transcribe meeting.m4a -o minutes.md --diarize
  minutesgen transcribe meeting.m4a -l pt-BR --prompt "Ana, Rui, Q3 budget"
  minutesgen transcribe lecture.mp3 -d 5m -p 4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscribe(cmd.Context(), env, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file path (default: <input>.md)")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Segment length, e.g. 10m (default: config segment-duration)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Segments decoded concurrently (default: config workers)")
	cmd.Flags().IntVarP(&opts.parallel, "parallel", "p", transcribe.MaxRecommendedParallel, "Max concurrent API requests (1-10)")
	cmd.Flags().BoolVar(&opts.diarize, "diarize", false, "Enable speaker identification")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Audio language (ISO 639-1 code, e.g., en, fr, pt-BR)")
	cmd.Flags().StringVar(&opts.prompt, "prompt", "", "Vocabulary hint, e.g. attendee names")

	return cmd
}

// runTranscribe executes the transcription pipeline.
// Validation order: file exists -> output -> duration -> language -> parallel -> API key
func runTranscribe(ctx context.Context, env *Env, input string, opts transcribeOptions) error {
	// === VALIDATION (fail-fast) ===

	if _, err := checkInput(input); err != nil {
		return err
	}

	output := opts.output
	if output == "" {
		output = deriveOutputPath(filepath.Base(input))
	}
	warnNonMarkdownExtension(env.Stderr, output)
	if _, err := os.Stat(output); err == nil {
		return fmt.Errorf("%s: %w", output, ErrOutputExists)
	}

	if opts.duration < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDuration, opts.duration)
	}
	if err := transcribe.ValidateLanguage(opts.language); err != nil {
		return err
	}
	parallel := clampParallel(opts.parallel)

	apiKey := env.Getenv(EnvOpenAIAPIKey)
	if apiKey == "" {
		return fmt.Errorf("%w (set it with: export %s=sk-...)", ErrAPIKeyMissing, EnvOpenAIAPIKey)
	}

	// === SEGMENTING ===

	started := env.Now()
	cfg, logger, err := loadSettings(env)
	if err != nil {
		return err
	}
	duration, err := segmentDuration(opts.duration, cfg)
	if err != nil {
		return err
	}
	segmenter, err := newSegmenter(env, cfg, logger, opts.workers)
	if err != nil {
		return err
	}
	segments, err := segmenter.Split(ctx, input, duration, progressPrinter(env.Stderr))
	if err != nil {
		return err
	}
	// Ensure cleanup even on error or interrupt
	defer segmenter.CleanupSegments(segments)

	// === TRANSCRIPTION ===

	if opts.language != "" {
		_, _ = fmt.Fprintf(env.Stderr, "Transcribing %d segments (%s)...\n", len(segments), transcribe.LanguageName(opts.language))
	} else {
		_, _ = fmt.Fprintf(env.Stderr, "Transcribing %d segments...\n", len(segments))
	}
	transcriber := env.TranscriberFactory.NewTranscriber(apiKey, logger)
	texts, err := transcribe.TranscribeAll(ctx, segments, transcriber, transcribe.Options{
		Diarize:  opts.diarize,
		Prompt:   opts.prompt,
		Language: opts.language,
	}, parallel, func(done, total int) {
		_, _ = fmt.Fprintf(env.Stderr, "  %d/%d segments transcribed\n", done, total)
	})
	if err != nil {
		return err
	}

	// === WRITE OUTPUT ===

	if err := writeFileAtomic(output, joinTranscripts(texts)); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(env.Stderr, "Done: %s (%s)\n", output, format.DurationHuman(env.Now().Sub(started)))
	return nil
}

// joinTranscripts writes segment texts in order, one paragraph each.
// Segments without speech are skipped.
func joinTranscripts(texts []string) string {
	var b strings.Builder
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}
