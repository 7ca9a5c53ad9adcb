package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// SplitCmd creates the split command.
func SplitCmd(env *Env) *cobra.Command {
	var (
		duration time.Duration
		workers  int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "split <audio-file>",
		Short: "Split an audio file into WAV segments",
		Long: `Split an audio file into consecutive fixed-length segments.

Each segment is decoded to 16 kHz mono 16-bit WAV, the format speech
recognition services expect. The last segment holds the remainder.
Segments are written under the system temp directory in minutes-gen-audio.`,
		Example: `  minutesgen split meeting.m4a
  minutesgen split meeting.m4a -d 5m -w 4
  minutesgen split meeting.m4a --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSplit(cmd.Context(), env, args[0], duration, workers, asJSON)
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Segment length, e.g. 10m (default: config segment-duration)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Segments decoded concurrently (default: config workers)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print segments as JSON")

	return cmd
}

func runSplit(ctx context.Context, env *Env, input string, duration time.Duration, workers int, asJSON bool) error {
	if _, err := checkInput(input); err != nil {
		return err
	}

	cfg, logger, err := loadSettings(env)
	if err != nil {
		return err
	}
	duration, err = segmentDuration(duration, cfg)
	if err != nil {
		return err
	}

	segmenter, err := newSegmenter(env, cfg, logger, workers)
	if err != nil {
		return err
	}
	segments, err := segmenter.Split(ctx, input, duration, progressPrinter(env.Stderr))
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(segments)
	}
	for _, s := range segments {
		_, _ = fmt.Fprintf(env.Stdout, "%s\t%s\n", s, s.FilePath)
	}
	return nil
}
