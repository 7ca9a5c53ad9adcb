package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alnah/minutesgen/internal/audio"
	"github.com/alnah/minutesgen/internal/ffmpeg"
	"github.com/alnah/minutesgen/internal/format"
)

// DurationCmd creates the duration command.
func DurationCmd(env *Env) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "duration <audio-file>",
		Short: "Print the duration of an audio file",
		Long: `Probe an audio file and print its duration in seconds followed by
the same duration as MM:SS or HH:MM:SS.

With --json, the full probe result (format and streams) is printed.`,
		Example: `  minutesgen duration meeting.m4a
  minutesgen duration meeting.m4a --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDuration(cmd.Context(), env, args[0], asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the probe result as JSON")

	return cmd
}

func runDuration(ctx context.Context, env *Env, input string, asJSON bool) error {
	if _, err := checkInput(input); err != nil {
		return err
	}

	cfg, logger, err := loadSettings(env)
	if err != nil {
		return err
	}
	binaries, runner, err := env.ToolchainFactory.NewToolchain(cfg, logger)
	if err != nil {
		return err
	}
	if err := binaries.EnsureProvisioned(ctx); err != nil {
		return err
	}

	prober := ffmpeg.NewProber(runner, binaries.Paths().Prober, ffmpeg.WithProbeLogger(logger))
	res, err := prober.Probe(ctx, input)
	if err != nil {
		return err
	}
	if res.DurationSeconds <= 0 {
		return fmt.Errorf("%w: %s", audio.ErrNoDuration, input)
	}

	if asJSON {
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, _ = fmt.Fprintf(env.Stdout, "%.3f\t%s\n", res.DurationSeconds, format.Timestamp(res.DurationSeconds))
	return nil
}
