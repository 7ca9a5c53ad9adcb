package cli

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alnah/minutesgen/internal/audio"
	"github.com/alnah/minutesgen/internal/config"
)

// checkInput verifies that the input file exists.
func checkInput(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("cannot access input file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrFileNotFound, path)
	}
	return info, nil
}

// newSegmenter builds a Segmenter on the env's toolchain. A workers value
// of 0 falls back to the configured count.
func newSegmenter(env *Env, cfg config.Config, logger *slog.Logger, workers int) (*audio.Segmenter, error) {
	binaries, runner, err := env.ToolchainFactory.NewToolchain(cfg, logger)
	if err != nil {
		return nil, err
	}
	return audio.NewSegmenter(binaries, runner,
		audio.WithWorkers(cmp.Or(workers, cfg.Workers)),
		audio.WithDecodeTimeout(cfg.DecodeTimeout),
		audio.WithTempDir(env.TempDir()),
		audio.WithLogger(logger),
	), nil
}

// segmentDuration returns flag when set, else the configured value.
func segmentDuration(flag time.Duration, cfg config.Config) (time.Duration, error) {
	if flag < 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidDuration, flag)
	}
	return cmp.Or(flag, cfg.SegmentDuration), nil
}
