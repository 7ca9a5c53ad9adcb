package cli

import (
	"cmp"
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alnah/minutesgen/internal/audio"
	"github.com/alnah/minutesgen/internal/httpapi"
	"github.com/alnah/minutesgen/internal/processor"
	"github.com/alnah/minutesgen/internal/progress"
	"github.com/alnah/minutesgen/internal/transfer"
)

// maxSweepInterval caps how long an expired upload session lingers.
const maxSweepInterval = 10 * time.Minute

// ServeCmd creates the serve command.
func ServeCmd(env *Env) *cobra.Command {
	var (
		listen     string
		sessionTTL time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the audio processor over HTTP",
		Long: `Expose the audio processor as a JSON API with server-sent progress
events and Prometheus metrics.

Routes:
  POST   /api/initialize
  POST   /api/process                      {"path": ..., "segmentDuration": 600}
  POST   /api/duration                     raw audio body
  POST   /api/uploads                      {"fileName": ..., "fileSize": ...}
  PUT    /api/uploads/{id}/chunks/{index}  raw chunk body
  POST   /api/uploads/{id}/finalize
  DELETE /api/uploads/{id}
  POST   /api/cleanup
  GET    /api/events
  GET    /healthz
  GET    /metrics

Unfinished upload sessions older than --session-ttl are discarded.`,
		Example: `  minutesgen serve
  minutesgen serve --listen :9000 --session-ttl 30m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), env, listen, sessionTTL)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default: config listen)")
	cmd.Flags().DurationVar(&sessionTTL, "session-ttl", time.Hour, "Discard unfinished uploads older than this (0 disables)")

	return cmd
}

func runServe(ctx context.Context, env *Env, listen string, sessionTTL time.Duration) error {
	cfg, logger, err := loadSettings(env)
	if err != nil {
		return err
	}
	binaries, runner, err := env.ToolchainFactory.NewToolchain(cfg, logger)
	if err != nil {
		return err
	}

	hub := progress.NewHub(0)
	defer hub.Close()

	uploads := transfer.NewCoordinator(
		transfer.WithChunkSize(cfg.ChunkSize),
		transfer.WithTempDir(env.TempDir()),
		transfer.WithLogger(logger),
	)
	segmenter := audio.NewSegmenter(binaries, runner,
		audio.WithWorkers(cfg.Workers),
		audio.WithDecodeTimeout(cfg.DecodeTimeout),
		audio.WithTempDir(env.TempDir()),
		audio.WithLogger(logger),
	)
	proc := processor.New(binaries, runner,
		processor.WithSegmenter(segmenter),
		processor.WithUploads(uploads, cfg.ChunkSize),
		processor.WithWorkDir(filepath.Join(env.TempDir(), audio.WorkDirName)),
		processor.WithProgress(hub.Func()),
		processor.WithLogger(logger),
	)
	defer proc.Cleanup()

	srv := httpapi.NewServer(proc, hub,
		httpapi.WithChunkSize(cfg.ChunkSize),
		httpapi.WithLogger(logger),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cmp.Or(listen, cfg.Listen))
	})
	g.Go(func() error {
		sweepLoop(gctx, uploads, sessionTTL, logger)
		return nil
	})
	return g.Wait()
}

// sweeper discards expired upload sessions.
type sweeper interface {
	Sweep(maxAge time.Duration) int
}

// sweepLoop sweeps sessions older than ttl until ctx is done.
// A non-positive ttl disables sweeping.
func sweepLoop(ctx context.Context, s sweeper, ttl time.Duration, logger *slog.Logger) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(min(ttl, maxSweepInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(ttl); n > 0 {
				logger.Debug("upload sweep", slog.Int("removed", n))
			}
		}
	}
}
