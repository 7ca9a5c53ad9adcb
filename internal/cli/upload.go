package cli

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/alnah/minutesgen/internal/config"
	"github.com/alnah/minutesgen/internal/format"
	"github.com/alnah/minutesgen/internal/progress"
	"github.com/alnah/minutesgen/internal/transfer"
)

// UploadCmd creates the upload command.
func UploadCmd(env *Env) *cobra.Command {
	var chunkSize string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Copy a file into the work directory through chunked transfer",
		Long: `Send a file through the chunked transfer path used by the HTTP API:
the file is read in fixed-size chunks, each chunk is stored on disk, and the
chunks are merged in order into the worker temp directory.

The merged file path is printed on stdout.`,
		Example: `  minutesgen upload recording.wav
  minutesgen upload recording.wav --chunk-size 8M`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd.Context(), env, args[0], chunkSize)
		},
	}

	cmd.Flags().StringVar(&chunkSize, "chunk-size", "", "Chunk size, e.g. 8M (default: config chunk-size)")

	return cmd
}

func runUpload(ctx context.Context, env *Env, input, chunkFlag string) (err error) {
	info, err := checkInput(input)
	if err != nil {
		return err
	}

	cfg, logger, err := loadSettings(env)
	if err != nil {
		return err
	}
	var chunkSize int64
	if chunkFlag != "" {
		chunkSize, err = config.ParseSize(chunkFlag)
		if err != nil {
			return fmt.Errorf("%w: chunk-size=%q: %v", config.ErrInvalidValue, chunkFlag, err)
		}
	}
	chunkSize = cmp.Or(chunkSize, cfg.ChunkSize)

	f, err := os.Open(input) // #nosec G304 -- user-specified input file
	if err != nil {
		return fmt.Errorf("cannot open input file: %w", err)
	}
	defer func() { _ = f.Close() }()

	coord := transfer.NewCoordinator(
		transfer.WithChunkSize(chunkSize),
		transfer.WithTempDir(env.TempDir()),
		transfer.WithLogger(logger),
	)
	id, err := coord.StartSession(filepath.Base(input), info.Size())
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			coord.CleanupSession(id)
		}
	}()

	tracker := progress.NewTracker(progressPrinter(env.Stderr), progress.StageUploading)
	total := coord.ExpectedChunks(info.Size())
	for i := range total {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := coord.UploadChunkFrom(id, i, io.LimitReader(f, chunkSize)); err != nil {
			tracker.Fail(err)
			return err
		}
		tracker.Update(float64(i+1)/float64(total)*100, fmt.Sprintf("Chunk %d of %d", i+1, total))
	}

	tracker.Stage(progress.StageMerging, "Merging chunks")
	res, err := coord.FinalizeSession(id)
	if err != nil {
		tracker.Fail(err)
		return err
	}
	tracker.Complete(fmt.Sprintf("Merged %d chunks (%s)", res.Chunks, format.Size(res.Size)))

	_, _ = fmt.Fprintln(env.Stdout, res.Path)
	return nil
}
