package processor

import (
	"context"
	"time"

	"github.com/alnah/minutesgen/internal/audio"
	"github.com/alnah/minutesgen/internal/ffmpeg"
	"github.com/alnah/minutesgen/internal/progress"
	"github.com/alnah/minutesgen/internal/transfer"
)

// binarySource provisions and locates the decoder and prober.
type binarySource interface {
	EnsureProvisioned(ctx context.Context) error
	Paths() ffmpeg.Paths
}

// splitter cuts an audio file into segments.
type splitter interface {
	Split(ctx context.Context, inputPath string, segmentDuration time.Duration, onProgress progress.Func) ([]audio.Segment, error)
}

// uploader reassembles chunked uploads.
type uploader interface {
	StartSession(fileName string, fileSize int64) (string, error)
	UploadChunk(id string, index int, data []byte) error
	Received(id string) (have, want int, err error)
	FinalizeSession(id string) (transfer.FinalizeResult, error)
	CleanupSession(id string)
	CleanupAll()
}

// bytesProber reads metadata from in-memory media.
type bytesProber interface {
	ProbeBytes(ctx context.Context, data []byte) (ffmpeg.ProbeResult, error)
}

// commandRunner executes binaries; used to build the default prober.
type commandRunner interface {
	Run(ctx context.Context, path string, args []string, timeout time.Duration) (ffmpeg.Result, error)
}

// Compile-time interface implementation checks.
var (
	_ binarySource = (*ffmpeg.Provisioner)(nil)
	_ splitter     = (*audio.Segmenter)(nil)
	_ uploader     = (*transfer.Coordinator)(nil)
	_ bytesProber  = (*ffmpeg.Prober)(nil)
)
