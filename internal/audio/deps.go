package audio

import (
	"context"
	"os"
	"time"

	"github.com/alnah/minutesgen/internal/ffmpeg"
)

// commandRunner executes a binary through the execution ladder.
// *ffmpeg.Runner implements it.
type commandRunner interface {
	Run(ctx context.Context, path string, args []string, timeout time.Duration) (ffmpeg.Result, error)
}

// binarySource provides verified decoder and prober paths.
// *ffmpeg.Provisioner implements it.
type binarySource interface {
	EnsureProvisioned(ctx context.Context) error
	Paths() ffmpeg.Paths
}

// durationProber reads media metadata.
// *ffmpeg.Prober implements it.
type durationProber interface {
	Probe(ctx context.Context, path string) (ffmpeg.ProbeResult, error)
}

// fileStatter retrieves file information.
type fileStatter interface {
	Stat(name string) (os.FileInfo, error)
}

// dirCreator creates directories.
type dirCreator interface {
	MkdirAll(path string, perm os.FileMode) error
}

// fileRemover removes files.
type fileRemover interface {
	Remove(name string) error
}

// Compile-time interface implementation checks.
var (
	_ commandRunner  = (*ffmpeg.Runner)(nil)
	_ binarySource   = (*ffmpeg.Provisioner)(nil)
	_ durationProber = (*ffmpeg.Prober)(nil)
)

// --- Default implementations using real OS functions ---

// osFS implements fileStatter, dirCreator and fileRemover with the os package.
type osFS struct{}

func (osFS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func (osFS) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (osFS) Remove(name string) error {
	return os.Remove(name)
}
