package transfer

import (
	"errors"
	"fmt"
)

// Sentinel errors for chunked transfers.
var (
	// ErrSessionNotFound indicates the session id is unknown or already finalized.
	ErrSessionNotFound = errors.New("upload session not found")

	// ErrChunkCountMismatch indicates finalize was called before every chunk arrived.
	ErrChunkCountMismatch = errors.New("chunk count mismatch")

	// ErrChunkIndexOutOfRange indicates a chunk index outside [0, expected).
	ErrChunkIndexOutOfRange = errors.New("chunk index out of range")

	// ErrChunkTooLarge indicates a chunk body larger than the chunk size.
	ErrChunkTooLarge = errors.New("chunk exceeds chunk size")

	// ErrInvalidSize indicates a negative file size or one needing more than
	// MaxChunks chunks.
	ErrInvalidSize = errors.New("invalid file size")

	// ErrIOFailure wraps filesystem errors while storing or merging chunks.
	ErrIOFailure = errors.New("transfer i/o failure")
)

// ChunkCountMismatchError reports how many chunks a session has against
// how many it expects.
type ChunkCountMismatchError struct {
	Have int
	Want int
}

func (e *ChunkCountMismatchError) Error() string {
	return fmt.Sprintf("%v: have %d, want %d", ErrChunkCountMismatch, e.Have, e.Want)
}

// Is makes errors.Is(err, ErrChunkCountMismatch) match.
func (e *ChunkCountMismatchError) Is(target error) bool {
	return target == ErrChunkCountMismatch
}
