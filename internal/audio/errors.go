package audio

import (
	"errors"
	"fmt"
)

// ErrFileNotFound indicates the specified input file does not exist.
var ErrFileNotFound = errors.New("file not found")

// ErrNoDuration indicates the input reports no usable duration.
var ErrNoDuration = errors.New("audio has no duration")

// ErrInvalidSegmentDuration indicates a segment duration that is not a
// finite number of seconds or does not fit a time.Duration.
var ErrInvalidSegmentDuration = errors.New("invalid segment duration")

// ErrSegmentExtractionFailed indicates the decoder failed on a segment.
var ErrSegmentExtractionFailed = errors.New("segment extraction failed")

// SegmentError reports which segment failed to extract and why.
type SegmentError struct {
	Index int
	Err   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("%v: segment %d: %v", ErrSegmentExtractionFailed, e.Index, e.Err)
}

// Unwrap lets errors.Is match both ErrSegmentExtractionFailed and the cause.
func (e *SegmentError) Unwrap() []error {
	return []error{ErrSegmentExtractionFailed, e.Err}
}
