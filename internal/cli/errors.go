package cli

import "errors"

// Errors raised while validating command input, before any audio work.
var (
	// ErrAPIKeyMissing indicates OPENAI_API_KEY is unset for transcribe.
	ErrAPIKeyMissing = errors.New("OPENAI_API_KEY environment variable not set")

	// ErrInvalidDuration indicates a negative segment duration.
	ErrInvalidDuration = errors.New("invalid segment duration")

	// ErrFileNotFound indicates the input is missing or is a directory.
	ErrFileNotFound = errors.New("file not found")

	// ErrOutputExists indicates transcribe would overwrite an existing file.
	ErrOutputExists = errors.New("output file already exists")
)
