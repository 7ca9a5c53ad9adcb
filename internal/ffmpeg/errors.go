package ffmpeg

import "errors"

// ErrProvisioningFailed indicates the decoder or prober could not be located,
// copied into the deployment directory, or verified.
var ErrProvisioningFailed = errors.New("binary provisioning failed")

// ErrBinaryUnverified indicates every execution strategy failed for a binary.
var ErrBinaryUnverified = errors.New("binary could not be executed")

// ErrProbeFailed indicates the prober subprocess failed (launch, non-zero exit, or timeout).
var ErrProbeFailed = errors.New("media probe failed")

// ErrTimeout indicates a subprocess was killed after exceeding its timeout.
var ErrTimeout = errors.New("process timed out")

// ErrNonZeroExit indicates a subprocess ran but exited with a non-zero status.
var ErrNonZeroExit = errors.New("process exited with non-zero status")
