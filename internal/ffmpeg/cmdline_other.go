//go:build !windows

package ffmpeg

import "os/exec"

// setCmdLine is a no-op: only windows processes receive a raw command line.
func setCmdLine(cmd *exec.Cmd, line string) {}
