//go:build windows

package ffmpeg

import (
	"os/exec"
	"syscall"
)

// setCmdLine makes cmd start with line as its exact command line.
func setCmdLine(cmd *exec.Cmd, line string) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CmdLine: line}
}
