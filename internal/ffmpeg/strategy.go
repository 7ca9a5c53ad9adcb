package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Strategy names.
const (
	StrategyDirect        = "direct"
	StrategyQuotedShell   = "quoted-shell"
	StrategySafeDir       = "safe-dir"
	StrategyPlatformShell = "platform-shell"
)

// safeDirName is the directory under the temp dir where the safe-dir
// strategy stages copies of binaries.
const safeDirName = "minutes-gen-bin"

// waitDelay bounds how long Wait blocks on I/O after the process is killed.
const waitDelay = 2 * time.Second

// Result is the outcome of one subprocess execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// Strategy is the name of the strategy that produced this result.
	Strategy string
}

// ExecuteFunc runs the binary at path with args. It returns a Result whenever
// the process started, and an error only when it could not be launched or
// waited on. A non-zero exit is reported through Result.ExitCode.
type ExecuteFunc func(ctx context.Context, path string, args []string) (Result, error)

// Strategy is one way of invoking a binary.
type Strategy struct {
	Name    string
	Execute ExecuteFunc
}

// DefaultStrategies returns the execution ladder for goos, most direct first.
// tempDir is where the safe-dir strategy stages binary copies.
func DefaultStrategies(goos, tempDir string) []Strategy {
	strategies := []Strategy{
		DirectStrategy(),
		QuotedShellStrategy(goos),
		SafeDirStrategy(filepath.Join(tempDir, safeDirName), goos),
	}
	if goos == "windows" {
		strategies = append(strategies, PlatformShellStrategy())
	}
	return strategies
}

// DirectStrategy spawns the binary without a shell.
func DirectStrategy() Strategy {
	return Strategy{
		Name: StrategyDirect,
		Execute: func(ctx context.Context, path string, args []string) (Result, error) {
			return runCommand(ctx, path, args)
		},
	}
}

// QuotedShellStrategy runs the binary through the system shell with the
// executable path and every argument quoted, which survives spaces and
// special characters in installation paths.
func QuotedShellStrategy(goos string) Strategy {
	return Strategy{
		Name: StrategyQuotedShell,
		Execute: func(ctx context.Context, path string, args []string) (Result, error) {
			return runCmd(shellCommand(ctx, goos, path, args))
		},
	}
}

// shellCommand builds the quoted-shell invocation. cmd.exe does not
// understand the backslash escaping Go applies to argv, so on windows the
// raw command line is handed to the process as is.
func shellCommand(ctx context.Context, goos, path string, args []string) *exec.Cmd {
	if goos == "windows" {
		// #nosec G204 -- line is built by this package, not user input
		cmd := exec.CommandContext(ctx, "cmd.exe")
		setCmdLine(cmd, cmdShellLine(path, args))
		return cmd
	}
	// #nosec G204 -- args are quoted by this package
	return exec.CommandContext(ctx, "/bin/sh", "-c", joinQuoted(quotePOSIX, path, args))
}

// cmdShellLine is the full cmd.exe command line. With /S, cmd strips the
// outer pair of quotes and runs the rest verbatim.
func cmdShellLine(path string, args []string) string {
	return `cmd.exe /S /C "` + joinQuoted(quoteWindows, path, args) + `"`
}

// SafeDirStrategy copies the binary into dir and runs the copy. This gets
// around execution restrictions tied to the original location, such as
// synced folders that strip permissions.
func SafeDirStrategy(dir, goos string) Strategy {
	return Strategy{
		Name: StrategySafeDir,
		Execute: func(ctx context.Context, path string, args []string) (Result, error) {
			staged := filepath.Join(dir, filepath.Base(path))
			if err := stageBinary(path, staged, goos); err != nil {
				return Result{ExitCode: -1}, fmt.Errorf("stage binary: %w", err)
			}
			return runCommand(ctx, staged, args)
		},
	}
}

// PlatformShellStrategy invokes the binary through PowerShell with the
// execution policy bypassed. Windows only.
func PlatformShellStrategy() Strategy {
	return Strategy{
		Name: StrategyPlatformShell,
		Execute: func(ctx context.Context, path string, args []string) (Result, error) {
			script := "& " + joinQuoted(quotePowerShell, path, args)
			return runCommand(ctx, "powershell", []string{
				"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-Command", script,
			})
		},
	}
}

// runCommand executes name with args, capturing stdout and stderr.
// The process is killed when ctx is done.
func runCommand(ctx context.Context, name string, args []string) (Result, error) {
	// #nosec G204 -- name and args are built by this package, not user input
	return runCmd(exec.CommandContext(ctx, name, args...))
}

// runCmd executes cmd, capturing stdout and stderr.
func runCmd(cmd *exec.Cmd) (Result, error) {
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	// The process ran; the caller decides what a non-zero exit means.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, nil
	}
	return res, err
}

// stageBinary copies src to dst unless dst already has the same size,
// then makes it executable on POSIX.
func stageBinary(src, dst, goos string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	if dstInfo, err := os.Stat(dst); err != nil || dstInfo.Size() != srcInfo.Size() {
		if err := copyFileAtomic(src, dst); err != nil {
			return err
		}
	}
	if goos != "windows" {
		return os.Chmod(dst, 0755) // #nosec G302 -- executable must be runnable
	}
	return nil
}

// copyFileAtomic copies src to dst through a temp file and rename.
func copyFileAtomic(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), installDirPerm); err != nil {
		return err
	}

	in, err := os.Open(src) // #nosec G304 -- src is a resolved binary path
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".stage-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		_ = tmp.Close()
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return err
	}

	success = true
	return nil
}

// joinQuoted quotes path and args with quote and joins them with spaces.
func joinQuoted(quote func(string) string, path string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quote(path))
	for _, a := range args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

// quotePOSIX wraps s in single quotes for /bin/sh.
func quotePOSIX(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// quoteWindows wraps s in double quotes for cmd.exe.
func quoteWindows(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// quotePowerShell wraps s in single quotes for PowerShell.
func quotePowerShell(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
