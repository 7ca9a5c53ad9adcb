package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alnah/minutesgen/internal/metrics"
)

// DefaultVerifyTimeout bounds each strategy attempt of a version check.
const DefaultVerifyTimeout = 10 * time.Second

// maxStderrInError caps the stderr excerpt included in error messages.
const maxStderrInError = 512

// Runner executes binaries through an ordered ladder of strategies.
// The first strategy that launches the process and sees it exit with status
// 0 wins; if every strategy fails, the last failure is reported.
//
// A Runner remembers which strategy last worked for each path and tries it
// first next time. It never skips the rest of the ladder.
type Runner struct {
	strategies    []Strategy
	verifyTimeout time.Duration
	logger        *slog.Logger

	mu        sync.Mutex
	preferred map[string]string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithStrategies replaces the execution ladder.
func WithStrategies(s ...Strategy) RunnerOption {
	return func(r *Runner) { r.strategies = s }
}

// WithVerifyTimeout sets the per-strategy timeout used by Verify.
func WithVerifyTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.verifyTimeout = d
		}
	}
}

// WithRunnerLogger sets the logger for strategy fallbacks.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a Runner with the platform's default ladder.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		strategies:    DefaultStrategies(runtime.GOOS, os.TempDir()),
		verifyTimeout: DefaultVerifyTimeout,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		preferred:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes path with args. Each strategy gets its own timeout; a
// non-positive timeout means no limit beyond ctx.
//
// On total failure the returned Result is the last strategy's, so callers can
// inspect its stderr, and the error wraps ErrBinaryUnverified.
func (r *Runner) Run(ctx context.Context, path string, args []string, timeout time.Duration) (Result, error) {
	strategies := r.ordered(path)
	if len(strategies) == 0 {
		return Result{ExitCode: -1}, fmt.Errorf("%w: no execution strategies configured", ErrBinaryUnverified)
	}

	var (
		last     Result
		lastErr  error
		lastName string
	)
	for _, s := range strategies {
		res, err := attempt(ctx, s, path, args, timeout)
		metrics.ExecAttemptsTotal.WithLabelValues(s.Name, metrics.Result(err)).Inc()
		res.Strategy = s.Name

		if err == nil {
			r.remember(path, s.Name)
			return res, nil
		}

		// Parent context gone: further strategies would fail the same way.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("%s via %s: %w", filepath.Base(path), s.Name, ctxErr)
		}

		r.logger.Debug("execution strategy failed",
			slog.String("binary", filepath.Base(path)),
			slog.String("strategy", s.Name),
			slog.Any("error", err))
		last, lastErr, lastName = res, err, s.Name
	}

	return last, fmt.Errorf("%w: %s: all %d strategies failed, last (%s): %v",
		ErrBinaryUnverified, filepath.Base(path), len(strategies), lastName, lastErr)
}

// Verify checks that path actually runs by asking it for its version.
func (r *Runner) Verify(ctx context.Context, path string) (Result, error) {
	return r.Run(ctx, path, []string{"-version"}, r.verifyTimeout)
}

// attempt runs a single strategy under its own timeout and turns timeouts
// and non-zero exits into errors.
func attempt(ctx context.Context, s Strategy, path string, args []string, timeout time.Duration) (Result, error) {
	sctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := s.Execute(sctx, path, args)
	if errors.Is(sctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return res, fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
	if err != nil {
		return res, err
	}
	if res.ExitCode != 0 {
		return res, fmt.Errorf("%w %d: %s", ErrNonZeroExit, res.ExitCode, stderrExcerpt(res.Stderr))
	}
	return res, nil
}

// ordered returns the ladder with the last successful strategy for path first.
func (r *Runner) ordered(path string) []Strategy {
	r.mu.Lock()
	name, ok := r.preferred[path]
	r.mu.Unlock()

	strategies := slices.Clone(r.strategies)
	if !ok {
		return strategies
	}
	i := slices.IndexFunc(strategies, func(s Strategy) bool { return s.Name == name })
	if i > 0 {
		s := strategies[i]
		strategies = slices.Delete(strategies, i, i+1)
		strategies = slices.Insert(strategies, 0, s)
	}
	return strategies
}

func (r *Runner) remember(path, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preferred[path] = name
}

// stderrExcerpt returns the tail of stderr, trimmed for error messages.
func stderrExcerpt(stderr string) string {
	s := strings.TrimSpace(stderr)
	if len(s) > maxStderrInError {
		s = "..." + s[len(s)-maxStderrInError:]
	}
	if s == "" {
		return "(no output)"
	}
	return s
}
