package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alnah/minutesgen/internal/config"
	"github.com/alnah/minutesgen/internal/progress"
)

// loadSettings loads the configuration and builds the command logger on
// env.Stderr at the configured level.
func loadSettings(env *Env) (config.Config, *slog.Logger, error) {
	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		return cfg, nil, err
	}
	return cfg, newLogger(env.Stderr, cfg.LogLevel), nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// progressPrinter returns a progress sink that writes one line to w per
// distinct stage, whole percentage and task. It is safe for concurrent use.
func progressPrinter(w io.Writer) progress.Func {
	var (
		mu   sync.Mutex
		last string
	)
	return func(e progress.Event) {
		line := fmt.Sprintf("[%s] %3.0f%% %s", e.Stage, e.Percentage, e.CurrentTask)

		mu.Lock()
		defer mu.Unlock()
		if line == last {
			return
		}
		last = line
		_, _ = fmt.Fprintln(w, line)
	}
}

// warnNonMarkdownExtension writes a warning to w if path has an extension
// that is not .md. This alerts users that the output will be Markdown
// regardless of the file extension they specified.
func warnNonMarkdownExtension(w io.Writer, path string) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != "" && ext != ".md" {
		_, _ = fmt.Fprintf(w, "Warning: output is Markdown regardless of %s extension\n", ext)
	}
}

// writeFileAtomic writes content to path.
// It fails if the file already exists (O_EXCL), preventing accidental overwrites.
// On write failure, the partial file is removed.
func writeFileAtomic(path, content string) error {
	// #nosec G302 G304 -- user-specified output file with standard permissions
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", path, ErrOutputExists)
		}
		return fmt.Errorf("cannot create output file: %w", err)
	}

	writeErr := func() error {
		defer func() { _ = f.Close() }()
		if _, err := f.WriteString(content); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}()

	if writeErr != nil {
		_ = os.Remove(path)
		return writeErr
	}

	return nil
}
