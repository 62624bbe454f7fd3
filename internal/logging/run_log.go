package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// runLogHandler sends every record to the console and a JSON copy to the run
// log file. Both sides share one level, so the console decides Enabled.
type runLogHandler struct {
	console slog.Handler
	file    slog.Handler
}

func (h *runLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.console.Enabled(ctx, level)
}

func (h *runLogHandler) Handle(ctx context.Context, record slog.Record) error {
	consoleErr := h.console.Handle(ctx, record.Clone())
	fileErr := h.file.Handle(ctx, record)
	return errors.Join(consoleErr, fileErr)
}

func (h *runLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &runLogHandler{console: h.console.WithAttrs(attrs), file: h.file.WithAttrs(attrs)}
}

func (h *runLogHandler) WithGroup(name string) slog.Handler {
	return &runLogHandler{console: h.console.WithGroup(name), file: h.file.WithGroup(name)}
}

// openRunLog opens path for appending, creating its directory. The caller
// owns the returned file.
func openRunLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}

// closeRunLog flushes the run log to disk before closing it.
func closeRunLog(file *os.File) func() error {
	return func() error {
		return errors.Join(file.Sync(), file.Close())
	}
}
