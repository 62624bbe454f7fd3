package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Options describes logger construction parameters.
type Options struct {
	// Level is debug, info, warn, or error. Empty means warn.
	Level string
	// Format is "console" or "json" and applies to the console stream.
	Format string
	// Console receives human-facing output. Nil means os.Stderr.
	Console io.Writer
	// Color enables ANSI level labels in the console format.
	Color bool
	// FilePath, when set, receives a JSON copy of every record.
	FilePath string
	// Attrs are attached to every record, typically the run id.
	Attrs []Attr
}

// New constructs a slog logger from opts. The returned close function
// releases the run log file and is safe to call when there is none.
func New(opts Options) (*slog.Logger, func() error, error) {
	noClose := func() error { return nil }
	levelVar := new(slog.LevelVar)
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, noClose, err
	}
	levelVar.Set(level)
	addSource := level <= slog.LevelDebug

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var handler slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "console":
		handler = newPrettyHandler(console, levelVar, addSource, opts.Color)
	case "json":
		handler = newJSONHandler(console, levelVar, addSource)
	default:
		return nil, noClose, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	closeLog := noClose
	if path := strings.TrimSpace(opts.FilePath); path != "" {
		file, err := openRunLog(path)
		if err != nil {
			return nil, noClose, err
		}
		handler = &runLogHandler{console: handler, file: newJSONHandler(file, levelVar, addSource)}
		closeLog = closeRunLog(file)
	}

	logger := slog.New(handler)
	if len(opts.Attrs) > 0 {
		logger = logger.With(Args(opts.Attrs...)...)
	}
	return logger, closeLog, nil
}

// ParseLevel maps a level name onto slog levels.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning", "":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, fmt.Errorf("log level: unsupported value %q", level)
	}
}

// LevelForVerbosity maps a repeated -v count to a level name: none is warn,
// one is info, two or more is debug.
func LevelForVerbosity(count int) string {
	switch {
	case count <= 0:
		return "warn"
	case count == 1:
		return "info"
	default:
		return "debug"
	}
}

func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	opts := slog.HandlerOptions{
		Level:     lvl,
		AddSource: addSource,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "ts"
				if attr.Value.Kind() == slog.KindTime {
					attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
				}
			case slog.LevelKey:
				attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
			case slog.SourceKey:
				if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
					attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
				}
			}
			return attr
		},
	}
	return slog.NewJSONHandler(w, &opts)
}
