// Package logger is the structured logging layer shared by the loom packages.
// Library code takes its logger from the context and never configures one;
// the command line and the HTTP server decide format and level.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Logger wraps slog.Logger so callers can inject their own implementation.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithGroup(name string) Logger
	Enabled(level slog.Level) bool
}

// Format selects the record encoding.
type Format string

const (
	FormatPretty Format = "pretty"
	FormatText   Format = "text"
	FormatJSON   Format = "json"
)

// Options configures New.
type Options struct {
	Format Format
	Level  slog.Level
	// Color enables ANSI colors in the pretty format.
	Color bool
	// Source adds the calling file and line to every record.
	Source bool
}

type slogLogger struct {
	logger *slog.Logger
}

// FromHandler returns a Logger writing through h.
func FromHandler(h slog.Handler) Logger {
	return &slogLogger{logger: slog.New(h)}
}

// New returns a Logger writing to w in the requested format.
func New(w io.Writer, opts Options) (Logger, error) {
	ho := &slog.HandlerOptions{Level: opts.Level, AddSource: opts.Source}
	switch opts.Format {
	case FormatPretty, "":
		return FromHandler(NewPrettyHandler(w, ho, opts.Color)), nil
	case FormatText:
		return FromHandler(slog.NewTextHandler(w, ho)), nil
	case FormatJSON:
		return FromHandler(slog.NewJSONHandler(w, ho)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
}

// Discard returns a Logger that drops every record.
func Discard() Logger {
	return FromHandler(slog.DiscardHandler)
}

// FromContext returns the Logger stored in ctx, or a discarding Logger.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return l
	}
	return Discard()
}

// WithContext returns a copy of ctx carrying l.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

type loggerKey struct{}

func (l *slogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{logger: l.logger.With(args...)}
}

func (l *slogLogger) WithGroup(name string) Logger {
	return &slogLogger{logger: l.logger.WithGroup(name)}
}

func (l *slogLogger) Enabled(level slog.Level) bool {
	return l.logger.Enabled(context.Background(), level)
}

// ParseLevel converts a level name to slog.Level. Names are case-insensitive.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// ParseFormat validates a format name.
func ParseFormat(format string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(format))); f {
	case FormatPretty, FormatText, FormatJSON:
		return f, nil
	case "":
		return FormatPretty, nil
	default:
		return "", fmt.Errorf("unknown log format %q", format)
	}
}
