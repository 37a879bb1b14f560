package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
)

type Logger struct {
	json bool
	sl   *slog.Logger
}

// New logs to stdout, as text or as one JSON object per line.
func New(jsonOutput bool) *Logger {
	return NewWriter(os.Stdout, jsonOutput, false)
}

// NewWriter logs to w. Debug messages are emitted only when verbose is set.
func NewWriter(w io.Writer, jsonOutput, verbose bool) *Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	var h slog.Handler
	if jsonOutput {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{json: jsonOutput, sl: slog.New(h)}
}

func (l *Logger) log(level slog.Level, msg string, fields map[string]any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}
	l.sl.LogAttrs(context.Background(), level, msg, attrs...)
}

func (l *Logger) Debug(msg string, fields map[string]any) { l.log(slog.LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields map[string]any)  { l.log(slog.LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields map[string]any)  { l.log(slog.LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields map[string]any) { l.log(slog.LevelError, msg, fields) }

// JSONEnabled reports whether this logger is configured to emit JSON output.
func (l *Logger) JSONEnabled() bool { return l.json }
