// Package logging builds the structured slog.Logger used across the
// scan core, plus the attribute helpers and context propagation the
// rest of the module logs through.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

type Attr = slog.Attr

func Any(key string, value any) Attr                 { return slog.Any(key, value) }
func Bool(key string, value bool) Attr                { return slog.Bool(key, value) }
func Duration(key string, value time.Duration) Attr   { return slog.Duration(key, value) }
func Float64(key string, value float64) Attr          { return slog.Float64(key, value) }
func Int(key string, value int) Attr                  { return slog.Int(key, value) }
func Int64(key string, value int64) Attr              { return slog.Int64(key, value) }
func Uint64(key string, value uint64) Attr            { return slog.Uint64(key, value) }
func String(key string, value string) Attr            { return slog.String(key, value) }

func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

func Args(attrs ...Attr) []any {
	args := make([]any, 0, len(attrs))
	for _, a := range attrs {
		args = append(args, a)
	}
	return args
}

// Standardized structured logging keys shared across actors and the
// orchestrator.
const (
	FieldComponent     = "component"
	FieldScanID        = "scan_id"
	FieldLibraryID     = "library_id"
	FieldFolderID      = "folder_id"
	FieldStage         = "stage"
	FieldSubject       = "subject"
	FieldEventType     = "event_type"
	FieldCorrelationID = "correlation_id"
	FieldErrorKind     = "error_kind"
	FieldErrorHint     = "error_hint"
)

type contextKey int

const (
	ctxScanID contextKey = iota
	ctxLibraryID
	ctxStage
)

// WithScanID attaches a scan id to ctx for later attribute extraction.
func WithScanID(ctx context.Context, scanID string) context.Context {
	return context.WithValue(ctx, ctxScanID, scanID)
}

// WithLibraryID attaches a library id to ctx for later attribute extraction.
func WithLibraryID(ctx context.Context, libraryID string) context.Context {
	return context.WithValue(ctx, ctxLibraryID, libraryID)
}

// WithStage attaches a stage name to ctx for later attribute extraction.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ctxStage, stage)
}

// ContextFields extracts standardized slog attributes from ctx.
func ContextFields(ctx context.Context) []Attr {
	if ctx == nil {
		return nil
	}
	var fields []Attr
	if v, ok := ctx.Value(ctxScanID).(string); ok && v != "" {
		fields = append(fields, String(FieldScanID, v))
	}
	if v, ok := ctx.Value(ctxLibraryID).(string); ok && v != "" {
		fields = append(fields, String(FieldLibraryID, v))
	}
	if v, ok := ctx.Value(ctxStage).(string); ok && v != "" {
		fields = append(fields, String(FieldStage, v))
	}
	return fields
}

// WithContext returns logger augmented with fields derived from ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}

// NewNop returns a logger that discards all output.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Options describes logger construction parameters.
type Options struct {
	Level  string // debug|info|warn|error
	Format string // console|json
	Output io.Writer
}

// New constructs a slog.Logger per Options, defaulting to an info-level
// console logger writing to stdout.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(out, handlerOpts)), nil
	case "console":
		return slog.New(newConsoleHandler(out, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("logging: unsupported format %q", opts.Format)
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// consoleHandler is a thin, colorized wrapper around slog.NewTextHandler:
// it tints the level token so scan failures stand out in a terminal without
// reimplementing slog's attribute formatting.
type consoleHandler struct {
	slog.Handler
	out io.Writer
}

func newConsoleHandler(out io.Writer, opts *slog.HandlerOptions) *consoleHandler {
	return &consoleHandler{Handler: slog.NewTextHandler(out, opts), out: out}
}

func (h *consoleHandler) Handle(ctx context.Context, rec slog.Record) error {
	tint := color.New(color.FgWhite)
	switch {
	case rec.Level >= slog.LevelError:
		tint = color.New(color.FgRed, color.Bold)
	case rec.Level >= slog.LevelWarn:
		tint = color.New(color.FgYellow)
	case rec.Level < slog.LevelInfo:
		tint = color.New(color.FgCyan)
	}
	rec.Message = tint.Sprint(rec.Message)
	return h.Handler.Handle(ctx, rec)
}
