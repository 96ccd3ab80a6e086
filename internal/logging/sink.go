package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Options configures a Sink.
type Options struct {
	Format  string // json (default) or text
	Level   string // debug, info, warn, error
	Session string // attached to every record when non-empty
}

// Sink is the process-wide trace destination.
// Records written after Close fail with the underlying write error.
type Sink struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	handler slog.Handler
	closed  bool
}

// OpenSink creates dir if needed and opens a fresh trace file named
// <prefix>_<yyyyMMdd-HHmmss>-utc.log inside it.
func OpenSink(dir, prefix string, now time.Time, opts Options) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create diag directory %s: %w", dir, err)
	}

	name := fmt.Sprintf("%s_%s-utc.log", prefix, now.UTC().Format("20060102-150405"))
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file %s: %w", path, err)
	}

	s := NewSink(f, opts)
	s.file = f
	s.path = path
	return s, nil
}

// NewSink creates a Sink on an arbitrary writer. The writer is not closed by Close.
func NewSink(w io.Writer, opts Options) *Sink {
	handler := newHandler(w, opts.Format, &slog.HandlerOptions{Level: parseLevel(opts.Level)})
	if opts.Session != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("session", opts.Session)})
	}
	return &Sink{handler: handler}
}

// Path returns the trace file path, or "" for writer-backed sinks.
func (s *Sink) Path() string {
	return s.path
}

// Trace returns a handle whose records carry component=name.
func (s *Sink) Trace(name string) *Trace {
	h := s.handler.WithAttrs([]slog.Attr{slog.String("component", name)})
	return &Trace{
		handler: h,
		logger:  slog.New(h),
	}
}

// Close closes the trace file. Safe to call more than once.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.file == nil {
		s.closed = true
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// Trace is a component-scoped view of a Sink.
type Trace struct {
	handler slog.Handler
	logger  *slog.Logger
}

// Logger returns the slog.Logger behind this trace. Write errors are dropped
// by slog.Logger; use Error when the caller needs to know.
func (t *Trace) Logger() *slog.Logger {
	return t.logger
}

// Debug logs at debug level, best effort.
func (t *Trace) Debug(msg string, args ...any) {
	t.logger.Debug(msg, args...)
}

// Info logs at info level, best effort.
func (t *Trace) Info(msg string, args ...any) {
	t.logger.Info(msg, args...)
}

// Warn logs at warn level, best effort.
func (t *Trace) Warn(msg string, args ...any) {
	t.logger.Warn(msg, args...)
}

// Error writes an error-level "failure" record for err and returns whatever
// the underlying handler returned, e.g. ENOSPC from the trace file.
func (t *Trace) Error(err error, args ...any) error {
	ctx := context.Background()
	if !t.handler.Enabled(ctx, slog.LevelError) {
		return nil
	}

	r := slog.NewRecord(time.Now(), slog.LevelError, "failure", 0)
	r.AddAttrs(
		slog.String("error_type", fmt.Sprintf("%T", err)),
		slog.String("error", errorString(err)),
	)
	r.Add(args...)

	return t.handler.Handle(ctx, r)
}

func errorString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}
