// Package logging builds the per-invocation *slog.Logger.
//
// There is no package-level logger state: the CLI constructs one logger from
// the requested verbosity and passes it to every component that logs.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// LevelFatal sits above slog.LevelError and is used for diagnostics that end
// the invocation.
const LevelFatal = slog.Level(12)

// Verbosity names accepted by ParseLevel, lowest volume first.
var Verbosities = []string{"fatal", "error", "info", "verbose"}

// ParseLevel maps a verbosity name to a slog level. "debug" is accepted as
// an alias for "verbose".
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fatal":
		return LevelFatal, nil
	case "error", "":
		return slog.LevelError, nil
	case "info":
		return slog.LevelInfo, nil
	case "verbose", "debug":
		return slog.LevelDebug, nil
	default:
		return 0, fmt.Errorf("invalid verbosity %q: must be one of %v", s, Verbosities)
	}
}

// Options configures New.
type Options struct {
	// Out defaults to os.Stderr.
	Out   io.Writer
	Level slog.Level
	JSON  bool

	// RunID tags every record with run=<id>. Empty means generate one.
	RunID string
}

// New returns a logger writing to opts.Out.
func New(opts Options) *slog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{
		Level: opts.Level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelFatal {
					a.Value = slog.StringValue("FATAL")
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	runID := opts.RunID
	if runID == "" {
		runID = NewRunID()
	}
	return slog.New(handler).With(slog.String("run", runID))
}

// NewRunID returns a time-sortable identifier for one invocation.
func NewRunID() string {
	return uuid.Must(uuid.NewV7()).String()
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(nopHandler{})
}

// OrNop returns lg, or a discarding logger when lg is nil.
func OrNop(lg *slog.Logger) *slog.Logger {
	if lg == nil {
		return NewNop()
	}
	return lg
}
