package logging

import (
	"context"
	"log/slog"
	"sync"
)

// Entry is one captured log record.
type Entry struct {
	Level slog.Level
	Msg   string
	Attrs map[string]any
}

// Recorder is a slog.Handler that keeps every record for assertions.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
	attrs   []slog.Attr
	parent  *Recorder
}

// NewRecorder returns a logger backed by a fresh Recorder.
func NewRecorder() (*slog.Logger, *Recorder) {
	r := &Recorder{}
	return slog.New(r), r
}

func (r *Recorder) root() *Recorder {
	if r.parent != nil {
		return r.parent.root()
	}
	return r
}

func (r *Recorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *Recorder) Handle(_ context.Context, rec slog.Record) error {
	e := Entry{Level: rec.Level, Msg: rec.Message, Attrs: map[string]any{}}
	for _, a := range r.attrs {
		e.Attrs[a.Key] = a.Value.Any()
	}
	rec.Attrs(func(a slog.Attr) bool {
		e.Attrs[a.Key] = a.Value.Any()
		return true
	})

	root := r.root()
	root.mu.Lock()
	root.entries = append(root.entries, e)
	root.mu.Unlock()
	return nil
}

func (r *Recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr(nil), r.attrs...), attrs...)
	return &Recorder{attrs: merged, parent: r.root()}
}

func (r *Recorder) WithGroup(string) slog.Handler { return r }

// Entries returns a copy of everything captured so far.
func (r *Recorder) Entries() []Entry {
	root := r.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	return append([]Entry(nil), root.entries...)
}

// Find returns the captured entries at or above level whose message is msg.
func (r *Recorder) Find(level slog.Level, msg string) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.Level >= level && e.Msg == msg {
			out = append(out, e)
		}
	}
	return out
}

var _ slog.Handler = (*Recorder)(nil)
