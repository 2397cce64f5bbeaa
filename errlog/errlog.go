// Package errlog implements the engine's bounded error log.
//
// Entries live in a fixed-capacity ring (oldest evicted first) and are
// mirrored best-effort to an optional durable Sink. Sink failures are logged
// and swallowed - persistence problems must never fail the update that
// produced the entry.
package errlog

import (
	"log/slog"
	"sync"
	"time"

	"github.com/panelguard/panelguard/ids"
)

// Entry is one recorded failure.
type Entry struct {
	// ID uniquely identifies the entry (UUIDv7 in production).
	ID string

	// Type is the error code, e.g. "UPDATE_FAILED".
	Type string

	// Message is a human-readable description.
	Message string

	// Context carries structured key/value diagnostics.
	Context map[string]string

	// Timestamp records when the entry was appended.
	Timestamp time.Time
}

// Sink receives a durable copy of every appended entry.
//
// Record is called synchronously from Append; implementations that do slow
// IO should buffer internally. Errors are reported to the caller's logger
// and otherwise ignored.
type Sink interface {
	Record(e Entry) error
}

// Log is a bounded, thread-safe error log.
type Log struct {
	mu       sync.Mutex
	entries  []Entry // ring storage
	start    int     // index of oldest entry
	count    int
	capacity int

	gen    ids.Generator
	sink   Sink
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithSink attaches a durable sink.
func WithSink(s Sink) Option {
	return func(l *Log) { l.sink = s }
}

// WithGenerator overrides the entry id generator (tests).
func WithGenerator(g ids.Generator) Option {
	return func(l *Log) { l.gen = g }
}

// WithClock overrides the timestamp source (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithLogger overrides the slog logger used for sink failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

// New creates a log holding at most capacity entries.
func New(capacity int, opts ...Option) *Log {
	if capacity < 1 {
		capacity = 1
	}
	l := &Log{
		entries:  make([]Entry, capacity),
		capacity: capacity,
		gen:      ids.UUIDv7{},
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records a failure and returns the assigned entry id. The oldest
// entry is evicted when the ring is full. The context map is copied.
func (l *Log) Append(errType, message string, context map[string]string) string {
	entry := Entry{
		ID:        l.gen.Generate(),
		Type:      errType,
		Message:   message,
		Context:   copyContext(context),
		Timestamp: l.now(),
	}

	l.mu.Lock()
	idx := (l.start + l.count) % l.capacity
	if l.count == l.capacity {
		// Ring full: overwrite oldest.
		l.start = (l.start + 1) % l.capacity
		idx = (l.start + l.count - 1) % l.capacity
	} else {
		l.count++
	}
	l.entries[idx] = entry
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		if err := sink.Record(entry); err != nil {
			l.logger.Warn("error log sink write failed",
				"entry_id", entry.ID,
				"entry_type", entry.Type,
				"error", err,
			)
		}
	}
	return entry.ID
}

// Entries returns entries oldest-first. A non-empty typeFilter restricts the
// result to entries of that type.
func (l *Log) Entries(typeFilter string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, l.count)
	for i := 0; i < l.count; i++ {
		e := l.entries[(l.start+i)%l.capacity]
		if typeFilter != "" && e.Type != typeFilter {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Clear discards all retained entries. The durable sink keeps its copies.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		l.entries[i] = Entry{}
	}
	l.start = 0
	l.count = 0
}

func copyContext(ctx map[string]string) map[string]string {
	if ctx == nil {
		return nil
	}
	out := make(map[string]string, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out
}
