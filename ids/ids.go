// Package ids provides identifier generation for snapshots and error-log
// entries.
package ids

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Generator produces unique identifiers. Implemented by UUIDv7 (production)
// and Fixed (tests).
type Generator interface {
	Generate() string
}

// UUIDv7 generates time-sortable UUIDv7 identifiers.
//
// UUIDv7 embeds a timestamp in the most significant bits, so ids sort by
// creation time - convenient when scanning error logs or snapshot records.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDv7 struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Fixed returns predetermined identifiers in order, for deterministic tests
// and golden-file comparison.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Fixed struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixed creates a generator that returns ids in order, then falls back to
// synthesized "fixed-N" ids once the list is exhausted.
func NewFixed(ids ...string) *Fixed {
	return &Fixed{ids: ids}
}

// Generate returns the next fixed id.
func (f *Fixed) Generate() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx < len(f.ids) {
		id := f.ids[f.idx]
		f.idx++
		return id
	}
	f.idx++
	return fmt.Sprintf("fixed-%d", f.idx)
}
