// Package viewport preserves a container's relative read position across a
// content replacement.
//
// Positions are stored as a ratio of offset to total extent, so a restore
// lands the reader at the same relative place even when the replacement
// changed the content's length. A save is skipped when the offset has moved
// noticeably since the last observation - that movement means the user is
// scrolling right now, and stomping their position would be hostile.
package viewport

import (
	"log/slog"
	"math"
	"sync"

	"github.com/panelguard/panelguard/probe"
)

type entry struct {
	saved       *float64 // normalized offset, nil when nothing saved
	lastSeen    float64  // last observed normalized offset
	hasSeen     bool
	interacting bool // last observation showed active movement
}

// Preserver captures and restores scroll positions through a probe.Host.
//
// Thread-safety: all methods are safe for concurrent use.
type Preserver struct {
	mu        sync.Mutex
	entries   map[string]*entry
	host      probe.Host
	threshold float64 // normalized movement above which a save is skipped
	logger    *slog.Logger
}

// New creates a Preserver. threshold is the normalized offset delta above
// which the user counts as actively interacting.
func New(host probe.Host, threshold float64, logger *slog.Logger) *Preserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preserver{
		entries:   make(map[string]*entry),
		host:      host,
		threshold: threshold,
		logger:    logger,
	}
}

// Save records the container's current relative position, unless the user is
// actively scrolling, in which case the save is skipped and only the
// observation is updated. Non-scrollable containers save nothing.
func (p *Preserver) Save(id string) {
	vp, err := p.host.Viewport(id)
	if err != nil {
		p.logger.Debug("viewport save skipped", "container", id, "error", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[id]
	if !ok {
		e = &entry{}
		p.entries[id] = e
	}

	if !vp.Scrollable() {
		e.saved = nil
		e.interacting = false
		return
	}

	ratio := vp.Offset / vp.Extent

	if e.hasSeen && math.Abs(ratio-e.lastSeen) > p.threshold {
		// The position moved since we last looked: the user is driving.
		e.interacting = true
		e.lastSeen = ratio
		e.hasSeen = true
		p.logger.Debug("viewport save skipped: active interaction",
			"container", id,
			"offset_ratio", ratio,
		)
		return
	}

	e.interacting = false
	e.lastSeen = ratio
	e.hasSeen = true
	saved := ratio
	e.saved = &saved
}

// Restore re-applies the saved relative position against the container's new
// extent, clamped to the valid range, then discards the saved entry
// (one-shot). If the new content no longer scrolls, the offset resets to the
// origin.
func (p *Preserver) Restore(id string) {
	p.mu.Lock()
	e, ok := p.entries[id]
	var saved *float64
	if ok {
		saved = e.saved
		e.saved = nil
	}
	p.mu.Unlock()

	if saved == nil {
		return
	}

	vp, err := p.host.Viewport(id)
	if err != nil {
		p.logger.Debug("viewport restore skipped", "container", id, "error", err)
		return
	}

	if !vp.Scrollable() {
		if err := p.host.SetViewportOffset(id, 0); err != nil {
			p.logger.Debug("viewport reset failed", "container", id, "error", err)
		}
		return
	}

	offset := *saved * vp.Extent
	max := vp.Extent - vp.Window
	if offset > max {
		offset = max
	}
	if offset < 0 {
		offset = 0
	}
	if err := p.host.SetViewportOffset(id, offset); err != nil {
		p.logger.Debug("viewport restore failed", "container", id, "error", err)
	}
}

// IsActivelyInteracting reports whether the last Save observed the user
// moving the viewport. Callers can use it to skip restoration entirely.
func (p *Preserver) IsActivelyInteracting(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	return ok && e.interacting
}

// HasSaved reports whether a saved position exists for the container.
func (p *Preserver) HasSaved(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	return ok && e.saved != nil
}

// Clear drops saved state for one container.
func (p *Preserver) Clear(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, id)
}

// ClearAll drops all saved state. Used by emergency stop.
func (p *Preserver) ClearAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = make(map[string]*entry)
}
