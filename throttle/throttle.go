// Package throttle rate-limits update execution per container.
//
// Each container gets its own token bucket (golang.org/x/time/rate, burst 1):
// the first request in a quiet window runs immediately, later requests inside
// the window are coalesced into a single pending slot where the newest payload
// replaces any older one. When the window elapses the latest pending task runs
// and a fresh window starts. Intermediate payloads are dropped on purpose -
// freshness over completeness.
//
// The throttler only spaces executions in time; mutual exclusion between a
// timer-fired task and a caller-run task is the lock table's job, not this
// package's.
package throttle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrSuperseded is returned to a caller whose pending task was replaced by a
// newer request before it could run. The superseded payload never executed.
var ErrSuperseded = errors.New("throttled task superseded by newer request")

// ErrCanceled is returned to a caller whose pending task was discarded by
// Cancel or CancelAll. The task never ran; callers must treat the update as
// never submitted.
var ErrCanceled = errors.New("throttled task canceled before running")

// Task is the unit of work the throttler schedules.
type Task func(ctx context.Context) (any, error)

type result struct {
	val any
	err error
}

type pendingTask struct {
	task Task
	ctx  context.Context
	done chan result // buffered, exactly one send
}

type state struct {
	limiter  *rate.Limiter
	interval time.Duration
	pending  *pendingTask
	timer    *time.Timer
	resv     *rate.Reservation

	runs      int64
	coalesced int64
	cancels   int64
	lastRun   time.Time
}

// Stats summarize one container's throttling activity.
type Stats struct {
	Runs         int64
	Coalesced    int64
	Cancels      int64
	PendingArmed bool
	LastRun      time.Time
	Interval     time.Duration
}

// Throttler coalesces bursts of per-container tasks.
//
// Thread-safety: all methods are safe for concurrent use.
type Throttler struct {
	mu              sync.Mutex
	states          map[string]*state
	defaultInterval time.Duration
	logger          *slog.Logger
}

// New creates a Throttler whose containers default to the given interval.
func New(defaultInterval time.Duration, logger *slog.Logger) *Throttler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Throttler{
		states:          make(map[string]*state),
		defaultInterval: defaultInterval,
		logger:          logger,
	}
}

func (t *Throttler) ensure(id string) *state {
	s, ok := t.states[id]
	if !ok {
		s = &state{
			limiter:  rate.NewLimiter(rate.Every(t.defaultInterval), 1),
			interval: t.defaultInterval,
		}
		t.states[id] = s
	}
	return s
}

// SetInterval overrides the throttle window for one container. Takes effect
// for the next scheduling decision; an armed timer keeps its original delay.
func (t *Throttler) SetInterval(id string, interval time.Duration) {
	if interval <= 0 {
		interval = t.defaultInterval
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.ensure(id)
	s.interval = interval
	s.limiter.SetLimit(rate.Every(interval))
}

// Interval reports the effective throttle window for a container.
func (t *Throttler) Interval(id string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.states[id]; ok {
		return s.interval
	}
	return t.defaultInterval
}

// Schedule runs task now if the container's window is open, otherwise parks
// it as the container's single pending task and blocks until it runs, is
// superseded, or ctx is done.
//
// Returns ErrSuperseded when a newer request replaced this one, ErrCanceled
// when Cancel discarded it, and ctx.Err() when the caller gave up waiting
// (the task may still run in the background; its result is discarded).
func (t *Throttler) Schedule(ctx context.Context, id string, task Task) (any, error) {
	t.mu.Lock()
	s := t.ensure(id)

	// Open window and nothing queued ahead: run on the caller's goroutine.
	if s.pending == nil && s.limiter.Allow() {
		s.runs++
		s.lastRun = time.Now()
		t.mu.Unlock()
		return task(ctx)
	}

	p := &pendingTask{task: task, ctx: ctx, done: make(chan result, 1)}

	if s.pending != nil {
		// Replace: the older payload is dropped, its caller released.
		s.pending.done <- result{err: ErrSuperseded}
		s.coalesced++
		s.pending = p
	} else {
		// First throttled request of this window: reserve the next token and
		// arm a timer for when it becomes available.
		s.pending = p
		s.resv = s.limiter.Reserve()
		delay := s.resv.Delay()
		s.timer = time.AfterFunc(delay, func() { t.fire(id) })
		t.logger.Debug("update throttled",
			"container", id,
			"delay", delay,
		)
	}
	t.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-p.done:
		return res.val, res.err
	}
}

// fire runs the container's pending task when its timer elapses.
func (t *Throttler) fire(id string) {
	t.mu.Lock()
	s, ok := t.states[id]
	if !ok || s.pending == nil {
		t.mu.Unlock()
		return
	}
	p := s.pending
	s.pending = nil
	s.timer = nil
	s.resv = nil
	s.runs++
	s.lastRun = time.Now()
	t.mu.Unlock()

	val, err := p.task(p.ctx)
	p.done <- result{val: val, err: err}
}

// Cancel disarms the container's timer and discards its pending task without
// running it. The waiting caller receives ErrCanceled.
func (t *Throttler) Cancel(id string) {
	t.mu.Lock()
	s, ok := t.states[id]
	if !ok || s.pending == nil {
		t.mu.Unlock()
		return
	}
	t.discardLocked(s)
	t.mu.Unlock()
}

// CancelAll discards every pending task. Used by emergency stop.
func (t *Throttler) CancelAll() {
	t.mu.Lock()
	for _, s := range t.states {
		if s.pending != nil {
			t.discardLocked(s)
		}
	}
	t.mu.Unlock()
}

// discardLocked drops s.pending. Callers hold t.mu.
func (t *Throttler) discardLocked(s *state) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.resv != nil {
		s.resv.Cancel()
		s.resv = nil
	}
	s.pending.done <- result{err: ErrCanceled}
	s.pending = nil
	s.cancels++
}

// FlushAll immediately executes every armed pending task, out of timer
// order. Intended for teardown and tests.
func (t *Throttler) FlushAll() {
	t.mu.Lock()
	var ready []*pendingTask
	for _, s := range t.states {
		if s.pending == nil {
			continue
		}
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.resv = nil
		ready = append(ready, s.pending)
		s.pending = nil
		s.runs++
		s.lastRun = time.Now()
	}
	t.mu.Unlock()

	for _, p := range ready {
		val, err := p.task(p.ctx)
		p.done <- result{val: val, err: err}
	}
}

// AllStats returns per-container throttling counters.
func (t *Throttler) AllStats() map[string]Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Stats, len(t.states))
	for id, s := range t.states {
		out[id] = Stats{
			Runs:         s.runs,
			Coalesced:    s.coalesced,
			Cancels:      s.cancels,
			PendingArmed: s.pending != nil,
			LastRun:      s.lastRun,
			Interval:     s.interval,
		}
	}
	return out
}
