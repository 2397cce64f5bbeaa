// Package engine coordinates updates against named content containers.
//
// Producers of all kinds (push streams, pollers, user actions) funnel their
// update functions through UpdateContainer. The engine decides whether, when
// and how safely each function runs: bursts are throttled and coalesced per
// container, execution is serialized through per-container priority locks,
// risky updates are snapshotted for rollback, and every result is checked
// against size limits and corruption heuristics before the container is
// handed back to its readers. When recovery fails, content is replaced with
// an honest diagnostic placeholder rather than left ambiguous.
//
// The engine is an explicit instance - it owns all its maps and can be
// created per test. It never decides what content looks like; the host's
// probe is its only window into content.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panelguard/panelguard/config"
	"github.com/panelguard/panelguard/corrupt"
	"github.com/panelguard/panelguard/errlog"
	"github.com/panelguard/panelguard/perf"
	"github.com/panelguard/panelguard/probe"
	"github.com/panelguard/panelguard/sizemon"
	"github.com/panelguard/panelguard/snapshot"
	"github.com/panelguard/panelguard/throttle"
	"github.com/panelguard/panelguard/viewport"
)

// UpdateFunc mutates a container's content. The engine guarantees it holds
// the container's update lock for the duration of the call. There is no
// forced abort: a function that should be cancelable must honor ctx itself.
type UpdateFunc func(ctx context.Context, data any) error

// Engine is the coordinated update engine.
//
// Thread-safety: all methods are safe for concurrent use.
type Engine struct {
	cfg  config.Config
	host probe.Host

	locks     *lockTable
	clock     *Clock
	throttler *throttle.Throttler
	monitor   *sizemon.Monitor
	detector  *corrupt.Detector
	snapshots *snapshot.Store
	preserver *viewport.Preserver
	errorLog  *errlog.Log
	timer     *perf.Timer
	memory    *perf.MemoryMonitor
	bench     *perf.FrequencyBenchmark

	mu           sync.Mutex
	globalLock   bool
	globalReason string
	history      map[string][]UpdateRecord

	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger overrides the slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithErrorSink attaches a durable sink to the error log.
func WithErrorSink(s errlog.Sink) Option {
	return func(e *Engine) {
		e.errorLog = errlog.New(e.cfg.ErrorLogCapacity, errlog.WithSink(s), errlog.WithLogger(e.logger))
	}
}

// New creates an Engine over the given host with the given configuration.
func New(host probe.Host, cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		host:    host,
		locks:   newLockTable(),
		clock:   NewClock(),
		history: make(map[string][]UpdateRecord),
		logger:  slog.Default(),
	}

	// Logger and sink options need to run before dependent components are
	// wired, so apply options in two passes around the wiring.
	for _, opt := range opts {
		opt(e)
	}

	if e.errorLog == nil {
		e.errorLog = errlog.New(cfg.ErrorLogCapacity, errlog.WithLogger(e.logger))
	}

	e.throttler = throttle.New(cfg.ThrottleInterval, e.logger)
	e.monitor = sizemon.New(host, cfg.SizeLimit, sizemon.Thresholds{
		WarningPercent:   cfg.WarningPercent,
		CriticalPercent:  cfg.CriticalPercent,
		EmergencyPercent: cfg.EmergencyPercent,
	}, e.logger)
	e.detector = corrupt.New(host, e.monitor.Limit, corrupt.Params{
		ExcessiveSizeFactor: cfg.ExcessiveSizeFactor,
		DuplicateFraction:   cfg.DuplicateFraction,
		MinDuplicateSamples: cfg.MinDuplicateSamples,
		CriticalReasonCount: cfg.CriticalReasonCount,
	}, e.logger)
	e.detector.SetEnabled(cfg.CorruptionDetection)
	e.snapshots = snapshot.New(host, cfg.MaxRollbackAttempts, e.errorLog, snapshot.WithLogger(e.logger))
	e.snapshots.SetRollbackEnabled(cfg.RollbackEnabled)
	e.preserver = viewport.New(host, cfg.ActiveScrollThreshold, e.logger)
	e.timer = perf.NewTimer(64)
	e.bench = perf.NewFrequencyBenchmark(128)
	e.memory = perf.NewMemoryMonitor(0, 0, func() int {
		return e.monitor.SweepAll().TotalNodes
	}, e.logger)

	// Proactive cleanup: background sweeps hand emergency containers here
	// even when no update is pending.
	e.monitor.OnEmergency(e.handleEmergency)

	return e, nil
}

// UpdateContainer runs fn against the container under the engine's full
// gating: global lock, throttling, per-container locking, snapshotting,
// viewport preservation, post-update health checks and recovery.
//
// Returns a Result when the update completed and its content survived.
// Returns (nil, nil) when a recovery path (rollback or recreation) absorbed
// a failure: the caller's payload is gone but the container is healthy.
// Returns an error when the engine refused the update or recovery was
// unavailable.
func (e *Engine) UpdateContainer(ctx context.Context, id string, fn UpdateFunc, data any, opts UpdateOptions) (*Result, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if locked, reason := e.GlobalLock(); locked && opts.Priority != PriorityCritical {
		e.errorLog.Append(errlog.TypeGlobalLockActive,
			fmt.Sprintf("update of %q rejected: global lock active", id),
			map[string]string{"container": id, "reason": reason})
		return nil, newGlobalLockError(id, reason)
	}

	if opts.Priority == PriorityCritical || opts.BypassThrottle {
		return e.runLocked(ctx, id, fn, data, opts)
	}

	v, err := e.throttler.Schedule(ctx, id, func(ctx context.Context) (any, error) {
		return e.runLocked(ctx, id, fn, data, opts)
	})
	if err != nil {
		return nil, err
	}
	if res, ok := v.(*Result); ok {
		return res, nil
	}
	return nil, nil
}

// runLocked acquires the container's lock (queueing if necessary) and
// executes the update.
func (e *Engine) runLocked(ctx context.Context, id string, fn UpdateFunc, data any, opts UpdateOptions) (*Result, error) {
	gen, ok := e.locks.tryAcquire(id, opts.Priority)
	if !ok {
		w := e.locks.enqueue(id, opts.Priority)
		e.logger.Debug("update queued",
			"container", id,
			"priority", opts.Priority.String(),
			"queue_len", e.locks.queueLen(id),
		)
		select {
		case <-ctx.Done():
			if e.locks.removeWaiter(id, w) {
				return nil, ctx.Err()
			}
			// Dispatched concurrently with cancellation: consume the grant
			// and pass the lock on.
			if g := <-w.ready; g.ok {
				e.locks.release(id, g.gen)
			}
			return nil, ctx.Err()
		case g := <-w.ready:
			if !g.ok {
				_, reason := e.GlobalLock()
				return nil, newGlobalLockError(id, reason)
			}
			gen = g.gen
		}
	}
	defer e.locks.release(id, gen)

	return e.execute(ctx, id, fn, data, opts)
}

// execute runs the update while the caller holds the container's lock.
func (e *Engine) execute(ctx context.Context, id string, fn UpdateFunc, data any, opts UpdateOptions) (*Result, error) {
	seq := e.clock.Next()
	opID := "update:" + id
	e.timer.Start(opID)
	outcome := OutcomeSuccess

	if opts.EnableRollback {
		e.snapshots.Take(id)
	}
	if !opts.DisableScrollPreserve {
		e.preserver.Save(id)
	}

	if err := e.runWithRetries(ctx, id, fn, data, opts.RetryAttempts); err != nil {
		e.errorLog.Append(errlog.TypeUpdateFailed,
			fmt.Sprintf("update of %q failed: %v", id, err),
			map[string]string{"container": id, "priority": opts.Priority.String()})
		e.logger.Error("update function failed",
			"container", id,
			"seq", seq,
			"error", err,
		)
		if opts.EnableRollback && e.snapshots.Rollback(id, fmt.Sprintf("update failed: %v", err)) {
			outcome = OutcomeRolledBack
		} else {
			d, _ := e.timer.End(opID)
			e.recordHistory(id, UpdateRecord{Seq: seq, Outcome: OutcomeFailed, Duration: d, CompletedAt: time.Now()})
			return nil, &EngineError{
				Code:        errlog.TypeUpdateFailed,
				Message:     "update failed and no recovery was available",
				ContainerID: id,
				Err:         err,
			}
		}
	}

	var band sizemon.Band
	cleaned := false
	if !opts.DisableCleanup {
		if rec, err := e.monitor.Measure(id); err == nil {
			band = rec.Band
			if band == sizemon.BandCritical || band == sizemon.BandEmergency {
				cleaned = e.cleanupContainer(rec)
			}
		}
	}

	var corruption []string
	if outcome == OutcomeSuccess {
		rep, err := e.detector.Inspect(id)
		if err == nil && rep.Corrupted {
			e.errorLog.Append(errlog.TypeUpdateFailed,
				fmt.Sprintf("update of %q left corrupted content: %v", id, rep.Reasons),
				map[string]string{"container": id, "severity": string(rep.Severity)})
			switch {
			case opts.EnableRollback && e.snapshots.Rollback(id, fmt.Sprintf("corruption: %v", rep.Reasons)):
				outcome = OutcomeRolledBack
			case rep.Severity == corrupt.SeverityCritical && e.snapshots.Recreate(id, fmt.Sprintf("corruption: %v", rep.Reasons)):
				outcome = OutcomeRecreated
			default:
				// No recovery ran. The result still reports success but
				// carries the reasons so the caller can see the check fired.
				corruption = rep.Reasons
			}
		}
	}

	if !opts.DisableScrollPreserve && outcome == OutcomeSuccess {
		e.preserver.Restore(id)
	}

	duration, _ := e.timer.End(opID)
	e.bench.Record(id)
	e.recordHistory(id, UpdateRecord{
		Seq:         seq,
		Outcome:     outcome,
		Duration:    duration,
		Band:        band,
		CompletedAt: time.Now(),
	})

	e.logger.Debug("update completed",
		"container", id,
		"seq", seq,
		"outcome", outcome,
		"duration", duration,
		"band", band,
		"cleaned", cleaned,
	)

	if outcome != OutcomeSuccess {
		// Recovery absorbed the failure; the caller's payload is gone.
		return nil, nil
	}
	return &Result{
		ContainerID:       id,
		Seq:               seq,
		Duration:          duration,
		Band:              band,
		CleanupPerformed:  cleaned,
		CorruptionReasons: corruption,
	}, nil
}

// runWithRetries invokes fn, re-running it after a failure up to retries
// extra times. A canceled ctx stops the retries with the last failure.
func (e *Engine) runWithRetries(ctx context.Context, id string, fn UpdateFunc, data any, retries int) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx, data)
		if err == nil || attempt >= retries || ctx.Err() != nil {
			return err
		}
		e.logger.Warn("update attempt failed, retrying",
			"container", id,
			"attempt", attempt+1,
			"remaining", retries-attempt,
			"error", err,
		)
	}
}

// cleanupContainer shrinks an overgrown container. Critical-band containers
// are trimmed to their limit; emergency-band containers are beyond honest
// trimming and get replaced with a diagnostic banner stating what happened.
func (e *Engine) cleanupContainer(rec sizemon.Record) bool {
	id := rec.ContainerID
	limit := e.monitor.Limit(id)

	if rec.Band == sizemon.BandEmergency {
		banner := fmt.Sprintf("Content removed after exceeding size limits (%d elements, limit %d)",
			rec.ElementCount, limit)
		if err := e.host.Replace(id, banner); err != nil {
			e.logger.Warn("emergency cleanup failed", "container", id, "error", err)
			return false
		}
		e.preserver.Clear(id)
		e.logger.Warn("container content replaced by emergency cleanup",
			"container", id,
			"element_count", rec.ElementCount,
			"limit", limit,
		)
		return true
	}

	if err := e.host.TrimTo(id, limit); err != nil {
		e.logger.Warn("cleanup trim failed", "container", id, "error", err)
		return false
	}

	// Trimming top-level children may not shed nested bulk; fall back to the
	// banner if the container is still in the emergency band.
	after, err := e.monitor.Measure(id)
	if err == nil && after.Band == sizemon.BandEmergency {
		return e.cleanupContainer(after)
	}

	e.logger.Info("container trimmed by cleanup",
		"container", id,
		"before", rec.ElementCount,
		"limit", limit,
	)
	return true
}

// handleEmergency is invoked by background size sweeps. It cleans up an
// emergency container opportunistically: if the container is mid-update the
// lock is held and the running update's own cleanup step is responsible.
func (e *Engine) handleEmergency(rec sizemon.Record) {
	gen, ok := e.locks.tryAcquire(rec.ContainerID, PriorityHigh)
	if !ok {
		return
	}
	defer e.locks.release(rec.ContainerID, gen)
	e.cleanupContainer(rec)
}

// recordHistory appends to the container's bounded update-history ring.
func (e *Engine) recordHistory(id string, rec UpdateRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := append(e.history[id], rec)
	if len(h) > e.cfg.HistoryCapacity {
		h = h[len(h)-e.cfg.HistoryCapacity:]
	}
	e.history[id] = h
}

// SetGlobalUpdateLock sets or clears the process-wide update lock. While
// active, only critical-priority updates run. The lock is deliberately
// coarse: crisis mitigation, not routine coordination.
func (e *Engine) SetGlobalUpdateLock(active bool, reason string) {
	e.mu.Lock()
	e.globalLock = active
	if active {
		e.globalReason = reason
	} else {
		e.globalReason = ""
	}
	e.mu.Unlock()

	if active {
		e.logger.Warn("global update lock set", "reason", reason)
	} else {
		e.logger.Info("global update lock cleared")
	}
}

// GlobalLock reports the global lock flag and its reason.
func (e *Engine) GlobalLock() (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.globalLock, e.globalReason
}

// EmergencyStop engages the global lock and clears every piece of transient
// state: pending throttles, waiter queues, held locks and saved viewport
// positions. An update function already mid-execution is not aborted - it
// finishes, but its lock release is a stale no-op and nothing queued after
// it survives.
func (e *Engine) EmergencyStop(reason string) {
	if reason == "" {
		reason = "emergency stop"
	}
	e.SetGlobalUpdateLock(true, reason)

	e.throttler.CancelAll()
	e.locks.clearAll()
	e.preserver.ClearAll()
	e.snapshots.ClearSnapshots()

	e.errorLog.Append(errlog.TypeGlobalLockActive, "emergency stop engaged",
		map[string]string{"reason": reason})
	e.logger.Warn("emergency stop engaged", "reason", reason)
}

// ResumeOperations clears the global lock after an emergency stop.
func (e *Engine) ResumeOperations() {
	e.SetGlobalUpdateLock(false, "")
	e.logger.Info("operations resumed")
}

// SetContainerThrottleDelay overrides one container's throttle window.
func (e *Engine) SetContainerThrottleDelay(id string, d time.Duration) {
	e.throttler.SetInterval(id, d)
}

// SetContainerLimit overrides one container's element limit.
func (e *Engine) SetContainerLimit(id string, limit int) {
	e.monitor.SetLimit(id, limit)
}

// StartMonitoring begins background size sweeps that proactively clean up
// emergency-band containers.
func (e *Engine) StartMonitoring(interval time.Duration) {
	e.monitor.StartMonitoring(interval)
}

// StopMonitoring halts background size sweeps.
func (e *Engine) StopMonitoring() {
	e.monitor.StopMonitoring()
}

// ErrorLog returns retained error entries, optionally filtered by type.
func (e *Engine) ErrorLog(typeFilter string) []errlog.Entry {
	return e.errorLog.Entries(typeFilter)
}

// ClearErrorLog discards retained error entries. Durable sink copies remain.
func (e *Engine) ClearErrorLog() {
	e.errorLog.Clear()
}

// ErrorRecoveryStatus reports per-container recovery standing.
func (e *Engine) ErrorRecoveryStatus() []snapshot.RecoveryStatus {
	return e.snapshots.Status()
}

// SetRollbackEnabled toggles rollback globally.
func (e *Engine) SetRollbackEnabled(enabled bool) {
	e.snapshots.SetRollbackEnabled(enabled)
}

// SetCorruptionDetection toggles corruption inspection globally.
func (e *Engine) SetCorruptionDetection(enabled bool) {
	e.detector.SetEnabled(enabled)
}
