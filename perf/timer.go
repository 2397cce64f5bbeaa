// Package perf provides advisory instrumentation for the update engine:
// operation timing with trend classification, memory-pressure sampling, and
// update-frequency benchmarking. Nothing in this package ever blocks or
// alters an engine decision; it only annotates operations and feeds health
// checks.
package perf

import (
	"sync"
	"time"
)

// Trend classifies how an operation's duration is developing over its
// retained window.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
)

// minTrendSamples is how many durations a window needs before the slope is
// considered meaningful.
const minTrendSamples = 5

// trendTolerance is the normalized slope magnitude below which the trend
// counts as stable.
const trendTolerance = 0.05

// OpStats summarizes one operation id's retained window.
type OpStats struct {
	Count   int           `json:"count"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Average time.Duration `json:"average"`
	Trend   Trend         `json:"trend"`
}

type opWindow struct {
	durations []time.Duration // rolling, newest last
}

// Timer measures named operations and retains a rolling window of durations
// per operation id.
//
// Thread-safety: safe for concurrent use.
type Timer struct {
	mu     sync.Mutex
	window int
	ops    map[string]*opWindow
	active map[string]time.Time
	now    func() time.Time
}

// NewTimer creates a Timer retaining up to window durations per operation.
func NewTimer(window int) *Timer {
	if window < 1 {
		window = 1
	}
	return &Timer{
		window: window,
		ops:    make(map[string]*opWindow),
		active: make(map[string]time.Time),
		now:    time.Now,
	}
}

// SetClock overrides the time source (tests).
func (t *Timer) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Start marks the beginning of an operation. A second Start for the same id
// before End restarts the measurement.
func (t *Timer) Start(opID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[opID] = t.now()
}

// End completes an operation and records its duration. Returns false when no
// matching Start exists.
func (t *Timer) End(opID string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	started, ok := t.active[opID]
	if !ok {
		return 0, false
	}
	delete(t.active, opID)

	d := t.now().Sub(started)
	w, ok := t.ops[opID]
	if !ok {
		w = &opWindow{}
		t.ops[opID] = w
	}
	w.durations = append(w.durations, d)
	if len(w.durations) > t.window {
		w.durations = w.durations[len(w.durations)-t.window:]
	}
	return d, true
}

// Stats returns the retained window's summary for one operation id.
func (t *Timer) Stats(opID string) (OpStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.ops[opID]
	if !ok || len(w.durations) == 0 {
		return OpStats{}, false
	}
	return summarize(w.durations), true
}

// AllStats returns summaries for every operation id with data.
func (t *Timer) AllStats() map[string]OpStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]OpStats, len(t.ops))
	for id, w := range t.ops {
		if len(w.durations) > 0 {
			out[id] = summarize(w.durations)
		}
	}
	return out
}

func summarize(ds []time.Duration) OpStats {
	min, max := ds[0], ds[0]
	var sum time.Duration
	for _, d := range ds {
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
		sum += d
	}
	avg := sum / time.Duration(len(ds))
	return OpStats{
		Count:   len(ds),
		Min:     min,
		Max:     max,
		Average: avg,
		Trend:   classifyTrend(ds, avg),
	}
}

// classifyTrend fits a least-squares line through the window and compares
// the per-sample slope against the average duration.
func classifyTrend(ds []time.Duration, avg time.Duration) Trend {
	if len(ds) < minTrendSamples || avg <= 0 {
		return TrendStable
	}

	n := float64(len(ds))
	var sumX, sumY, sumXY, sumXX float64
	for i, d := range ds {
		x := float64(i)
		y := float64(d)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return TrendStable
	}
	slope := (n*sumXY - sumX*sumY) / denom

	normalized := slope / float64(avg)
	switch {
	case normalized > trendTolerance:
		return TrendDegrading
	case normalized < -trendTolerance:
		return TrendImproving
	default:
		return TrendStable
	}
}
