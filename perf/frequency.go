package perf

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Frequency thresholds for recommendations. Empirically tuned.
const (
	// highRatePerMinute is the update rate above which a container counts as
	// hot.
	highRatePerMinute = 30.0

	// slowAverage is the average update duration above which a hot container
	// earns a recommendation.
	slowAverage = 50 * time.Millisecond

	// irregularityCutoff is the interval coefficient of variation above which
	// arrivals count as bursty.
	irregularityCutoff = 1.0
)

// FreqStats summarizes recorded update arrivals for one container.
type FreqStats struct {
	Count            int     `json:"count"`
	RatePerMinute    float64 `json:"rate_per_minute"`
	IntervalCV       float64 `json:"interval_cv"` // coefficient of variation; higher = burstier
	RegularIntervals bool    `json:"regular_intervals"`
}

// FrequencyBenchmark records update timestamps per container and derives
// rates, interval regularity, and tuning recommendations.
//
// Thread-safety: safe for concurrent use.
type FrequencyBenchmark struct {
	mu      sync.Mutex
	window  int
	arrival map[string][]time.Time
	now     func() time.Time
}

// NewFrequencyBenchmark creates a benchmark retaining up to window
// timestamps per container.
func NewFrequencyBenchmark(window int) *FrequencyBenchmark {
	if window < 2 {
		window = 2
	}
	return &FrequencyBenchmark{
		window:  window,
		arrival: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// SetClock overrides the time source (tests).
func (b *FrequencyBenchmark) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Record notes one update against the container.
func (b *FrequencyBenchmark) Record(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts := append(b.arrival[id], b.now())
	if len(ts) > b.window {
		ts = ts[len(ts)-b.window:]
	}
	b.arrival[id] = ts
}

// Stats derives rate and regularity for one container. Needs at least two
// recorded updates.
func (b *FrequencyBenchmark) Stats(id string) (FreqStats, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ts := b.arrival[id]
	if len(ts) < 2 {
		return FreqStats{Count: len(ts)}, false
	}

	span := ts[len(ts)-1].Sub(ts[0])
	if span <= 0 {
		return FreqStats{Count: len(ts)}, false
	}

	intervals := make([]float64, len(ts)-1)
	var mean float64
	for i := 1; i < len(ts); i++ {
		intervals[i-1] = ts[i].Sub(ts[i-1]).Seconds()
		mean += intervals[i-1]
	}
	mean /= float64(len(intervals))

	var variance float64
	for _, iv := range intervals {
		variance += (iv - mean) * (iv - mean)
	}
	variance /= float64(len(intervals))
	cv := 0.0
	if mean > 0 {
		cv = math.Sqrt(variance) / mean
	}

	return FreqStats{
		Count:            len(ts),
		RatePerMinute:    float64(len(ts)-1) / span.Minutes(),
		IntervalCV:       cv,
		RegularIntervals: cv <= irregularityCutoff,
	}, true
}

// Recommendations inspects a container's rate together with its average
// update duration and suggests tuning actions. Empty when nothing stands out.
func (b *FrequencyBenchmark) Recommendations(id string, avgDuration time.Duration) []string {
	stats, ok := b.Stats(id)
	if !ok {
		return nil
	}

	var recs []string
	if stats.RatePerMinute > highRatePerMinute && avgDuration > slowAverage {
		recs = append(recs, fmt.Sprintf(
			"container %q updates %.0f times/min with %v average duration: reduce update frequency or batch updates",
			id, stats.RatePerMinute, avgDuration.Round(time.Millisecond)))
	}
	if !stats.RegularIntervals && stats.RatePerMinute > highRatePerMinute {
		recs = append(recs, fmt.Sprintf(
			"container %q receives bursty updates: increase its throttle interval to coalesce bursts", id))
	}
	return recs
}

// Reset clears recorded arrivals for all containers.
func (b *FrequencyBenchmark) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.arrival = make(map[string][]time.Time)
}
