package perf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock returns a time source advancing by the given steps on each call.
func fakeClock(start time.Time, steps ...time.Duration) func() time.Time {
	i := 0
	now := start
	return func() time.Time {
		if i < len(steps) {
			now = now.Add(steps[i])
			i++
		}
		return now
	}
}

func TestTimer_StartEnd(t *testing.T) {
	tm := NewTimer(10)
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	tm.SetClock(fakeClock(base, 0, 100*time.Millisecond))

	tm.Start("update:queries")
	d, ok := tm.End("update:queries")
	require.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, d)

	stats, ok := tm.Stats("update:queries")
	require.True(t, ok)
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, 100*time.Millisecond, stats.Average)
}

func TestTimer_EndWithoutStart(t *testing.T) {
	tm := NewTimer(10)
	_, ok := tm.End("nope")
	assert.False(t, ok)
}

func TestTimer_WindowBoundsRetention(t *testing.T) {
	tm := NewTimer(3)
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	steps := make([]time.Duration, 0, 10)
	for i := 0; i < 5; i++ {
		steps = append(steps, 0, 10*time.Millisecond)
	}
	tm.SetClock(fakeClock(base, steps...))

	for i := 0; i < 5; i++ {
		tm.Start("op")
		tm.End("op")
	}

	stats, ok := tm.Stats("op")
	require.True(t, ok)
	assert.Equal(t, 3, stats.Count)
}

func TestTimer_TrendDegrading(t *testing.T) {
	tm := NewTimer(10)
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	// Six runs with steadily growing duration.
	var steps []time.Duration
	for i := 1; i <= 6; i++ {
		steps = append(steps, 0, time.Duration(i*20)*time.Millisecond)
	}
	tm.SetClock(fakeClock(base, steps...))

	for i := 0; i < 6; i++ {
		tm.Start("op")
		tm.End("op")
	}

	stats, _ := tm.Stats("op")
	assert.Equal(t, TrendDegrading, stats.Trend)
}

func TestTimer_TrendStableForFewSamples(t *testing.T) {
	tm := NewTimer(10)
	tm.Start("op")
	tm.End("op")
	stats, _ := tm.Stats("op")
	assert.Equal(t, TrendStable, stats.Trend)
}

func TestMemoryMonitor_Levels(t *testing.T) {
	m := NewMemoryMonitor(1, 1<<62, func() int { return 42 }, nil)

	var alerted *MemSample
	m.OnAlert(func(s MemSample) { alerted = &s })

	// Any live process allocates more than one byte, so this trips warning.
	s := m.Sample()
	assert.Equal(t, MemLevelWarning, s.Level)
	assert.Equal(t, 42, s.ElementCount)
	require.NotNil(t, alerted)
	assert.Equal(t, MemLevelWarning, alerted.Level)
}

func TestMemoryMonitor_NormalNoAlert(t *testing.T) {
	m := NewMemoryMonitor(1<<62, 1<<62, nil, nil)
	fired := false
	m.OnAlert(func(MemSample) { fired = true })

	s := m.Sample()
	assert.Equal(t, MemLevelNormal, s.Level)
	assert.False(t, fired)
}

func TestFrequency_RateAndRegularity(t *testing.T) {
	b := NewFrequencyBenchmark(100)
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	// One update per second, perfectly regular.
	i := 0
	b.SetClock(func() time.Time {
		i++
		return base.Add(time.Duration(i) * time.Second)
	})
	for n := 0; n < 7; n++ {
		b.Record("panel")
	}

	stats, ok := b.Stats("panel")
	require.True(t, ok)
	assert.InDelta(t, 60.0, stats.RatePerMinute, 0.5)
	assert.True(t, stats.RegularIntervals)
}

func TestFrequency_Recommendations(t *testing.T) {
	b := NewFrequencyBenchmark(100)
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	i := 0
	b.SetClock(func() time.Time {
		i++
		return base.Add(time.Duration(i) * time.Second)
	})
	for n := 0; n < 10; n++ {
		b.Record("panel")
	}

	// 60/min with a slow average duration: should recommend batching.
	recs := b.Recommendations("panel", 200*time.Millisecond)
	require.NotEmpty(t, recs)
	assert.Contains(t, recs[0], "batch")

	// Fast updates earn no recommendation.
	assert.Empty(t, b.Recommendations("panel", time.Millisecond))
}

func TestFrequency_TooFewSamples(t *testing.T) {
	b := NewFrequencyBenchmark(100)
	b.Record("panel")
	_, ok := b.Stats("panel")
	assert.False(t, ok)
	assert.Nil(t, b.Recommendations("panel", time.Second))
}
