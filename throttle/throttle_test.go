package throttle

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runTask(payload string, executed *[]string, mu *sync.Mutex) Task {
	return func(ctx context.Context) (any, error) {
		mu.Lock()
		*executed = append(*executed, payload)
		mu.Unlock()
		return payload, nil
	}
}

func TestSchedule_FirstCallRunsImmediately(t *testing.T) {
	th := New(time.Hour, nil)

	var ran atomic.Bool
	val, err := th.Schedule(context.Background(), "panel", func(ctx context.Context) (any, error) {
		ran.Store(true)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.True(t, ran.Load())
}

func TestSchedule_CoalescesBurstToLatestPayload(t *testing.T) {
	th := New(100*time.Millisecond, nil)
	var (
		mu       sync.Mutex
		executed []string
	)

	// First call runs immediately.
	_, err := th.Schedule(context.Background(), "panel", runTask("A", &executed, &mu))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errB := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := th.Schedule(context.Background(), "panel", runTask("B", &executed, &mu))
		errB <- err
	}()

	// Give B time to park as pending before C supersedes it.
	time.Sleep(20 * time.Millisecond)

	valC, errC := th.Schedule(context.Background(), "panel", runTask("C", &executed, &mu))
	wg.Wait()

	require.NoError(t, errC)
	assert.Equal(t, "C", valC)
	assert.ErrorIs(t, <-errB, ErrSuperseded)

	mu.Lock()
	defer mu.Unlock()
	// Exactly two executions: the immediate A and the coalesced C.
	assert.Equal(t, []string{"A", "C"}, executed)
}

func TestSchedule_SecondWindowRunsAgain(t *testing.T) {
	th := New(30*time.Millisecond, nil)
	var count atomic.Int64
	task := func(ctx context.Context) (any, error) {
		count.Add(1)
		return nil, nil
	}

	_, err := th.Schedule(context.Background(), "panel", task)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	_, err = th.Schedule(context.Background(), "panel", task)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count.Load())
}

func TestCancel_DiscardsPendingWithoutRunning(t *testing.T) {
	th := New(time.Hour, nil)
	var ran atomic.Bool

	// Consume the open window.
	_, err := th.Schedule(context.Background(), "panel", func(ctx context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)

	got := make(chan error, 1)
	go func() {
		_, err := th.Schedule(context.Background(), "panel", func(ctx context.Context) (any, error) {
			ran.Store(true)
			return nil, nil
		})
		got <- err
	}()

	// Wait for the pending slot to be occupied.
	require.Eventually(t, func() bool {
		return th.AllStats()["panel"].PendingArmed
	}, time.Second, 5*time.Millisecond)

	th.Cancel("panel")
	assert.ErrorIs(t, <-got, ErrCanceled)
	assert.False(t, ran.Load())
}

func TestFlushAll_RunsPendingImmediately(t *testing.T) {
	th := New(time.Hour, nil)
	var ran atomic.Bool

	_, err := th.Schedule(context.Background(), "panel", func(ctx context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)

	got := make(chan error, 1)
	go func() {
		_, err := th.Schedule(context.Background(), "panel", func(ctx context.Context) (any, error) {
			ran.Store(true)
			return "flushed", nil
		})
		got <- err
	}()

	require.Eventually(t, func() bool {
		return th.AllStats()["panel"].PendingArmed
	}, time.Second, 5*time.Millisecond)

	th.FlushAll()
	require.NoError(t, <-got)
	assert.True(t, ran.Load())
}

func TestSchedule_IndependentContainers(t *testing.T) {
	th := New(time.Hour, nil)
	var count atomic.Int64
	task := func(ctx context.Context) (any, error) {
		count.Add(1)
		return nil, nil
	}

	_, err := th.Schedule(context.Background(), "a", task)
	require.NoError(t, err)
	_, err = th.Schedule(context.Background(), "b", task)
	require.NoError(t, err)

	// Each container has its own window.
	assert.Equal(t, int64(2), count.Load())
}

func TestSetInterval_Reported(t *testing.T) {
	th := New(time.Second, nil)
	th.SetInterval("panel", 200*time.Millisecond)
	assert.Equal(t, 200*time.Millisecond, th.Interval("panel"))
	assert.Equal(t, time.Second, th.Interval("other"))
}

func TestAllStats_CountsRunsAndCoalesces(t *testing.T) {
	th := New(time.Hour, nil)
	_, err := th.Schedule(context.Background(), "panel", func(ctx context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)

	stats := th.AllStats()
	require.Contains(t, stats, "panel")
	assert.Equal(t, int64(1), stats["panel"].Runs)
	assert.False(t, stats["panel"].LastRun.IsZero())
}
