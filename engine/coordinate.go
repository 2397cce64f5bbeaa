package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/panelguard/panelguard/errlog"
)

// BatchEntry is one update in a coordinated batch.
type BatchEntry struct {
	ContainerID string
	Update      UpdateFunc
	Data        any
	Options     UpdateOptions
}

// BatchOptions controls how a batch is driven.
type BatchOptions struct {
	// Sequential runs entries strictly in order, each waiting for the
	// previous one to finish. When false, entries run concurrently.
	Sequential bool

	// MaxConcurrent caps concurrent entries. Zero means the configured
	// default. Ignored when Sequential is set.
	MaxConcurrent int

	// Priority, when non-normal, overrides every entry's priority.
	Priority Priority

	// Timeout bounds how long CoordinateUpdates waits for the batch to
	// settle. When it fires the call rejects with a coordination-timeout
	// error. Entries already executing are not aborted; they finish in the
	// background and their results are discarded. Entries that have not
	// started are abandoned. Zero means the configured default.
	Timeout time.Duration
}

// BatchResult pairs one entry with its outcome.
type BatchResult struct {
	ContainerID string
	Result      *Result
	Err         error
}

// CoordinateUpdates runs a batch of updates against multiple containers.
//
// The returned slice always has one element per entry, in entry order. The
// error is non-nil only when the batch did not settle within the timeout;
// per-entry failures live in their BatchResult and do not stop the rest of
// the batch. On timeout, entries still in flight are not aborted (an abort
// could leave a half-applied update behind); they complete in the background
// and their results are discarded, while entries that never started are
// abandoned. Both kinds carry a coordination-timeout error in their
// BatchResult.
func (e *Engine) CoordinateUpdates(ctx context.Context, entries []BatchEntry, opts BatchOptions) ([]BatchResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.cfg.CoordinationTimeout
	}
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = e.cfg.MaxConcurrent
	}

	// gateCtx bounds the wait for the batch to settle and gates starting
	// new entries. In-flight updates keep the caller's ctx so the deadline
	// never corrupts a half-applied update.
	gateCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make([]BatchResult, len(entries))
	for i, entry := range entries {
		results[i].ContainerID = entry.ContainerID
	}

	type settled struct {
		idx int
		res *Result
		err error
	}
	// Buffered so background entries finishing after a timeout never block.
	done := make(chan settled, len(entries))

	runEntry := func(i int) {
		entry := entries[i]
		o := entry.Options
		if opts.Priority != PriorityNormal {
			o.Priority = opts.Priority
		}
		res, err := e.UpdateContainer(ctx, entry.ContainerID, entry.Update, entry.Data, o)
		done <- settled{idx: i, res: res, err: err}
	}

	go func() {
		if opts.Sequential {
			for i := range entries {
				if gateCtx.Err() != nil {
					return
				}
				runEntry(i)
			}
			return
		}
		sem := semaphore.NewWeighted(int64(maxConcurrent))
		var g errgroup.Group
		for i := range entries {
			i := i
			if err := sem.Acquire(gateCtx, 1); err != nil {
				break
			}
			g.Go(func() error {
				defer sem.Release(1)
				runEntry(i)
				return nil
			})
		}
		g.Wait()
	}()

	remaining := len(entries)
	settledAt := make([]bool, len(entries))
	for remaining > 0 {
		select {
		case s := <-done:
			settledAt[s.idx] = true
			results[s.idx].Result = s.res
			results[s.idx].Err = s.err
			remaining--
		case <-gateCtx.Done():
			for i := range results {
				if !settledAt[i] {
					results[i].Err = e.batchTimeoutError(entries[i].ContainerID, timeout)
				}
			}
			return results, &EngineError{
				Code:    errlog.TypeCoordinationTimeout,
				Message: fmt.Sprintf("batch did not settle within %v", timeout),
			}
		}
	}
	return results, nil
}

func (e *Engine) batchTimeoutError(id string, timeout time.Duration) error {
	e.errorLog.Append(errlog.TypeCoordinationTimeout,
		fmt.Sprintf("batch entry for %q abandoned after %v", id, timeout),
		map[string]string{"container": id})
	return &EngineError{
		Code:        errlog.TypeCoordinationTimeout,
		Message:     fmt.Sprintf("batch timed out after %v", timeout),
		ContainerID: id,
	}
}
