package engine

import (
	"github.com/panelguard/panelguard/perf"
	"github.com/panelguard/panelguard/sizemon"
	"github.com/panelguard/panelguard/throttle"
)

// ContainerStatus describes one container's coordination state.
type ContainerStatus struct {
	ContainerID string `json:"container_id"`
	Updating    bool   `json:"updating"`
	Priority    string `json:"priority,omitempty"`
	QueueLength int    `json:"queue_length"`
	HasSnapshot bool   `json:"has_snapshot"`
	Saved       bool   `json:"viewport_saved"`
}

// UpdateStatus reports one container's coordination state.
func (e *Engine) UpdateStatus(id string) ContainerStatus {
	st := ContainerStatus{
		ContainerID: id,
		QueueLength: e.locks.queueLen(id),
		HasSnapshot: e.snapshots.Has(id),
		Saved:       e.preserver.HasSaved(id),
	}
	if rec, ok := e.locks.holder(id); ok {
		st.Updating = true
		st.Priority = rec.priority.String()
	}
	return st
}

// AllUpdateStatus reports the coordination state of every container the host
// knows about, sorted by id.
func (e *Engine) AllUpdateStatus() []ContainerStatus {
	ids := e.host.List()
	out := make([]ContainerStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.UpdateStatus(id))
	}
	return out
}

// EngineStatus is the aggregate coordination picture.
type EngineStatus struct {
	ActiveUpdates int    `json:"active_updates"`
	QueuedUpdates int    `json:"queued_updates"`
	GlobalLock    bool   `json:"global_lock"`
	LockReason    string `json:"lock_reason,omitempty"`
	ErrorCount    int    `json:"error_count"`
}

// Status reports engine-wide coordination counts.
func (e *Engine) Status() EngineStatus {
	active, queued := e.locks.counts()
	locked, reason := e.GlobalLock()
	return EngineStatus{
		ActiveUpdates: active,
		QueuedUpdates: queued,
		GlobalLock:    locked,
		LockReason:    reason,
		ErrorCount:    e.errorLog.Len(),
	}
}

// SizeStats sweeps every known container and returns the aggregate size
// picture.
func (e *Engine) SizeStats() sizemon.Rollup {
	return e.monitor.SweepAll()
}

// ThrottlingStats reports per-container throttle state.
func (e *Engine) ThrottlingStats() map[string]throttle.Stats {
	return e.throttler.AllStats()
}

// UpdateHistory returns the container's retained update records, oldest
// first.
func (e *Engine) UpdateHistory(id string) []UpdateRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.history[id]
	out := make([]UpdateRecord, len(h))
	copy(out, h)
	return out
}

// TimingStats reports rolling duration statistics per operation.
func (e *Engine) TimingStats() map[string]perf.OpStats {
	return e.timer.AllStats()
}

// FrequencyStats reports arrival statistics for one container.
func (e *Engine) FrequencyStats(id string) (perf.FreqStats, bool) {
	return e.bench.Stats(id)
}

// MemorySample takes a process memory reading.
func (e *Engine) MemorySample() perf.MemSample {
	return e.memory.Sample()
}
