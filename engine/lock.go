package engine

import (
	"sync"
	"time"
)

// Priority governs lock preemption and throttle bypass.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
	PriorityCritical
)

// String returns the priority's wire name.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "normal"
	}
}

// lockRecord describes the current holder of a container's update lock.
//
// gen distinguishes holders across preemption: when a critical request
// seizes a lock, the previous holder keeps running but its generation is
// stale, so its release can no longer dispatch the queue.
type lockRecord struct {
	priority   Priority
	acquiredAt time.Time
	gen        uint64
}

// grant is delivered to a queued waiter when the lock becomes theirs.
// ok=false means the queue was cleared (emergency stop) and the waiter must
// reject.
type grant struct {
	gen uint64
	ok  bool
}

type waiter struct {
	priority Priority
	ready    chan grant // buffered, exactly one send
}

// lockTable owns per-container update locks and their FIFO waiter queues.
//
// Acquisition rules: a request takes a free lock, or seizes one held at a
// strictly lower priority. A request that cannot acquire is queued - FIFO
// for same-priority traffic, with critical requests inserted ahead of all
// non-critical waiters (but behind earlier criticals, so criticals never
// reorder among themselves). Release dispatches the head waiter
// synchronously under the table lock; the next acquisition opportunity is
// exactly the moment the queue drains one entry.
//
// Preemption trades exclusivity for latency: a seized holder keeps running
// to completion, so once the seizing critical releases, the next dispatched
// waiter can overlap with the still-running preempted holder on the same
// container. Update functions on containers that see critical traffic must
// tolerate that window.
//
// Thread-safety: all methods are safe for concurrent use.
type lockTable struct {
	mu      sync.Mutex
	locks   map[string]*lockRecord
	queues  map[string][]*waiter
	nextGen uint64
	now     func() time.Time
}

func newLockTable() *lockTable {
	return &lockTable{
		locks:  make(map[string]*lockRecord),
		queues: make(map[string][]*waiter),
		now:    time.Now,
	}
}

// tryAcquire attempts to take the container's lock. Returns the holder
// generation on success.
func (t *lockTable) tryAcquire(id string, p Priority) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tryAcquireLocked(id, p)
}

// tryAcquireLocked implements acquisition. Callers hold t.mu.
func (t *lockTable) tryAcquireLocked(id string, p Priority) (uint64, bool) {
	held, ok := t.locks[id]
	if ok && held.priority >= p {
		return 0, false
	}
	// Free, or held at strictly lower priority: seize. The preempted
	// holder's generation goes stale; it finishes but cannot dispatch.
	t.nextGen++
	t.locks[id] = &lockRecord{priority: p, acquiredAt: t.now(), gen: t.nextGen}
	return t.nextGen, true
}

// enqueue parks a waiter for the container. Critical waiters are inserted
// ahead of the first non-critical entry; everyone else appends.
func (t *lockTable) enqueue(id string, p Priority) *waiter {
	w := &waiter{priority: p, ready: make(chan grant, 1)}

	t.mu.Lock()
	defer t.mu.Unlock()

	q := t.queues[id]
	if p == PriorityCritical {
		pos := 0
		for pos < len(q) && q[pos].priority == PriorityCritical {
			pos++
		}
		q = append(q, nil)
		copy(q[pos+1:], q[pos:])
		q[pos] = w
	} else {
		q = append(q, w)
	}
	t.queues[id] = q
	return w
}

// removeWaiter drops a waiter that gave up (context cancellation) before
// being granted. Returns false when the waiter was already dispatched.
func (t *lockTable) removeWaiter(id string, w *waiter) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	q := t.queues[id]
	for i, cand := range q {
		if cand == w {
			t.queues[id] = append(q[:i], q[i+1:]...)
			return true
		}
	}
	return false
}

// release gives up the lock if gen still identifies the current holder, and
// dispatches the head of the queue. A stale generation (the holder was
// preempted) is a no-op.
func (t *lockTable) release(id string, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	held, ok := t.locks[id]
	if !ok || held.gen != gen {
		return
	}
	delete(t.locks, id)

	q := t.queues[id]
	if len(q) == 0 {
		return
	}
	head := q[0]
	q[0] = nil
	t.queues[id] = q[1:]

	newGen, ok := t.tryAcquireLocked(id, head.priority)
	if !ok {
		// Unreachable: we just freed the lock and hold the table mutex.
		head.ready <- grant{}
		return
	}
	head.ready <- grant{gen: newGen, ok: true}
}

// holder reports the container's current lock, if any.
func (t *lockTable) holder(id string) (lockRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if held, ok := t.locks[id]; ok {
		return *held, true
	}
	return lockRecord{}, false
}

// queueLen reports the container's waiter count.
func (t *lockTable) queueLen(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queues[id])
}

// counts returns (held locks, total queued waiters).
func (t *lockTable) counts() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	queued := 0
	for _, q := range t.queues {
		queued += len(q)
	}
	return len(t.locks), queued
}

// clearAll drops every lock and rejects every queued waiter. Used by
// emergency stop. In-flight holders are not interrupted; their releases
// become stale no-ops.
func (t *lockTable) clearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, q := range t.queues {
		for _, w := range q {
			w.ready <- grant{ok: false}
		}
		delete(t.queues, id)
	}
	for id := range t.locks {
		delete(t.locks, id)
	}
}
