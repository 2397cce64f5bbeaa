package engine

import (
	"time"

	"github.com/panelguard/panelguard/sizemon"
)

// UpdateOptions tune a single UpdateContainer call. The zero value is the
// default behavior: normal priority, scroll preservation and post-update
// cleanup on, rollback off, throttling on.
type UpdateOptions struct {
	// Priority governs lock preemption; critical additionally bypasses the
	// throttler and the global update lock.
	Priority Priority

	// DisableScrollPreserve skips saving/restoring the viewport position.
	DisableScrollPreserve bool

	// DisableCleanup skips the post-update size check and cleanup.
	DisableCleanup bool

	// EnableRollback snapshots the container before the update and rolls
	// back when the update fails or leaves the container corrupted.
	EnableRollback bool

	// BypassThrottle skips the throttle gate without raising priority.
	BypassThrottle bool

	// RetryAttempts re-invokes a failing update function up to this many
	// extra times before the failure enters the recovery path. Retries run
	// back to back while the lock is held; the snapshot, if any, is the one
	// taken before the first attempt.
	RetryAttempts int

	// Timeout bounds the whole call including queue and throttle waits.
	// Zero means no per-call timeout.
	Timeout time.Duration
}

// Outcome classifies how an executed update ended.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeFailed     Outcome = "failed"
	OutcomeRolledBack Outcome = "rolled_back"
	OutcomeRecreated  Outcome = "recreated"
)

// Result describes a successfully completed update. Recovery paths return a
// nil Result instead - the caller's payload did not survive.
type Result struct {
	ContainerID      string
	Seq              int64
	Duration         time.Duration
	Band             sizemon.Band // band measured right after the update, before cleanup
	CleanupPerformed bool

	// CorruptionReasons is non-empty when the post-update inspection flagged
	// the container but no recovery ran (rollback disabled or no snapshot,
	// severity below the recreation bar). The content is left as the update
	// wrote it; callers decide what the detection is worth.
	CorruptionReasons []string
}

// UpdateRecord is one entry of a container's bounded update history.
type UpdateRecord struct {
	Seq         int64         `json:"seq"`
	Outcome     Outcome       `json:"outcome"`
	Duration    time.Duration `json:"duration"`
	Band        sizemon.Band  `json:"band,omitempty"`
	CompletedAt time.Time     `json:"completed_at"`
}
