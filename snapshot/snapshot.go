// Package snapshot captures point-in-time copies of container content and
// restores them when an update goes wrong.
//
// At most one live snapshot is retained per container - the newest always
// overwrites. Payloads are zstd-compressed; snapshots of busy containers
// would otherwise hold full serialized trees in memory for every container
// at once.
//
// Rollback escalates: once a container's attempt budget is exhausted the
// next failure triggers recreation (content replaced with a diagnostic
// placeholder, snapshot and budget cleared) instead of another restore.
package snapshot

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/panelguard/panelguard/errlog"
	"github.com/panelguard/panelguard/ids"
	"github.com/panelguard/panelguard/probe"
)

// Snapshot is a compressed point-in-time copy of one container's content.
type Snapshot struct {
	SnapshotID   string
	ContainerID  string
	Payload      []byte // zstd-compressed serialized content
	ElementCount int
	TakenAt      time.Time
}

// RecoveryStatus summarizes one container's recovery standing, for the
// engine's status surface.
type RecoveryStatus struct {
	ContainerID      string `json:"container_id"`
	HasSnapshot      bool   `json:"has_snapshot"`
	RollbackAttempts int    `json:"rollback_attempts"`
	MaxAttempts      int    `json:"max_attempts"`
}

// Store owns snapshots and rollback budgets.
//
// Thread-safety: all methods are safe for concurrent use. Content mutation
// during Rollback/Recreate assumes the caller holds the container's update
// lock, exactly as update functions do.
type Store struct {
	mu          sync.Mutex
	host        probe.Host
	snaps       map[string]*Snapshot
	budgets     map[string]*Budget
	maxAttempts int
	enabled     bool

	gen    ids.Generator
	log    *errlog.Log
	now    func() time.Time
	logger *slog.Logger

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Option configures a Store.
type Option func(*Store)

// WithGenerator overrides the snapshot id generator (tests).
func WithGenerator(g ids.Generator) Option {
	return func(s *Store) { s.gen = g }
}

// WithClock overrides the timestamp source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger overrides the slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a Store. maxAttempts is the per-container rollback budget;
// log receives the error-code entries recovery produces.
func New(host probe.Host, maxAttempts int, log *errlog.Log, opts ...Option) *Store {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		// Only reachable with invalid encoder options; we pass none.
		panic(fmt.Sprintf("snapshot: init zstd encoder: %v", err))
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("snapshot: init zstd decoder: %v", err))
	}

	s := &Store{
		host:        host,
		snaps:       make(map[string]*Snapshot),
		budgets:     make(map[string]*Budget),
		maxAttempts: maxAttempts,
		enabled:     true,
		gen:         ids.UUIDv7{},
		log:         log,
		now:         time.Now,
		logger:      slog.Default(),
		enc:         enc,
		dec:         dec,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetRollbackEnabled toggles rollback globally.
func (s *Store) SetRollbackEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// RollbackEnabled reports the global switch.
func (s *Store) RollbackEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Take captures the container's current content, overwriting any previous
// snapshot for it. Returns nil (with a logged SNAPSHOT_FAILED entry) when
// the container does not exist or cannot be serialized.
func (s *Store) Take(id string) *Snapshot {
	payload, err := s.host.Serialize(id)
	if err != nil {
		s.log.Append(errlog.TypeSnapshotFailed, fmt.Sprintf("serialize %q: %v", id, err),
			map[string]string{"container": id})
		return nil
	}
	count, err := s.host.ElementCount(id)
	if err != nil {
		s.log.Append(errlog.TypeSnapshotFailed, fmt.Sprintf("count %q: %v", id, err),
			map[string]string{"container": id})
		return nil
	}

	snap := &Snapshot{
		SnapshotID:   s.gen.Generate(),
		ContainerID:  id,
		Payload:      s.enc.EncodeAll(payload, nil),
		ElementCount: count,
		TakenAt:      s.now(),
	}

	s.mu.Lock()
	s.snaps[id] = snap
	s.mu.Unlock()

	s.logger.Debug("snapshot taken",
		"container", id,
		"snapshot_id", snap.SnapshotID,
		"element_count", count,
		"compressed_bytes", len(snap.Payload),
	)
	return snap
}

// Rollback restores the container's last snapshot. Returns true when a
// recovery action happened - either the restore itself, or the recreation it
// escalated to after the attempt budget ran out.
func (s *Store) Rollback(id, reason string) bool {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		s.log.Append(errlog.TypeRollbackDisabled, fmt.Sprintf("rollback of %q requested while disabled", id),
			map[string]string{"container": id, "reason": reason})
		return false
	}
	snap, ok := s.snaps[id]
	if !ok {
		s.mu.Unlock()
		s.log.Append(errlog.TypeRollbackNoSnapshot, fmt.Sprintf("no snapshot for %q", id),
			map[string]string{"container": id, "reason": reason})
		return false
	}
	budget := s.budgetLocked(id)
	if budget.Exhausted() {
		s.mu.Unlock()
		s.log.Append(errlog.TypeRollbackMaxAttempts,
			fmt.Sprintf("rollback budget for %q exhausted after %d attempts, recreating", id, budget.Current()),
			map[string]string{"container": id, "reason": reason})
		return s.Recreate(id, reason)
	}
	s.mu.Unlock()

	raw, err := s.dec.DecodeAll(snap.Payload, nil)
	if err != nil {
		s.log.Append(errlog.TypeSnapshotFailed, fmt.Sprintf("decompress snapshot %s: %v", snap.SnapshotID, err),
			map[string]string{"container": id})
		return false
	}
	if err := s.host.Restore(id, raw); err != nil {
		s.log.Append(errlog.TypeSnapshotFailed, fmt.Sprintf("restore %q: %v", id, err),
			map[string]string{"container": id, "snapshot_id": snap.SnapshotID})
		return false
	}

	s.mu.Lock()
	budget.Note()
	attempts := budget.Current()
	s.mu.Unlock()

	s.logger.Info("container rolled back",
		"container", id,
		"snapshot_id", snap.SnapshotID,
		"reason", reason,
		"attempts", attempts,
	)
	return true
}

// Recreate replaces the container's content with a diagnostic placeholder
// and gives it a fresh start: snapshot and rollback budget are cleared.
func (s *Store) Recreate(id, reason string) bool {
	if !s.host.Exists(id) {
		s.log.Append(errlog.TypeRecreationContainerMissing, fmt.Sprintf("cannot recreate missing container %q", id),
			map[string]string{"container": id, "reason": reason})
		return false
	}

	placeholder := fmt.Sprintf("Content could not be recovered and was reset (%s) at %s",
		reason, s.now().UTC().Format(time.RFC3339))
	if err := s.host.Replace(id, placeholder); err != nil {
		s.log.Append(errlog.TypeRecreationContainerMissing, fmt.Sprintf("recreate %q: %v", id, err),
			map[string]string{"container": id, "reason": reason})
		return false
	}

	s.mu.Lock()
	delete(s.snaps, id)
	delete(s.budgets, id)
	s.mu.Unlock()

	s.logger.Warn("container recreated",
		"container", id,
		"reason", reason,
	)
	return true
}

// Attempts returns the container's rollback attempts so far.
func (s *Store) Attempts(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.budgets[id]; ok {
		return b.Current()
	}
	return 0
}

// Has reports whether a live snapshot exists for the container.
func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.snaps[id]
	return ok
}

// Get returns the container's live snapshot, if any.
func (s *Store) Get(id string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.snaps[id]; ok {
		return *snap, true
	}
	return Snapshot{}, false
}

// Status reports recovery standing for every container with recovery state.
func (s *Store) Status() []RecoveryStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var out []RecoveryStatus
	add := func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		st := RecoveryStatus{ContainerID: id, MaxAttempts: s.maxAttempts}
		if _, ok := s.snaps[id]; ok {
			st.HasSnapshot = true
		}
		if b, ok := s.budgets[id]; ok {
			st.RollbackAttempts = b.Current()
		}
		out = append(out, st)
	}
	for id := range s.snaps {
		add(id)
	}
	for id := range s.budgets {
		add(id)
	}
	return out
}

// Clear drops the snapshot and budget for one container.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, id)
	delete(s.budgets, id)
}

// ClearSnapshots drops all snapshots but keeps budgets. Used by emergency
// stop: budgets persist for the container's lifetime unless recreation
// resets them.
func (s *Store) ClearSnapshots() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = make(map[string]*Snapshot)
}

// budgetLocked returns the container's budget, creating it if needed.
// Callers hold s.mu.
func (s *Store) budgetLocked(id string) *Budget {
	b, ok := s.budgets[id]
	if !ok {
		b = NewBudget(s.maxAttempts)
		s.budgets[id] = b
	}
	return b
}
