// Package corrupt inspects container content after an update for symptoms
// that the update left it in a bad state.
//
// Detection is heuristic, not exact: each check looks for one failure
// signature (runaway growth, repeated-append bugs, broken nesting, nonsense
// scroll metrics). The engine treats a positive result the same way it
// treats a thrown update error - it routes the container into recovery.
package corrupt

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/panelguard/panelguard/probe"
)

// Reasons reported by Inspect. Stable strings: they end up in error-log
// context and health reports.
const (
	ReasonExcessiveSize      = "excessive_size"
	ReasonDuplicateContent   = "duplicate_content"
	ReasonMalformedStructure = "malformed_structure"
	ReasonScrollAnomalies    = "scroll_anomalies"
)

// Severity of a positive detection.
type Severity string

const (
	SeverityModerate Severity = "moderate"
	SeverityCritical Severity = "critical"
)

// Report is the result of one inspection.
type Report struct {
	Corrupted bool     `json:"corrupted"`
	Reasons   []string `json:"reasons"`
	Severity  Severity `json:"severity,omitempty"`
}

// Checks toggles individual heuristics.
type Checks struct {
	ExcessiveSize      bool
	DuplicateContent   bool
	MalformedStructure bool
	ScrollAnomalies    bool
}

// AllChecks enables every heuristic.
func AllChecks() Checks {
	return Checks{
		ExcessiveSize:      true,
		DuplicateContent:   true,
		MalformedStructure: true,
		ScrollAnomalies:    true,
	}
}

// Params are the tuning constants for the heuristics. These are empirically
// tuned values; see the config package for the shared defaults.
type Params struct {
	// ExcessiveSizeFactor: corrupted when count > factor x limit.
	ExcessiveSizeFactor float64

	// DuplicateFraction: corrupted when this fraction of sibling digests are
	// identical.
	DuplicateFraction float64

	// MinDuplicateSamples: minimum sibling count before the duplicate check
	// applies.
	MinDuplicateSamples int

	// CriticalReasonCount: severity is critical when strictly more than this
	// many reasons fire at once.
	CriticalReasonCount int
}

// LimitFunc reports the effective element limit for a container; the engine
// wires the size monitor's Limit here.
type LimitFunc func(id string) int

// Detector runs the heuristics against a probe.Host.
//
// Thread-safety: safe for concurrent use.
type Detector struct {
	mu      sync.Mutex
	host    probe.Host
	limit   LimitFunc
	checks  Checks
	params  Params
	enabled bool
	logger  *slog.Logger
}

// New creates a Detector with all checks enabled.
func New(host probe.Host, limit LimitFunc, params Params, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		host:    host,
		limit:   limit,
		checks:  AllChecks(),
		params:  params,
		enabled: true,
		logger:  logger,
	}
}

// SetEnabled toggles detection globally, for performance-sensitive call
// sites. A disabled detector reports everything clean.
func (d *Detector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Enabled reports the global switch.
func (d *Detector) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// SetChecks replaces the per-heuristic toggles.
func (d *Detector) SetChecks(c Checks) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checks = c
}

// Inspect runs the enabled heuristics against the container.
func (d *Detector) Inspect(id string) (Report, error) {
	d.mu.Lock()
	enabled := d.enabled
	checks := d.checks
	params := d.params
	d.mu.Unlock()

	if !enabled {
		return Report{}, nil
	}

	var reasons []string

	if checks.ExcessiveSize {
		count, err := d.host.ElementCount(id)
		if err != nil {
			return Report{}, fmt.Errorf("inspect %q: %w", id, err)
		}
		limit := d.limit(id)
		if limit > 0 && float64(count) > params.ExcessiveSizeFactor*float64(limit) {
			reasons = append(reasons, ReasonExcessiveSize)
		}
	}

	if checks.DuplicateContent {
		digests, err := d.host.ChildDigests(id)
		if err != nil {
			return Report{}, fmt.Errorf("inspect %q: %w", id, err)
		}
		if dup := duplicateFraction(digests); len(digests) >= params.MinDuplicateSamples && dup >= params.DuplicateFraction {
			reasons = append(reasons, ReasonDuplicateContent)
		}
	}

	if checks.MalformedStructure {
		ok, err := d.host.StructureBalanced(id)
		if err != nil {
			return Report{}, fmt.Errorf("inspect %q: %w", id, err)
		}
		if !ok {
			reasons = append(reasons, ReasonMalformedStructure)
		}
	}

	if checks.ScrollAnomalies {
		vp, err := d.host.Viewport(id)
		if err != nil {
			return Report{}, fmt.Errorf("inspect %q: %w", id, err)
		}
		if vp.Offset > vp.Extent || (vp.Extent < vp.Window && vp.Offset > 0) {
			reasons = append(reasons, ReasonScrollAnomalies)
		}
	}

	if len(reasons) == 0 {
		return Report{}, nil
	}

	severity := SeverityModerate
	if len(reasons) > params.CriticalReasonCount {
		severity = SeverityCritical
	}

	d.logger.Warn("corruption detected",
		"container", id,
		"reasons", reasons,
		"severity", severity,
	)

	return Report{Corrupted: true, Reasons: reasons, Severity: severity}, nil
}

// duplicateFraction returns the share of the most common digest among all
// digests, 0 when there are none.
func duplicateFraction(digests []string) float64 {
	if len(digests) == 0 {
		return 0
	}
	counts := make(map[string]int, len(digests))
	max := 0
	for _, d := range digests {
		counts[d]++
		if counts[d] > max {
			max = counts[d]
		}
	}
	if max < 2 {
		return 0
	}
	return float64(max) / float64(len(digests))
}
