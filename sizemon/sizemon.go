// Package sizemon classifies container content size into health bands and
// can sweep every known container for dashboards and proactive cleanup.
package sizemon

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panelguard/panelguard/probe"
)

// Band is a size-health classification derived from element count versus the
// container's configured limit.
type Band string

const (
	BandNormal    Band = "normal"
	BandWarning   Band = "warning"
	BandCritical  Band = "critical"
	BandEmergency Band = "emergency"
)

// Record is the result of measuring one container. Derived on every call,
// never cached: the content may change immediately after the read.
type Record struct {
	ContainerID    string  `json:"container_id"`
	ElementCount   int     `json:"element_count"`
	PercentOfLimit float64 `json:"percent_of_limit"`
	Band           Band    `json:"band"`
}

// Rollup aggregates a full sweep.
type Rollup struct {
	TotalContainers int          `json:"total_containers"`
	TotalNodes      int          `json:"total_nodes"`
	PerBand         map[Band]int `json:"per_band"`
	Records         []Record     `json:"records"`
}

// Thresholds are the band cutoffs as percentages of the limit.
type Thresholds struct {
	WarningPercent   float64
	CriticalPercent  float64
	EmergencyPercent float64
}

// EmergencyFunc is invoked by the background sweep for each container found
// in the emergency band, so the engine can clean up proactively even when no
// update is pending.
type EmergencyFunc func(rec Record)

// Monitor measures containers through a probe.Host.
//
// Thread-safety: all methods are safe for concurrent use. Measurements read
// the host without locking containers; a result is only valid for the
// instant of the read.
type Monitor struct {
	mu           sync.Mutex
	host         probe.Host
	defaultLimit int
	limits       map[string]int
	thresholds   Thresholds
	onEmergency  EmergencyFunc
	stop         chan struct{}
	logger       *slog.Logger
}

// New creates a Monitor.
func New(host probe.Host, defaultLimit int, thresholds Thresholds, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		host:         host,
		defaultLimit: defaultLimit,
		limits:       make(map[string]int),
		thresholds:   thresholds,
		logger:       logger,
	}
}

// SetLimit overrides the element limit for one container.
func (m *Monitor) SetLimit(id string, limit int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		delete(m.limits, id)
		return
	}
	m.limits[id] = limit
}

// Limit returns the effective element limit for a container.
func (m *Monitor) Limit(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.limits[id]; ok {
		return l
	}
	return m.defaultLimit
}

// OnEmergency installs the callback invoked by background sweeps for
// emergency-band containers.
func (m *Monitor) OnEmergency(fn EmergencyFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEmergency = fn
}

// Measure traverses the container's content tree once and classifies it.
func (m *Monitor) Measure(id string) (Record, error) {
	count, err := m.host.ElementCount(id)
	if err != nil {
		return Record{}, fmt.Errorf("measure %q: %w", id, err)
	}
	limit := m.Limit(id)
	pct := float64(count) / float64(limit) * 100

	return Record{
		ContainerID:    id,
		ElementCount:   count,
		PercentOfLimit: pct,
		Band:           m.classify(pct),
	}, nil
}

func (m *Monitor) classify(pct float64) Band {
	switch {
	case pct < m.thresholds.WarningPercent:
		return BandNormal
	case pct < m.thresholds.CriticalPercent:
		return BandWarning
	case pct < m.thresholds.EmergencyPercent:
		return BandCritical
	default:
		return BandEmergency
	}
}

// SweepAll measures every container the host knows about and aggregates the
// results.
func (m *Monitor) SweepAll() Rollup {
	rollup := Rollup{PerBand: map[Band]int{}}
	for _, id := range m.host.List() {
		rec, err := m.Measure(id)
		if err != nil {
			m.logger.Warn("sweep measurement failed", "container", id, "error", err)
			continue
		}
		rollup.TotalContainers++
		rollup.TotalNodes += rec.ElementCount
		rollup.PerBand[rec.Band]++
		rollup.Records = append(rollup.Records, rec)
	}
	return rollup
}

// StartMonitoring begins a background sweep on a fixed interval. Its sole
// side effect is surfacing emergency-band containers to the OnEmergency
// callback. Calling it while a sweep is already running restarts the loop
// with the new interval.
func (m *Monitor) StartMonitoring(interval time.Duration) {
	m.mu.Lock()
	if m.stop != nil {
		close(m.stop)
	}
	stop := make(chan struct{})
	m.stop = stop
	m.mu.Unlock()

	m.logger.Info("size monitoring started", "interval", interval)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.sweepForEmergencies()
			}
		}
	}()
}

// StopMonitoring halts the background sweep. Idempotent.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
		m.logger.Info("size monitoring stopped")
	}
}

func (m *Monitor) sweepForEmergencies() {
	m.mu.Lock()
	fn := m.onEmergency
	m.mu.Unlock()

	for _, rec := range m.SweepAll().Records {
		if rec.Band != BandEmergency {
			continue
		}
		m.logger.Warn("emergency-band container found by sweep",
			"container", rec.ContainerID,
			"element_count", rec.ElementCount,
			"percent_of_limit", rec.PercentOfLimit,
		)
		if fn != nil {
			fn(rec)
		}
	}
}
