package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/panelguard/panelguard/errlog"
	"github.com/panelguard/panelguard/sizemon"
)

// HealthLevel is the overall verdict of a health check.
type HealthLevel string

const (
	HealthHealthy  HealthLevel = "healthy"
	HealthDegraded HealthLevel = "degraded"
	HealthCritical HealthLevel = "critical"
)

// HealthReport is a point-in-time assessment of the engine and its
// containers. It deliberately excludes volatile process metrics (heap usage,
// GC counts) so that two back-to-back checks over unchanged content produce
// identical reports.
type HealthReport struct {
	Level           HealthLevel    `json:"level"`
	TotalContainers int            `json:"total_containers"`
	TotalElements   int            `json:"total_elements"`
	PerBand         map[string]int `json:"per_band"`
	ErrorCounts     map[string]int `json:"error_counts"`
	ExhaustedBudget []string       `json:"exhausted_budgets,omitempty"`
	GlobalLock      bool           `json:"global_lock"`
	Recommendations []string       `json:"recommendations,omitempty"`
}

// PerformHealthCheck inspects every monitored container plus the engine's
// own recovery and error state, and returns an assessment with tuning
// recommendations. The check itself never mutates content: running it twice
// in a row yields the same report.
func (e *Engine) PerformHealthCheck() HealthReport {
	rollup := e.monitor.SweepAll()

	report := HealthReport{
		Level:           HealthHealthy,
		TotalContainers: rollup.TotalContainers,
		TotalElements:   rollup.TotalNodes,
		PerBand:         make(map[string]int, len(rollup.PerBand)),
		ErrorCounts:     make(map[string]int),
	}
	for band, n := range rollup.PerBand {
		report.PerBand[string(band)] = n
	}
	for _, entry := range e.errorLog.Entries("") {
		report.ErrorCounts[entry.Type]++
	}
	report.GlobalLock, _ = e.GlobalLock()

	for _, rs := range e.snapshots.Status() {
		if rs.RollbackAttempts >= rs.MaxAttempts {
			report.ExhaustedBudget = append(report.ExhaustedBudget, rs.ContainerID)
		}
	}
	sort.Strings(report.ExhaustedBudget)

	var recs []string
	for _, rec := range rollup.Records {
		switch rec.Band {
		case sizemon.BandWarning:
			recs = append(recs, fmt.Sprintf(
				"container %q is at %.0f%% of its element limit: consider trimming or raising the limit",
				rec.ContainerID, rec.PercentOfLimit))
		case sizemon.BandCritical, sizemon.BandEmergency:
			recs = append(recs, fmt.Sprintf(
				"container %q exceeds its element limit (%.0f%%): cleanup will trigger on its next update",
				rec.ContainerID, rec.PercentOfLimit))
		}
		if stats, ok := e.timer.Stats("update:" + rec.ContainerID); ok {
			recs = append(recs, e.bench.Recommendations(rec.ContainerID, stats.Average)...)
		}
	}
	for _, id := range report.ExhaustedBudget {
		recs = append(recs, fmt.Sprintf(
			"container %q exhausted its rollback budget: investigate its update source before resetting", id))
	}
	report.Recommendations = recs

	report.Level = classifyHealth(report)

	e.logger.Info("health check",
		"level", report.Level,
		"containers", report.TotalContainers,
		"elements", report.TotalElements,
		"recommendations", len(report.Recommendations),
	)
	return report
}

// classifyHealth distills a report into a single level. Emergency-band
// content, exhausted rollback budgets, or an active global lock are critical;
// anything else worth a recommendation degrades.
func classifyHealth(r HealthReport) HealthLevel {
	switch {
	case r.PerBand[string(sizemon.BandEmergency)] > 0,
		len(r.ExhaustedBudget) > 0,
		r.GlobalLock:
		return HealthCritical
	case r.PerBand[string(sizemon.BandCritical)] > 0,
		r.ErrorCounts[errlog.TypeUpdateFailed] > 0,
		len(r.Recommendations) > 0:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}

// String renders the report for log lines and the CLI's text output.
func (r HealthReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "health: %s (%d containers, %d elements)", r.Level, r.TotalContainers, r.TotalElements)
	for _, rec := range r.Recommendations {
		fmt.Fprintf(&b, "\n  - %s", rec)
	}
	return b.String()
}
