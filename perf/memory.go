package perf

import (
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// MemLevel classifies a memory sample against the configured thresholds.
type MemLevel string

const (
	MemLevelNormal   MemLevel = "normal"
	MemLevelWarning  MemLevel = "warning"
	MemLevelCritical MemLevel = "critical"
)

// MemSample is a point-in-time memory reading.
type MemSample struct {
	HeapAllocBytes uint64    `json:"heap_alloc_bytes"`
	HeapSysBytes   uint64    `json:"heap_sys_bytes"`
	NumGC          uint32    `json:"num_gc"`
	ElementCount   int       `json:"element_count"`
	Level          MemLevel  `json:"level"`
	TakenAt        time.Time `json:"taken_at"`
}

// AlertFunc receives samples that crossed a threshold.
type AlertFunc func(s MemSample)

// MemoryMonitor samples process heap usage plus an element-count proxy for
// content held by the host.
//
// Thread-safety: safe for concurrent use.
type MemoryMonitor struct {
	mu            sync.Mutex
	warningBytes  uint64
	criticalBytes uint64
	elementsFn    func() int
	onAlert       AlertFunc
	logger        *slog.Logger
	readMemStats  func(*runtime.MemStats)
}

// NewMemoryMonitor creates a monitor. elementsFn supplies the total element
// count across containers (the size monitor's sweep total); it may be nil.
func NewMemoryMonitor(warningBytes, criticalBytes uint64, elementsFn func() int, logger *slog.Logger) *MemoryMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryMonitor{
		warningBytes:  warningBytes,
		criticalBytes: criticalBytes,
		elementsFn:    elementsFn,
		logger:        logger,
		readMemStats:  runtime.ReadMemStats,
	}
}

// OnAlert installs the callback invoked when a sample reaches warning or
// critical level.
func (m *MemoryMonitor) OnAlert(fn AlertFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAlert = fn
}

// Sample takes a reading, classifies it, and fires the alert callback when a
// threshold is crossed.
func (m *MemoryMonitor) Sample() MemSample {
	var ms runtime.MemStats
	m.readMemStats(&ms)

	s := MemSample{
		HeapAllocBytes: ms.HeapAlloc,
		HeapSysBytes:   ms.HeapSys,
		NumGC:          ms.NumGC,
		TakenAt:        time.Now(),
	}

	m.mu.Lock()
	if m.elementsFn != nil {
		s.ElementCount = m.elementsFn()
	}
	switch {
	case m.criticalBytes > 0 && ms.HeapAlloc >= m.criticalBytes:
		s.Level = MemLevelCritical
	case m.warningBytes > 0 && ms.HeapAlloc >= m.warningBytes:
		s.Level = MemLevelWarning
	default:
		s.Level = MemLevelNormal
	}
	alert := m.onAlert
	m.mu.Unlock()

	if s.Level != MemLevelNormal {
		m.logger.Warn("memory pressure",
			"level", s.Level,
			"heap_alloc_bytes", s.HeapAllocBytes,
			"element_count", s.ElementCount,
		)
		if alert != nil {
			alert(s)
		}
	}
	return s
}
