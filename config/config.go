// Package config holds every tunable knob of the update engine, with the
// defaults the rest of the module assumes.
//
// Several thresholds here (the band percentages, the corruption severity
// cutoff, the active-scroll threshold) are empirically tuned values carried
// over from the system this engine was extracted from. They are deliberately
// exposed as plain overridable fields rather than derived from anything.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults shared by every engine instance unless overridden.
const (
	// DefaultThrottleInterval is the minimum spacing between two update
	// executions against the same container.
	DefaultThrottleInterval = 1 * time.Second

	// DefaultSizeLimit is the element count a container is expected to stay
	// under.
	DefaultSizeLimit = 500

	// DefaultMaxRollbackAttempts is the number of consecutive rollbacks
	// allowed per container before recovery escalates to recreation.
	DefaultMaxRollbackAttempts = 3

	// DefaultErrorLogCapacity bounds the in-memory error log ring.
	DefaultErrorLogCapacity = 100

	// DefaultHistoryCapacity bounds the per-container update-history ring.
	DefaultHistoryCapacity = 32
)

// Size band thresholds as percentages of a container's limit.
const (
	DefaultWarningPercent   = 70.0
	DefaultCriticalPercent  = 100.0
	DefaultEmergencyPercent = 200.0
)

// Corruption heuristics.
const (
	// DefaultExcessiveSizeFactor flags a container whose element count
	// exceeds factor x limit.
	DefaultExcessiveSizeFactor = 2.0

	// DefaultDuplicateFraction flags a container when at least this fraction
	// of sibling digests are identical.
	DefaultDuplicateFraction = 0.5

	// DefaultMinDuplicateSamples is the minimum number of siblings before the
	// duplicate check fires at all.
	DefaultMinDuplicateSamples = 4

	// DefaultCriticalReasonCount: severity is critical when strictly more
	// than this many reasons fire at once. Empirically tuned, see package doc.
	DefaultCriticalReasonCount = 2
)

// Viewport preservation.
const (
	// DefaultActiveScrollThreshold is the normalized offset delta above which
	// the user is considered to be actively scrolling. Empirically tuned.
	DefaultActiveScrollThreshold = 0.05
)

// Coordination.
const (
	DefaultMaxConcurrent       = 3
	DefaultCoordinationTimeout = 30 * time.Second
)

// Memory monitor thresholds, as fractions of the heap limit proxy.
const (
	DefaultMemoryWarningFraction  = 0.75
	DefaultMemoryCriticalFraction = 0.9
)

// Config aggregates all knobs. The zero value is not usable; start from
// Default() and override fields.
type Config struct {
	ThrottleInterval      time.Duration
	SizeLimit             int
	MaxRollbackAttempts   int
	RollbackEnabled       bool
	CorruptionDetection   bool
	ErrorLogCapacity      int
	HistoryCapacity       int
	WarningPercent        float64
	CriticalPercent       float64
	EmergencyPercent      float64
	ExcessiveSizeFactor   float64
	DuplicateFraction     float64
	MinDuplicateSamples   int
	CriticalReasonCount   int
	ActiveScrollThreshold float64
	MaxConcurrent         int
	CoordinationTimeout   time.Duration
}

// Default returns the configuration every engine starts from.
func Default() Config {
	return Config{
		ThrottleInterval:      DefaultThrottleInterval,
		SizeLimit:             DefaultSizeLimit,
		MaxRollbackAttempts:   DefaultMaxRollbackAttempts,
		RollbackEnabled:       true,
		CorruptionDetection:   true,
		ErrorLogCapacity:      DefaultErrorLogCapacity,
		HistoryCapacity:       DefaultHistoryCapacity,
		WarningPercent:        DefaultWarningPercent,
		CriticalPercent:       DefaultCriticalPercent,
		EmergencyPercent:      DefaultEmergencyPercent,
		ExcessiveSizeFactor:   DefaultExcessiveSizeFactor,
		DuplicateFraction:     DefaultDuplicateFraction,
		MinDuplicateSamples:   DefaultMinDuplicateSamples,
		CriticalReasonCount:   DefaultCriticalReasonCount,
		ActiveScrollThreshold: DefaultActiveScrollThreshold,
		MaxConcurrent:         DefaultMaxConcurrent,
		CoordinationTimeout:   DefaultCoordinationTimeout,
	}
}

// Validate checks internal consistency of the configuration.
func (c Config) Validate() error {
	if c.ThrottleInterval <= 0 {
		return fmt.Errorf("throttle interval must be positive, got %v", c.ThrottleInterval)
	}
	if c.SizeLimit <= 0 {
		return fmt.Errorf("size limit must be positive, got %d", c.SizeLimit)
	}
	if c.MaxRollbackAttempts < 1 {
		return fmt.Errorf("max rollback attempts must be at least 1, got %d", c.MaxRollbackAttempts)
	}
	if c.ErrorLogCapacity < 1 {
		return fmt.Errorf("error log capacity must be at least 1, got %d", c.ErrorLogCapacity)
	}
	if c.HistoryCapacity < 1 {
		return fmt.Errorf("history capacity must be at least 1, got %d", c.HistoryCapacity)
	}
	if !(c.WarningPercent < c.CriticalPercent && c.CriticalPercent < c.EmergencyPercent) {
		return fmt.Errorf("band thresholds must be strictly increasing: warning=%v critical=%v emergency=%v",
			c.WarningPercent, c.CriticalPercent, c.EmergencyPercent)
	}
	if c.DuplicateFraction <= 0 || c.DuplicateFraction > 1 {
		return fmt.Errorf("duplicate fraction must be in (0, 1], got %v", c.DuplicateFraction)
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max concurrent must be at least 1, got %d", c.MaxConcurrent)
	}
	return nil
}

// fileConfig is the on-disk YAML shape. Durations are plain milliseconds so
// config files stay editor-friendly. All fields are optional; absent fields
// keep their defaults.
type fileConfig struct {
	ThrottleIntervalMS      *int     `yaml:"throttle_interval_ms"`
	SizeLimit               *int     `yaml:"size_limit"`
	MaxRollbackAttempts     *int     `yaml:"max_rollback_attempts"`
	RollbackEnabled         *bool    `yaml:"rollback_enabled"`
	CorruptionDetection     *bool    `yaml:"corruption_detection"`
	ErrorLogCapacity        *int     `yaml:"error_log_capacity"`
	HistoryCapacity         *int     `yaml:"history_capacity"`
	WarningPercent          *float64 `yaml:"warning_percent"`
	CriticalPercent         *float64 `yaml:"critical_percent"`
	EmergencyPercent        *float64 `yaml:"emergency_percent"`
	ExcessiveSizeFactor     *float64 `yaml:"excessive_size_factor"`
	DuplicateFraction       *float64 `yaml:"duplicate_fraction"`
	MinDuplicateSamples     *int     `yaml:"min_duplicate_samples"`
	CriticalReasonCount     *int     `yaml:"critical_reason_count"`
	ActiveScrollThreshold   *float64 `yaml:"active_scroll_threshold"`
	MaxConcurrent           *int     `yaml:"max_concurrent"`
	CoordinationTimeoutMS   *int     `yaml:"coordination_timeout_ms"`
}

// Load reads a YAML config file, validates it against the embedded CUE
// schema, and merges it over the defaults.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse behaves like Load for in-memory YAML bytes.
func Parse(raw []byte) (Config, error) {
	if err := ValidateSchema(raw); err != nil {
		return Config{}, err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg := Default()
	if fc.ThrottleIntervalMS != nil {
		cfg.ThrottleInterval = time.Duration(*fc.ThrottleIntervalMS) * time.Millisecond
	}
	if fc.SizeLimit != nil {
		cfg.SizeLimit = *fc.SizeLimit
	}
	if fc.MaxRollbackAttempts != nil {
		cfg.MaxRollbackAttempts = *fc.MaxRollbackAttempts
	}
	if fc.RollbackEnabled != nil {
		cfg.RollbackEnabled = *fc.RollbackEnabled
	}
	if fc.CorruptionDetection != nil {
		cfg.CorruptionDetection = *fc.CorruptionDetection
	}
	if fc.ErrorLogCapacity != nil {
		cfg.ErrorLogCapacity = *fc.ErrorLogCapacity
	}
	if fc.HistoryCapacity != nil {
		cfg.HistoryCapacity = *fc.HistoryCapacity
	}
	if fc.WarningPercent != nil {
		cfg.WarningPercent = *fc.WarningPercent
	}
	if fc.CriticalPercent != nil {
		cfg.CriticalPercent = *fc.CriticalPercent
	}
	if fc.EmergencyPercent != nil {
		cfg.EmergencyPercent = *fc.EmergencyPercent
	}
	if fc.ExcessiveSizeFactor != nil {
		cfg.ExcessiveSizeFactor = *fc.ExcessiveSizeFactor
	}
	if fc.DuplicateFraction != nil {
		cfg.DuplicateFraction = *fc.DuplicateFraction
	}
	if fc.MinDuplicateSamples != nil {
		cfg.MinDuplicateSamples = *fc.MinDuplicateSamples
	}
	if fc.CriticalReasonCount != nil {
		cfg.CriticalReasonCount = *fc.CriticalReasonCount
	}
	if fc.ActiveScrollThreshold != nil {
		cfg.ActiveScrollThreshold = *fc.ActiveScrollThreshold
	}
	if fc.MaxConcurrent != nil {
		cfg.MaxConcurrent = *fc.MaxConcurrent
	}
	if fc.CoordinationTimeoutMS != nil {
		cfg.CoordinationTimeout = time.Duration(*fc.CoordinationTimeoutMS) * time.Millisecond
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
