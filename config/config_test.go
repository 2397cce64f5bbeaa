package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
throttle_interval_ms: 250
size_limit: 50
rollback_enabled: false
`))
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.ThrottleInterval)
	assert.Equal(t, 50, cfg.SizeLimit)
	assert.False(t, cfg.RollbackEnabled)

	// Untouched fields keep defaults.
	assert.Equal(t, DefaultMaxRollbackAttempts, cfg.MaxRollbackAttempts)
	assert.True(t, cfg.CorruptionDetection)
}

func TestParse_EmptyFileYieldsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_RejectsUnknownField(t *testing.T) {
	_, err := Parse([]byte("throtle_interval_ms: 100\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throtle_interval_ms")
}

func TestParse_RejectsOutOfRange(t *testing.T) {
	_, err := Parse([]byte("size_limit: -3\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("duplicate_fraction: 1.5\n"))
	assert.Error(t, err)
}

func TestValidate_BandOrdering(t *testing.T) {
	cfg := Default()
	cfg.CriticalPercent = cfg.WarningPercent
	assert.Error(t, cfg.Validate())
}
