package sizemon

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelguard/panelguard/probe/memhost"
)

var testThresholds = Thresholds{
	WarningPercent:   70,
	CriticalPercent:  100,
	EmergencyPercent: 200,
}

func fill(h *memhost.Host, id string, n int) {
	for i := 0; i < n; i++ {
		h.Append(id, memhost.Element{Tag: "row"})
	}
}

func TestMeasure_Bands(t *testing.T) {
	tests := []struct {
		name  string
		count int
		want  Band
	}{
		{"normal", 5, BandNormal},
		{"warning", 8, BandWarning},
		{"critical", 12, BandCritical},
		{"emergency", 25, BandEmergency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := memhost.New()
			fill(h, "panel", tt.count)
			m := New(h, 10, testThresholds, nil)

			rec, err := m.Measure("panel")
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Band)
			assert.Equal(t, tt.count, rec.ElementCount)
			assert.InDelta(t, float64(tt.count)*10, rec.PercentOfLimit, 0.001)
		})
	}
}

func TestMeasure_PerContainerLimitOverride(t *testing.T) {
	h := memhost.New()
	fill(h, "panel", 50)
	m := New(h, 10, testThresholds, nil)

	rec, err := m.Measure("panel")
	require.NoError(t, err)
	assert.Equal(t, BandEmergency, rec.Band)

	m.SetLimit("panel", 100)
	rec, err = m.Measure("panel")
	require.NoError(t, err)
	assert.Equal(t, BandNormal, rec.Band)
}

func TestMeasure_MissingContainer(t *testing.T) {
	m := New(memhost.New(), 10, testThresholds, nil)
	_, err := m.Measure("nope")
	assert.Error(t, err)
}

func TestSweepAll_Rollups(t *testing.T) {
	h := memhost.New()
	fill(h, "small", 2)
	fill(h, "big", 30)
	m := New(h, 10, testThresholds, nil)

	rollup := m.SweepAll()
	assert.Equal(t, 2, rollup.TotalContainers)
	assert.Equal(t, 32, rollup.TotalNodes)
	assert.Equal(t, 1, rollup.PerBand[BandNormal])
	assert.Equal(t, 1, rollup.PerBand[BandEmergency])
	assert.Len(t, rollup.Records, 2)
}

func TestBackgroundSweep_SurfacesEmergencies(t *testing.T) {
	h := memhost.New()
	fill(h, "big", 30)
	m := New(h, 10, testThresholds, nil)

	var (
		mu    sync.Mutex
		found []string
	)
	m.OnEmergency(func(rec Record) {
		mu.Lock()
		found = append(found, rec.ContainerID)
		mu.Unlock()
	})

	m.StartMonitoring(10 * time.Millisecond)
	defer m.StopMonitoring()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(found) > 0
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Contains(t, found, "big")
	mu.Unlock()
}

func TestStopMonitoring_Idempotent(t *testing.T) {
	m := New(memhost.New(), 10, testThresholds, nil)
	m.StartMonitoring(time.Hour)
	m.StopMonitoring()
	m.StopMonitoring()
}
