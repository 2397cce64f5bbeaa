package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_RollbackScenarioPasses(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/rollback-on-failure.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, "assertion failures: %v", result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, "rolled_back", result.Trace[0].Outcome)
	assert.Equal(t, 2, result.Final["feed"].ElementCount)
}

func TestRun_EmergencyCleanupScenarioPasses(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/emergency-cleanup.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, "assertion failures: %v", result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, "emergency", result.Trace[0].Band)
	assert.True(t, result.Trace[0].Cleanup)
	assert.Equal(t, 1, result.Final["feed"].ElementCount)
}

func TestRun_FailedAssertionFailsResult(t *testing.T) {
	scenario := &Scenario{
		Name:       "wrong-count",
		Containers: []ContainerSeed{{ID: "feed"}},
		Steps:      []Step{{Op: OpUpdate, Container: "feed", Append: 3}},
		Assertions: []Assertion{{Type: AssertElementCount, Container: "feed", Count: 99}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "want 99")
}

func TestRun_IsolatedBetweenRuns(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/emergency-stop-resume.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace, "runs must be deterministic and isolated")
	assert.True(t, first.Pass, "assertion failures: %v", first.Errors)
}
