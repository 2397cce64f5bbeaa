package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemo_TextOutput(t *testing.T) {
	out, err := runCommand(t, "demo", "--containers", "2", "--updates", "3")
	require.NoError(t, err)

	assert.Contains(t, out, "panel-0: 3 elements")
	assert.Contains(t, out, "panel-1: 3 elements")
	assert.Contains(t, out, "health: healthy")
}

func TestDemo_JSONOutput(t *testing.T) {
	out, err := runCommand(t, "--format", "json", "demo", "--containers", "1", "--updates", "2")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   DemoReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Containers, 1)
	assert.Equal(t, 2, resp.Data.Containers[0].ElementCount)
	assert.Equal(t, "healthy", string(resp.Data.Health.Level))
}
