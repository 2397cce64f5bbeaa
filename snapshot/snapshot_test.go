package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelguard/panelguard/errlog"
	"github.com/panelguard/panelguard/ids"
	"github.com/panelguard/panelguard/probe/memhost"
)

func newStore(t *testing.T, maxAttempts int) (*Store, *memhost.Host, *errlog.Log) {
	t.Helper()
	h := memhost.New()
	log := errlog.New(50)
	s := New(h, maxAttempts, log, WithGenerator(ids.NewFixed("snap-1", "snap-2", "snap-3")))
	return s, h, log
}

func TestTake_OverwritesPrevious(t *testing.T) {
	s, h, _ := newStore(t, 3)
	h.Append("panel", memhost.Element{Tag: "row", Text: "v1"})

	first := s.Take("panel")
	require.NotNil(t, first)
	assert.Equal(t, "snap-1", first.SnapshotID)
	assert.Equal(t, 1, first.ElementCount)

	h.Append("panel", memhost.Element{Tag: "row", Text: "v2"})
	second := s.Take("panel")
	require.NotNil(t, second)
	assert.Equal(t, "snap-2", second.SnapshotID)

	// Only the newest snapshot is retained.
	got, ok := s.Get("panel")
	require.True(t, ok)
	assert.Equal(t, "snap-2", got.SnapshotID)
}

func TestTake_MissingContainerLogged(t *testing.T) {
	s, _, log := newStore(t, 3)
	assert.Nil(t, s.Take("nope"))
	entries := log.Entries(errlog.TypeSnapshotFailed)
	require.Len(t, entries, 1)
	assert.Equal(t, "nope", entries[0].Context["container"])
}

func TestRollback_RestoresExactPriorContent(t *testing.T) {
	s, h, _ := newStore(t, 3)
	h.Append("panel", memhost.Element{Tag: "row", Text: "original"})
	require.NotNil(t, s.Take("panel"))

	// A bad update mangles the content.
	h.SetElements("panel", []memhost.Element{{Tag: "row", Text: "garbage"}, {Tag: "row", Text: "garbage"}})

	require.True(t, s.Rollback("panel", "update failed"))

	els := h.Elements("panel")
	require.Len(t, els, 1)
	assert.Equal(t, "original", els[0].Text)
	assert.Equal(t, 1, s.Attempts("panel"))
}

func TestRollback_NoSnapshot(t *testing.T) {
	s, h, log := newStore(t, 3)
	h.CreateContainer("panel")

	assert.False(t, s.Rollback("panel", "update failed"))
	assert.Len(t, log.Entries(errlog.TypeRollbackNoSnapshot), 1)
}

func TestRollback_Disabled(t *testing.T) {
	s, h, log := newStore(t, 3)
	h.Append("panel", memhost.Element{Tag: "row"})
	s.Take("panel")
	s.SetRollbackEnabled(false)

	assert.False(t, s.Rollback("panel", "update failed"))
	assert.Len(t, log.Entries(errlog.TypeRollbackDisabled), 1)
}

func TestRollback_MaxAttemptsEscalatesToRecreation(t *testing.T) {
	s, h, log := newStore(t, 2)
	h.Append("panel", memhost.Element{Tag: "row", Text: "original"})
	s.Take("panel")

	// Two rollbacks exhaust the budget.
	require.True(t, s.Rollback("panel", "fail-1"))
	require.True(t, s.Rollback("panel", "fail-2"))
	assert.Equal(t, 2, s.Attempts("panel"))

	// The third recovery recreates instead.
	require.True(t, s.Rollback("panel", "fail-3"))
	assert.Len(t, log.Entries(errlog.TypeRollbackMaxAttempts), 1)

	els := h.Elements("panel")
	require.Len(t, els, 1)
	assert.Equal(t, "banner", els[0].Tag)
	assert.Contains(t, els[0].Text, "fail-3")

	// Fresh start: counter reset, snapshot gone.
	assert.Zero(t, s.Attempts("panel"))
	assert.False(t, s.Has("panel"))
}

func TestRecreate_MissingContainer(t *testing.T) {
	s, _, log := newStore(t, 3)
	assert.False(t, s.Recreate("nope", "why"))
	assert.Len(t, log.Entries(errlog.TypeRecreationContainerMissing), 1)
}

func TestRecreate_InstallsDiagnosticPlaceholder(t *testing.T) {
	s, h, _ := newStore(t, 3)
	h.Append("panel", memhost.Element{Tag: "row"}, memhost.Element{Tag: "row"})

	require.True(t, s.Recreate("panel", "corruption detected"))
	els := h.Elements("panel")
	require.Len(t, els, 1)
	assert.Contains(t, els[0].Text, "corruption detected")
}

func TestClearSnapshots_KeepsBudgets(t *testing.T) {
	s, h, _ := newStore(t, 3)
	h.Append("panel", memhost.Element{Tag: "row"})
	s.Take("panel")
	require.True(t, s.Rollback("panel", "fail"))

	s.ClearSnapshots()
	assert.False(t, s.Has("panel"))
	assert.Equal(t, 1, s.Attempts("panel"))
}

func TestStatus(t *testing.T) {
	s, h, _ := newStore(t, 3)
	h.Append("panel", memhost.Element{Tag: "row"})
	s.Take("panel")

	status := s.Status()
	require.Len(t, status, 1)
	assert.Equal(t, "panel", status[0].ContainerID)
	assert.True(t, status[0].HasSnapshot)
	assert.Equal(t, 3, status[0].MaxAttempts)
}

func TestBudget(t *testing.T) {
	b := NewBudget(2)
	assert.False(t, b.Exhausted())
	b.Note()
	b.Note()
	assert.True(t, b.Exhausted())
	assert.Equal(t, 2, b.Current())
	b.Reset()
	assert.False(t, b.Exhausted())
	assert.Zero(t, b.Current())
}
