package errlog

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelguard/panelguard/ids"
)

func TestLog_AppendAndRead(t *testing.T) {
	l := New(10, WithGenerator(ids.NewFixed("e-1", "e-2")))

	id := l.Append("UPDATE_FAILED", "boom", map[string]string{"container": "queries"})
	assert.Equal(t, "e-1", id)

	entries := l.Entries("")
	require.Len(t, entries, 1)
	assert.Equal(t, "UPDATE_FAILED", entries[0].Type)
	assert.Equal(t, "boom", entries[0].Message)
	assert.Equal(t, "queries", entries[0].Context["container"])
}

func TestLog_EvictsOldest(t *testing.T) {
	l := New(3)
	for i := 0; i < 5; i++ {
		l.Append("UPDATE_FAILED", fmt.Sprintf("err-%d", i), nil)
	}

	entries := l.Entries("")
	require.Len(t, entries, 3)
	assert.Equal(t, "err-2", entries[0].Message)
	assert.Equal(t, "err-4", entries[2].Message)
}

func TestLog_TypeFilter(t *testing.T) {
	l := New(10)
	l.Append("UPDATE_FAILED", "a", nil)
	l.Append("SNAPSHOT_FAILED", "b", nil)
	l.Append("UPDATE_FAILED", "c", nil)

	entries := l.Entries("UPDATE_FAILED")
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Message)
	assert.Equal(t, "c", entries[1].Message)
}

func TestLog_Clear(t *testing.T) {
	l := New(5)
	l.Append("UPDATE_FAILED", "a", nil)
	l.Clear()
	assert.Zero(t, l.Len())
	assert.Empty(t, l.Entries(""))
}

type failingSink struct{ calls int }

func (s *failingSink) Record(Entry) error {
	s.calls++
	return errors.New("sink down")
}

func TestLog_SinkFailureDoesNotPropagate(t *testing.T) {
	sink := &failingSink{}
	l := New(5, WithSink(sink))

	// Append must succeed even though the sink fails.
	id := l.Append("UPDATE_FAILED", "a", nil)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, 1, l.Len())
}

func TestLog_ContextIsCopied(t *testing.T) {
	l := New(5)
	ctx := map[string]string{"k": "v"}
	l.Append("UPDATE_FAILED", "a", ctx)
	ctx["k"] = "tampered"

	entries := l.Entries("")
	require.Len(t, entries, 1)
	assert.Equal(t, "v", entries[0].Context["k"])
}

func TestSQLiteSink_RoundTrip(t *testing.T) {
	sink, err := OpenSQLite(t.TempDir() + "/errors.db")
	require.NoError(t, err)
	defer sink.Close()

	e := Entry{
		ID:        "e-1",
		Type:      "ROLLBACK_NO_SNAPSHOT",
		Message:   "no snapshot for queries",
		Context:   map[string]string{"container": "queries"},
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, sink.Record(e))

	// Duplicate ids are ignored, not errors.
	require.NoError(t, sink.Record(e))

	got, err := sink.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, e.ID, got[0].ID)
	assert.Equal(t, e.Type, got[0].Type)
	assert.Equal(t, "queries", got[0].Context["container"])
	assert.True(t, e.Timestamp.Equal(got[0].Timestamp))
}

func TestSQLiteSink_AsLogSink(t *testing.T) {
	sink, err := OpenSQLite(t.TempDir() + "/errors.db")
	require.NoError(t, err)
	defer sink.Close()

	l := New(2, WithSink(sink))
	for i := 0; i < 4; i++ {
		l.Append("UPDATE_FAILED", fmt.Sprintf("err-%d", i), nil)
	}

	// Ring evicted down to 2, but the sink keeps everything.
	assert.Equal(t, 2, l.Len())
	got, err := sink.Recent(10)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}
