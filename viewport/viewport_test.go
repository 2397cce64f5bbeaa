package viewport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelguard/panelguard/probe"
	"github.com/panelguard/panelguard/probe/memhost"
)

func newPreserver(t *testing.T) (*Preserver, *memhost.Host) {
	t.Helper()
	h := memhost.New()
	h.CreateContainer("panel")
	return New(h, 0.05, nil), h
}

func TestSaveRestore_RelativePositionAcrossExtentChange(t *testing.T) {
	p, h := newPreserver(t)

	// Reader is halfway down a 1000-unit panel.
	h.SetViewport("panel", probe.Viewport{Offset: 500, Extent: 1000, Window: 100})
	p.Save("panel")
	require.True(t, p.HasSaved("panel"))

	// Content replacement doubled the extent.
	h.SetViewport("panel", probe.Viewport{Offset: 0, Extent: 2000, Window: 100})
	p.Restore("panel")

	vp, err := h.Viewport("panel")
	require.NoError(t, err)
	assert.InDelta(t, 1000, vp.Offset, 0.01)
}

func TestRestore_IsOneShot(t *testing.T) {
	p, h := newPreserver(t)
	h.SetViewport("panel", probe.Viewport{Offset: 500, Extent: 1000, Window: 100})
	p.Save("panel")
	p.Restore("panel")
	assert.False(t, p.HasSaved("panel"))

	// Second restore must not move the viewport.
	require.NoError(t, h.SetViewportOffset("panel", 0))
	p.Restore("panel")
	vp, _ := h.Viewport("panel")
	assert.Zero(t, vp.Offset)
}

func TestRestore_ClampsToNewRange(t *testing.T) {
	p, h := newPreserver(t)
	h.SetViewport("panel", probe.Viewport{Offset: 900, Extent: 1000, Window: 100})
	p.Save("panel")

	// New content is much shorter; the raw projected offset would overshoot.
	h.SetViewport("panel", probe.Viewport{Offset: 0, Extent: 300, Window: 100})
	p.Restore("panel")

	vp, _ := h.Viewport("panel")
	assert.LessOrEqual(t, vp.Offset, 200.0)
	assert.Greater(t, vp.Offset, 0.0)
}

func TestRestore_CollapsedExtentResetsToOrigin(t *testing.T) {
	p, h := newPreserver(t)
	h.SetViewport("panel", probe.Viewport{Offset: 500, Extent: 1000, Window: 100})
	p.Save("panel")

	// New content fits entirely in the window.
	h.SetViewport("panel", probe.Viewport{Offset: 40, Extent: 80, Window: 100})
	p.Restore("panel")

	vp, _ := h.Viewport("panel")
	assert.Zero(t, vp.Offset)
}

func TestSave_SkippedWhileActivelyScrolling(t *testing.T) {
	p, h := newPreserver(t)

	h.SetViewport("panel", probe.Viewport{Offset: 100, Extent: 1000, Window: 100})
	p.Save("panel")
	assert.False(t, p.IsActivelyInteracting("panel"))

	// A big jump between observations means the user is scrolling.
	h.SetViewport("panel", probe.Viewport{Offset: 600, Extent: 1000, Window: 100})
	p.Save("panel")
	assert.True(t, p.IsActivelyInteracting("panel"))

	// The earlier save survived; the scroll-in-progress one was skipped.
	require.True(t, p.HasSaved("panel"))

	// Once the position settles, saving resumes.
	h.SetViewport("panel", probe.Viewport{Offset: 610, Extent: 1000, Window: 100})
	p.Save("panel")
	assert.False(t, p.IsActivelyInteracting("panel"))
}

func TestSave_NonScrollableSavesNothing(t *testing.T) {
	p, h := newPreserver(t)
	h.SetViewport("panel", probe.Viewport{Offset: 0, Extent: 50, Window: 100})
	p.Save("panel")
	assert.False(t, p.HasSaved("panel"))
}

func TestClearAll(t *testing.T) {
	p, h := newPreserver(t)
	h.SetViewport("panel", probe.Viewport{Offset: 500, Extent: 1000, Window: 100})
	p.Save("panel")
	p.ClearAll()
	assert.False(t, p.HasSaved("panel"))
}
