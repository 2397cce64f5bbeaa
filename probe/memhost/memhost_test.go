package memhost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelguard/panelguard/probe"
)

func TestHost_ElementCount_CountsNested(t *testing.T) {
	h := New()
	h.Append("panel", Element{Tag: "row", Children: []Element{
		{Tag: "cell", Text: "a"},
		{Tag: "cell", Text: "b"},
	}})
	h.Append("panel", Element{Tag: "row"})

	n, err := h.ElementCount("panel")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestHost_ElementCount_Missing(t *testing.T) {
	h := New()
	_, err := h.ElementCount("nope")
	assert.ErrorIs(t, err, probe.ErrNotFound)
}

func TestHost_ChildDigests_EqualForIdenticalChildren(t *testing.T) {
	h := New()
	h.Append("panel",
		Element{Tag: "row", Text: "same"},
		Element{Tag: "row", Text: "same"},
		Element{Tag: "row", Text: "other"},
	)

	digests, err := h.ChildDigests("panel")
	require.NoError(t, err)
	require.Len(t, digests, 3)
	assert.Equal(t, digests[0], digests[1])
	assert.NotEqual(t, digests[0], digests[2])
}

func TestHost_SerializeRestore_RoundTrip(t *testing.T) {
	h := New()
	h.Append("panel", Element{Tag: "row", Text: "one"}, Element{Tag: "row", Text: "two"})

	payload, err := h.Serialize("panel")
	require.NoError(t, err)

	h.SetElements("panel", []Element{{Tag: "row", Text: "mutated"}})
	require.NoError(t, h.Restore("panel", payload))

	els := h.Elements("panel")
	require.Len(t, els, 2)
	assert.Equal(t, "one", els[0].Text)
	assert.Equal(t, "two", els[1].Text)
}

func TestHost_Replace_InstallsBanner(t *testing.T) {
	h := New()
	h.Append("panel", Element{Tag: "row"}, Element{Tag: "row"})
	h.SetViewport("panel", probe.Viewport{Offset: 10, Extent: 100, Window: 20})

	require.NoError(t, h.Replace("panel", "panel recreated"))

	els := h.Elements("panel")
	require.Len(t, els, 1)
	assert.Equal(t, "banner", els[0].Tag)
	assert.Equal(t, "panel recreated", els[0].Text)

	vp, err := h.Viewport("panel")
	require.NoError(t, err)
	assert.Zero(t, vp.Offset)
}

func TestHost_TrimTo(t *testing.T) {
	h := New()
	for i := 0; i < 5; i++ {
		h.Append("panel", Element{Tag: "row"})
	}

	require.NoError(t, h.TrimTo("panel", 2))
	assert.Len(t, h.Elements("panel"), 2)

	// Trimming above the current length is a no-op.
	require.NoError(t, h.TrimTo("panel", 10))
	assert.Len(t, h.Elements("panel"), 2)
}

func TestHost_StructureBalanced(t *testing.T) {
	h := New()
	h.Append("good", Element{Tag: "row", Children: []Element{{Tag: "cell"}}})
	ok, err := h.StructureBalanced("good")
	require.NoError(t, err)
	assert.True(t, ok)

	h.Append("bad", Element{Tag: "row", Children: []Element{{Tag: ""}}})
	ok, err = h.StructureBalanced("bad")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHost_SetViewportOffset_Clamps(t *testing.T) {
	h := New()
	h.CreateContainer("panel")
	h.SetViewport("panel", probe.Viewport{Extent: 100, Window: 20})

	require.NoError(t, h.SetViewportOffset("panel", 500))
	vp, err := h.Viewport("panel")
	require.NoError(t, err)
	assert.Equal(t, 80.0, vp.Offset)

	require.NoError(t, h.SetViewportOffset("panel", -5))
	vp, _ = h.Viewport("panel")
	assert.Zero(t, vp.Offset)
}

func TestHost_Elements_ReturnsDeepCopy(t *testing.T) {
	h := New()
	h.Append("panel", Element{Tag: "row", Children: []Element{{Tag: "cell", Text: "x"}}})

	els := h.Elements("panel")
	els[0].Children[0].Text = "tampered"

	fresh := h.Elements("panel")
	assert.Equal(t, "x", fresh[0].Children[0].Text)
}
