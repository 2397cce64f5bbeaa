// Package probe defines the boundary between the update engine and the host
// environment that actually owns container content.
//
// The engine treats a container's content tree as opaque: it never inspects
// concrete elements, only structural facts (element counts, per-child digests,
// nesting balance) and viewport metrics. The embedder supplies a Host
// implementation for whatever representation it renders - a DOM-like tree, a
// text buffer, a TUI panel model.
//
// The memhost subpackage provides a reference in-memory implementation used by
// tests, the conformance harness, and the demo CLI.
package probe

import "errors"

// ErrNotFound is returned by Host methods when the named container does not
// exist. Hosts must return it (possibly wrapped) rather than inventing empty
// content, so the engine can distinguish "missing" from "empty".
var ErrNotFound = errors.New("container not found")

// Viewport describes the scroll state of a container as reported by the host.
//
// All values are in host units (pixels, rows - the engine never interprets
// them absolutely, only as ratios of each other).
type Viewport struct {
	// Offset is the current scroll offset from the origin.
	Offset float64

	// Extent is the total scrollable length of the content.
	Extent float64

	// Window is the length of the visible region.
	Window float64
}

// Scrollable reports whether the content actually overflows the visible
// window. Non-scrollable content has no meaningful offset to preserve.
func (v Viewport) Scrollable() bool {
	return v.Extent > v.Window && v.Extent > 0
}

// Host is the content probe supplied by the embedder.
//
// The engine mutates content only through Restore, Replace and TrimTo, and
// only while holding the container's update lock. Read methods (Exists,
// ElementCount, ChildDigests, StructureBalanced, Viewport) may be called
// concurrently with mutations from the host's own update functions, so
// implementations must be safe for concurrent use.
type Host interface {
	// Exists reports whether a container with the given id is known to the
	// host. Containers are created implicitly by the host on first use; the
	// engine never creates them.
	Exists(id string) bool

	// ElementCount returns the number of elements in the container's content
	// tree. The definition of "element" is the host's; the engine only
	// compares counts against configured limits.
	ElementCount(id string) (int, error)

	// ChildDigests returns one serialized digest per top-level child of the
	// container. Digests are compared for equality only (duplicate-content
	// detection); their format is the host's choice.
	ChildDigests(id string) ([]string, error)

	// StructureBalanced reports whether the container's content passes the
	// host's nesting/close-balance check.
	StructureBalanced(id string) (bool, error)

	// Serialize returns a self-contained byte representation of the
	// container's current content, suitable for a later Restore.
	Serialize(id string) ([]byte, error)

	// Restore replaces the container's content with previously serialized
	// content. Used by snapshot rollback.
	Restore(id string, payload []byte) error

	// Replace discards the container's content and installs a plain-text
	// placeholder. Used by recreation and emergency cleanup.
	Replace(id string, placeholder string) error

	// TrimTo truncates the container to its first n elements. Used by
	// targeted cleanup when a container overgrows its limit.
	TrimTo(id string, n int) error

	// Viewport returns the container's current scroll metrics.
	Viewport(id string) (Viewport, error)

	// SetViewportOffset scrolls the container to the given offset. The host
	// clamps to its own valid range.
	SetViewportOffset(id string, offset float64) error

	// List returns the ids of all containers currently known to the host, in
	// unspecified order. Used by monitoring sweeps.
	List() []string
}
