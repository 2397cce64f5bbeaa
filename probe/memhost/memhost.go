// Package memhost provides an in-memory probe.Host implementation.
//
// Content is modeled as a tree of Elements per container. All reads and
// writes deep-copy element slices so callers can never alias the stored
// tree. Intended for tests, the conformance harness and the demo CLI; a
// production embedder supplies its own Host over its real rendering model.
package memhost

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/panelguard/panelguard/probe"
)

// MaxDepth is the nesting depth beyond which a tree is considered
// structurally unbalanced.
const MaxDepth = 64

// Element is one node of a container's content tree.
type Element struct {
	Tag      string    `json:"tag"`
	Text     string    `json:"text,omitempty"`
	Children []Element `json:"children,omitempty"`
}

type container struct {
	elements []Element
	viewport probe.Viewport
}

// Host is an in-memory implementation of probe.Host.
//
// Thread-safety: all methods are safe for concurrent use via an internal
// RWMutex. Read methods take the read lock, mutations the write lock.
type Host struct {
	mu         sync.RWMutex
	containers map[string]*container
}

var _ probe.Host = (*Host)(nil)

// New creates an empty Host.
func New() *Host {
	return &Host{containers: make(map[string]*container)}
}

// Ensure creates the container if it does not exist yet and returns it.
// Callers hold h.mu.
func (h *Host) ensure(id string) *container {
	c, ok := h.containers[id]
	if !ok {
		c = &container{}
		h.containers[id] = c
	}
	return c
}

// CreateContainer registers an empty container under id.
// Creating an existing container is a no-op.
func (h *Host) CreateContainer(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensure(id)
}

// Append adds elements to the end of the container's content, creating the
// container if needed. The elements are deep-copied.
func (h *Host) Append(id string, els ...Element) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.ensure(id)
	c.elements = append(c.elements, copyElements(els)...)
}

// SetElements replaces the container's content wholesale.
func (h *Host) SetElements(id string, els []Element) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.ensure(id)
	c.elements = copyElements(els)
}

// Elements returns a deep copy of the container's content tree.
func (h *Host) Elements(id string) []Element {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.containers[id]
	if !ok {
		return nil
	}
	return copyElements(c.elements)
}

// SetViewport installs host-side scroll metrics for a container. Tests use
// this to simulate the renderer reporting scroll state.
func (h *Host) SetViewport(id string, v probe.Viewport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensure(id).viewport = v
}

// Delete removes a container entirely.
func (h *Host) Delete(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.containers, id)
}

// Exists implements probe.Host.
func (h *Host) Exists(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.containers[id]
	return ok
}

// ElementCount implements probe.Host. It counts every node in the tree, not
// just top-level children.
func (h *Host) ElementCount(id string) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.containers[id]
	if !ok {
		return 0, fmt.Errorf("element count %q: %w", id, probe.ErrNotFound)
	}
	return countElements(c.elements), nil
}

// ChildDigests implements probe.Host. Each top-level child is serialized to
// JSON, NFC-normalized and hashed with SHA-256, so digests compare equal iff
// the rendered content is byte-identical after Unicode normalization.
func (h *Host) ChildDigests(id string) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.containers[id]
	if !ok {
		return nil, fmt.Errorf("child digests %q: %w", id, probe.ErrNotFound)
	}
	digests := make([]string, len(c.elements))
	for i, el := range c.elements {
		raw, err := json.Marshal(el)
		if err != nil {
			return nil, fmt.Errorf("child digests %q: %w", id, err)
		}
		sum := sha256.Sum256(norm.NFC.Bytes(raw))
		digests[i] = hex.EncodeToString(sum[:])
	}
	return digests, nil
}

// StructureBalanced implements probe.Host. A tree is balanced when every
// element carries a tag and nesting stays under MaxDepth.
func (h *Host) StructureBalanced(id string) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.containers[id]
	if !ok {
		return false, fmt.Errorf("structure check %q: %w", id, probe.ErrNotFound)
	}
	return balanced(c.elements, 0), nil
}

// Serialize implements probe.Host.
func (h *Host) Serialize(id string) ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.containers[id]
	if !ok {
		return nil, fmt.Errorf("serialize %q: %w", id, probe.ErrNotFound)
	}
	payload, err := json.Marshal(c.elements)
	if err != nil {
		return nil, fmt.Errorf("serialize %q: %w", id, err)
	}
	return payload, nil
}

// Restore implements probe.Host.
func (h *Host) Restore(id string, payload []byte) error {
	var els []Element
	if err := json.Unmarshal(payload, &els); err != nil {
		return fmt.Errorf("restore %q: %w", id, err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.containers[id]
	if !ok {
		return fmt.Errorf("restore %q: %w", id, probe.ErrNotFound)
	}
	c.elements = els
	return nil
}

// Replace implements probe.Host. The placeholder becomes the single element
// of the container.
func (h *Host) Replace(id string, placeholder string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.containers[id]
	if !ok {
		return fmt.Errorf("replace %q: %w", id, probe.ErrNotFound)
	}
	c.elements = []Element{{Tag: "banner", Text: placeholder}}
	c.viewport = probe.Viewport{}
	return nil
}

// TrimTo implements probe.Host. Trimming keeps the first n top-level
// children; n larger than the current length is a no-op.
func (h *Host) TrimTo(id string, n int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.containers[id]
	if !ok {
		return fmt.Errorf("trim %q: %w", id, probe.ErrNotFound)
	}
	if n < 0 {
		n = 0
	}
	if n < len(c.elements) {
		c.elements = c.elements[:n]
	}
	return nil
}

// Viewport implements probe.Host.
func (h *Host) Viewport(id string) (probe.Viewport, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.containers[id]
	if !ok {
		return probe.Viewport{}, fmt.Errorf("viewport %q: %w", id, probe.ErrNotFound)
	}
	return c.viewport, nil
}

// SetViewportOffset implements probe.Host, clamping to [0, extent-window].
func (h *Host) SetViewportOffset(id string, offset float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.containers[id]
	if !ok {
		return fmt.Errorf("set viewport offset %q: %w", id, probe.ErrNotFound)
	}
	max := c.viewport.Extent - c.viewport.Window
	if max < 0 {
		max = 0
	}
	if offset < 0 {
		offset = 0
	}
	if offset > max {
		offset = max
	}
	c.viewport.Offset = offset
	return nil
}

// List implements probe.Host. IDs come back sorted so sweeps and status
// listings are stable across runs.
func (h *Host) List() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.containers))
	for id := range h.containers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func copyElements(els []Element) []Element {
	if els == nil {
		return nil
	}
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = Element{
			Tag:      el.Tag,
			Text:     el.Text,
			Children: copyElements(el.Children),
		}
	}
	return out
}

func countElements(els []Element) int {
	n := 0
	for _, el := range els {
		n += 1 + countElements(el.Children)
	}
	return n
}

func balanced(els []Element, depth int) bool {
	if depth >= MaxDepth {
		return false
	}
	for _, el := range els {
		if el.Tag == "" {
			return false
		}
		if !balanced(el.Children, depth+1) {
			return false
		}
	}
	return true
}
