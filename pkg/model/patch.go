package model

import "sync"

// PatchAccumulator turns a stream of Changes into the nested-map diff a
// Patch-mode IPC subscriber sends: intermediate nodes are materialized
// as maps or lists sized to each change's reported ListSize, and
// GrowingCollection changes only append (or clear the list, for a nil
// value).
type PatchAccumulator struct {
	mu    sync.Mutex
	patch map[string]interface{}
}

// NewPatchAccumulator returns an empty accumulator.
func NewPatchAccumulator() *PatchAccumulator {
	return &PatchAccumulator{patch: map[string]interface{}{}}
}

// Add folds one change into the accumulated patch. The caller (a
// Subscribe-mode processor) is responsible for filter matching before
// calling Add.
func (p *PatchAccumulator) Add(c Change) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(c.Path) == 0 {
		// Root replacement matches every filter; the whole tree is the
		// patch.
		if m, ok := c.Value.(map[string]interface{}); ok {
			p.patch = m
		}
		return
	}

	switch c.Kind {
	case GrowingCollection:
		items, _ := c.Value.([]interface{})
		appendGrowingPath(p.patch, c.Path, items)
	default:
		setScalarPath(p.patch, c.Path, c.Value)
	}
}

// TakePatch returns the accumulated patch and resets the accumulator
// to empty, for the next batching window.
func (p *PatchAccumulator) TakePatch() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	patch := p.patch
	p.patch = map[string]interface{}{}
	return patch
}

// IsEmpty reports whether anything has accumulated since the last
// TakePatch.
func (p *PatchAccumulator) IsEmpty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.patch) == 0
}
