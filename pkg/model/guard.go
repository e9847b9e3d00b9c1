package model

// ReadGuard holds the store's read lock. Get and Tree are only valid
// until Release is called.
type ReadGuard struct {
	s        *Store
	released bool
}

// Get returns the value at path, or ok=false if it doesn't exist.
// An empty path returns the whole tree.
func (g *ReadGuard) Get(path Path) (interface{}, bool) {
	if len(path) == 0 {
		return g.s.tree, true
	}
	return getPath(g.s.tree, path)
}

// Tree returns the root map directly. Callers must not mutate it;
// that's what AccessReadWrite is for.
func (g *ReadGuard) Tree() map[string]interface{} {
	return g.s.tree
}

// Release drops the read lock. Safe to call more than once.
func (g *ReadGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.s.mu.RUnlock()
}

// WriteGuard holds the store's write lock and accumulates changes to
// commit and broadcast when Release is called.
type WriteGuard struct {
	s        *Store
	pending  []Change
	released bool
}

// SetProperty writes a scalar value at path (a Property change).
func (g *WriteGuard) SetProperty(path Path, value interface{}) {
	setScalarPath(g.s.tree, path, value)
	g.pending = append(g.pending, Change{Kind: Property, Path: path, Value: value})
}

// SetCollectionElement replaces one element of a random-access
// collection (an ObjectCollection change), e.g. one tool or spindle
// entry by index.
func (g *WriteGuard) SetCollectionElement(path Path, value interface{}) {
	setScalarPath(g.s.tree, path, value)
	g.pending = append(g.pending, Change{Kind: ObjectCollection, Path: path, Value: value})
}

// AppendGrowing appends items to the append-only list at path (a
// GrowingCollection change). The diff carries only the appended
// items, never a rewrite of the whole list.
func (g *WriteGuard) AppendGrowing(path Path, items []interface{}) {
	appendGrowingPath(g.s.tree, path, items)
	g.pending = append(g.pending, Change{Kind: GrowingCollection, Path: path, Value: items})
}

// ClearGrowing empties the list at path and records a clear (nil
// value) GrowingCollection change.
func (g *WriteGuard) ClearGrowing(path Path) {
	appendGrowingPath(g.s.tree, path, nil)
	g.pending = append(g.pending, Change{Kind: GrowingCollection, Path: path, Value: nil})
}

// Tree returns the root map directly for bulk reads during a write
// (e.g. the host updater reconciling interfaces by position).
func (g *WriteGuard) Tree() map[string]interface{} {
	return g.s.tree
}

// Release commits the guard's pending changes: it drops the write
// lock first, then notifies subscribers, so no subscriber callback
// can re-enter the store while the write lock is held.
func (g *WriteGuard) Release() {
	if g.released {
		return
	}
	g.released = true

	pending := g.pending
	g.s.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	g.s.broadcastUpdate()
	subs := g.s.snapshotSubscribers()
	for _, c := range pending {
		for _, sub := range subs {
			sub.OnChange(c)
		}
	}
}
