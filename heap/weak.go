package heap

import (
	"slices"
	"sync"
)

// WeakRef is the handle stored in a weak slot. It names an entry in the
// heap's WeakTable; the entry holds the referent. 0 is the empty slot.
type WeakRef uint32

type weakEntry struct {
	target    Address
	finalizer func(Address)
}

// ---------------------------------------------------------------------------
// WeakTable: entries behind every weak slot in the heap
// ---------------------------------------------------------------------------

// WeakTable owns the referents of weak slots. The collector decides which
// referents are live; the table clears entries pointing at dead objects and
// frees entries no live slot refers to any more.
type WeakTable struct {
	mu      sync.RWMutex
	entries map[WeakRef]*weakEntry
	next    WeakRef
}

// NewWeakTable creates an empty weak table.
func NewWeakTable() *WeakTable {
	return &WeakTable{
		entries: make(map[WeakRef]*weakEntry),
		next:    1,
	}
}

// New allocates an entry referring to target and returns its handle.
func (t *WeakTable) New(target Address) WeakRef {
	t.mu.Lock()
	defer t.mu.Unlock()
	ref := t.next
	t.next++
	t.entries[ref] = &weakEntry{target: target}
	return ref
}

// Target returns the referent of ref, or null if it was cleared or freed.
func (t *WeakTable) Target(ref WeakRef) Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.entries[ref]; ok {
		return e.target
	}
	return 0
}

// Contains reports whether ref names an allocated entry.
func (t *WeakTable) Contains(ref WeakRef) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[ref]
	return ok
}

// IsAlive returns true if ref still has a referent.
func (t *WeakTable) IsAlive(ref WeakRef) bool {
	return t.Target(ref) != 0
}

// SetFinalizer sets a callback run after the referent of ref is collected.
// The callback receives the referent's last address.
func (t *WeakTable) SetFinalizer(ref WeakRef, fn func(Address)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[ref]; ok {
		e.finalizer = fn
	}
}

// Len returns the number of allocated entries.
func (t *WeakTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Refs returns all allocated handles in ascending order.
func (t *WeakTable) Refs() []WeakRef {
	t.mu.RLock()
	defer t.mu.RUnlock()
	refs := make([]WeakRef, 0, len(t.entries))
	for ref := range t.entries {
		refs = append(refs, ref)
	}
	slices.Sort(refs)
	return refs
}

// WeakSweepStats reports the outcome of WeakTable.Sweep.
type WeakSweepStats struct {
	Cleared   int // entries whose referent died
	Freed     int // entries no live slot refers to
	Finalized int // finalizers run
}

// Sweep clears entries whose referent is not marked and frees entries for
// which referenced returns false. Finalizers of cleared entries run after
// the table lock is released.
func (t *WeakTable) Sweep(marked func(Address) bool, referenced func(WeakRef) bool) WeakSweepStats {
	var stats WeakSweepStats
	type pending struct {
		fn     func(Address)
		target Address
	}
	var toFinalize []pending

	t.mu.Lock()
	for ref, e := range t.entries {
		if e.target != 0 && !marked(e.target) {
			if e.finalizer != nil {
				toFinalize = append(toFinalize, pending{e.finalizer, e.target})
			}
			e.target = 0
			stats.Cleared++
		}
		if !referenced(ref) {
			delete(t.entries, ref)
			stats.Freed++
		}
	}
	t.mu.Unlock()

	for _, p := range toFinalize {
		p.fn(p.target)
		stats.Finalized++
	}
	return stats
}

// Relocate rewrites referents moved by compaction. Returns the number of
// entries updated.
func (t *WeakTable) Relocate(fwd Forwarding) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.entries {
		if to, ok := fwd[e.target]; ok {
			e.target = to
			n++
		}
	}
	return n
}

// restore recreates an entry under a fixed handle when loading an image.
func (t *WeakTable) restore(ref WeakRef, target Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[ref] = &weakEntry{target: target}
	if ref >= t.next {
		t.next = ref + 1
	}
}
