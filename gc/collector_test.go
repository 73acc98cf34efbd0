package gc

import (
	"testing"

	"github.com/chazu/slotwalk/heap"
)

// ---------------------------------------------------------------------------
// Marking and sweeping
// ---------------------------------------------------------------------------

func TestCollectSweepsUnreachable(t *testing.T) {
	h := newTestHeap(t)
	node := mustLayout(t, "Node", heap.KindPointer, heap.KindValue)

	a := mustAlloc(t, h, node)
	b := mustAlloc(t, h, node)
	c := mustAlloc(t, h, node)
	garbage := mustAlloc(t, h, node)
	cycle := mustAlloc(t, h, node)

	a.SetPointer(0, b.Address())
	b.SetValue(1, heap.FromAddress(c.Address()))
	c.SetPointer(0, a.Address()) // cycle back to the root
	garbage.SetPointer(0, cycle.Address())
	cycle.SetPointer(0, garbage.Address())
	h.AddRoot(a.Address())

	stats := NewCollector(h, Options{}).Collect()

	if stats.Marked != 3 {
		t.Errorf("Marked = %d, want 3", stats.Marked)
	}
	if stats.Swept != 2 {
		t.Errorf("Swept = %d, want 2", stats.Swept)
	}
	for _, obj := range []*heap.Object{a, b, c} {
		if h.Get(obj.Address()) == nil {
			t.Errorf("live object %v was swept", obj.Address())
		}
	}
	if h.Get(garbage.Address()) != nil || h.Get(cycle.Address()) != nil {
		t.Error("unreachable cycle survived")
	}
}

func TestCollectClearsDeadWeakSlots(t *testing.T) {
	h := newTestHeap(t)
	holder := mustLayout(t, "Holder", heap.KindWeak, heap.KindWeak)
	leaf := mustLayout(t, "Leaf")

	obj := mustAlloc(t, h, holder)
	live := mustAlloc(t, h, leaf)
	dead := mustAlloc(t, h, leaf)
	liveRef := h.Weak.New(live.Address())
	deadRef := h.Weak.New(dead.Address())
	obj.SetWeak(0, liveRef)
	obj.SetWeak(1, deadRef)
	h.AddRoot(obj.Address())
	h.AddRoot(live.Address())

	var finalized heap.Address
	h.Weak.SetFinalizer(deadRef, func(a heap.Address) { finalized = a })

	stats := NewCollector(h, Options{}).Collect()

	if h.Weak.Target(liveRef) != live.Address() {
		t.Error("weak ref to live object was cleared")
	}
	if h.Weak.IsAlive(deadRef) {
		t.Error("weak ref to dead object was not cleared")
	}
	if !h.Weak.Contains(deadRef) {
		t.Error("entry still referenced by a slot was freed")
	}
	if finalized != dead.Address() {
		t.Errorf("finalizer got %v, want %v", finalized, dead.Address())
	}
	if stats.Weak.Cleared != 1 || stats.Weak.Finalized != 1 {
		t.Errorf("weak stats = %+v", stats.Weak)
	}
}

func TestCollectFreesUnreferencedWeakEntries(t *testing.T) {
	h := newTestHeap(t)
	holder := mustLayout(t, "Holder", heap.KindWeak)
	obj := mustAlloc(t, h, holder)
	ref := h.Weak.New(0)
	obj.SetWeak(0, ref)

	// obj is garbage, so nothing references the entry afterwards.
	stats := NewCollector(h, Options{}).Collect()

	if h.Weak.Contains(ref) {
		t.Error("orphaned weak entry survived")
	}
	if stats.Weak.Freed != 1 {
		t.Errorf("Freed = %d, want 1", stats.Weak.Freed)
	}
}

func TestCollectWeakRoots(t *testing.T) {
	h := newTestHeap(t)
	leaf := mustLayout(t, "Leaf")
	kept := mustAlloc(t, h, leaf)
	lost := mustAlloc(t, h, leaf)
	h.AddRoot(kept.Address())
	h.AddWeakRoot(kept.Address())
	i := h.AddWeakRoot(lost.Address())

	stats := NewCollector(h, Options{}).Collect()

	if *h.WeakRoot(0) != kept.Address() {
		t.Error("weak root to live object was cleared")
	}
	if *h.WeakRoot(i) != 0 {
		t.Error("weak root to dead object was not cleared")
	}
	if stats.WeakRootsCleared != 1 {
		t.Errorf("WeakRootsCleared = %d, want 1", stats.WeakRootsCleared)
	}
	if h.Get(lost.Address()) != nil {
		t.Error("weak root kept its referent alive")
	}
}

func TestCollectRecordsSymbols(t *testing.T) {
	h := newTestHeap(t)
	l := mustLayout(t, "Named", heap.KindSymbol, heap.KindValue)
	obj := mustAlloc(t, h, l)
	obj.SetSymbol(0, h.Symbols.Intern("foo"))
	obj.SetValue(1, heap.FromSymbolID(h.Symbols.Intern("bar")))
	h.Symbols.Intern("unused")
	h.AddRoot(obj.Address())

	stats := NewCollector(h, Options{}).Collect()
	if stats.LiveSymbols != 2 {
		t.Errorf("LiveSymbols = %d, want 2", stats.LiveSymbols)
	}
	if stats.SymbolsFreed != 1 || h.Symbols.Len() != 2 {
		t.Errorf("SymbolsFreed = %d, Len = %d; want 1, 2", stats.SymbolsFreed, h.Symbols.Len())
	}
}

func TestCollectFreesUnreachedSymbols(t *testing.T) {
	h := newTestHeap(t)
	named := mustLayout(t, "Named", heap.KindSymbol, heap.KindValue)
	live := mustAlloc(t, h, named)
	dead := mustAlloc(t, h, named)

	keep := h.Symbols.Intern("keep")
	inValue := h.Symbols.Intern("inValue")
	onlyDead := h.Symbols.Intern("onlyDead")
	live.SetSymbol(0, keep)
	live.SetValue(1, heap.FromSymbolID(inValue))
	dead.SetSymbol(0, onlyDead)
	dead.SetValue(1, heap.FromSymbolID(keep))
	h.AddRoot(live.Address())

	stats := NewCollector(h, Options{}).Collect()

	if stats.SymbolsFreed != 1 {
		t.Errorf("SymbolsFreed = %d, want 1", stats.SymbolsFreed)
	}
	if h.Symbols.Name(keep) != "keep" || h.Symbols.Name(inValue) != "inValue" {
		t.Error("reachable symbols must keep their IDs")
	}
	if h.Symbols.Name(onlyDead) != "" {
		t.Error("symbol held only by garbage should be freed")
	}
	if live.Symbol(0) != keep || live.ValueSlot(1).SymbolID() != inValue {
		t.Error("live slots must be untouched")
	}

	// The freed ID is reused by the next intern.
	if id := h.Symbols.Intern("fresh"); id != onlyDead {
		t.Errorf("Intern after collection = %d, want %d", id, onlyDead)
	}
}

func TestCollectKeepsSymbolsBehindLiveEphemeronKeys(t *testing.T) {
	h := newTestHeap(t)
	leaf := mustLayout(t, "Leaf", heap.KindValue)
	wm := mustAlloc(t, h, weakMapLayout(t, 2))
	key := mustAlloc(t, h, leaf)
	deadKey := mustAlloc(t, h, leaf)

	kept := h.Symbols.Intern("kept")
	dropped := h.Symbols.Intern("dropped")
	wm.SetWeak(1, h.Weak.New(key.Address()))
	wm.SetValue(2, heap.FromSymbolID(kept))
	wm.SetWeak(3, h.Weak.New(deadKey.Address()))
	wm.SetValue(4, heap.FromSymbolID(dropped))
	h.AddRoot(wm.Address())
	h.AddRoot(key.Address())

	stats := NewCollector(h, Options{}).Collect()

	if h.Symbols.Name(kept) != "kept" {
		t.Error("symbol under a live key should survive")
	}
	if h.Symbols.Name(dropped) != "" || stats.SymbolsFreed != 1 {
		t.Errorf("symbol under a dead key: name %q, freed %d", h.Symbols.Name(dropped), stats.SymbolsFreed)
	}
}

// ---------------------------------------------------------------------------
// Weak-keyed containers
// ---------------------------------------------------------------------------

func weakMapLayout(t *testing.T, pairs int) *heap.Layout {
	t.Helper()
	kinds := []heap.SlotKind{heap.KindPointer}
	for i := 0; i < pairs; i++ {
		kinds = append(kinds, heap.KindWeak, heap.KindValue)
	}
	l, err := heap.NewEphemeronLayout("WeakMap", kinds...)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestCollectEphemeronLiveKey(t *testing.T) {
	h := newTestHeap(t)
	leaf := mustLayout(t, "Leaf")
	wm := mustAlloc(t, h, weakMapLayout(t, 2))
	liveKey := mustAlloc(t, h, leaf)
	liveVal := mustAlloc(t, h, leaf)
	deadKey := mustAlloc(t, h, leaf)
	deadVal := mustAlloc(t, h, leaf)

	liveRef := h.Weak.New(liveKey.Address())
	deadRef := h.Weak.New(deadKey.Address())
	wm.SetWeak(1, liveRef)
	wm.SetValue(2, heap.FromAddress(liveVal.Address()))
	wm.SetWeak(3, deadRef)
	wm.SetValue(4, heap.FromAddress(deadVal.Address()))
	h.AddRoot(wm.Address())
	h.AddRoot(liveKey.Address())

	stats := NewCollector(h, Options{}).Collect()

	if h.Get(liveVal.Address()) == nil {
		t.Error("value of a live key was swept")
	}
	if h.Get(deadVal.Address()) != nil {
		t.Error("value of a dead key survived")
	}
	if h.Get(deadKey.Address()) != nil {
		t.Error("weak key kept its referent alive")
	}
	if *wm.ValueSlot(4) != heap.Nil {
		t.Error("value slot of dead key was not cleared")
	}
	if *wm.WeakSlot(3) != deadRef {
		t.Error("weak key slot was rewritten")
	}
	if h.Weak.IsAlive(deadRef) || !h.Weak.IsAlive(liveRef) {
		t.Error("weak table resolved keys incorrectly")
	}
	if stats.Containers != 1 || stats.EphemeronValuesCleared != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestCollectEphemeronChain(t *testing.T) {
	// k1 is rooted; wm[k1] = k2, wm[k2] = k3, wm[k3] = v. Resolving the
	// chain needs more than one round, and the order of pairs is reversed
	// to force it.
	h := newTestHeap(t)
	leaf := mustLayout(t, "Leaf")
	wm := mustAlloc(t, h, weakMapLayout(t, 3))
	k1 := mustAlloc(t, h, leaf)
	k2 := mustAlloc(t, h, leaf)
	k3 := mustAlloc(t, h, leaf)
	v := mustAlloc(t, h, leaf)

	wm.SetWeak(1, h.Weak.New(k3.Address()))
	wm.SetValue(2, heap.FromAddress(v.Address()))
	wm.SetWeak(3, h.Weak.New(k2.Address()))
	wm.SetValue(4, heap.FromAddress(k3.Address()))
	wm.SetWeak(5, h.Weak.New(k1.Address()))
	wm.SetValue(6, heap.FromAddress(k2.Address()))
	h.AddRoot(wm.Address())
	h.AddRoot(k1.Address())

	stats := NewCollector(h, Options{}).Collect()

	for _, obj := range []*heap.Object{k1, k2, k3, v} {
		if h.Get(obj.Address()) == nil {
			t.Errorf("object %v in the chain was swept", obj.Address())
		}
	}
	if stats.EphemeronRounds < 2 {
		t.Errorf("EphemeronRounds = %d, want at least 2", stats.EphemeronRounds)
	}
	if stats.EphemeronValuesCleared != 0 {
		t.Errorf("EphemeronValuesCleared = %d, want 0", stats.EphemeronValuesCleared)
	}
}

func TestCollectContainerReachedThroughValue(t *testing.T) {
	// A container that only becomes reachable during key-liveness
	// determination must still be processed.
	h := newTestHeap(t)
	leaf := mustLayout(t, "Leaf")
	outer := mustAlloc(t, h, weakMapLayout(t, 1))
	inner := mustAlloc(t, h, weakMapLayout(t, 1))
	key := mustAlloc(t, h, leaf)
	val := mustAlloc(t, h, leaf)

	outer.SetWeak(1, h.Weak.New(key.Address()))
	outer.SetValue(2, heap.FromAddress(inner.Address()))
	inner.SetWeak(1, h.Weak.New(key.Address()))
	inner.SetValue(2, heap.FromAddress(val.Address()))
	h.AddRoot(outer.Address())
	h.AddRoot(key.Address())

	stats := NewCollector(h, Options{}).Collect()

	if h.Get(val.Address()) == nil {
		t.Error("value in nested container was swept")
	}
	if stats.Containers != 2 {
		t.Errorf("Containers = %d, want 2", stats.Containers)
	}
}

func TestCollectWeakRootsCountDuringKeyLiveness(t *testing.T) {
	h := newTestHeap(t)
	leaf := mustLayout(t, "Leaf")
	wm := mustAlloc(t, h, weakMapLayout(t, 1))
	key := mustAlloc(t, h, leaf)
	val := mustAlloc(t, h, leaf)
	wm.SetWeak(1, h.Weak.New(key.Address()))
	wm.SetValue(2, heap.FromAddress(val.Address()))
	h.AddRoot(wm.Address())
	h.AddWeakRoot(key.Address())

	NewCollector(h, Options{}).Collect()

	if h.Get(key.Address()) == nil || h.Get(val.Address()) == nil {
		t.Error("weak root reached during key liveness should keep key and value")
	}
	if *h.WeakRoot(0) != key.Address() {
		t.Error("weak root was cleared")
	}
}

// ---------------------------------------------------------------------------
// Compaction
// ---------------------------------------------------------------------------

func TestCollectCompacts(t *testing.T) {
	h := newTestHeap(t)
	node := mustLayout(t, "Node", heap.KindPointer, heap.KindValue, heap.KindWeak)
	leaf := mustLayout(t, "Leaf")

	garbage := mustAlloc(t, h, leaf)
	a := mustAlloc(t, h, node)
	mustAlloc(t, h, leaf) // more garbage
	b := mustAlloc(t, h, leaf)
	c := mustAlloc(t, h, leaf)

	ref := h.Weak.New(c.Address())
	a.SetPointer(0, b.Address())
	a.SetValue(1, heap.FromAddress(c.Address()))
	a.SetWeak(2, ref)
	root := h.AddRoot(a.Address())
	weakRoot := h.AddWeakRoot(b.Address())

	c0 := NewCollector(h, Options{Compact: true})
	stats := c0.Collect()

	if stats.Swept != 2 {
		t.Errorf("Swept = %d, want 2", stats.Swept)
	}
	if stats.Relocated != 3 {
		t.Errorf("Relocated = %d, want 3", stats.Relocated)
	}

	first := h.Codec().Base + h.Codec().Alignment()
	if a.Address() != first {
		t.Errorf("a moved to %v, want %v", a.Address(), first)
	}
	if h.Get(garbage.Address()) != a {
		t.Error("a should now occupy the first freed address")
	}
	if *h.Root(root) != a.Address() {
		t.Errorf("root = %v, want %v", *h.Root(root), a.Address())
	}
	if *h.WeakRoot(weakRoot) != b.Address() {
		t.Errorf("weak root = %v, want %v", *h.WeakRoot(weakRoot), b.Address())
	}
	if *a.PointerSlot(0) != b.Address() {
		t.Errorf("pointer slot = %v, want %v", *a.PointerSlot(0), b.Address())
	}
	if a.ValueSlot(1).Address() != c.Address() {
		t.Errorf("value slot = %v, want %v", a.ValueSlot(1).Address(), c.Address())
	}
	if h.Weak.Target(ref) != c.Address() {
		t.Errorf("weak target = %v, want %v", h.Weak.Target(ref), c.Address())
	}
	for _, obj := range []*heap.Object{a, b, c} {
		if h.Get(obj.Address()) != obj {
			t.Errorf("object not found at %v", obj.Address())
		}
	}
}

func TestCollectorBookkeeping(t *testing.T) {
	h := newTestHeap(t)
	c := NewCollector(h, Options{})
	if c.LastStats() != nil {
		t.Error("LastStats should be nil before the first cycle")
	}

	s1 := c.Collect()
	s2 := c.Collect()
	if c.CycleCount() != 2 {
		t.Errorf("CycleCount = %d, want 2", c.CycleCount())
	}
	if c.LastStats() != s2 {
		t.Error("LastStats should return the latest cycle")
	}
	if s1.ID == s2.ID {
		t.Error("cycles should have distinct IDs")
	}
}
