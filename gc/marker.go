package gc

import "github.com/chazu/slotwalk/heap"

// Marker is the marking acceptor. It owns the mark set and a worklist of
// grey objects, and records the weak slots and weak roots it sees so the
// collector can resolve them once marking is complete.
//
// Weak-keyed containers reached during Drain are not scanned; they are
// queued on Deferred for key-liveness determination.
type Marker struct {
	h         *heap.Heap
	marked    map[heap.Address]struct{}
	worklist  []heap.Address
	deferred  []*heap.Object
	weakSlots map[heap.WeakRef]struct{}
	weakRoots []*heap.Address
	symbols   map[heap.SymbolID]struct{}
	scanned   int
}

// NewMarker creates a marker for one pass over h.
func NewMarker(h *heap.Heap) *Marker {
	return &Marker{
		h:         h,
		marked:    make(map[heap.Address]struct{}),
		weakSlots: make(map[heap.WeakRef]struct{}),
		symbols:   make(map[heap.SymbolID]struct{}),
	}
}

func (m *Marker) mark(addr heap.Address) {
	if addr == 0 {
		return
	}
	if _, ok := m.marked[addr]; ok {
		return
	}
	m.marked[addr] = struct{}{}
	m.worklist = append(m.worklist, addr)
}

func (m *Marker) AcceptPointer(p *heap.Address) {
	m.mark(*p)
}

func (m *Marker) AcceptValue(v *heap.Value) {
	switch {
	case v.IsObject():
		m.mark(v.Address())
	case v.IsSymbol():
		m.symbols[v.SymbolID()] = struct{}{}
	}
}

func (m *Marker) AcceptSymbol(s heap.SymbolID) {
	m.symbols[s] = struct{}{}
}

// AcceptWeakSlot records the slot's table entry as still referenced. The
// referent is not marked.
func (m *Marker) AcceptWeakSlot(w *heap.WeakRef) {
	if *w != 0 {
		m.weakSlots[*w] = struct{}{}
	}
}

// AcceptWeakRoot records the root for the post-marking liveness check.
func (m *Marker) AcceptWeakRoot(p *heap.Address) {
	m.weakRoots = append(m.weakRoots, p)
}

// Drain scans grey objects until the worklist is empty and returns how many
// it scanned. Addresses with no object behind them are skipped.
func (m *Marker) Drain() int {
	n := 0
	for len(m.worklist) > 0 {
		last := len(m.worklist) - 1
		addr := m.worklist[last]
		m.worklist = m.worklist[:last]

		obj := m.h.Get(addr)
		if obj == nil {
			continue
		}
		if obj.Layout().IsEphemeron() {
			m.deferred = append(m.deferred, obj)
			continue
		}
		Visit(m.h, obj, m)
		n++
	}
	m.scanned += n
	return n
}

// IsMarked reports whether addr was reached.
func (m *Marker) IsMarked(addr heap.Address) bool {
	_, ok := m.marked[addr]
	return ok
}

// Marked returns the number of marked objects.
func (m *Marker) Marked() int { return len(m.marked) }

// Scanned returns the number of objects whose slots were visited by Drain.
func (m *Marker) Scanned() int { return m.scanned }

// Deferred returns the weak-keyed containers reached so far.
func (m *Marker) Deferred() []*heap.Object { return m.deferred }

// WeakRoots returns the weak roots recorded through AcceptWeakRoot.
func (m *Marker) WeakRoots() []*heap.Address { return m.weakRoots }

// WeakSlotReferenced reports whether a visited weak slot held ref.
func (m *Marker) WeakSlotReferenced(ref heap.WeakRef) bool {
	_, ok := m.weakSlots[ref]
	return ok
}

// LiveSymbols returns the number of distinct symbols seen.
func (m *Marker) LiveSymbols() int { return len(m.symbols) }

// SymbolSeen reports whether a visited slot held s.
func (m *Marker) SymbolSeen(s heap.SymbolID) bool {
	_, ok := m.symbols[s]
	return ok
}

var _ WeakCapableAcceptor = (*Marker)(nil)
