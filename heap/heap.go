// Package heap models a managed heap as seen by a tracing collector: object
// layouts with statically kinded reference slots, NaN-boxed tagged values,
// compact pointers, interned symbols, roots and a weak-reference table.
package heap

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrHeapExhausted  = errors.New("heap address space exhausted")
	ErrLayoutConflict = errors.New("a different layout with this name is already registered")
)

// Forwarding maps the old address of every moved object to its new one.
type Forwarding map[Address]Address

// Heap is a simulated object heap. Addresses are handed out in increasing
// order, aligned to the pointer codec's alignment, starting one alignment
// unit above its base so that every object address is encodable.
//
// A Heap is not safe for concurrent mutation; a collection assumes the
// mutator is paused.
type Heap struct {
	codec     PointerBase
	layouts   map[string]*Layout
	objects   map[Address]*Object
	next      Address
	roots     []Address
	weakRoots []Address

	Symbols *SymbolTable
	Weak    *WeakTable
}

// New creates an empty heap using codec for compressed pointers.
func New(codec PointerBase) *Heap {
	return &Heap{
		codec:   codec,
		layouts: make(map[string]*Layout),
		objects: make(map[Address]*Object),
		next:    codec.Base + codec.Alignment(),
		Symbols: NewSymbolTable(),
		Weak:    NewWeakTable(),
	}
}

// Codec returns the heap's compressed pointer codec.
func (h *Heap) Codec() PointerBase { return h.codec }

// limit is the highest address an object may occupy.
func (h *Heap) limit() Address {
	if m := h.codec.MaxEncodable(); m < MaxAddress {
		return m
	}
	return MaxAddress
}

// RegisterLayout records l under its name. Registering the same shape twice
// is fine; a different shape under an existing name is an error.
func (h *Heap) RegisterLayout(l *Layout) error {
	if prev, ok := h.layouts[l.name]; ok {
		if prev == l || prev.sameShape(l) {
			return nil
		}
		return fmt.Errorf("layout %s: %w", l.name, ErrLayoutConflict)
	}
	h.layouts[l.name] = l
	return nil
}

// Layout returns the registered layout with the given name.
func (h *Heap) Layout(name string) (*Layout, bool) {
	l, ok := h.layouts[name]
	return l, ok
}

// Alloc creates a zeroed object of the given layout. Value slots start
// as Nil.
func (h *Heap) Alloc(l *Layout) (*Object, error) {
	if err := h.RegisterLayout(l); err != nil {
		return nil, err
	}
	if h.next > h.limit() {
		return nil, ErrHeapExhausted
	}
	obj := newObject(l, h.next)
	h.objects[obj.addr] = obj
	h.next += h.codec.Alignment()
	return obj, nil
}

// Get returns the object at addr, or nil.
func (h *Heap) Get(addr Address) *Object {
	return h.objects[addr]
}

// Free removes the object at addr.
func (h *Heap) Free(addr Address) {
	delete(h.objects, addr)
}

// Len returns the number of objects on the heap.
func (h *Heap) Len() int {
	return len(h.objects)
}

// Objects returns every object in ascending address order.
func (h *Heap) Objects() []*Object {
	objs := make([]*Object, 0, len(h.objects))
	for _, obj := range h.objects {
		objs = append(objs, obj)
	}
	slices.SortFunc(objs, func(a, b *Object) int {
		switch {
		case a.addr < b.addr:
			return -1
		case a.addr > b.addr:
			return 1
		}
		return 0
	})
	return objs
}

// ---------------------------------------------------------------------------
// Roots
// ---------------------------------------------------------------------------

// AddRoot appends a strong root and returns its index.
func (h *Heap) AddRoot(addr Address) int {
	h.roots = append(h.roots, addr)
	return len(h.roots) - 1
}

// Root returns the storage of strong root i.
func (h *Heap) Root(i int) *Address { return &h.roots[i] }

// NumRoots returns the number of strong roots.
func (h *Heap) NumRoots() int { return len(h.roots) }

// ForEachRoot calls fn with the storage of every strong root.
func (h *Heap) ForEachRoot(fn func(*Address)) {
	for i := range h.roots {
		fn(&h.roots[i])
	}
}

// AddWeakRoot appends a weak root and returns its index. Weak roots do not
// keep their referent alive during ordinary marking.
func (h *Heap) AddWeakRoot(addr Address) int {
	h.weakRoots = append(h.weakRoots, addr)
	return len(h.weakRoots) - 1
}

// WeakRoot returns the storage of weak root i.
func (h *Heap) WeakRoot(i int) *Address { return &h.weakRoots[i] }

// NumWeakRoots returns the number of weak roots.
func (h *Heap) NumWeakRoots() int { return len(h.weakRoots) }

// ForEachWeakRoot calls fn with the storage of every weak root.
func (h *Heap) ForEachWeakRoot(fn func(*Address)) {
	for i := range h.weakRoots {
		fn(&h.weakRoots[i])
	}
}

// ---------------------------------------------------------------------------
// Compaction
// ---------------------------------------------------------------------------

// Compact slides every object for which live returns true down to the
// lowest free addresses, preserving address order, and drops the rest.
// References are not rewritten; the returned Forwarding lists every object
// whose address changed.
func (h *Heap) Compact(live func(Address) bool) Forwarding {
	fwd := make(Forwarding)
	objs := h.Objects()
	h.objects = make(map[Address]*Object, len(objs))
	next := h.codec.Base + h.codec.Alignment()
	for _, obj := range objs {
		if !live(obj.addr) {
			continue
		}
		if obj.addr != next {
			fwd[obj.addr] = next
			obj.addr = next
		}
		h.objects[next] = obj
		next += h.codec.Alignment()
	}
	h.next = next
	return fwd
}
