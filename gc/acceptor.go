// Package gc holds the reference traversal substrate of the collector: the
// acceptor capability interfaces every visitor implements, the driver that
// dispatches each slot of an object to the matching method, the weak-slot
// suppressing decorator used during key-liveness determination, and the
// concrete marking and pointer-updating acceptors built on them.
package gc

import "github.com/chazu/slotwalk/heap"

// Acceptor is told about every reference the traversal driver finds.
//
// Slots are passed by pointer so that relocating variants can rewrite them
// in place; symbols are passed by value because they never move. Methods
// are total: malformed slots are a driver bug, not an error.
type Acceptor interface {
	// AcceptPointer sees a strong pointer slot. It must leave the slot
	// unchanged or pointing at the referent's current address.
	AcceptPointer(p *heap.Address)

	// AcceptValue sees a tagged value slot. Only object-tagged values hold
	// a pointer; everything else is a no-op for pointer-oriented variants.
	AcceptValue(v *heap.Value)

	// AcceptSymbol is notified of a symbol handle.
	AcceptSymbol(s heap.SymbolID)

	// AcceptWeakSlot sees an in-object weak slot. The slot handle, not the
	// referent, is what a variant records.
	AcceptWeakSlot(w *heap.WeakRef)
}

// CompressedAcceptor is implemented by variants that handle compact pointer
// slots natively. Variants without it get AcceptCompressed's default.
type CompressedAcceptor interface {
	AcceptCompressed(cp *heap.CompressedPointer)
}

// WeakCapableAcceptor additionally receives weak roots: root-table entries
// that do not keep their referent alive. An implementation may record the
// root for a later liveness check but must not mark the referent.
type WeakCapableAcceptor interface {
	Acceptor
	AcceptWeakRoot(p *heap.Address)
}

// AcceptCompressed delivers a compressed pointer slot to a. If a implements
// CompressedAcceptor it is called directly; otherwise the slot is decoded
// to a local, passed to AcceptPointer, and the result encoded back.
func AcceptCompressed[A Acceptor](a A, codec heap.PointerBase, cp *heap.CompressedPointer) {
	if ca, ok := any(a).(CompressedAcceptor); ok {
		ca.AcceptCompressed(cp)
		return
	}
	acceptCompressedDefault(a, codec, cp)
}

func acceptCompressedDefault[A Acceptor](a A, codec heap.PointerBase, cp *heap.CompressedPointer) {
	p := codec.Decode(*cp)
	a.AcceptPointer(&p)
	*cp = codec.Encode(p)
}

// Discard is an acceptor that ignores every reference. Embed it to pick up
// no-op defaults for the methods a variant does not care about.
type Discard struct{}

func (Discard) AcceptPointer(*heap.Address)  {}
func (Discard) AcceptValue(*heap.Value)      {}
func (Discard) AcceptSymbol(heap.SymbolID)   {}
func (Discard) AcceptWeakSlot(*heap.WeakRef) {}
func (Discard) AcceptWeakRoot(*heap.Address) {}

var (
	_ WeakCapableAcceptor = Discard{}
)
