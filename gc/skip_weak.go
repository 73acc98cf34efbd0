package gc

import "github.com/chazu/slotwalk/heap"

// SkipWeakRefs delegates to a target acceptor except for in-object weak
// slots, which it drops.
//
// It exists for weak-keyed container marking: while the collector is
// deciding which keys are reachable, the weak slots those containers hold
// must not be visited yet, because the key-liveness pass reads them and
// expects them untouched until the weak table resolves them afterwards.
// Weak roots, a separate channel, are escalated to strong accepts for the
// same period so that key liveness comes out right.
//
// The target's concrete type is a type parameter so forwarding does not go
// through the Acceptor interface. A pointer target is borrowed and must
// outlive the decorator; it is never checked for nil.
type SkipWeakRefs[T Acceptor] struct {
	target T
	codec  heap.PointerBase
}

// NewSkipWeakRefs wraps target. codec is used only when the target has no
// compressed-pointer overload of its own.
func NewSkipWeakRefs[T Acceptor](target T, codec heap.PointerBase) *SkipWeakRefs[T] {
	return &SkipWeakRefs[T]{target: target, codec: codec}
}

func (s *SkipWeakRefs[T]) AcceptPointer(p *heap.Address) {
	s.target.AcceptPointer(p)
}

func (s *SkipWeakRefs[T]) AcceptCompressed(cp *heap.CompressedPointer) {
	AcceptCompressed(s.target, s.codec, cp)
}

func (s *SkipWeakRefs[T]) AcceptValue(v *heap.Value) {
	s.target.AcceptValue(v)
}

func (s *SkipWeakRefs[T]) AcceptSymbol(sym heap.SymbolID) {
	s.target.AcceptSymbol(sym)
}

// AcceptWeakSlot does nothing; the weak table resolves the slot later.
func (s *SkipWeakRefs[T]) AcceptWeakSlot(*heap.WeakRef) {}

// AcceptWeakRoot hands the root to the target as an ordinary strong
// pointer, never as a weak root.
func (s *SkipWeakRefs[T]) AcceptWeakRoot(p *heap.Address) {
	s.target.AcceptPointer(p)
}

var (
	_ WeakCapableAcceptor = (*SkipWeakRefs[Discard])(nil)
	_ CompressedAcceptor  = (*SkipWeakRefs[Discard])(nil)
)
