package gc

import "github.com/chazu/slotwalk/heap"

// Visit dispatches every slot of obj to a, in layout order.
func Visit[A Acceptor](h *heap.Heap, obj *heap.Object, a A) {
	visitSlots(h, obj, a, true)
}

// VisitStrong is Visit without the value halves of ephemeron pairs. Those
// are reachable only through their key and are left to key-liveness
// determination.
func VisitStrong[A Acceptor](h *heap.Heap, obj *heap.Object, a A) {
	visitSlots(h, obj, a, false)
}

func visitSlots[A Acceptor](h *heap.Heap, obj *heap.Object, a A, ephemeronValues bool) {
	l := obj.Layout()
	n := l.NumSlots()
	if n == 0 {
		return
	}
	eph := l.IsEphemeron() && !ephemeronValues

	// Resolve the compressed overload once per object rather than per slot.
	var (
		ca    CompressedAcceptor
		hasCA bool
	)
	if heap.CompressedPointers {
		ca, hasCA = any(a).(CompressedAcceptor)
	}

	for i := 0; i < n; i++ {
		switch l.Kind(i) {
		case heap.KindPointer:
			a.AcceptPointer(obj.PointerSlot(i))
		case heap.KindCompressed:
			if hasCA {
				ca.AcceptCompressed(obj.CompressedSlot(i))
			} else {
				acceptCompressedDefault(a, h.Codec(), obj.CompressedSlot(i))
			}
		case heap.KindValue:
			if eph && l.IsEphemeronValue(i) {
				continue
			}
			a.AcceptValue(obj.ValueSlot(i))
		case heap.KindSymbol:
			a.AcceptSymbol(obj.Symbol(i))
		case heap.KindWeak:
			a.AcceptWeakSlot(obj.WeakSlot(i))
		}
	}
}

// VisitRoots passes every strong root to a as a pointer.
func VisitRoots[A Acceptor](h *heap.Heap, a A) {
	h.ForEachRoot(func(p *heap.Address) {
		a.AcceptPointer(p)
	})
}

// VisitWeakRoots passes every weak root to a through the weak-root channel.
func VisitWeakRoots[A WeakCapableAcceptor](h *heap.Heap, a A) {
	h.ForEachWeakRoot(func(p *heap.Address) {
		a.AcceptWeakRoot(p)
	})
}
