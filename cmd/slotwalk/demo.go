package main

import (
	"github.com/chazu/slotwalk/heap"
)

// buildDemoHeap creates a heap exercising every slot kind:
//
//	root -> A
//	A -> B (pointer), A ~> C (weak slot), A.name (symbol), A.extra (value -> E)
//	D is only reachable as a weak root
//	root -> M, a weak-keyed map with B -> V1 and G -> V2
//	F -> G, both garbage
func buildDemoHeap(codec heap.PointerBase) (*heap.Heap, error) {
	h := heap.New(codec)

	holder, err := heap.NewLayout("Holder", heap.KindPointer, heap.KindWeak, heap.KindSymbol, heap.KindValue)
	if err != nil {
		return nil, err
	}
	leaf, err := heap.NewLayout("Leaf", heap.KindValue)
	if err != nil {
		return nil, err
	}
	weakMap, err := heap.NewEphemeronLayout("WeakMap",
		heap.KindWeak, heap.KindValue, heap.KindWeak, heap.KindValue)
	if err != nil {
		return nil, err
	}

	objs := make(map[string]*heap.Object)
	for _, spec := range []struct {
		name   string
		layout *heap.Layout
	}{
		{"A", holder}, {"B", leaf}, {"C", leaf}, {"D", leaf}, {"E", leaf},
		{"F", leaf}, {"G", leaf}, {"M", weakMap}, {"V1", leaf}, {"V2", leaf},
	} {
		obj, err := h.Alloc(spec.layout)
		if err != nil {
			return nil, err
		}
		objs[spec.name] = obj
		if spec.layout == leaf {
			obj.SetValue(0, heap.FromSymbolID(h.Symbols.Intern(spec.name)))
		}
	}

	a := objs["A"]
	a.SetPointer(0, objs["B"].Address())
	a.SetWeak(1, h.Weak.New(objs["C"].Address()))
	a.SetSymbol(2, h.Symbols.Intern("A"))
	a.SetValue(3, heap.FromAddress(objs["E"].Address()))

	objs["F"].SetValue(0, heap.FromAddress(objs["G"].Address()))

	m := objs["M"]
	m.SetWeak(0, h.Weak.New(objs["B"].Address()))
	m.SetValue(1, heap.FromAddress(objs["V1"].Address()))
	m.SetWeak(2, h.Weak.New(objs["G"].Address()))
	m.SetValue(3, heap.FromAddress(objs["V2"].Address()))

	h.AddRoot(a.Address())
	h.AddRoot(m.Address())
	h.AddWeakRoot(objs["D"].Address())
	return h, nil
}
