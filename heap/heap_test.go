package heap

import (
	"errors"
	"testing"
)

func TestAllocAddresses(t *testing.T) {
	h := New(DefaultPointerBase)
	l := MustLayout("Leaf")
	a, err := h.Alloc(l)
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.Alloc(l)
	if err != nil {
		t.Fatal(err)
	}

	first := DefaultPointerBase.Base + DefaultPointerBase.Alignment()
	if a.Address() != first {
		t.Errorf("first address = %v, want %v", a.Address(), first)
	}
	if b.Address() != first+DefaultPointerBase.Alignment() {
		t.Errorf("second address = %v", b.Address())
	}
	if h.Codec().Encode(a.Address()) != 1 {
		t.Error("first object should encode to 1")
	}
	if h.Get(a.Address()) != a || h.Len() != 2 {
		t.Error("heap lookup mismatch")
	}

	h.Free(a.Address())
	if h.Get(a.Address()) != nil || h.Len() != 1 {
		t.Error("Free did not remove the object")
	}
}

func TestAllocExhausted(t *testing.T) {
	// One slot of address space above the base.
	h := New(PointerBase{Base: MaxAddress - 32, Shift: 4})
	l := MustLayout("Leaf")
	if _, err := h.Alloc(l); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Alloc(l); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Alloc(l); !errors.Is(err, ErrHeapExhausted) {
		t.Errorf("err = %v, want ErrHeapExhausted", err)
	}
}

func TestLayoutConflict(t *testing.T) {
	h := New(DefaultPointerBase)
	if _, err := h.Alloc(MustLayout("Node", KindPointer)); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Alloc(MustLayout("Node", KindPointer)); err != nil {
		t.Errorf("same shape should be accepted: %v", err)
	}
	if _, err := h.Alloc(MustLayout("Node", KindValue)); !errors.Is(err, ErrLayoutConflict) {
		t.Errorf("err = %v, want ErrLayoutConflict", err)
	}
}

func TestObjectsSorted(t *testing.T) {
	h := New(DefaultPointerBase)
	l := MustLayout("Leaf")
	for i := 0; i < 20; i++ {
		if _, err := h.Alloc(l); err != nil {
			t.Fatal(err)
		}
	}
	objs := h.Objects()
	for i := 1; i < len(objs); i++ {
		if objs[i-1].Address() >= objs[i].Address() {
			t.Fatalf("Objects not sorted at %d", i)
		}
	}
}

func TestRoots(t *testing.T) {
	h := New(DefaultPointerBase)
	i := h.AddRoot(0x100)
	j := h.AddWeakRoot(0x200)

	*h.Root(i) = 0x110
	var seen []Address
	h.ForEachRoot(func(p *Address) { seen = append(seen, *p) })
	h.ForEachWeakRoot(func(p *Address) { seen = append(seen, *p) })

	if len(seen) != 2 || seen[0] != 0x110 || seen[1] != 0x200 {
		t.Errorf("roots = %v", seen)
	}
	if h.NumRoots() != 1 || h.NumWeakRoots() != 1 || *h.WeakRoot(j) != 0x200 {
		t.Error("root counts mismatch")
	}
}

func TestCompact(t *testing.T) {
	h := New(DefaultPointerBase)
	l := MustLayout("Leaf")
	var objs []*Object
	for i := 0; i < 5; i++ {
		obj, err := h.Alloc(l)
		if err != nil {
			t.Fatal(err)
		}
		objs = append(objs, obj)
	}
	keep := map[Address]bool{objs[1].Address(): true, objs[3].Address(): true, objs[4].Address(): true}
	old := []Address{objs[1].Address(), objs[3].Address(), objs[4].Address()}

	fwd := h.Compact(func(a Address) bool { return keep[a] })

	if h.Len() != 3 {
		t.Fatalf("Len = %d, want 3", h.Len())
	}
	align := DefaultPointerBase.Alignment()
	first := DefaultPointerBase.Base + align
	for i, obj := range []*Object{objs[1], objs[3], objs[4]} {
		want := first + Address(i)*align
		if obj.Address() != want {
			t.Errorf("object %d at %v, want %v", i, obj.Address(), want)
		}
		if fwd[old[i]] != want {
			t.Errorf("fwd[%v] = %v, want %v", old[i], fwd[old[i]], want)
		}
		if h.Get(want) != obj {
			t.Errorf("Get(%v) mismatch", want)
		}
	}

	next, err := h.Alloc(l)
	if err != nil {
		t.Fatal(err)
	}
	if next.Address() != first+3*align {
		t.Errorf("allocation after compaction at %v", next.Address())
	}
}
