package heap

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Image is the serialized form of a Heap.
type Image struct {
	Base      uint64          `cbor:"base"`
	Shift     uint            `cbor:"shift"`
	Layouts   []LayoutImage   `cbor:"layouts"`
	Objects   []ObjectImage   `cbor:"objects"`
	Roots     []uint64        `cbor:"roots"`
	WeakRoots []uint64        `cbor:"weakRoots"`
	Symbols   []SymbolImage   `cbor:"symbols"`
	Weak      []WeakEntryData `cbor:"weak"`
}

// LayoutImage describes a layout by name and slot kinds.
type LayoutImage struct {
	Name      string     `cbor:"name"`
	Kinds     []SlotKind `cbor:"kinds"`
	Ephemeron bool       `cbor:"ephemeron,omitempty"`
}

// ObjectImage holds one object's address, layout name and raw slot bits.
type ObjectImage struct {
	Address uint64   `cbor:"addr"`
	Layout  string   `cbor:"layout"`
	Slots   []uint64 `cbor:"slots"`
}

// SymbolImage is one interned symbol under its ID.
type SymbolImage struct {
	ID   uint32 `cbor:"id"`
	Name string `cbor:"name"`
}

// WeakEntryData is one weak table entry. Finalizers are not persisted.
type WeakEntryData struct {
	Ref    uint32 `cbor:"ref"`
	Target uint64 `cbor:"target"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("heap: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalImage serializes an Image to canonical CBOR.
func MarshalImage(img *Image) ([]byte, error) {
	return cborEncMode.Marshal(img)
}

// UnmarshalImage deserializes an Image from CBOR bytes.
func UnmarshalImage(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("heap: unmarshal image: %w", err)
	}
	return &img, nil
}

// Image captures the heap's current state.
func (h *Heap) Image() *Image {
	img := &Image{
		Base:    uint64(h.codec.Base),
		Shift:   h.codec.Shift,
		Symbols: h.Symbols.image(),
	}
	names := make(map[string]bool)
	for _, obj := range h.Objects() {
		l := obj.layout
		if !names[l.name] {
			names[l.name] = true
			img.Layouts = append(img.Layouts, LayoutImage{Name: l.name, Kinds: l.Kinds(), Ephemeron: l.isEph})
		}
		oi := ObjectImage{Address: uint64(obj.addr), Layout: l.name, Slots: make([]uint64, obj.NumSlots())}
		for i := range oi.Slots {
			oi.Slots[i] = obj.Raw(i)
		}
		img.Objects = append(img.Objects, oi)
	}
	for _, r := range h.roots {
		img.Roots = append(img.Roots, uint64(r))
	}
	for _, r := range h.weakRoots {
		img.WeakRoots = append(img.WeakRoots, uint64(r))
	}
	for _, ref := range h.Weak.Refs() {
		img.Weak = append(img.Weak, WeakEntryData{Ref: uint32(ref), Target: uint64(h.Weak.Target(ref))})
	}
	return img
}

// FromImage rebuilds a heap from an image. The image is checked before
// anything is built: the codec, every object address, weak handles and
// symbol IDs. Layout validation errors (for example compressed slots in a
// build without them) are returned too.
func FromImage(img *Image) (*Heap, error) {
	if img.Shift > MaxShift {
		return nil, fmt.Errorf("heap: load image: shift %d exceeds %d", img.Shift, MaxShift)
	}
	if img.Base > uint64(MaxAddress) {
		return nil, fmt.Errorf("heap: load image: base %#x out of range", img.Base)
	}
	h := New(PointerBase{Base: Address(img.Base), Shift: img.Shift})

	for _, li := range img.Layouts {
		var (
			l   *Layout
			err error
		)
		if li.Ephemeron {
			l, err = NewEphemeronLayout(li.Name, li.Kinds...)
		} else {
			l, err = NewLayout(li.Name, li.Kinds...)
		}
		if err != nil {
			return nil, fmt.Errorf("heap: load image: %w", err)
		}
		if err := h.RegisterLayout(l); err != nil {
			return nil, fmt.Errorf("heap: load image: %w", err)
		}
	}

	align := h.codec.Alignment()
	for _, oi := range img.Objects {
		addr := Address(oi.Address)
		switch {
		case addr <= h.codec.Base || (addr-h.codec.Base)&(align-1) != 0:
			return nil, fmt.Errorf("heap: load image: object address %#x not aligned above base %s", oi.Address, h.codec.Base)
		case addr > h.limit():
			return nil, fmt.Errorf("heap: load image: object address %#x beyond heap limit %s", oi.Address, h.limit())
		case h.objects[addr] != nil:
			return nil, fmt.Errorf("heap: load image: duplicate object address %#x", oi.Address)
		}
		l, ok := h.layouts[oi.Layout]
		if !ok {
			return nil, fmt.Errorf("heap: load image: object %#x has unknown layout %q", oi.Address, oi.Layout)
		}
		if len(oi.Slots) != l.NumSlots() {
			return nil, fmt.Errorf("heap: load image: object %#x has %d slots, layout %s wants %d",
				oi.Address, len(oi.Slots), l.name, l.NumSlots())
		}
		obj := newObject(l, addr)
		for i, bits := range oi.Slots {
			obj.SetRaw(i, bits)
		}
		h.objects[addr] = obj
		if addr >= h.next {
			h.next = addr + align
		}
	}

	for _, r := range img.Roots {
		h.roots = append(h.roots, Address(r))
	}
	for _, r := range img.WeakRoots {
		h.weakRoots = append(h.weakRoots, Address(r))
	}
	if err := h.Symbols.restore(img.Symbols); err != nil {
		return nil, fmt.Errorf("heap: load image: %w", err)
	}
	for _, w := range img.Weak {
		ref := WeakRef(w.Ref)
		if ref == 0 {
			return nil, fmt.Errorf("heap: load image: weak entry with empty handle")
		}
		if h.Weak.Contains(ref) {
			return nil, fmt.Errorf("heap: load image: duplicate weak handle %d", w.Ref)
		}
		h.Weak.restore(ref, Address(w.Target))
	}
	return h, nil
}
