package heap

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyLayoutName    = errors.New("layout name is empty")
	ErrInvalidKind        = errors.New("invalid slot kind")
	ErrCompressedDisabled = errors.New("compressed pointer slots are not enabled in this build")
	ErrUnpairedKey        = errors.New("ephemeron key must be followed by a value slot")
)

// Layout is the static slot descriptor shared by every object of one shape.
// A slot's kind is decided here and never inferred from its contents.
//
// Slots of KindPointer and KindValue live in 64-bit words; compressed,
// symbol and weak slots live in 32-bit words.
type Layout struct {
	name      string
	kinds     []SlotKind
	offsets   []int
	ephemeron []bool // ephemeron[i]: slot i is the value half of a key/value pair
	numWide   int
	numNarrow int
	isEph     bool
}

// NewLayout validates kinds and builds a layout.
func NewLayout(name string, kinds ...SlotKind) (*Layout, error) {
	return newLayout(name, false, kinds)
}

// NewEphemeronLayout builds the layout of a weak-keyed container. Every
// KindWeak slot is a key and must be immediately followed by the KindValue
// slot it guards; that value is only reachable through the container while
// the key's referent is otherwise reachable.
func NewEphemeronLayout(name string, kinds ...SlotKind) (*Layout, error) {
	return newLayout(name, true, kinds)
}

// MustLayout is NewLayout that panics on error. For package-level layouts.
func MustLayout(name string, kinds ...SlotKind) *Layout {
	l, err := NewLayout(name, kinds...)
	if err != nil {
		panic(err)
	}
	return l
}

func newLayout(name string, ephemeron bool, kinds []SlotKind) (*Layout, error) {
	if name == "" {
		return nil, ErrEmptyLayoutName
	}
	l := &Layout{
		name:      name,
		kinds:     append([]SlotKind(nil), kinds...),
		offsets:   make([]int, len(kinds)),
		ephemeron: make([]bool, len(kinds)),
		isEph:     ephemeron,
	}
	for i, k := range kinds {
		if !k.Valid() {
			return nil, fmt.Errorf("layout %s slot %d: %w", name, i, ErrInvalidKind)
		}
		if k == KindCompressed && !CompressedPointers {
			return nil, fmt.Errorf("layout %s slot %d: %w", name, i, ErrCompressedDisabled)
		}
		if k.wide() {
			l.offsets[i] = l.numWide
			l.numWide++
		} else {
			l.offsets[i] = l.numNarrow
			l.numNarrow++
		}
	}
	if ephemeron {
		for i, k := range kinds {
			if k != KindWeak {
				continue
			}
			if i+1 >= len(kinds) || kinds[i+1] != KindValue {
				return nil, fmt.Errorf("layout %s slot %d: %w", name, i, ErrUnpairedKey)
			}
			l.ephemeron[i+1] = true
		}
	}
	return l, nil
}

// Name returns the layout name.
func (l *Layout) Name() string { return l.name }

// NumSlots returns the number of slots described by the layout.
func (l *Layout) NumSlots() int { return len(l.kinds) }

// Kind returns the kind of slot i.
func (l *Layout) Kind(i int) SlotKind { return l.kinds[i] }

// Kinds returns a copy of the slot kinds in order.
func (l *Layout) Kinds() []SlotKind {
	return append([]SlotKind(nil), l.kinds...)
}

// IsEphemeron reports whether this is a weak-keyed container layout.
func (l *Layout) IsEphemeron() bool { return l.isEph }

// IsEphemeronValue reports whether slot i is guarded by the key before it.
func (l *Layout) IsEphemeronValue(i int) bool { return l.ephemeron[i] }

// ForEachPair calls fn with the key and value slot indices of every
// ephemeron pair, in slot order.
func (l *Layout) ForEachPair(fn func(key, value int)) {
	if !l.isEph {
		return
	}
	for i, isValue := range l.ephemeron {
		if isValue {
			fn(i-1, i)
		}
	}
}

// sameShape reports whether two layouts describe identical slots.
func (l *Layout) sameShape(o *Layout) bool {
	if l.name != o.name || l.isEph != o.isEph || len(l.kinds) != len(o.kinds) {
		return false
	}
	for i := range l.kinds {
		if l.kinds[i] != o.kinds[i] {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Object
// ---------------------------------------------------------------------------

// Object is a heap-allocated record whose slots are described by its Layout.
// Slot accessors hand out typed pointers into the object's storage so that
// acceptors can rewrite references in place.
type Object struct {
	layout *Layout
	addr   Address
	words  []uint64
	narrow []uint32
}

func newObject(l *Layout, addr Address) *Object {
	obj := &Object{
		layout: l,
		addr:   addr,
		words:  make([]uint64, l.numWide),
		narrow: make([]uint32, l.numNarrow),
	}
	for i, k := range l.kinds {
		if k == KindValue {
			obj.words[l.offsets[i]] = uint64(Nil)
		}
	}
	return obj
}

// Layout returns the object's slot descriptor.
func (obj *Object) Layout() *Layout { return obj.layout }

// Address returns the object's current heap address.
func (obj *Object) Address() Address { return obj.addr }

// NumSlots returns the number of slots in this object.
func (obj *Object) NumSlots() int { return len(obj.layout.kinds) }

// Kind returns the kind of slot i.
func (obj *Object) Kind(i int) SlotKind { return obj.layout.kinds[i] }

func (obj *Object) offset(i int, want SlotKind, op string) int {
	if i < 0 || i >= len(obj.layout.kinds) {
		panic(fmt.Sprintf("Object.%s: index %d out of range", op, i))
	}
	if k := obj.layout.kinds[i]; k != want {
		panic(fmt.Sprintf("Object.%s: slot %d is %s, not %s", op, i, k, want))
	}
	return obj.layout.offsets[i]
}

// PointerSlot returns the storage of pointer slot i.
// Panics if slot i is not KindPointer.
func (obj *Object) PointerSlot(i int) *Address {
	return (*Address)(&obj.words[obj.offset(i, KindPointer, "PointerSlot")])
}

// CompressedSlot returns the storage of compressed pointer slot i.
func (obj *Object) CompressedSlot(i int) *CompressedPointer {
	return (*CompressedPointer)(&obj.narrow[obj.offset(i, KindCompressed, "CompressedSlot")])
}

// ValueSlot returns the storage of tagged value slot i.
func (obj *Object) ValueSlot(i int) *Value {
	return (*Value)(&obj.words[obj.offset(i, KindValue, "ValueSlot")])
}

// WeakSlot returns the storage of weak slot i.
func (obj *Object) WeakSlot(i int) *WeakRef {
	return (*WeakRef)(&obj.narrow[obj.offset(i, KindWeak, "WeakSlot")])
}

// Symbol returns the symbol held in slot i. Symbol slots are handed out by
// value only.
func (obj *Object) Symbol(i int) SymbolID {
	return SymbolID(obj.narrow[obj.offset(i, KindSymbol, "Symbol")])
}

func (obj *Object) SetPointer(i int, addr Address) { *obj.PointerSlot(i) = addr }

func (obj *Object) SetCompressed(i int, cp CompressedPointer) { *obj.CompressedSlot(i) = cp }

func (obj *Object) SetValue(i int, v Value) { *obj.ValueSlot(i) = v }

func (obj *Object) SetWeak(i int, ref WeakRef) { *obj.WeakSlot(i) = ref }

func (obj *Object) SetSymbol(i int, s SymbolID) {
	obj.narrow[obj.offset(i, KindSymbol, "SetSymbol")] = uint32(s)
}

// Raw returns the bits of slot i regardless of kind.
func (obj *Object) Raw(i int) uint64 {
	off := obj.layout.offsets[i]
	if obj.layout.kinds[i].wide() {
		return obj.words[off]
	}
	return uint64(obj.narrow[off])
}

// SetRaw overwrites the bits of slot i regardless of kind. Narrow slots
// keep the low 32 bits.
func (obj *Object) SetRaw(i int, bits uint64) {
	off := obj.layout.offsets[i]
	if obj.layout.kinds[i].wide() {
		obj.words[off] = bits
		return
	}
	obj.narrow[off] = uint32(bits)
}
