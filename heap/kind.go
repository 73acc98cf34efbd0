package heap

import "fmt"

// SlotKind is the static shape of a reference slot. Exactly one kind
// describes each slot and it is fixed by the owning object's Layout.
type SlotKind uint8

const (
	// KindPointer is a full heap address that keeps its referent alive.
	KindPointer SlotKind = iota + 1
	// KindCompressed is a KindPointer stored in compact form. Only
	// available when CompressedPointers is true.
	KindCompressed
	// KindValue is a NaN-boxed Value that may or may not hold an address.
	KindValue
	// KindSymbol is an interned symbol handle.
	KindSymbol
	// KindWeak is a handle into the weak table. The slot, not the
	// referent, is what the collector tracks.
	KindWeak
)

var kindNames = [...]string{
	KindPointer:    "pointer",
	KindCompressed: "compressed",
	KindValue:      "value",
	KindSymbol:     "symbol",
	KindWeak:       "weak",
}

func (k SlotKind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return fmt.Sprintf("SlotKind(%d)", uint8(k))
}

// Valid reports whether k is one of the defined kinds.
func (k SlotKind) Valid() bool {
	return k >= KindPointer && k <= KindWeak
}

// wide reports whether slots of this kind occupy a 64-bit word.
func (k SlotKind) wide() bool {
	return k == KindPointer || k == KindValue
}
