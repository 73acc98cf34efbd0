package heap

import "fmt"

// Address is the location of an object in the simulated heap.
// The zero Address is the null reference.
type Address uint64

// CompressedPointer is the compact encoding of an Address relative to a
// PointerBase. The zero value encodes null.
type CompressedPointer uint32

// PointerBase converts between full addresses and their compact encoding.
// Addresses are stored as (addr - Base) >> Shift, so every encodable
// address is aligned to 1<<Shift bytes and lies above Base.
type PointerBase struct {
	Base  Address
	Shift uint
}

// MaxShift is the largest shift a PointerBase may use.
const MaxShift = 16

// DefaultPointerBase is the codec used by heaps created without an
// explicit one.
var DefaultPointerBase = PointerBase{Base: 0x10000000, Shift: 4}

// Alignment returns the object alignment implied by the shift.
func (pb PointerBase) Alignment() Address {
	return 1 << pb.Shift
}

// Encode compresses addr. Null encodes to 0.
// Panics if addr is below the base, misaligned, or too far from the base.
func (pb PointerBase) Encode(addr Address) CompressedPointer {
	if addr == 0 {
		return 0
	}
	if addr <= pb.Base || (addr-pb.Base)&(pb.Alignment()-1) != 0 {
		panic(fmt.Sprintf("PointerBase.Encode: address %#x not encodable", uint64(addr)))
	}
	off := (addr - pb.Base) >> pb.Shift
	if off > 0xFFFFFFFF {
		panic(fmt.Sprintf("PointerBase.Encode: address %#x out of range", uint64(addr)))
	}
	return CompressedPointer(off)
}

// Decode expands cp back to a full address. 0 decodes to null.
func (pb PointerBase) Decode(cp CompressedPointer) Address {
	if cp == 0 {
		return 0
	}
	return pb.Base + Address(cp)<<pb.Shift
}

// MaxEncodable returns the highest address that Encode accepts.
func (pb PointerBase) MaxEncodable() Address {
	return pb.Base + Address(0xFFFFFFFF)<<pb.Shift
}

func (a Address) String() string {
	if a == 0 {
		return "null"
	}
	return fmt.Sprintf("%#x", uint64(a))
}
