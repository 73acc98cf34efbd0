package heap

import (
	"math"
)

// Value is a tagged slot using NaN-boxing.
//
// All values are 64-bit IEEE 754 doubles. Non-float values live in the
// NaN space under the quiet NaN prefix, with tag bits selecting the type:
//   - Float: native IEEE 754 double (anything that is not a tagged NaN)
//   - SmallInt: quiet NaN + tagInt + 48-bit signed payload
//   - Object: quiet NaN + tagObject + 48-bit heap address
//   - Symbol: quiet NaN + tagSymbol + symbol ID
//   - Special: quiet NaN + tagSpecial + nil/true/false
//
// A Value slot is always a potential pointer holder; only the Object tag
// actually carries one.
type Value uint64

const (
	// 0x7FF8_0000_0000_0000
	nanBits uint64 = 0x7FF8000000000000

	// 0x0007_0000_0000_0000
	tagMask uint64 = 0x0007000000000000

	// 0x0000_FFFF_FFFF_FFFF
	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	tagObject  uint64 = 0x0001000000000000
	tagInt     uint64 = 0x0002000000000000
	tagSpecial uint64 = 0x0003000000000000
	tagSymbol  uint64 = 0x0004000000000000

	intSignBit    uint64 = 0x0000800000000000
	intSignExtend uint64 = 0xFFFF000000000000
)

const (
	specialNil   uint64 = 0
	specialTrue  uint64 = 1
	specialFalse uint64 = 2
)

const (
	Nil   Value = Value(nanBits | tagSpecial | specialNil)
	True  Value = Value(nanBits | tagSpecial | specialTrue)
	False Value = Value(nanBits | tagSpecial | specialFalse)
)

// SmallInt range (48-bit signed)
const (
	MaxSmallInt int64 = (1 << 47) - 1
	MinSmallInt int64 = -(1 << 47)
)

// MaxAddress is the largest heap address an object Value can carry.
const MaxAddress Address = Address(payloadMask)

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// IsFloat returns true if v represents a float64 value.
// Infinities and untagged NaNs are floats.
func (v Value) IsFloat() bool {
	bits := uint64(v)

	if (bits & 0x7FF0000000000000) != 0x7FF0000000000000 {
		return true
	}

	// Infinity has an empty mantissa.
	if bits&0x000FFFFFFFFFFFFF == 0 {
		return true
	}

	// Signaling NaN.
	if (bits & nanBits) != nanBits {
		return true
	}

	// Untagged quiet NaN.
	return bits&tagMask == 0
}

// IsSmallInt returns true if v represents a small integer.
func (v Value) IsSmallInt() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagInt)
}

// IsObject returns true if v carries a heap address.
func (v Value) IsObject() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagObject)
}

// IsSymbol returns true if v represents an interned symbol.
func (v Value) IsSymbol() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagSymbol)
}

func (v Value) IsNil() bool {
	return v == Nil
}

func (v Value) IsBool() bool {
	return v == True || v == False
}

// IsSpecial returns true if v is nil, true, or false.
func (v Value) IsSpecial() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagSpecial)
}

// ---------------------------------------------------------------------------
// Primitive payloads
// ---------------------------------------------------------------------------

// Float64 returns v as a float64.
// Panics if v is not a float.
func (v Value) Float64() float64 {
	if !v.IsFloat() {
		panic("Value.Float64: not a float")
	}
	return math.Float64frombits(uint64(v))
}

// FromFloat64 creates a Value from a float64.
func FromFloat64(f float64) Value {
	return Value(math.Float64bits(f))
}

// SmallInt returns v as an int64.
// Panics if v is not a small integer.
func (v Value) SmallInt() int64 {
	if !v.IsSmallInt() {
		panic("Value.SmallInt: not a small integer")
	}
	payload := uint64(v) & payloadMask
	if (payload & intSignBit) != 0 {
		payload |= intSignExtend
	}
	return int64(payload)
}

// FromSmallInt creates a Value from an int64.
// Panics if n is outside the SmallInt range.
func FromSmallInt(n int64) Value {
	if n > MaxSmallInt || n < MinSmallInt {
		panic("FromSmallInt: value out of range")
	}
	return Value(nanBits | tagInt | (uint64(n) & payloadMask))
}

// Bool returns v as a bool.
// Panics if v is not true or false.
func (v Value) Bool() bool {
	switch v {
	case True:
		return true
	case False:
		return false
	default:
		panic("Value.Bool: not a boolean")
	}
}

// FromBool creates a Value from a bool.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// ---------------------------------------------------------------------------
// Object addresses
// ---------------------------------------------------------------------------

// Address returns the heap address carried by v.
// Panics if v is not an object.
func (v Value) Address() Address {
	if !v.IsObject() {
		panic("Value.Address: not an object")
	}
	return Address(uint64(v) & payloadMask)
}

// FromAddress creates an object Value. The null address yields Nil.
// Panics if addr does not fit in the 48-bit payload.
func FromAddress(addr Address) Value {
	if addr == 0 {
		return Nil
	}
	if addr > MaxAddress {
		panic("FromAddress: address out of range")
	}
	return Value(nanBits | tagObject | uint64(addr))
}

// ---------------------------------------------------------------------------
// Symbols
// ---------------------------------------------------------------------------

// SymbolID returns the symbol ID encoded in v.
// Panics if v is not a symbol.
func (v Value) SymbolID() SymbolID {
	if !v.IsSymbol() {
		panic("Value.SymbolID: not a symbol")
	}
	return SymbolID(uint64(v) & payloadMask)
}

// FromSymbolID creates a Value from a symbol ID.
func FromSymbolID(id SymbolID) Value {
	return Value(nanBits | tagSymbol | uint64(id))
}
