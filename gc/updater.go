package gc

import "github.com/chazu/slotwalk/heap"

// Updater rewrites references after compaction. Every slot whose referent
// appears in the forwarding table is pointed at the new address; anything
// else is left alone.
type Updater struct {
	codec     heap.PointerBase
	fwd       heap.Forwarding
	updated   int
	weakSlots int
}

// NewUpdater creates an updater for one compaction.
func NewUpdater(codec heap.PointerBase, fwd heap.Forwarding) *Updater {
	return &Updater{codec: codec, fwd: fwd}
}

func (u *Updater) AcceptPointer(p *heap.Address) {
	if to, ok := u.fwd[*p]; ok {
		*p = to
		u.updated++
	}
}

func (u *Updater) AcceptCompressed(cp *heap.CompressedPointer) {
	if to, ok := u.fwd[u.codec.Decode(*cp)]; ok {
		*cp = u.codec.Encode(to)
		u.updated++
	}
}

func (u *Updater) AcceptValue(v *heap.Value) {
	if !v.IsObject() {
		return
	}
	if to, ok := u.fwd[v.Address()]; ok {
		*v = heap.FromAddress(to)
		u.updated++
	}
}

func (u *Updater) AcceptSymbol(heap.SymbolID) {}

// AcceptWeakSlot counts the slot. Weak slots hold table handles, which do
// not move; the table relocates its referents itself.
func (u *Updater) AcceptWeakSlot(*heap.WeakRef) {
	u.weakSlots++
}

// AcceptWeakRoot relocates the root like any pointer.
func (u *Updater) AcceptWeakRoot(p *heap.Address) {
	u.AcceptPointer(p)
}

// Updated returns the number of slots rewritten.
func (u *Updater) Updated() int { return u.updated }

// WeakSlots returns the number of weak slots seen.
func (u *Updater) WeakSlots() int { return u.weakSlots }

var (
	_ WeakCapableAcceptor = (*Updater)(nil)
	_ CompressedAcceptor  = (*Updater)(nil)
)
