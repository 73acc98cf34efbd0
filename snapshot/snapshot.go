// Package snapshot records the reference graph of a heap. A Builder is an
// acceptor plugged into the same traversal driver as the collector's own
// visitors; the resulting Snapshot can be encoded as CBOR or stored in a
// SQL database for querying.
package snapshot

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/chazu/slotwalk/gc"
	"github.com/chazu/slotwalk/heap"
)

// Edge kinds.
const (
	EdgeStrong   = "strong"
	EdgeValue    = "value"
	EdgeSymbol   = "symbol"
	EdgeWeak     = "weak"
	EdgeWeakRoot = "weak-root"
	EdgeRoot     = "root"
)

// Node is one object.
type Node struct {
	Address uint64 `cbor:"addr"`
	Layout  string `cbor:"layout"`
	Slots   int    `cbor:"slots"`
}

// Edge is one reference. From is 0 for roots. For symbol edges To is the
// symbol ID and Name its text; for weak edges Ref is the table handle and
// To its current referent.
type Edge struct {
	From uint64 `cbor:"from"`
	To   uint64 `cbor:"to"`
	Kind string `cbor:"kind"`
	Ref  uint32 `cbor:"ref,omitempty"`
	Name string `cbor:"name,omitempty"`
}

// Snapshot is the reference graph of a heap at one point in time.
type Snapshot struct {
	ID    string    `cbor:"id"`
	Taken time.Time `cbor:"taken"`
	Nodes []Node    `cbor:"nodes"`
	Edges []Edge    `cbor:"edges"`
}

// ---------------------------------------------------------------------------
// Builder: the snapshot acceptor
// ---------------------------------------------------------------------------

// Builder records an edge for every reference it is shown, attributed to
// the object set with SetSource. It never modifies a slot.
type Builder struct {
	h     *heap.Heap
	from  heap.Address
	edges []Edge
}

// NewBuilder creates a builder for h.
func NewBuilder(h *heap.Heap) *Builder {
	return &Builder{h: h}
}

// SetSource attributes subsequent edges to addr. 0 means the root set.
func (b *Builder) SetSource(addr heap.Address) { b.from = addr }

func (b *Builder) add(to uint64, kind string) {
	b.edges = append(b.edges, Edge{From: uint64(b.from), To: to, Kind: kind})
}

func (b *Builder) AcceptPointer(p *heap.Address) {
	if *p == 0 {
		return
	}
	kind := EdgeStrong
	if b.from == 0 {
		kind = EdgeRoot
	}
	b.add(uint64(*p), kind)
}

func (b *Builder) AcceptValue(v *heap.Value) {
	switch {
	case v.IsObject():
		b.add(uint64(v.Address()), EdgeValue)
	case v.IsSymbol():
		b.AcceptSymbol(v.SymbolID())
	}
}

func (b *Builder) AcceptSymbol(s heap.SymbolID) {
	b.edges = append(b.edges, Edge{
		From: uint64(b.from),
		To:   uint64(s),
		Kind: EdgeSymbol,
		Name: b.h.Symbols.Name(s),
	})
}

func (b *Builder) AcceptWeakSlot(w *heap.WeakRef) {
	if *w == 0 {
		return
	}
	b.edges = append(b.edges, Edge{
		From: uint64(b.from),
		To:   uint64(b.h.Weak.Target(*w)),
		Kind: EdgeWeak,
		Ref:  uint32(*w),
	})
}

func (b *Builder) AcceptWeakRoot(p *heap.Address) {
	if *p != 0 {
		b.add(uint64(*p), EdgeWeakRoot)
	}
}

var _ gc.WeakCapableAcceptor = (*Builder)(nil)

// Take walks every root, weak root and object of h and returns the graph.
func Take(h *heap.Heap) *Snapshot {
	b := NewBuilder(h)
	s := &Snapshot{
		ID:    uuid.NewString(),
		Taken: time.Now().UTC(),
	}

	b.SetSource(0)
	gc.VisitRoots(h, b)
	gc.VisitWeakRoots(h, b)

	for _, obj := range h.Objects() {
		s.Nodes = append(s.Nodes, Node{
			Address: uint64(obj.Address()),
			Layout:  obj.Layout().Name(),
			Slots:   obj.NumSlots(),
		})
		b.SetSource(obj.Address())
		gc.Visit(h, obj, b)
	}
	s.Edges = b.edges
	return s
}

// ---------------------------------------------------------------------------
// CBOR encoding
// ---------------------------------------------------------------------------

var cborEncMode cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes a Snapshot to canonical CBOR.
func Marshal(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// Unmarshal deserializes a Snapshot from CBOR bytes.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	return &s, nil
}

// Outgoing returns the edges leaving addr.
func (s *Snapshot) Outgoing(addr heap.Address) []Edge {
	var out []Edge
	for _, e := range s.Edges {
		if e.From == uint64(addr) {
			out = append(out, e)
		}
	}
	return out
}
