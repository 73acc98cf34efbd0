package heap

import (
	"fmt"
	"slices"
	"sync"
)

// SymbolID identifies an interned symbol. Symbols are passed by value and
// are never relocated: an ID names the same symbol until a collection finds
// no slot holding it.
type SymbolID uint32

// maxImageSymbolID bounds the IDs an image may bind.
const maxImageSymbolID = 1 << 24

type symbolEntry struct {
	name string
	used bool
}

// ---------------------------------------------------------------------------
// SymbolTable: interned names, swept like heap objects
// ---------------------------------------------------------------------------

// SymbolTable interns names to IDs. Sweep releases the IDs the collector
// did not reach; released IDs are handed out again, lowest first. A symbol
// held only outside the heap is not a root and does not survive a sweep.
type SymbolTable struct {
	mu      sync.RWMutex
	ids     map[string]SymbolID
	entries []symbolEntry // indexed by SymbolID
	free    []SymbolID    // descending
}

// NewSymbolTable creates an empty symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{ids: make(map[string]SymbolID)}
}

// Intern returns the ID bound to name, binding a free or new ID first if
// there is none.
func (st *SymbolTable) Intern(name string) SymbolID {
	st.mu.Lock()
	defer st.mu.Unlock()
	if id, ok := st.ids[name]; ok {
		return id
	}

	var id SymbolID
	if n := len(st.free); n > 0 {
		id = st.free[n-1]
		st.free = st.free[:n-1]
	} else {
		id = SymbolID(len(st.entries))
		st.entries = append(st.entries, symbolEntry{})
	}
	st.entries[id] = symbolEntry{name: name, used: true}
	st.ids[name] = id
	return id
}

// Name returns the name bound to id, or "" if id is free or unknown.
func (st *SymbolTable) Name(id SymbolID) string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if int(id) >= len(st.entries) {
		return ""
	}
	return st.entries[id].name
}

// Len returns the number of bound symbols.
func (st *SymbolTable) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.ids)
}

// Sweep unbinds every symbol for which live returns false and returns how
// many were released. Surviving IDs are unchanged.
func (st *SymbolTable) Sweep(live func(SymbolID) bool) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	released := 0
	for i := range st.entries {
		e := &st.entries[i]
		if !e.used || live(SymbolID(i)) {
			continue
		}
		delete(st.ids, e.name)
		*e = symbolEntry{}
		st.free = append(st.free, SymbolID(i))
		released++
	}
	if released > 0 {
		slices.Sort(st.free)
		slices.Reverse(st.free)
	}
	return released
}

func (st *SymbolTable) image() []SymbolImage {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]SymbolImage, 0, len(st.ids))
	for i, e := range st.entries {
		if e.used {
			out = append(out, SymbolImage{ID: uint32(i), Name: e.name})
		}
	}
	return out
}

// restore binds symbols at fixed IDs when loading an image. Gaps become
// free IDs.
func (st *SymbolTable) restore(syms []SymbolImage) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, s := range syms {
		if s.ID >= maxImageSymbolID {
			return fmt.Errorf("symbol ID %d out of range", s.ID)
		}
		if _, dup := st.ids[s.Name]; dup {
			return fmt.Errorf("symbol %q bound twice", s.Name)
		}
		for int(s.ID) >= len(st.entries) {
			st.entries = append(st.entries, symbolEntry{})
		}
		if st.entries[s.ID].used {
			return fmt.Errorf("symbol ID %d bound twice", s.ID)
		}
		st.entries[s.ID] = symbolEntry{name: s.Name, used: true}
		st.ids[s.Name] = SymbolID(s.ID)
	}
	st.free = st.free[:0]
	for i := len(st.entries) - 1; i >= 0; i-- {
		if !st.entries[i].used {
			st.free = append(st.free, SymbolID(i))
		}
	}
	return nil
}
