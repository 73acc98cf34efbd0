package gc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/slotwalk/heap"
)

// ---------------------------------------------------------------------------
// Collector: one stop-the-world mark, sweep and optional compaction
// ---------------------------------------------------------------------------

// CycleStats holds statistics from a single collection.
type CycleStats struct {
	ID                     uuid.UUID
	Marked                 int
	Scanned                int
	Swept                  int
	Containers             int // weak-keyed containers reached
	EphemeronRounds        int
	EphemeronValuesCleared int
	WeakRootsCleared       int
	Weak                   heap.WeakSweepStats
	LiveSymbols            int
	SymbolsFreed           int
	Relocated              int
	SlotsUpdated           int
	Duration               time.Duration
	Timestamp              time.Time
}

// Options configures a Collector.
type Options struct {
	// Compact slides live objects together after sweeping.
	Compact bool
}

// Collector runs collection cycles over one heap. The caller must keep the
// mutator paused for the duration of Collect.
type Collector struct {
	heap *heap.Heap
	opts Options
	log  commonlog.Logger

	mu         sync.Mutex // one cycle at a time
	cycleCount atomic.Uint64
	lastStats  atomic.Value // *CycleStats
}

// NewCollector creates a collector for h.
func NewCollector(h *heap.Heap, opts Options) *Collector {
	return &Collector{
		heap: h,
		opts: opts,
		log:  commonlog.GetLogger("slotwalk.gc"),
	}
}

// CycleCount returns the number of completed cycles.
func (c *Collector) CycleCount() uint64 {
	return c.cycleCount.Load()
}

// LastStats returns statistics from the most recent cycle, or nil.
func (c *Collector) LastStats() *CycleStats {
	v := c.lastStats.Load()
	if v == nil {
		return nil
	}
	return v.(*CycleStats)
}

// Collect performs one full cycle and returns its statistics.
func (c *Collector) Collect() *CycleStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	stats := &CycleStats{
		ID:        uuid.New(),
		Timestamp: start,
	}
	h := c.heap

	// 1. Roots. Weak roots are only recorded.
	m := NewMarker(h)
	VisitRoots(h, m)
	VisitWeakRoots(h, m)
	m.Drain()

	// 2. Key liveness for weak-keyed containers.
	if len(m.Deferred()) > 0 {
		stats.EphemeronRounds = c.markEphemerons(m)
	}
	stats.Containers = len(m.Deferred())

	// 3. Weak slots held by containers, now that key liveness is settled.
	for _, obj := range m.Deferred() {
		stats.EphemeronValuesCleared += resolveContainer(h, obj, m)
	}

	stats.Marked = m.Marked()
	stats.Scanned = m.Scanned()
	stats.LiveSymbols = m.LiveSymbols()
	c.log.Debugf("cycle %s: marked %d objects, %d containers in %d rounds",
		stats.ID, stats.Marked, stats.Containers, stats.EphemeronRounds)

	// 4. Sweep.
	for _, p := range m.WeakRoots() {
		if *p != 0 && !m.IsMarked(*p) {
			*p = 0
			stats.WeakRootsCleared++
		}
	}
	stats.Weak = h.Weak.Sweep(m.IsMarked, m.WeakSlotReferenced)
	stats.SymbolsFreed = h.Symbols.Sweep(m.SymbolSeen)
	for _, obj := range h.Objects() {
		if !m.IsMarked(obj.Address()) {
			h.Free(obj.Address())
			stats.Swept++
		}
	}

	// 5. Compaction.
	if c.opts.Compact {
		stats.Relocated, stats.SlotsUpdated = c.compact()
	}

	stats.Duration = time.Since(start)
	c.cycleCount.Add(1)
	c.lastStats.Store(stats)

	c.log.Infof("cycle %s: %d live, %d swept, %d weak cleared, %d symbols freed, %d relocated in %s",
		stats.ID, stats.Marked, stats.Swept, stats.Weak.Cleared+stats.WeakRootsCleared,
		stats.SymbolsFreed, stats.Relocated, stats.Duration)
	return stats
}

// markEphemerons iterates to a fixpoint: each round visits the strong parts
// of every reached container and the weak roots through SkipWeakRefs, marks
// the values of pairs whose key is marked, and drains. It returns the
// number of rounds.
func (c *Collector) markEphemerons(m *Marker) int {
	h := c.heap
	skip := NewSkipWeakRefs(m, h.Codec())
	rounds := 0
	for {
		rounds++
		before := m.Marked()

		VisitWeakRoots(h, skip)
		// Drain may append to the deferred list; pick new entries up this round.
		for i := 0; i < len(m.deferred); i++ {
			obj := m.deferred[i]
			VisitStrong(h, obj, skip)
			obj.Layout().ForEachPair(func(key, value int) {
				k := h.Weak.Target(*obj.WeakSlot(key))
				if k != 0 && m.IsMarked(k) {
					m.AcceptValue(obj.ValueSlot(value))
				}
			})
			m.Drain()
		}

		if m.Marked() == before {
			return rounds
		}
		c.log.Debugf("ephemeron round %d marked %d objects", rounds, m.Marked()-before)
	}
}

// resolveContainer reports the container's weak slots to the marker and
// clears the value of every pair whose key did not survive. It returns the
// number of values cleared.
func resolveContainer(h *heap.Heap, obj *heap.Object, m *Marker) int {
	l := obj.Layout()
	for i := 0; i < l.NumSlots(); i++ {
		if l.Kind(i) == heap.KindWeak {
			m.AcceptWeakSlot(obj.WeakSlot(i))
		}
	}
	cleared := 0
	l.ForEachPair(func(key, value int) {
		k := h.Weak.Target(*obj.WeakSlot(key))
		if k != 0 && m.IsMarked(k) {
			return
		}
		if v := obj.ValueSlot(value); *v != heap.Nil {
			*v = heap.Nil
			cleared++
		}
	})
	return cleared
}

func (c *Collector) compact() (relocated, updated int) {
	h := c.heap
	fwd := h.Compact(func(heap.Address) bool { return true })
	if len(fwd) == 0 {
		return 0, 0
	}
	u := NewUpdater(h.Codec(), fwd)
	VisitRoots(h, u)
	VisitWeakRoots(h, u)
	for _, obj := range h.Objects() {
		Visit(h, obj, u)
	}
	h.Weak.Relocate(fwd)
	return len(fwd), u.Updated()
}
