package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/chazu/slotwalk/config"
	"github.com/chazu/slotwalk/gc"
	"github.com/chazu/slotwalk/heap"
	"github.com/chazu/slotwalk/snapshot"
)

func readImage(path string) (*heap.Heap, error) {
	if path == "" {
		return nil, fmt.Errorf("no input image (use -i)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := heap.UnmarshalImage(data)
	if err != nil {
		return nil, err
	}
	return heap.FromImage(img)
}

func writeImage(path string, h *heap.Heap) error {
	data, err := heap.MarshalImage(h.Image())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func runDemo(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	output := fs.String("o", "demo.cbor", "Output image path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	h, err := buildDemoHeap(cfg.PointerBase())
	if err != nil {
		return err
	}
	if err := writeImage(*output, h); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %d objects to %s\n", h.Len(), *output)
	return nil
}

func runCollect(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("collect", flag.ContinueOnError)
	input := fs.String("i", "", "Input image path")
	output := fs.String("o", "", "Output image path (default: overwrite input)")
	compact := fs.Bool("compact", cfg.Collector.Compact, "Compact after sweeping")
	if err := fs.Parse(args); err != nil {
		return err
	}

	h, err := readImage(*input)
	if err != nil {
		return err
	}

	opts := cfg.CollectorOptions()
	opts.Compact = *compact
	stats := gc.NewCollector(h, opts).Collect()

	fmt.Fprintf(out, "Cycle %s\n", stats.ID)
	fmt.Fprintf(out, "  live:            %d\n", stats.Marked)
	fmt.Fprintf(out, "  swept:           %d\n", stats.Swept)
	fmt.Fprintf(out, "  containers:      %d (%d rounds, %d values cleared)\n",
		stats.Containers, stats.EphemeronRounds, stats.EphemeronValuesCleared)
	fmt.Fprintf(out, "  weak cleared:    %d slots, %d roots\n", stats.Weak.Cleared, stats.WeakRootsCleared)
	fmt.Fprintf(out, "  weak freed:      %d\n", stats.Weak.Freed)
	fmt.Fprintf(out, "  symbols:         %d live, %d freed\n", stats.LiveSymbols, stats.SymbolsFreed)
	fmt.Fprintf(out, "  relocated:       %d (%d slots updated)\n", stats.Relocated, stats.SlotsUpdated)
	fmt.Fprintf(out, "  duration:        %s\n", stats.Duration)

	dest := *output
	if dest == "" {
		dest = *input
	}
	return writeImage(dest, h)
}

func runSnapshot(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	input := fs.String("i", "", "Input image path")
	cborOut := fs.String("cbor", "", "Write the snapshot as CBOR to this file instead of the database")
	if err := fs.Parse(args); err != nil {
		return err
	}

	h, err := readImage(*input)
	if err != nil {
		return err
	}
	snap := snapshot.Take(h)

	if *cborOut != "" {
		data, err := snapshot.Marshal(snap)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*cborOut, data, 0644); err != nil {
			return err
		}
		fmt.Fprintf(out, "Snapshot %s: %d nodes, %d edges -> %s\n", snap.ID, len(snap.Nodes), len(snap.Edges), *cborOut)
		return nil
	}

	st, err := snapshot.Open(cfg.Snapshot.Driver, cfg.SnapshotPath())
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Save(snap); err != nil {
		return err
	}
	fmt.Fprintf(out, "Snapshot %s: %d nodes, %d edges -> %s (%s)\n",
		snap.ID, len(snap.Nodes), len(snap.Edges), cfg.SnapshotPath(), st.Driver())
	return nil
}

func runInspect(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	input := fs.String("i", "", "Input image path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	h, err := readImage(*input)
	if err != nil {
		return err
	}
	printHeap(out, h)
	return nil
}

func printHeap(out io.Writer, h *heap.Heap) {
	fmt.Fprintf(out, "%d objects, %d roots, %d weak roots, %d weak entries\n",
		h.Len(), h.NumRoots(), h.NumWeakRoots(), h.Weak.Len())
	for _, obj := range h.Objects() {
		l := obj.Layout()
		fmt.Fprintf(out, "%s %s\n", obj.Address(), l.Name())
		for i := 0; i < obj.NumSlots(); i++ {
			fmt.Fprintf(out, "  [%d] %-10s %s\n", i, l.Kind(i), describeSlot(h, obj, i))
		}
	}
}

func describeSlot(h *heap.Heap, obj *heap.Object, i int) string {
	switch obj.Kind(i) {
	case heap.KindPointer:
		return obj.PointerSlot(i).String()
	case heap.KindCompressed:
		return h.Codec().Decode(*obj.CompressedSlot(i)).String()
	case heap.KindValue:
		return describeValue(h, *obj.ValueSlot(i))
	case heap.KindSymbol:
		return "#" + h.Symbols.Name(obj.Symbol(i))
	case heap.KindWeak:
		ref := *obj.WeakSlot(i)
		if ref == 0 {
			return "empty"
		}
		return fmt.Sprintf("weak(%d) -> %s", ref, h.Weak.Target(ref))
	}
	return "?"
}

func describeValue(h *heap.Heap, v heap.Value) string {
	switch {
	case v.IsObject():
		return v.Address().String()
	case v.IsSmallInt():
		return fmt.Sprintf("%d", v.SmallInt())
	case v.IsSymbol():
		return "#" + h.Symbols.Name(v.SymbolID())
	case v.IsNil():
		return "nil"
	case v.IsBool():
		return fmt.Sprintf("%t", v.Bool())
	case v.IsFloat():
		return fmt.Sprintf("%g", v.Float64())
	}
	return fmt.Sprintf("%#x", uint64(v))
}
