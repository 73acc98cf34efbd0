// slotwalk CLI - build, collect, snapshot and inspect heap images
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/slotwalk/config"
)

func main() {
	verbosity := flag.Int("v", -1, "Log verbosity (overrides slotwalk.toml)")
	configDir := flag.String("config", ".", "Directory to start searching for slotwalk.toml")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: slotwalk [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  demo -o image.cbor               Write a small example heap image\n")
		fmt.Fprintf(os.Stderr, "  collect -i image.cbor [-o out]   Run one collection cycle\n")
		fmt.Fprintf(os.Stderr, "  snapshot -i image.cbor [-cbor f] Record the reference graph\n")
		fmt.Fprintf(os.Stderr, "  inspect -i image.cbor            Print objects and slots\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.FindAndLoad(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if cfg == nil {
		cfg = config.Default()
	}

	v := cfg.Log.Verbosity
	if *verbosity >= 0 {
		v = *verbosity
	}
	commonlog.Configure(v, cfg.LogFile())

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	switch args[0] {
	case "demo":
		err = runDemo(cfg, args[1:], os.Stdout)
	case "collect":
		err = runCollect(cfg, args[1:], os.Stdout)
	case "snapshot":
		err = runSnapshot(cfg, args[1:], os.Stdout)
	case "inspect":
		err = runInspect(cfg, args[1:], os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
