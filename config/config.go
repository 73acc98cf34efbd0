// Package config handles slotwalk.toml configuration.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"

	"github.com/chazu/slotwalk/gc"
	"github.com/chazu/slotwalk/heap"
	"github.com/chazu/slotwalk/snapshot"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "slotwalk.toml"

//go:embed schema.cue
var schemaSource string

// Config represents a slotwalk.toml file.
type Config struct {
	Heap      HeapConfig      `toml:"heap"`
	Collector CollectorConfig `toml:"collector"`
	Snapshot  SnapshotConfig  `toml:"snapshot"`
	Log       LogConfig       `toml:"log"`

	// Dir is the directory containing the file (set at load time).
	Dir string `toml:"-"`
}

// HeapConfig sets the compressed pointer codec of new heaps.
type HeapConfig struct {
	Base  uint64 `toml:"base"`
	Shift uint   `toml:"shift"`
}

// CollectorConfig configures collection cycles.
type CollectorConfig struct {
	Compact bool `toml:"compact"`
}

// SnapshotConfig selects where snapshots are stored.
type SnapshotConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Heap: HeapConfig{
			Base:  uint64(heap.DefaultPointerBase.Base),
			Shift: heap.DefaultPointerBase.Shift,
		},
		Collector: CollectorConfig{Compact: true},
		Snapshot: SnapshotConfig{
			Driver: snapshot.DriverSQLite,
			Path:   "slotwalk.db",
		},
		Log: LogConfig{Verbosity: 1},
	}
}

// Load parses slotwalk.toml from the given directory. Keys missing from the
// file keep their Default values.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return parse(path, dir, data)
}

// FindAndLoad walks up from startDir to find a slotwalk.toml file, then
// loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

func parse(path, dir string, data []byte) (*Config, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := validate(raw); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	c.Dir = abs
	return c, nil
}

// validate checks a decoded document against the embedded CUE schema.
// Unknown tables and keys are rejected since #Config is closed.
func validate(raw map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	doc := ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return err
	}
	return def.Unify(doc).Validate(cue.Concrete(true))
}

// PointerBase returns the configured compressed pointer codec.
func (c *Config) PointerBase() heap.PointerBase {
	return heap.PointerBase{Base: heap.Address(c.Heap.Base), Shift: c.Heap.Shift}
}

// CollectorOptions returns the configured collector options.
func (c *Config) CollectorOptions() gc.Options {
	return gc.Options{Compact: c.Collector.Compact}
}

// SnapshotPath returns the snapshot database path, resolved against Dir
// when relative.
func (c *Config) SnapshotPath() string {
	if filepath.IsAbs(c.Snapshot.Path) || c.Dir == "" {
		return c.Snapshot.Path
	}
	return filepath.Join(c.Dir, c.Snapshot.Path)
}

// LogFile returns the log file path, or nil to log to stderr.
func (c *Config) LogFile() *string {
	if c.Log.File == "" {
		return nil
	}
	p := c.Log.File
	if !filepath.IsAbs(p) && c.Dir != "" {
		p = filepath.Join(c.Dir, p)
	}
	return &p
}
