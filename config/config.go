// Package config holds the engine's tunable settings, loaded through koanf
// so embedding backends can source them from files, flags or their own
// config trees.
package config

import (
	"fmt"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
)

// Config carries every knob the lowering and runtime engines consult.
type Config struct {
	// StateCapacity bounds the number of state entries an aggregation
	// keeps in memory before exchanging the coldest one to the spill
	// store. Zero disables spilling.
	StateCapacity int `koanf:"state_capacity"`

	// SpillBackend selects where evicted state lives: "fsdir" for
	// file-per-record, "badger" for a badger database.
	SpillBackend string `koanf:"spill_backend"`

	// SpillDir is the working directory for spilled state. Empty means a
	// fresh temporary directory per aggregation.
	SpillDir string `koanf:"spill_dir"`

	// BroadcastJoinMaxBytes is the largest estimated right-side size, in
	// bytes, the broadcast join strategy accepts. The source logic left
	// this threshold implicit; it is an explicit setting here on purpose.
	BroadcastJoinMaxBytes int64 `koanf:"broadcast_join_max_bytes"`
}

const (
	BackendFsdir  = "fsdir"
	BackendBadger = "badger"
)

// Default returns the engine defaults.
func Default() *Config {
	return &Config{
		StateCapacity:         4096,
		SpillBackend:          BackendFsdir,
		SpillDir:              "",
		BroadcastJoinMaxBytes: 10 << 20, // 10 MiB
	}
}

// Load merges the given koanf tree over the defaults. Keys live under the
// "engine" prefix, e.g. engine.state_capacity.
func Load(ko *koanf.Koanf) (*Config, error) {
	cfg := Default()
	if err := ko.Unmarshal("engine", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling engine settings: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.StateCapacity < 0 {
		return fmt.Errorf("config: state_capacity must not be negative, got %d", c.StateCapacity)
	}
	switch c.SpillBackend {
	case BackendFsdir, BackendBadger:
	default:
		return fmt.Errorf("config: unknown spill_backend %q", c.SpillBackend)
	}
	if c.BroadcastJoinMaxBytes < 0 {
		return fmt.Errorf("config: broadcast_join_max_bytes must not be negative, got %d", c.BroadcastJoinMaxBytes)
	}
	return nil
}

// Koanf returns a koanf tree holding the defaults, handy as the base layer
// under file or flag providers.
func Koanf() *koanf.Koanf {
	ko := koanf.New(".")
	// the confmap provider cannot fail on a literal map
	_ = ko.Load(confmap.Provider(map[string]any{
		"engine.state_capacity":           Default().StateCapacity,
		"engine.spill_backend":            Default().SpillBackend,
		"engine.spill_dir":                Default().SpillDir,
		"engine.broadcast_join_max_bytes": Default().BroadcastJoinMaxBytes,
	}, "."), nil)
	return ko
}
