// Package config loads and validates the calibration run configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	defaults "github.com/xtxerr/tfcalib/config"
	"github.com/xtxerr/tfcalib/internal/calibration/cut"
	"github.com/xtxerr/tfcalib/internal/calibration/emit"
	"github.com/xtxerr/tfcalib/internal/calibration/slot"
)

// Config represents the complete calibration run configuration.
type Config struct {
	// Slot configures time slicing and eviction.
	Slot SlotConfig `yaml:"slot"`

	// Histogram configures the per-slot accumulator.
	Histogram HistogramConfig `yaml:"histogram"`

	// Cuts configures sample admission.
	Cuts CutsConfig `yaml:"cuts"`

	// Emission configures calibration records.
	Emission EmissionConfig `yaml:"emission"`

	// Journal configures the batch journal.
	Journal JournalConfig `yaml:"journal"`

	// Store configures the record store.
	Store StoreConfig `yaml:"store"`

	// Dump configures the diagnostic dump written at end of stream.
	Dump DumpConfig `yaml:"dump"`

	// Metrics configures the telemetry snapshot.
	Metrics MetricsConfig `yaml:"metrics"`

	// Sharding configures concurrent partial windows.
	Sharding ShardingConfig `yaml:"sharding"`

	// Logging configures the global logger.
	Logging LoggingConfig `yaml:"logging"`
}

// SlotConfig configures time slicing and eviction.
type SlotConfig struct {
	// Length is the number of time frames per slot.
	Length int64 `yaml:"length"`

	// MaxDelay is the number of slots of tolerated reordering.
	MaxDelay int64 `yaml:"max_delay"`

	// MinEntries is the advisory per-side sufficiency threshold.
	MinEntries uint64 `yaml:"min_entries"`
}

// HistogramConfig configures the per-slot accumulator.
type HistogramConfig struct {
	// Bins is the number of unit-width bins per side.
	Bins int `yaml:"bins"`

	// SketchAccuracy is the DDSketch relative accuracy (0 disables).
	SketchAccuracy float64 `yaml:"sketch_accuracy"`
}

// CutsConfig configures sample admission.
type CutsConfig struct {
	Enabled     bool    `yaml:"enabled"`
	MinMomentum float64 `yaml:"min_momentum"`
	MaxMomentum float64 `yaml:"max_momentum"`
	MinClusters int32   `yaml:"min_clusters"`
}

// EmissionConfig configures calibration records.
type EmissionConfig struct {
	// ObjectPath is the store path records are written to.
	ObjectPath string `yaml:"object_path"`

	// ValidityEnd is the open-ended validity sentinel.
	ValidityEnd int64 `yaml:"validity_end"`
}

// JournalConfig configures the batch journal.
type JournalConfig struct {
	// Dir is the journal directory. Empty disables the journal.
	Dir string `yaml:"dir"`

	// SyncMode is the sync mode: async, sync, fsync.
	SyncMode string `yaml:"sync_mode"`

	// MaxSegmentSize is the maximum segment size before rotation.
	MaxSegmentSize int64 `yaml:"max_segment_size"`
}

// StoreConfig configures the record store.
type StoreConfig struct {
	// Path is the DuckDB file. Empty opens an in-memory store.
	Path string `yaml:"path"`

	// MemoryLimit is the DuckDB memory limit, e.g. "1GB".
	MemoryLimit string `yaml:"memory_limit"`
}

// DumpConfig configures the diagnostic dump.
type DumpConfig struct {
	// Path is the Parquet file. Empty disables the dump.
	Path string `yaml:"path"`
}

// MetricsConfig configures the telemetry snapshot.
type MetricsConfig struct {
	// Path is the text exposition file. Empty disables it; "-" is stdout.
	Path string `yaml:"path"`
}

// ShardingConfig configures concurrent partial windows.
type ShardingConfig struct {
	// Shards is the number of partial windows per batch. 1 disables sharding.
	Shards int `yaml:"shards"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON selects JSON output.
	JSON bool `yaml:"json"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse overlays YAML data on the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with the calibration defaults.
func DefaultConfig() *Config {
	return &Config{
		Slot: SlotConfig{
			Length:     defaults.DefaultSlotLength,
			MaxDelay:   defaults.DefaultMaxDelaySlots,
			MinEntries: defaults.DefaultMinEntriesPerSide,
		},
		Histogram: HistogramConfig{
			Bins:           defaults.DefaultBins,
			SketchAccuracy: defaults.DefaultSketchAccuracy,
		},
		Cuts: CutsConfig{
			Enabled:     true,
			MinMomentum: defaults.DefaultMinMomentum,
			MaxMomentum: defaults.DefaultMaxMomentum,
			MinClusters: defaults.DefaultMinClusters,
		},
		Emission: EmissionConfig{
			ObjectPath:  defaults.DefaultObjectPath,
			ValidityEnd: defaults.DefaultValidityEnd,
		},
		Journal: JournalConfig{
			SyncMode:       defaults.DefaultJournalSyncMode,
			MaxSegmentSize: defaults.DefaultJournalMaxSegmentSize,
		},
		Store: StoreConfig{
			Path:        defaults.DefaultStorePath,
			MemoryLimit: "1GB",
		},
		Dump: DumpConfig{
			Path: defaults.DefaultDumpPath,
		},
		Sharding: ShardingConfig{
			Shards: defaults.DefaultShards,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// WindowOptions returns the slot window options.
func (c *Config) WindowOptions() slot.Options {
	return slot.Options{
		SlotLength:        c.Slot.Length,
		MaxDelaySlots:     c.Slot.MaxDelay,
		MinEntriesPerSide: c.Slot.MinEntries,
	}
}

// CutOptions returns the admission policy options.
func (c *Config) CutOptions() cut.Options {
	return cut.Options{
		Enabled:     c.Cuts.Enabled,
		MinMomentum: c.Cuts.MinMomentum,
		MaxMomentum: c.Cuts.MaxMomentum,
		MinClusters: c.Cuts.MinClusters,
	}
}

// EmitOptions returns the emitter options.
func (c *Config) EmitOptions() emit.Options {
	return emit.Options{
		ObjectPath:  c.Emission.ObjectPath,
		ValidityEnd: c.Emission.ValidityEnd,
	}
}
