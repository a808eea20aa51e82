package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/xtxerr/tfcalib/internal/errors"
	"github.com/xtxerr/tfcalib/internal/logging"
)

// Validate checks the configuration for errors. Out-of-range values are
// reported, never clamped.
func (c *Config) Validate() error {
	var errs []error

	// Slot
	if err := c.WindowOptions().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("slot: %w", err))
	}

	// Histogram
	if err := c.Histogram.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("histogram: %w", err))
	}

	// Cuts
	if err := c.CutOptions().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("cuts: %w", err))
	}

	// Emission
	if err := c.Emission.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("emission: %w", err))
	}

	// Journal
	if err := c.Journal.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("journal: %w", err))
	}

	// Store
	if _, err := ParseMemoryLimit(c.Store.MemoryLimit); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}

	// Sharding
	if c.Sharding.Shards < 1 {
		errs = append(errs, errors.NewInvalidValue("sharding.shards", c.Sharding.Shards, "must be at least 1"))
	}

	// Logging
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, errors.NewValidation("logging.level", err.Error()))
	}

	return errors.Join(errs...)
}

// Validate checks the histogram configuration.
func (c *HistogramConfig) Validate() error {
	var errs []error

	if c.Bins <= 0 {
		errs = append(errs, errors.NewInvalidValue("histogram.bins", c.Bins, "must be positive"))
	}
	if math.IsNaN(c.SketchAccuracy) || c.SketchAccuracy < 0 || c.SketchAccuracy >= 1 {
		errs = append(errs, errors.NewInvalidValue("histogram.sketch_accuracy", c.SketchAccuracy, "must be in [0, 1)"))
	}

	return errors.Join(errs...)
}

// Validate checks the emission configuration.
func (c *EmissionConfig) Validate() error {
	var errs []error

	if c.ObjectPath == "" {
		errs = append(errs, errors.NewMissingField("emission.object_path"))
	}
	if c.ValidityEnd <= 0 {
		errs = append(errs, errors.NewInvalidValue("emission.validity_end", c.ValidityEnd, "must be positive"))
	}

	return errors.Join(errs...)
}

// Validate checks the journal configuration.
func (c *JournalConfig) Validate() error {
	var errs []error

	validSyncModes := map[string]bool{
		"async": true,
		"sync":  true,
		"fsync": true,
		"":      true, // Empty defaults to async
	}
	if !validSyncModes[c.SyncMode] {
		errs = append(errs, errors.NewInvalidValue("journal.sync_mode", c.SyncMode, "must be one of: async, sync, fsync"))
	}

	if c.MaxSegmentSize < 0 {
		errs = append(errs, errors.NewInvalidValue("journal.max_segment_size", c.MaxSegmentSize, "must be non-negative"))
	}

	return errors.Join(errs...)
}

// ParseMemoryLimit parses a memory limit like "2GB" or "512MiB" into
// bytes. Units follow DuckDB: KB, MB, GB are powers of 1000 and KiB, MiB,
// GiB powers of 1024. An empty string yields 0, meaning the DuckDB default.
func ParseMemoryLimit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, errors.NewInvalidValue("store.memory_limit", s, err.Error())
	}
	if n > math.MaxInt64 {
		return 0, errors.NewInvalidValue("store.memory_limit", s, "exceeds int64")
	}
	return int64(n), nil
}
