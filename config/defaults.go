// Package config provides configuration defaults for the tfcalib
// calibration engine.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or command-line flags.
package config

// =============================================================================
// Slot Defaults
// =============================================================================

const (
	// DefaultSlotLength is the number of time frames covered by one slot.
	// Override via config: slot.length
	DefaultSlotLength = 100

	// DefaultMaxDelaySlots is how many slots of reordering are tolerated
	// before an open slot is force-finalized.
	// Override via config: slot.max_delay
	DefaultMaxDelaySlots = 3

	// DefaultMinEntriesPerSide is the advisory sufficiency threshold.
	// A slot below it on either side is still emitted but flagged.
	// Override via config: slot.min_entries
	DefaultMinEntriesPerSide = 100
)

// =============================================================================
// Histogram Defaults
// =============================================================================

const (
	// DefaultBins is the number of unit-width bins per side.
	// Override via config: histogram.bins
	DefaultBins = 200

	// DefaultSketchAccuracy is the relative accuracy of the per-side DDSketch.
	// Override via config: histogram.sketch_accuracy
	DefaultSketchAccuracy = 0.01
)

// =============================================================================
// Cut Defaults
// =============================================================================

const (
	// DefaultMinMomentum is the exclusive lower bound of the momentum window.
	// Override via config: cuts.min_momentum
	DefaultMinMomentum = 0.4

	// DefaultMaxMomentum is the exclusive upper bound of the momentum window.
	// Override via config: cuts.max_momentum
	DefaultMaxMomentum = 0.6

	// DefaultMinClusters is the minimum cluster count of an admitted sample.
	// Override via config: cuts.min_clusters
	DefaultMinClusters = 60
)

// =============================================================================
// Emission Defaults
// =============================================================================

const (
	// DefaultObjectPath is the store path calibration records are written to.
	// Override via config: emission.object_path
	DefaultObjectPath = "TPC/Calib/MIPS"

	// DefaultValidityEnd marks a record as valid until superseded.
	// Override via config: emission.validity_end
	DefaultValidityEnd int64 = 99999999999999
)

// =============================================================================
// Journal Defaults
// =============================================================================

const (
	// DefaultJournalSyncMode is the journal sync mode: async, sync, fsync.
	// Override via config: journal.sync_mode
	DefaultJournalSyncMode = "async"

	// DefaultJournalMaxSegmentSize rotates journal segments at 64MB.
	// Override via config: journal.max_segment_size
	DefaultJournalMaxSegmentSize = 64 * 1024 * 1024

	// DefaultJournalMaxRecordSize bounds a single batch record on read.
	DefaultJournalMaxRecordSize = 64 * 1024 * 1024
)

// =============================================================================
// Output Defaults
// =============================================================================

const (
	// DefaultStorePath is the DuckDB record store file.
	// Override via config: store.path
	DefaultStorePath = "tfcalib.duckdb"

	// DefaultDumpPath is the diagnostic dump written at end of stream.
	// Override via config: dump.path
	DefaultDumpPath = "mip_position.parquet"

	// DefaultShards is the number of partial windows filled per batch.
	// 1 disables sharded ingestion.
	// Override via config: sharding.shards
	DefaultShards = 1
)
