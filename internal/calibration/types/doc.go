// Package types defines the core data types used throughout the calibration engine.
//
// Key types:
//   - Sample: A single per-track measurement tagged with a time-frame index
//   - Batch: The samples delivered for one unit of stream progress
//   - Statistics: Summary statistics of one histogram side
//   - Record: A versioned calibration record with a validity interval
package types
