// Package dump writes emitted calibration records to a Parquet file for
// offline inspection and reads them back.
package dump

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/tfcalib/internal/calibration/types"
	"github.com/xtxerr/tfcalib/internal/errors"
	"github.com/xtxerr/tfcalib/internal/logging"
)

// Row is one record in Parquet form. Statistics of an undefined side are
// stored as nulls.
type Row struct {
	ObjectPath    string `parquet:"object_path,dict,zstd"`
	ValidityStart int64  `parquet:"validity_start"`
	ValidityEnd   int64  `parquet:"validity_end"`
	SlotStart     int64  `parquet:"slot_start"`
	SlotEnd       int64  `parquet:"slot_end"`
	EnoughData    bool   `parquet:"enough_data"`

	EntriesA  uint64   `parquet:"entries_a"`
	CentroidA *float64 `parquet:"centroid_a,optional"`
	StdDevA   *float64 `parquet:"stddev_a,optional"`
	MedianA   *float64 `parquet:"median_a,optional"`

	EntriesC  uint64   `parquet:"entries_c"`
	CentroidC *float64 `parquet:"centroid_c,optional"`
	StdDevC   *float64 `parquet:"stddev_c,optional"`
	MedianC   *float64 `parquet:"median_c,optional"`

	Payload []byte `parquet:"payload,zstd"`
}

// Options configures the dump writer.
type Options struct {
	// Codec is the page compression codec. Nil means zstd.
	Codec compress.Codec
}

// DefaultOptions returns default dump options.
func DefaultOptions() Options {
	return Options{Codec: &parquet.Zstd}
}

// RecordToRow converts a record to its Parquet row.
func RecordToRow(rec *types.Record) Row {
	a, c := rec.Stats[types.SideA], rec.Stats[types.SideC]
	row := Row{
		ObjectPath:    rec.ObjectPath,
		ValidityStart: rec.ValidityStart,
		ValidityEnd:   rec.ValidityEnd,
		SlotStart:     rec.SlotStart,
		SlotEnd:       rec.SlotEnd,
		EnoughData:    rec.EnoughData,
		EntriesA:      a.Entries,
		EntriesC:      c.Entries,
		Payload:       rec.Payload,
	}

	if a.Defined {
		row.CentroidA, row.StdDevA, row.MedianA = optional(a.Centroid), optional(a.StdDev), optional(a.Median)
	}
	if c.Defined {
		row.CentroidC, row.StdDevC, row.MedianC = optional(c.Centroid), optional(c.StdDev), optional(c.Median)
	}

	return row
}

// RowToRecord converts a Parquet row back to a record.
func RowToRecord(r *Row) types.Record {
	rec := types.Record{
		ObjectPath:    r.ObjectPath,
		ValidityStart: r.ValidityStart,
		ValidityEnd:   r.ValidityEnd,
		SlotStart:     r.SlotStart,
		SlotEnd:       r.SlotEnd,
		EnoughData:    r.EnoughData,
		Payload:       r.Payload,
	}
	rec.Stats[types.SideA] = statistics(r.EntriesA, r.CentroidA, r.StdDevA, r.MedianA)
	rec.Stats[types.SideC] = statistics(r.EntriesC, r.CentroidC, r.StdDevC, r.MedianC)
	return rec
}

func optional(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func statistics(entries uint64, centroid, stddev, median *float64) types.Statistics {
	if centroid == nil {
		s := types.UndefinedStatistics()
		s.Entries = entries
		return s
	}
	return types.Statistics{
		Entries:  entries,
		Centroid: *centroid,
		StdDev:   orNaN(stddev),
		Median:   orNaN(median),
		Defined:  true,
	}
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// Write writes records to path, replacing any previous dump. The file is
// written next to path and renamed into place once complete.
func Write(path string, records []types.Record, opts Options) error {
	if opts.Codec == nil {
		opts.Codec = DefaultOptions().Codec
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	rows := make([]Row, len(records))
	for i := range records {
		rows[i] = RecordToRow(&records[i])
	}

	writer := parquet.NewGenericWriter[Row](tmp, parquet.Compression(opts.Codec))
	if _, err := writer.Write(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename dump: %w", err)
	}

	logging.Component("dump").Info("records dumped", "path", path, "records", len(records))
	return nil
}

// Read returns every record stored in a dump file.
func Read(path string) ([]types.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[Row](f)
	defer reader.Close()

	rows := make([]Row, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	records := make([]types.Record, n)
	for i := 0; i < n; i++ {
		records[i] = RowToRecord(&rows[i])
	}
	return records, nil
}
