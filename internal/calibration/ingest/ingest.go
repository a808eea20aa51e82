// Package ingest reads sample batches from Parquet files written by the
// upstream track decoder, and writes such files for fixtures and tooling.
//
// Each row carries one sample and the sequence number of its batch. A row
// with an empty side is a marker for a batch without samples, so a file
// preserves every time step of the stream.
package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/tfcalib/internal/calibration/types"
	"github.com/xtxerr/tfcalib/internal/errors"
	"github.com/xtxerr/tfcalib/internal/logging"
)

const readChunk = 1024

// Row is one sample in Parquet form.
type Row struct {
	Batch        int64   `parquet:"batch"`
	CurrentTime  int64   `parquet:"current_time"`
	Timestamp    int64   `parquet:"timestamp"`
	Momentum     float64 `parquet:"momentum"`
	ClusterCount int32   `parquet:"cluster_count"`
	Value        float64 `parquet:"value"`
	Side         string  `parquet:"side,dict"`
}

// Stats holds read statistics.
type Stats struct {
	Batches int64
	Samples int64
}

// sideOf maps a side column to a Side. Unknown names map to an invalid
// side, which the window counts as an invalid sample.
func sideOf(name string) types.Side {
	side, err := types.ParseSide(name)
	if err != nil {
		return types.Side(types.NumSides)
	}
	return side
}

// ReadBatches calls fn for every batch in path, in file order. Reading
// stops at the first error returned by fn.
func ReadBatches(path string, fn func(types.Batch) error) (Stats, error) {
	var stats Stats

	f, err := os.Open(path)
	if err != nil {
		return stats, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[Row](f)
	defer reader.Close()

	var (
		cur     *types.Batch
		curSeq  int64
		started bool
	)
	flush := func() error {
		if cur == nil {
			return nil
		}
		b := *cur
		cur = nil
		stats.Batches++
		stats.Samples += int64(len(b.Samples))
		return fn(b)
	}

	buf := make([]Row, readChunk)
	for {
		n, err := reader.Read(buf)
		for i := 0; i < n; i++ {
			row := &buf[i]
			if !started || row.Batch != curSeq {
				if ferr := flush(); ferr != nil {
					return stats, ferr
				}
				started, curSeq = true, row.Batch
				cur = &types.Batch{CurrentTime: row.CurrentTime}
			}
			if row.Side == "" {
				continue
			}
			cur.Samples = append(cur.Samples, types.Sample{
				Timestamp:    row.Timestamp,
				Momentum:     row.Momentum,
				ClusterCount: row.ClusterCount,
				Value:        row.Value,
				Side:         sideOf(row.Side),
			})
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return stats, fmt.Errorf("read rows: %w", err)
		}
		if n == 0 {
			break
		}
	}

	if err := flush(); err != nil {
		return stats, err
	}

	logging.Component("ingest").Info("samples read",
		"path", path,
		"batches", stats.Batches,
		"samples", stats.Samples)
	return stats, nil
}

// WriteBatches writes batches to path, replacing any previous file. The
// file is written next to path and renamed into place once complete.
func WriteBatches(path string, batches []types.Batch) error {
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

	var rows []Row
	for seq, b := range batches {
		if len(b.Samples) == 0 {
			rows = append(rows, Row{Batch: int64(seq), CurrentTime: b.CurrentTime})
			continue
		}
		for _, s := range b.Samples {
			rows = append(rows, Row{
				Batch:        int64(seq),
				CurrentTime:  b.CurrentTime,
				Timestamp:    s.Timestamp,
				Momentum:     s.Momentum,
				ClusterCount: s.ClusterCount,
				Value:        s.Value,
				Side:         s.Side.String(),
			})
		}
	}

	writer := parquet.NewGenericWriter[Row](tmp, parquet.Compression(&parquet.Zstd))
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
		return fmt.Errorf("rename samples file: %w", err)
	}
	return nil
}
