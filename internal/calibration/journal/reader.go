package journal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/xtxerr/tfcalib/config"
	"github.com/xtxerr/tfcalib/internal/calibration/types"
	"github.com/xtxerr/tfcalib/internal/errors"
	"github.com/xtxerr/tfcalib/internal/logging"
)

// Reader reads batches from one segment file.
type Reader struct {
	path string
	file *os.File
	r    *bufio.Reader

	maxRecordSize uint32

	stats ReaderStats
}

// ReaderStats holds journal reader statistics.
type ReaderStats struct {
	BatchesRead    int64
	SamplesRead    int64
	BytesRead      int64
	CorruptRecords int64
}

func (s *ReaderStats) add(o ReaderStats) {
	s.BatchesRead += o.BatchesRead
	s.SamplesRead += o.SamplesRead
	s.BytesRead += o.BytesRead
	s.CorruptRecords += o.CorruptRecords
}

// NewReader opens a segment file and verifies its header.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment: %w", err)
	}

	r := bufio.NewReader(f)

	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("read header of %s: %v: %w", path, err, errors.ErrCorruptRecord)
	}

	if magic := binary.LittleEndian.Uint64(header[0:8]); magic != journalMagic {
		f.Close()
		return nil, fmt.Errorf("invalid magic in %s: expected %x, got %x: %w", path, uint64(journalMagic), magic, errors.ErrCorruptRecord)
	}
	if version := binary.LittleEndian.Uint32(header[8:12]); version != journalVersion {
		f.Close()
		return nil, fmt.Errorf("unsupported journal version %d in %s", version, path)
	}

	return &Reader{
		path:          path,
		file:          f,
		r:             r,
		maxRecordSize: config.DefaultJournalMaxRecordSize,
	}, nil
}

// Next reads the next batch. It returns io.EOF at the end of the segment
// and io.ErrUnexpectedEOF for a truncated tail. A record whose checksum or
// encoding is wrong yields an error wrapping ErrCorruptRecord; reading may
// continue past it.
func (r *Reader) Next() (types.Batch, error) {
	var header [recordHeaderSize]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		if err == io.EOF {
			return types.Batch{}, io.EOF
		}
		return types.Batch{}, io.ErrUnexpectedEOF
	}

	length := binary.LittleEndian.Uint32(header[0:4])
	expectedCRC := binary.LittleEndian.Uint32(header[4:8])

	// An implausible length means the framing itself is lost.
	if length > r.maxRecordSize {
		return types.Batch{}, fmt.Errorf("record of %d bytes: %w", length, io.ErrUnexpectedEOF)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return types.Batch{}, io.ErrUnexpectedEOF
	}
	r.stats.BytesRead += int64(recordHeaderSize) + int64(length)

	if actualCRC := crc32.ChecksumIEEE(payload); actualCRC != expectedCRC {
		r.stats.CorruptRecords++
		return types.Batch{}, fmt.Errorf("CRC mismatch: expected %x, got %x: %w", expectedCRC, actualCRC, errors.ErrCorruptRecord)
	}

	b, err := decodeBatch(payload)
	if err != nil {
		r.stats.CorruptRecords++
		return types.Batch{}, err
	}

	r.stats.BatchesRead++
	r.stats.SamplesRead += int64(len(b.Samples))

	return b, nil
}

// ReadAll reads every intact batch of the segment, skipping corrupt records.
func (r *Reader) ReadAll() ([]types.Batch, error) {
	var batches []types.Batch
	err := r.each(func(b types.Batch) error {
		batches = append(batches, b)
		return nil
	})
	return batches, err
}

func (r *Reader) each(fn func(types.Batch) error) error {
	for {
		b, err := r.Next()
		switch {
		case err == nil:
			if err := fn(b); err != nil {
				return err
			}
		case err == io.EOF:
			return nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			r.stats.CorruptRecords++
			return nil
		case errors.Is(err, errors.ErrCorruptRecord):
			continue
		default:
			return err
		}
	}
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Stats returns reader statistics.
func (r *Reader) Stats() ReaderStats {
	return r.stats
}

// Path returns the segment path.
func (r *Reader) Path() string {
	return r.path
}

// Replay calls fn for every intact batch in dir, walking segments in
// sequence order. Corrupt records and truncated tails are skipped and
// counted. An error from fn stops the replay and is returned.
func Replay(dir string, fn func(types.Batch) error) (ReaderStats, error) {
	var total ReaderStats
	log := logging.Component("journal")

	segments, err := listSegments(dir)
	if err != nil {
		return total, fmt.Errorf("list segments: %w", err)
	}

	for _, seg := range segments {
		r, err := NewReader(seg.path)
		if err != nil {
			if errors.Is(err, errors.ErrCorruptRecord) {
				log.Warn("skipping unreadable segment", "path", seg.path, "error", err)
				total.CorruptRecords++
				continue
			}
			return total, err
		}

		err = r.each(fn)
		total.add(r.stats)
		r.Close()

		if err != nil {
			return total, fmt.Errorf("replay %s: %w", seg.path, err)
		}
	}

	if total.CorruptRecords > 0 {
		log.Warn("journal replay skipped corrupt records", "corrupt", total.CorruptRecords)
	}
	log.Info("journal replayed",
		"segments", len(segments),
		"batches", total.BatchesRead,
		"samples", total.SamplesRead)

	return total, nil
}
