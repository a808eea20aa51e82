// Package journal persists ingested batches in append-only segment files
// and replays them in order.
//
// Segment format:
//   - Header: 8 bytes magic + 4 bytes version
//   - Records: [4 bytes length][4 bytes crc32][payload], one batch each
package journal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/xtxerr/tfcalib/config"
	"github.com/xtxerr/tfcalib/internal/calibration/types"
	"github.com/xtxerr/tfcalib/internal/errors"
	"github.com/xtxerr/tfcalib/internal/logging"
)

const (
	journalMagic     = 0x5446434A524E4C01 // "TFCJRNL" + version 1
	journalVersion   = 1
	headerSize       = 12 // 8 bytes magic + 4 bytes version
	recordHeaderSize = 8  // 4 bytes length + 4 bytes crc

	segmentExt = ".tfj"
)

// Sync modes.
const (
	SyncAsync = "async" // Buffered; flushed on rotation, Sync and Close
	SyncSync  = "sync"  // Flushed after every batch
	SyncFsync = "fsync" // Flushed and fsynced after every batch
)

// Options configures the journal writer.
type Options struct {
	// MaxSegmentSize is the maximum size of a segment file before rotation.
	MaxSegmentSize int64

	// SyncMode controls how writes reach the disk.
	SyncMode string

	// BufferSize is the size of the write buffer.
	BufferSize int
}

// DefaultOptions returns default journal options.
func DefaultOptions() Options {
	return Options{
		MaxSegmentSize: config.DefaultJournalMaxSegmentSize,
		SyncMode:       config.DefaultJournalSyncMode,
		BufferSize:     64 * 1024, // 64KB
	}
}

// WriterStats holds journal writer statistics.
type WriterStats struct {
	SegmentsCreated int64
	BatchesWritten  int64
	SamplesWritten  int64
	BytesWritten    int64
	SyncsPerformed  int64
	Errors          int64
}

// Writer appends batches to the journal. It is safe for concurrent use.
type Writer struct {
	mu sync.Mutex

	dir         string
	segment     *os.File
	segmentPath string
	segmentSize int64
	segmentSeq  int64
	writer      *bufio.Writer
	closed      bool

	opts  Options
	stats WriterStats
	log   *slog.Logger
}

// NewWriter opens a journal in dir. Existing segments are kept and new
// batches go to a fresh segment after them.
func NewWriter(dir string, opts Options) (*Writer, error) {
	if opts.MaxSegmentSize <= 0 {
		opts.MaxSegmentSize = DefaultOptions().MaxSegmentSize
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	switch opts.SyncMode {
	case "":
		opts.SyncMode = SyncAsync
	case SyncAsync, SyncSync, SyncFsync:
	default:
		return nil, errors.NewInvalidValue("journal.sync_mode", opts.SyncMode, "must be one of: async, sync, fsync")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	w := &Writer{
		dir:  dir,
		opts: opts,
		log:  logging.Component("journal"),
	}

	segments, err := listSegments(dir)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	if len(segments) > 0 {
		w.segmentSeq = segments[len(segments)-1].seq + 1
	}

	if err := w.rotateLocked(); err != nil {
		return nil, fmt.Errorf("create initial segment: %w", err)
	}

	return w, nil
}

// Append writes one batch as a single record.
func (w *Writer) Append(b types.Batch) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.ErrClosed
	}

	payload := encodeBatch(&b)
	recordSize := int64(recordHeaderSize + len(payload))

	// A record larger than a segment still gets a segment of its own.
	if w.segmentSize > headerSize && w.segmentSize+recordSize > w.opts.MaxSegmentSize {
		if err := w.rotateLocked(); err != nil {
			w.stats.Errors++
			return fmt.Errorf("rotate segment: %w", err)
		}
	}

	if err := w.writeRecord(payload); err != nil {
		w.stats.Errors++
		return fmt.Errorf("write record: %w", err)
	}

	w.stats.BatchesWritten++
	w.stats.SamplesWritten += int64(len(b.Samples))
	w.stats.BytesWritten += recordSize

	if w.opts.SyncMode != SyncAsync {
		if err := w.syncLocked(); err != nil {
			w.stats.Errors++
			return fmt.Errorf("sync: %w", err)
		}
	}

	return nil
}

func (w *Writer) writeRecord(payload []byte) error {
	var header [recordHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], crc32.ChecksumIEEE(payload))

	if _, err := w.writer.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.writer.Write(payload); err != nil {
		return err
	}

	w.segmentSize += int64(recordHeaderSize + len(payload))
	return nil
}

// Sync flushes buffered data to disk.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.ErrClosed
	}
	return w.syncLocked()
}

func (w *Writer) syncLocked() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if w.opts.SyncMode == SyncFsync {
		if err := w.segment.Sync(); err != nil {
			return err
		}
	}
	w.stats.SyncsPerformed++
	return nil
}

// Rotate closes the current segment and starts a new one.
func (w *Writer) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.ErrClosed
	}
	return w.rotateLocked()
}

func (w *Writer) rotateLocked() error {
	if err := w.closeSegment(); err != nil {
		return err
	}

	path := filepath.Join(w.dir, segmentName(w.segmentSeq))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create segment %s: %w", path, err)
	}

	var header [headerSize]byte
	binary.LittleEndian.PutUint64(header[0:8], journalMagic)
	binary.LittleEndian.PutUint32(header[8:12], journalVersion)

	if _, err := f.Write(header[:]); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write header: %w", err)
	}

	w.segment = f
	w.segmentPath = path
	w.segmentSize = headerSize
	w.writer = bufio.NewWriterSize(f, w.opts.BufferSize)
	w.segmentSeq++
	w.stats.SegmentsCreated++

	w.log.Debug("journal segment created", "path", path)
	return nil
}

func (w *Writer) closeSegment() error {
	if w.segment == nil {
		return nil
	}

	flushErr := w.writer.Flush()
	closeErr := w.segment.Close()
	w.segment = nil
	w.writer = nil

	if flushErr != nil {
		return fmt.Errorf("flush segment %s: %w", w.segmentPath, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close segment %s: %w", w.segmentPath, closeErr)
	}
	return nil
}

// Close flushes and closes the journal. Further appends fail with ErrClosed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.closeSegment()
}

// Stats returns writer statistics.
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// CurrentSegment returns the current segment path.
func (w *Writer) CurrentSegment() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.segmentPath
}

// segmentInfo holds information about a segment file.
type segmentInfo struct {
	path string
	seq  int64
}

func segmentName(seq int64) string {
	return fmt.Sprintf("%016d%s", seq, segmentExt)
}

// listSegments returns all segment files in dir in sequence order.
func listSegments(dir string) ([]segmentInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var segments []segmentInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || len(name) != 16+len(segmentExt) || filepath.Ext(name) != segmentExt {
			continue
		}

		var seq int64
		if _, err := fmt.Sscanf(name, "%016d"+segmentExt, &seq); err != nil {
			continue
		}

		segments = append(segments, segmentInfo{
			path: filepath.Join(dir, name),
			seq:  seq,
		})
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].seq < segments[j].seq
	})

	return segments, nil
}

// ListSegments returns all segment paths in dir in sequence order.
func ListSegments(dir string) ([]string, error) {
	segments, err := listSegments(dir)
	if err != nil {
		return nil, err
	}

	paths := make([]string, len(segments))
	for i, s := range segments {
		paths[i] = s.path
	}
	return paths, nil
}
