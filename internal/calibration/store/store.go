// Package store persists calibration records in DuckDB and answers
// lookups by validity interval.
//
// Records are keyed by (object path, validity start). Writing the same key
// again replaces the row, so redelivery after a transient failure is
// idempotent.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/tfcalib/internal/calibration/emit"
	"github.com/xtxerr/tfcalib/internal/calibration/types"
	"github.com/xtxerr/tfcalib/internal/errors"
	"github.com/xtxerr/tfcalib/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS calibration_records (
	object_path    VARCHAR NOT NULL,
	validity_start BIGINT  NOT NULL,
	validity_end   BIGINT  NOT NULL,
	slot_start     BIGINT  NOT NULL,
	slot_end       BIGINT  NOT NULL,
	enough_data    BOOLEAN NOT NULL,
	entries_a      UBIGINT NOT NULL,
	entries_c      UBIGINT NOT NULL,
	payload        BLOB    NOT NULL,
	PRIMARY KEY (object_path, validity_start)
)`

const selectColumns = `object_path, validity_start, validity_end, slot_start, slot_end, enough_data, payload`

// Options configures a DuckDB store.
type Options struct {
	// Path is the database file. Empty opens an in-memory database.
	Path string

	// MemoryLimit is the DuckDB memory limit, e.g. "1GB". Empty keeps the
	// DuckDB default.
	MemoryLimit string
}

// Stats holds store statistics.
type Stats struct {
	Puts    int64
	Lookups int64
	Errors  int64
}

// DuckDB is a record store backed by a DuckDB database.
type DuckDB struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool

	statsMu sync.Mutex
	stats   Stats

	log *slog.Logger
}

// Open opens or creates the record store.
func Open(opts Options) (*DuckDB, error) {
	db, err := sql.Open("duckdb", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if opts.MemoryLimit != "" {
		limit := strings.ReplaceAll(opts.MemoryLimit, "'", "''")
		if _, err := db.Exec(fmt.Sprintf("SET memory_limit='%s'", limit)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &DuckDB{
		db:  db,
		log: logging.Component("store"),
	}
	s.log.Debug("record store opened", "path", opts.Path)

	return s, nil
}

// Put inserts or replaces the record keyed by its object path and
// validity start. Failures wrap ErrStoreUnavailable.
func (s *DuckDB) Put(ctx context.Context, rec types.Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("put record: %w", errors.ErrStoreUnavailable)
	}
	if rec.ObjectPath == "" {
		s.countError()
		return fmt.Errorf("put record without object path: %w", errors.ErrRecordRejected)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO calibration_records
			(object_path, validity_start, validity_end, slot_start, slot_end,
			 enough_data, entries_a, entries_c, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ObjectPath, rec.ValidityStart, rec.ValidityEnd, rec.SlotStart, rec.SlotEnd,
		rec.EnoughData, rec.Stats[types.SideA].Entries, rec.Stats[types.SideC].Entries, rec.Payload)
	if err != nil {
		s.countError()
		return fmt.Errorf("put record %s@%d: %v: %w", rec.ObjectPath, rec.ValidityStart, err, errors.ErrStoreUnavailable)
	}

	s.statsMu.Lock()
	s.stats.Puts++
	s.statsMu.Unlock()

	return nil
}

// Lookup returns the record for path that is valid at t. When several
// intervals cover t, the one with the latest validity start wins, since
// a newer record supersedes an open-ended older one.
func (s *DuckDB) Lookup(ctx context.Context, path string, t int64) (types.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return types.Record{}, errors.ErrClosed
	}

	s.statsMu.Lock()
	s.stats.Lookups++
	s.statsMu.Unlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM calibration_records
		WHERE object_path = ? AND validity_start <= ? AND ? < validity_end
		ORDER BY validity_start DESC
		LIMIT 1`, path, t, t)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return types.Record{}, fmt.Errorf("%s at %d: %w", path, t, errors.ErrRecordNotFound)
	}
	if err != nil {
		s.countError()
		return types.Record{}, err
	}
	return rec, nil
}

// List returns every record, optionally restricted to one object path,
// ordered by object path and validity start.
func (s *DuckDB) List(ctx context.Context, path string) ([]types.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errors.ErrClosed
	}

	query := `SELECT ` + selectColumns + ` FROM calibration_records`
	var args []any
	if path != "" {
		query += ` WHERE object_path = ?`
		args = append(args, path)
	}
	query += ` ORDER BY object_path, validity_start`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.countError()
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []types.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			s.countError()
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Count returns the number of stored records.
func (s *DuckDB) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, errors.ErrClosed
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM calibration_records`).Scan(&n); err != nil {
		s.countError()
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *DuckDB) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Stats returns store statistics.
func (s *DuckDB) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *DuckDB) countError() {
	s.statsMu.Lock()
	s.stats.Errors++
	s.statsMu.Unlock()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (types.Record, error) {
	var rec types.Record
	if err := sc.Scan(
		&rec.ObjectPath,
		&rec.ValidityStart,
		&rec.ValidityEnd,
		&rec.SlotStart,
		&rec.SlotEnd,
		&rec.EnoughData,
		&rec.Payload,
	); err != nil {
		return types.Record{}, err
	}

	p, err := emit.DecodePayload(rec.Payload)
	if err != nil {
		return types.Record{}, fmt.Errorf("record %s@%d: %w", rec.ObjectPath, rec.ValidityStart, err)
	}
	rec.Stats = p.Stats

	return rec, nil
}

var _ emit.Store = (*DuckDB)(nil)
