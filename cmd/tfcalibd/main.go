// tfcalibd runs the calibration engine over a stream of batches and writes
// the resulting records to the record store.
//
// With -ingest it reads batches from a Parquet samples file and records
// every batch to the journal when journal.dir is set. Without it, it
// replays the journal.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xtxerr/tfcalib/internal/calibration/config"
	"github.com/xtxerr/tfcalib/internal/calibration/engine"
	"github.com/xtxerr/tfcalib/internal/calibration/ingest"
	"github.com/xtxerr/tfcalib/internal/calibration/journal"
	"github.com/xtxerr/tfcalib/internal/calibration/store"
	"github.com/xtxerr/tfcalib/internal/calibration/telemetry"
	"github.com/xtxerr/tfcalib/internal/calibration/types"
	"github.com/xtxerr/tfcalib/internal/errors"
	"github.com/xtxerr/tfcalib/internal/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "config.yaml", "config file path")
	ingestPath := flag.String("ingest", "", "parquet samples file to ingest (journals to journal.dir if set)")
	journalDir := flag.String("journal", "", "journal directory (overrides config)")
	storePath := flag.String("store", "", "record store path (overrides config)")
	dumpPath := flag.String("dump", "", "parquet dump path (overrides config)")
	metricsPath := flag.String("metrics", "", "metrics output path, - for stdout (overrides config)")
	shards := flag.Int("shards", 0, "partial windows per batch (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg = config.DefaultConfig()
		} else {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}

	// CLI overrides
	if *journalDir != "" {
		cfg.Journal.Dir = *journalDir
	}
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}
	if *dumpPath != "" {
		cfg.Dump.Path = *dumpPath
	}
	if *metricsPath != "" {
		cfg.Metrics.Path = *metricsPath
	}
	if *shards != 0 {
		cfg.Sharding.Shards = *shards
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	logging.Init(level, cfg.Logging.JSON)
	log := logging.Component("main")
	log.Info("tfcalibd starting", "version", Version)

	if err := run(cfg, *ingestPath, log); err != nil {
		log.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, ingestPath string, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if ingestPath == "" && cfg.Journal.Dir == "" {
		return errors.NewMissingField("journal.dir")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.ContextWithRunID(ctx, fmt.Sprintf("run-%d", time.Now().Unix()))

	// =========================================================================
	// Record store (DuckDB)
	// =========================================================================

	log.Info("opening record store", "path", cfg.Store.Path)
	db, err := store.Open(store.Options{
		Path:        cfg.Store.Path,
		MemoryLimit: cfg.Store.MemoryLimit,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	var opts []engine.Option
	if ingestPath != "" && cfg.Journal.Dir != "" {
		jw, err := journal.NewWriter(cfg.Journal.Dir, journal.Options{
			MaxSegmentSize: cfg.Journal.MaxSegmentSize,
			SyncMode:       cfg.Journal.SyncMode,
		})
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer jw.Close()
		opts = append(opts, engine.WithJournal(jw))
		log.Info("recording journal", "dir", cfg.Journal.Dir, "sync_mode", cfg.Journal.SyncMode)
	}

	eng, err := engine.New(cfg, db, opts...)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	process := func(b types.Batch) error {
		return eng.Process(ctx, b.CurrentTime, b.Samples)
	}

	// =========================================================================
	// Input
	// =========================================================================

	if ingestPath != "" {
		stats, err := ingest.ReadBatches(ingestPath, process)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", ingestPath, err)
		}
		log.Info("samples ingested", "batches", stats.Batches, "samples", stats.Samples)
	} else {
		stats, err := journal.Replay(cfg.Journal.Dir, process)
		if err != nil {
			return fmt.Errorf("replay journal: %w", err)
		}
		log.Info("journal replayed",
			"batches", stats.BatchesRead,
			"samples", stats.SamplesRead,
			"corrupt", stats.CorruptRecords)
	}

	if err := eng.FlushAll(ctx); err != nil {
		log.Warn("records undelivered after flush, retrying", "error", err)
		if err := eng.Retry(ctx); err != nil {
			return fmt.Errorf("deliver pending records: %w", err)
		}
	}

	// =========================================================================
	// Outputs
	// =========================================================================

	if cfg.Dump.Path != "" {
		if err := eng.Dump(cfg.Dump.Path); err != nil {
			return fmt.Errorf("write dump: %w", err)
		}
	}

	if cfg.Metrics.Path != "" {
		if err := telemetry.WriteFile(cfg.Metrics.Path, eng.Snapshot()); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	s := eng.Stats()
	log.Info("calibration complete",
		"batches", s.BatchesProcessed,
		"slots", s.Window.SlotsFinalized,
		"records", s.Emitter.RecordsDelivered)

	return nil
}
