package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/core/service"
	"github.com/yndnr/metalgate/internal/server/config"
	"github.com/yndnr/metalgate/internal/storage"
	"github.com/yndnr/metalgate/internal/storage/memory"
	"github.com/yndnr/metalgate/internal/storage/postgres"
	"github.com/yndnr/metalgate/internal/storage/redisstore"
	"github.com/yndnr/metalgate/internal/storage/snapshot"
	"github.com/yndnr/metalgate/internal/storage/wal"
	"github.com/yndnr/metalgate/internal/telemetry/logger"
	"github.com/yndnr/metalgate/internal/telemetry/metric"
	"github.com/yndnr/metalgate/pkg/crypto/adaptive"
)

// janitorInterval is how often expired session tokens are purged from
// backends without native TTLs.
const janitorInterval = 5 * time.Minute

// stores is the storage wiring chosen by configuration.
type stores struct {
	backend storage.Backend
	tokens  storage.TokenStore

	ping    func(context.Context) error
	sweep   func(context.Context) (int64, error)
	closers []func() error

	// Set for the memory backend when snapshots are enabled.
	snapshot         func() error
	snapshotInterval time.Duration
}

// initStorage opens the configured backend and, when enabled, the Redis
// session store.
func initStorage(ctx context.Context, cfg *config.ServerConfig, reg *metric.Registry, log logger.Logger) (*stores, error) {
	s := &stores{}

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		mem := memory.New()
		s.backend = mem
		s.sweep = func(context.Context) (int64, error) {
			return int64(mem.Sweep()), nil
		}
		if cfg.Storage.Snapshot.Dir != "" {
			if err := s.initSnapshots(ctx, cfg.Storage.Snapshot, mem, log); err != nil {
				return nil, err
			}
		}

	case config.BackendBadger:
		engine, err := storage.NewBadgerEngine(storage.DefaultKVConfig(cfg.Storage.DataDir), log.With("component", "badger"))
		if err != nil {
			return nil, err
		}
		if err := engine.RegisterMetrics(reg.Registerer()); err != nil {
			engine.Close()
			return nil, err
		}
		s.backend = storage.NewKVStore(engine)

	case config.BackendPostgres:
		pg, err := postgres.Open(ctx, cfg.Storage.PostgresDSN, postgres.WithTimeout(cfg.Storage.PostgresTimeout))
		if err != nil {
			return nil, err
		}
		s.backend = pg
		s.ping = pg.Ping
		s.sweep = pg.PurgeExpired

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	s.closers = append(s.closers, s.backend.Close)
	s.tokens = s.backend

	if cfg.Redis.Enabled {
		rs, err := redisstore.New(ctx, redisstore.Config{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			s.close()
			return nil, err
		}
		s.tokens = rs
		s.closers = append(s.closers, rs.Close)
		// Redis expires tokens itself.
		s.sweep = nil
	}

	log.Info("storage initialized", "backend", cfg.Storage.Backend, "redis_sessions", cfg.Redis.Enabled)
	return s, nil
}

// initSnapshots restores the newest snapshot into mem, replays the
// write-ahead log on top of it and arranges for periodic and final
// snapshots. With the log enabled the backend becomes a journal over mem.
func (s *stores) initSnapshots(ctx context.Context, cfg config.SnapshotSection, mem *memory.Store, log logger.Logger) error {
	passphrase := []byte(cfg.Passphrase)
	mgr, err := snapshot.NewManager(snapshot.Config{
		Dir:        cfg.Dir,
		Retain:     cfg.Retain,
		Passphrase: passphrase,
		Cipher:     adaptive.CipherType(cfg.Cipher),
	})
	if err != nil {
		return err
	}

	var from uint64
	st, info, err := mgr.Load()
	switch {
	case errors.Is(err, snapshot.ErrNoSnapshots):
		log.Info("no snapshot to restore", "dir", cfg.Dir)
	case err != nil:
		mgr.Close()
		return fmt.Errorf("restore snapshot: %w", err)
	default:
		mem.Import(st)
		from = info.WALSegment
		log.Info("snapshot restored",
			"id", info.ID,
			"users", info.Users,
			"keys", info.Keys,
			"tokens", info.Tokens,
			"encrypted", info.Encrypted)
	}

	// Replay whatever log exists, even with the log now disabled.
	walDir := filepath.Join(cfg.Dir, "wal")
	if err := replayWAL(ctx, walDir, from, passphrase, mem, log); err != nil {
		mgr.Close()
		return err
	}
	compactor := wal.NewCompactor(walDir)

	var journal *wal.Journal
	if cfg.WAL.Enabled {
		w, err := wal.NewWriter(wal.Config{
			Dir:          walDir,
			SyncMode:     wal.SyncMode(cfg.WAL.Sync),
			SyncInterval: cfg.WAL.SyncInterval,
			Passphrase:   passphrase,
			Cipher:       adaptive.CipherType(cfg.Cipher),
		})
		if err != nil {
			mgr.Close()
			return fmt.Errorf("open wal: %w", err)
		}
		journal = wal.NewJournal(mem, w)
		s.backend = journal
		log.Info("write-ahead log enabled", "dir", walDir, "sync", cfg.WAL.Sync, "segment", w.Segment())
	}

	s.snapshotInterval = cfg.Interval
	s.snapshot = func() error {
		var st *snapshot.State
		if journal != nil {
			err := journal.Checkpoint(func(segment uint64) error {
				st = mem.Export()
				st.WALSegment = segment
				return nil
			})
			if err != nil {
				return err
			}
		} else {
			st = mem.Export()
		}

		info, err := mgr.Save(st)
		if err != nil {
			return err
		}
		if _, err := mgr.Prune(); err != nil {
			log.Warn("snapshot prune failed", "error", err)
		}
		log.Debug("snapshot written", "id", info.ID, "size", info.Size, "wal_segment", info.WALSegment)

		if journal == nil {
			_, err = compactor.CleanAll()
		} else if oldest, ierr := mgr.OldestWALSegment(); ierr == nil && oldest > 0 {
			_, err = compactor.Compact(oldest)
		}
		if err != nil {
			log.Warn("wal compaction failed", "error", err)
		}
		return nil
	}
	s.closers = append(s.closers, func() error {
		mgr.Close()
		return nil
	})
	return nil
}

func replayWAL(ctx context.Context, dir string, from uint64, passphrase []byte, mem *memory.Store, log logger.Logger) error {
	r, err := wal.NewReader(dir, from, passphrase)
	if err != nil {
		return fmt.Errorf("open wal: %w", err)
	}
	defer r.Close()

	stats, err := wal.Replay(ctx, r, mem, time.Now())
	if err != nil {
		return fmt.Errorf("replay wal: %w", err)
	}
	if stats.Truncated > 0 {
		log.Warn("wal segments ended early", "segments", stats.Truncated)
	}
	if stats.Applied+stats.Skipped > 0 {
		log.Info("wal replayed", "from_segment", from, "applied", stats.Applied, "skipped", stats.Skipped)
	}
	return nil
}

// runSnapshots writes snapshots on the configured interval until ctx is
// done.
func (s *stores) runSnapshots(ctx context.Context, log logger.Logger) {
	if s.snapshot == nil || s.snapshotInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.snapshot(); err != nil {
				log.Warn("snapshot failed", "error", err)
			}
		}
	}
}

// close takes a final snapshot and releases every store in reverse order
// of opening.
func (s *stores) close() error {
	var errs []error
	if s.snapshot != nil {
		if err := s.snapshot(); err != nil {
			errs = append(errs, fmt.Errorf("final snapshot: %w", err))
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// runJanitor purges expired session tokens until ctx is done.
func (s *stores) runJanitor(ctx context.Context, log logger.Logger) {
	if s.sweep == nil {
		return
	}
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.sweep(ctx)
			if err != nil {
				log.Warn("token purge failed", "error", err)
				continue
			}
			if n > 0 {
				log.Debug("expired tokens purged", "count", n)
			}
		}
	}
}

// initSources builds the quote sources in configured order.
func initSources(cfg *config.ServerConfig) ([]service.Source, error) {
	var sources []service.Source
	for _, name := range cfg.Quotes.Sources {
		switch name {
		case config.SourceYahoo:
			sources = append(sources, service.NewYahooSource(cfg.Quotes.YahooURL, cfg.Quotes.FetchTimeout))
		case config.SourceStatic:
			prices, err := staticPrices(cfg.Quotes.Static)
			if err != nil {
				return nil, err
			}
			sources = append(sources, service.NewStaticSource(prices))
		default:
			return nil, fmt.Errorf("unknown quote source %q", name)
		}
	}
	return sources, nil
}

func staticPrices(in map[string]float64) (map[domain.Commodity]float64, error) {
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[domain.Commodity]float64, len(in))
	for _, name := range names {
		c, err := domain.ParseCommodity(name)
		if err != nil {
			return nil, fmt.Errorf("quotes.static: %w", err)
		}
		out[c] = in[name]
	}
	return out, nil
}
