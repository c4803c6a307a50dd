package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"stopgraph/internal/catalog"
	"stopgraph/internal/config"
	"stopgraph/internal/db"
	"stopgraph/internal/logging"
	"stopgraph/internal/transit"
)

// stores routes each target to the store of its operator database.
type stores struct {
	byDatabase map[string]*db.Store
	handles    []*sql.DB
	logger     *slog.Logger
}

func openStores(ctx context.Context, cfg *config.Config, targets []catalog.Target, logger *slog.Logger) (*stores, error) {
	s := &stores{byDatabase: make(map[string]*db.Store), logger: logger}
	if cfg.DBDriver == db.DriverSQLite {
		if err := os.MkdirAll(cfg.SQLiteDir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	for _, t := range targets {
		store, ok := s.byDatabase[t.Database]
		if !ok {
			dsn, err := db.OperatorDSN(cfg.DBDriver, cfg.DatabaseURL, cfg.SQLiteDir, t.Database)
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("compose DSN for %s: %w", t, err)
			}
			sqlDB, err := db.Open(cfg.DBDriver, dsn)
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("db open %s: %w", t.Database, err)
			}
			s.handles = append(s.handles, sqlDB)
			if err := db.Ping(ctx, sqlDB); err != nil {
				s.Close()
				return nil, fmt.Errorf("db ping %s: %w", t.Database, err)
			}
			store = db.NewStore(sqlDB, cfg.DBDriver)
			store.Logger = logger
			s.byDatabase[t.Database] = store
			logger.Info("using database", slog.String("database", t.Database), slog.String("driver", cfg.DBDriver))
		}
		if err := store.EnsureSchema(ctx, t); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *stores) Close() {
	for _, h := range s.handles {
		logging.SafeCloseWithLogging(h, s.logger, "close_database")
	}
	s.handles = nil
}

func (s *stores) get(t catalog.Target) (*db.Store, error) {
	store, ok := s.byDatabase[t.Database]
	if !ok {
		return nil, fmt.Errorf("no database opened for %s", t)
	}
	return store, nil
}

func (s *stores) ReplaceSnapshot(ctx context.Context, t catalog.Target, routes []transit.Route, stops []transit.Stop, runID string) error {
	store, err := s.get(t)
	if err != nil {
		return err
	}
	return store.ReplaceSnapshot(ctx, t, routes, stops, runID)
}

func (s *stores) FetchRoutes(ctx context.Context, t catalog.Target) ([]transit.Route, error) {
	store, err := s.get(t)
	if err != nil {
		return nil, err
	}
	return store.FetchRoutes(ctx, t)
}

func (s *stores) FetchStops(ctx context.Context, t catalog.Target) ([]transit.Stop, error) {
	store, err := s.get(t)
	if err != nil {
		return nil, err
	}
	return store.FetchStops(ctx, t)
}

func (s *stores) LatestRun(ctx context.Context, t catalog.Target) (db.Run, error) {
	store, err := s.get(t)
	if err != nil {
		return db.Run{}, err
	}
	return store.LatestRun(ctx, t)
}
