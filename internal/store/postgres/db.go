package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// DB owns the connection pool shared by the PostgreSQL stores.
type DB struct {
	pool *pgxpool.Pool
	cfg  *Config

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Open connects to PostgreSQL, optionally runs migrations and starts the pool
// statistics logger.
func Open(ctx context.Context, cfg *Config) (*DB, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	pool, err := NewPool(ctx, &cfg.Pool)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("database", pool.Config().ConnConfig.Database).
		Str("host", pool.Config().ConnConfig.Host).
		Int32("max_conns", cfg.Pool.MaxConns).
		Msg("Connected to PostgreSQL")

	if cfg.AutoMigrate {
		if err := RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	db := &DB{
		pool:   pool,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}

	db.wg.Add(1)
	go func() {
		defer db.wg.Done()
		db.monitorConnectionPool()
	}()

	return db, nil
}

// Pool returns the underlying connection pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Close stops background tasks and closes the pool.
func (db *DB) Close() {
	close(db.stopCh)
	db.wg.Wait()
	db.pool.Close()
	log.Info().Msg("PostgreSQL connection pool closed")
}

func (db *DB) monitorConnectionPool() {
	ticker := time.NewTicker(time.Duration(db.cfg.StatsIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := db.pool.Stat()
			log.Debug().
				Int32("total_conns", stats.TotalConns()).
				Int32("idle_conns", stats.IdleConns()).
				Int32("acquired_conns", stats.AcquiredConns()).
				Int64("acquire_count", stats.AcquireCount()).
				Int64("acquire_duration_ns", stats.AcquireDuration().Nanoseconds()).
				Msg("Connection pool stats")
		case <-db.stopCh:
			return
		}
	}
}
