// Package database opens the PostgreSQL pool shared by the document, concept,
// run and website repositories, and ties its lifetime to the coordinator.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/JaimeStill/lexis/pkg/lifecycle"
)

// System owns the connection pool.
type System interface {
	// Connection returns the pool. Repositories share it.
	Connection() *sql.DB
	// Ping checks that a connection can be obtained within the configured
	// connect timeout. Failures wrap ErrNotReady.
	Ping(ctx context.Context) error
	// Start pings on startup and closes the pool on shutdown.
	Start(lc *lifecycle.Coordinator) error
}

type database struct {
	conn        *sql.DB
	logger      *slog.Logger
	connTimeout time.Duration
}

// New opens the pool without connecting. The first connection is made by
// the startup ping.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	db, err := sql.Open("pgx", cfg.Dsn())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

	return &database{
		conn:        db,
		logger:      logger.With("system", "database"),
		connTimeout: cfg.ConnTimeoutDuration(),
	}, nil
}

func (d *database) Connection() *sql.DB {
	return d.conn
}

func (d *database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.connTimeout)
	defer cancel()

	if err := d.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	return nil
}

func (d *database) Start(lc *lifecycle.Coordinator) error {
	lc.OnStartup("database", func() error {
		if err := d.Ping(lc.Context()); err != nil {
			d.logger.Error("database ping failed", "error", err)
			return err
		}
		d.logger.Info("database ready", "max_open", d.conn.Stats().MaxOpenConnections)
		return nil
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()

		// Pipeline consumers may still hold connections while their stage
		// winds down; Close waits for them to be returned.
		stats := d.conn.Stats()
		if err := d.conn.Close(); err != nil {
			d.logger.Error("database close failed", "error", err)
			return
		}
		d.logger.Info("database closed", "in_use", stats.InUse, "wait_count", stats.WaitCount)
	})

	return nil
}
