// Package storage is the Storage Gateway: connection pooling to the relational store
// with row-level tenant filtering, exposing transactional units of work via an explicit
// Unit value rather than a context-carried transaction.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/mlog"
)

// Gateway is a hub which deals with postgres connections and unit-of-work boundaries.
type Gateway struct {
	db          *sql.DB
	logger      mlog.Logger
	unitTimeout time.Duration
}

// NewGateway constructs a Gateway over an already-opened *sql.DB.
func NewGateway(db *sql.DB, logger mlog.Logger, unitTimeout time.Duration) *Gateway {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	if unitTimeout <= 0 {
		unitTimeout = 30 * time.Second
	}

	return &Gateway{db: db, logger: logger, unitTimeout: unitTimeout}
}

// Connect opens the primary database connection and runs pending migrations.
func Connect(dsn, migrationsPath string, logger mlog.Logger) (*Gateway, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if migrationsPath != "" {
		driver, err := postgres.WithInstance(db, &postgres.Config{MultiStatementEnabled: true})
		if err != nil {
			return nil, fmt.Errorf("building migration driver: %w", err)
		}

		m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
		if err != nil {
			return nil, fmt.Errorf("loading migrations: %w", err)
		}

		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return nil, fmt.Errorf("applying migrations: %w", err)
		}
	}

	logger.Info("connected to postgres")

	return NewGateway(db, logger, 0), nil
}

// DB exposes the underlying pool for components that need a raw, non-transactional
// connection (e.g. health checks).
func (g *Gateway) DB() *sql.DB { return g.db }

// Close releases the connection pool.
func (g *Gateway) Close() error { return g.db.Close() }
