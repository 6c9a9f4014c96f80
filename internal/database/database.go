package database

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/kkkkikiki/infestor/internal/config"
)

//go:embed schema.sql
var schema string

// DB holds the gift code store connection
type DB struct {
	*sqlx.DB
	driver string
}

// NewDB opens the configured database, tunes the pool and applies the schema
func NewDB(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	driver := "postgres"
	if cfg.IsSQLite() {
		driver = "sqlite"
	}

	conn, err := sqlx.Connect(driver, cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	// Configure connection pool
	if driver == "sqlite" {
		// a single writer; also keeps ":memory:" databases on one connection
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(cfg.MaxConns)
		conn.SetMaxIdleConns(cfg.MinConns)
		conn.SetConnMaxLifetime(time.Hour)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}

	db := &DB{DB: conn, driver: driver}
	if err := db.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Debug("connected to gift code store", zap.String("driver", driver))

	return db, nil
}

// Migrate creates the gift code table if it does not exist yet
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Driver returns the name of the database/sql driver in use
func (db *DB) Driver() string {
	return db.driver
}

// Close closes the database connection
func (db *DB) Close() error {
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", db.driver, err)
	}

	return nil
}
