package storage

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps a pgx connection pool shared by the app and event stores.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Connect opens a pool against the given DSN and applies the schema.
func Connect(ctx context.Context, dsn string, logger zerolog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}

	db := &DB{Pool: pool, logger: logger}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info().Msg("postgres connected, schema applied")
	return db, nil
}

// Migrate applies the embedded schema. All statements are idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	var one int
	return db.Pool.QueryRow(ctx, "select 1").Scan(&one)
}

func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}
