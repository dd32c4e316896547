package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/muzman01/subgraph-studio/internal/config"
)

var ErrNotFound = errors.New("not found")

type Database struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Alias for external packages
type DB = Database

func New(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (*Database, error) {
	connString := cfg.ConnectionString()

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// Configure pool settings
	poolConfig.MaxConns = cfg.MaxConnections
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	// Create connection pool
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Msg("Connected to database")

	return &Database{
		pool:   pool,
		logger: logger,
	}, nil
}

func (db *Database) Close() {
	db.pool.Close()
	db.logger.Info().Msg("Database connection closed")
}

func (db *Database) Pool() *pgxpool.Pool {
	return db.pool
}

// Transaction executes a function within a database transaction
func (db *Database) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				db.logger.Error().Err(rbErr).Msg("Failed to rollback transaction")
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LoadCheckpoint returns the last flushed block for a deployment, zero
// when the deployment has never flushed.
func (db *Database) LoadCheckpoint(ctx context.Context, deployment string) (uint64, error) {
	var blockNumber uint64
	query := `SELECT block_number FROM checkpoints WHERE deployment = $1`

	err := db.pool.QueryRow(ctx, query, deployment).Scan(&blockNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	return blockNumber, nil
}

func saveCheckpointTx(ctx context.Context, tx pgx.Tx, deployment string, blockNumber uint64, blockHash string) error {
	query := `
		INSERT INTO checkpoints (deployment, block_number, block_hash, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (deployment) DO UPDATE
		SET block_number = EXCLUDED.block_number,
		    block_hash = EXCLUDED.block_hash,
		    updated_at = NOW()`

	if _, err := tx.Exec(ctx, query, deployment, blockNumber, blockHash); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}
