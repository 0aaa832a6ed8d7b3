// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		-- Append-only yield observations, one row per pool per refresh.
		CREATE TABLE IF NOT EXISTS pool_snapshots (
			snapshot_id BIGSERIAL PRIMARY KEY,
			pool_address VARCHAR(42) NOT NULL,
			chain VARCHAR(32) NOT NULL,
			snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			historic_apy DECIMAL(12, 6) NOT NULL,
			rewards_apy DECIMAL(12, 6) NOT NULL,
			total_apy DECIMAL(12, 6) NOT NULL,
			tvl_native DECIMAL(30, 8) NOT NULL,
			tvl_usd DECIMAL(30, 8),
			success BOOLEAN NOT NULL,
			error_detail TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_pool_snapshots_pool_timestamp ON pool_snapshots(pool_address, snapshot_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_pool_snapshots_timestamp ON pool_snapshots(snapshot_timestamp DESC);

		-- One immutable audit record per automation cycle.
		CREATE TABLE IF NOT EXISTS automation_records (
			record_id BIGSERIAL PRIMARY KEY,
			vault_address VARCHAR(42) NOT NULL,
			cycle_number INTEGER NOT NULL,
			record_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,

			best_pool JSONB,
			current_pool JSONB,
			ranked_pools JSONB,
			allocation JSONB,

			decision VARCHAR(50) NOT NULL,
			action JSONB,
			tx_hashes TEXT[], -- PostgreSQL array of strings for tx hashes
			score_gap DECIMAL(20, 8) NOT NULL DEFAULT 0,
			gap_scale VARCHAR(32) NOT NULL DEFAULT 'none',

			success BOOLEAN NOT NULL,
			error_message TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_automation_records_timestamp ON automation_records(record_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_automation_records_cycle ON automation_records(cycle_number DESC);
		CREATE INDEX IF NOT EXISTS idx_automation_records_decision ON automation_records(decision);

		-- Cycle counter table for persistent global cycle tracking
		CREATE TABLE IF NOT EXISTS cycle_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_cycle INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		-- Insert initial row if it doesn't exist
		INSERT INTO cycle_counter (id, current_cycle)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
