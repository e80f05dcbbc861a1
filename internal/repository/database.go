package repository

import (
	"context"
	"fmt"
	"time"

	"bwsrank/ingestion/internal/metrics"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
)

// Database holds the database connection pool and provides access to repositories
type Database struct {
	Pool *pgxpool.Pool

	Sheets *SheetRepository
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN builds the connection string
func (c Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
		c.SSLMode,
	)
}

// NewDatabase creates a new database connection pool, migrates the schema
// and initializes repositories
func NewDatabase(ctx context.Context, cfg Config) (*Database, error) {
	db, err := Connect(ctx, cfg.DSN())
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("host", cfg.Host).
		Str("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("Successfully connected to database")

	return db, nil
}

// Connect opens a pool for dsn and runs the embedded migrations
func Connect(ctx context.Context, dsn string) (*Database, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	err = runMigrations(sqlDB, "postgres", "migrations/postgres")
	sqlDB.Close()
	if err != nil {
		pool.Close()
		return nil, err
	}

	db := &Database{
		Pool: pool,
	}
	db.Sheets = &SheetRepository{db: db}

	return db, nil
}

// Close closes the database connection pool
func (db *Database) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Info().Msg("Database connection pool closed")
	}
}

// Health checks if the database is healthy
func (db *Database) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// RecordPoolStats mirrors the pool's connection counts into the gauges
func (db *Database) RecordPoolStats() {
	stat := db.Pool.Stat()
	metrics.UpdateDBConnectionStats(stat.AcquiredConns(), stat.IdleConns())
}

// PoolStats returns database pool statistics and records them
func (db *Database) PoolStats() map[string]interface{} {
	db.RecordPoolStats()
	stat := db.Pool.Stat()

	return map[string]interface{}{
		"total_conns":    stat.TotalConns(),
		"acquired_conns": stat.AcquiredConns(),
		"idle_conns":     stat.IdleConns(),
		"max_conns":      stat.MaxConns(),
	}
}
