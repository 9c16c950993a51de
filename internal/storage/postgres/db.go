// Package postgres provides the PostgreSQL-backed storage adapters for the
// cost ledger and cache storage.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"

	"signalhub/internal/config"
)

// DB wraps a sql.DB with the connection pool settings the ledger and cache
// storage backends share.
type DB struct {
	*sql.DB
	config *config.DatabaseConfig
}

// NewDB opens a connection pool and verifies it with a ping.
func NewDB(cfg *config.DatabaseConfig, dsn string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(cfg.ConnMaxAge)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{DB: db, config: cfg}, nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.DB.Close()
}

// GetDB returns the underlying *sql.DB for direct use by repositories.
func (db *DB) GetDB() *sql.DB {
	return db.DB
}

// Config returns the database configuration the pool was opened with.
func (db *DB) Config() *config.DatabaseConfig {
	return db.config
}

// CreateDatabase creates the target database if it does not already exist.
func CreateDatabase(cfg *config.DatabaseConfig, dbName string) error {
	baseDSN := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=postgres sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.SSLMode)
	db, err := sql.Open("postgres", baseDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	var exists bool
	err = db.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check database existence: %w", err)
	}
	if exists {
		return nil
	}

	// database names cannot be parameterized; validate instead.
	if !isValidDatabaseName(dbName) {
		return fmt.Errorf("invalid database name: %s", dbName)
	}

	if _, err := db.Exec(fmt.Sprintf("CREATE DATABASE %s", dbName)); err != nil {
		return fmt.Errorf("create database %s: %w", dbName, err)
	}

	slog.Info("created database", "name", dbName)
	return nil
}

func isValidDatabaseName(name string) bool {
	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}
	return len(name) > 0 && len(name) <= 63
}

// RunSchemaFromFile applies a SQL schema file, tracking applied files in
// schema_migrations so it is safe to call on every start-up.
func RunSchemaFromFile(db *sql.DB, schemaPath string) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	schemaFile := filepath.Base(schemaPath)
	var applied bool
	err = db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", schemaFile).Scan(&applied)
	if err != nil {
		return fmt.Errorf("check schema status: %w", err)
	}
	if applied {
		return nil
	}

	content, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("read schema file %s: %w", schemaPath, err)
	}

	slog.Info("applying schema", "file", schemaFile)
	if _, err := db.Exec(string(content)); err != nil {
		return fmt.Errorf("execute schema %s: %w", schemaFile, err)
	}

	_, err = db.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", schemaFile)
	if err != nil {
		return fmt.Errorf("record schema %s: %w", schemaFile, err)
	}
	return nil
}

// InitDB creates the database if needed, connects, and applies the schema
// (pgvector extension plus the ledger and cache tables).
func InitDB(cfg *config.DatabaseConfig) (*DB, error) {
	if err := CreateDatabase(cfg, cfg.Database); err != nil {
		return nil, fmt.Errorf("create database: %w", err)
	}

	db, err := NewDB(cfg, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	schemaPath := "migrations/001_schema.sql"
	if err := RunSchemaFromFile(db.DB, schemaPath); err != nil {
		slog.Warn("schema application issue", "error", err)
	}

	slog.Info("database initialized")
	return db, nil
}
