// Package database provides database connection management and utilities.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	apperrors "github.com/allisson/guardrail/internal/errors"
)

// Supported driver names. NormalizeDriver maps common aliases onto these.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config holds database configuration settings.
type Config struct {
	Driver             string
	ConnectionString   string
	MaxOpenConnections int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// NormalizeDriver resolves driver aliases to a supported driver name.
func NormalizeDriver(driver string) (string, error) {
	switch driver {
	case DriverPostgres, "postgresql", "pgx":
		return DriverPostgres, nil
	case DriverMySQL:
		return DriverMySQL, nil
	default:
		return "", apperrors.Wrapf(apperrors.ErrInternal, "unsupported database driver %q", driver)
	}
}

// MigrationsDir returns the migrations subdirectory for a driver.
func MigrationsDir(driver string) (string, error) {
	normalized, err := NormalizeDriver(driver)
	if err != nil {
		return "", err
	}
	if normalized == DriverPostgres {
		return "postgresql", nil
	}
	return "mysql", nil
}

// Connect establishes a database connection with the given configuration.
func Connect(ctx context.Context, cfg Config) (*sql.DB, error) {
	driver, err := NormalizeDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
