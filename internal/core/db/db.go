// Package db provides database connection management, named queries and
// migrations for the edit catalog, the local lookup tables and API keys.
//
// Supports SQLite (single-node and tests) and PostgreSQL via sqlx. Migration
// execution is handled by an in-house runner over embedded SQL files.
package db

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Connection pool limits. Lookups fan out per detail record, so the pool is
// sized for the default aggregate concurrency plus headroom.
const (
	maxOpenConns    = 16
	maxIdleConns    = 4
	connMaxIdleTime = 5 * time.Minute
	connMaxLifetime = 30 * time.Minute
)

// Driver names as reported by sqlx.DB.DriverName.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// ParseURL maps a database URL to a driver name and data source.
// sqlite://file.db is relative, sqlite:///abs/path.db is absolute.
func ParseURL(dbURL string) (driver, dataSource string, err error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid database URL: %w", err)
	}

	switch u.Scheme {
	case "sqlite":
		if u.Host != "" {
			dataSource = u.Host + u.Path
		} else {
			dataSource = u.Path
		}
		if u.RawQuery != "" {
			dataSource += "?" + u.RawQuery
		}
		return DriverSQLite, dataSource, nil
	case "postgres", "postgresql":
		return DriverPostgres, dbURL, nil
	default:
		return "", "", fmt.Errorf("unsupported database scheme: %s (expected sqlite or postgres)", u.Scheme)
	}
}

// Open connects to dbURL, configures pooling and verifies the connection.
func Open(ctx context.Context, dbURL string) (*sqlx.DB, error) {
	driver, dataSource, err := ParseURL(dbURL)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dataSource)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxIdleTime(connMaxIdleTime)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
