package db

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	embeddedmigrations "github.com/solatis/editcheck/migrations"
)

// MigrationStatus represents the state of a single migration.
type MigrationStatus struct {
	ID          string
	Checksum    string
	Applied     bool
	AppliedAt   *time.Time
	ExecutionMs int64
}

type migration struct {
	ID       string
	Checksum string
	SQL      string
}

// MigrateUp applies every pending embedded migration for the connection's
// driver, refusing to run when an applied migration's checksum has changed.
func MigrateUp(ctx context.Context, db *sqlx.DB) error {
	migrations, err := prepare(ctx, db)
	if err != nil {
		return err
	}

	applied, err := appliedChecksums(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}
	if err := validateChecksums(migrations, applied); err != nil {
		return fmt.Errorf("migration checksum validation failed: %w", err)
	}

	for _, m := range migrations {
		if _, ok := applied[m.ID]; ok {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

// MigrateStatus lists every embedded migration with its applied state.
func MigrateStatus(ctx context.Context, db *sqlx.DB) ([]MigrationStatus, error) {
	migrations, err := prepare(ctx, db)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryxContext(ctx, "SELECT migration_id, checksum, applied_at, execution_ms FROM migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]MigrationStatus)
	for rows.Next() {
		var (
			s  MigrationStatus
			at string
		)
		if err := rows.Scan(&s.ID, &s.Checksum, &at, &s.ExecutionMs); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, at); err == nil {
			s.AppliedAt = &t
		}
		s.Applied = true
		applied[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		if s, ok := applied[m.ID]; ok {
			statuses = append(statuses, s)
			continue
		}
		statuses = append(statuses, MigrationStatus{ID: m.ID, Checksum: m.Checksum})
	}
	return statuses, nil
}

// prepare ensures the tracking table exists and loads the driver's migrations.
func prepare(ctx context.Context, db *sqlx.DB) ([]migration, error) {
	fsys, dir, err := migrationSource(db.DriverName())
	if err != nil {
		return nil, err
	}
	if err := createMigrationsTable(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}
	migrations, err := parseMigrationFiles(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to parse migrations: %w", err)
	}
	return migrations, nil
}

func migrationSource(driver string) (embed.FS, string, error) {
	switch driver {
	case DriverSQLite:
		return embeddedmigrations.SqliteMigrations, "sqlite", nil
	case DriverPostgres:
		return embeddedmigrations.PostgresMigrations, "postgres", nil
	default:
		return embed.FS{}, "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// parseMigrationFiles returns migrations sorted by file name.
func parseMigrationFiles(fsys embed.FS, dir string) ([]migration, error) {
	var migrations []migration

	err := fs.WalkDir(fsys, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		content, err := fsys.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		migrations = append(migrations, migration{
			ID:       filepath.Base(path),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
			SQL:      string(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].ID < migrations[j].ID
	})
	return migrations, nil
}

// createMigrationsTable must stay in sync with the migrations table in
// 001_initial_schema.sql. applied_at is RFC 3339 text on both drivers.
func createMigrationsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			migration_id TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TEXT NOT NULL,
			execution_ms INTEGER NOT NULL
		)
	`)
	return err
}

func appliedChecksums(ctx context.Context, db *sqlx.DB) (map[string]string, error) {
	rows, err := db.QueryxContext(ctx, "SELECT migration_id, checksum FROM migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var id, checksum string
		if err := rows.Scan(&id, &checksum); err != nil {
			return nil, err
		}
		applied[id] = checksum
	}
	return applied, rows.Err()
}

func validateChecksums(migrations []migration, applied map[string]string) error {
	embedded := make(map[string]string, len(migrations))
	for _, m := range migrations {
		embedded[m.ID] = m.Checksum
	}
	for id, got := range applied {
		want, ok := embedded[id]
		if !ok {
			return fmt.Errorf("migration %s exists in database but not in embedded files", id)
		}
		if got != want {
			return fmt.Errorf("checksum mismatch for migration %s: expected %s, got %s", id, want, got)
		}
	}
	return nil
}

// apply runs one migration and records it in the same transaction.
func apply(ctx context.Context, db *sqlx.DB, m migration) error {
	start := time.Now()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %s: %w", m.ID, err)
	}

	// lib/pq rejects multiple statements in one Exec
	for _, stmt := range strings.Split(m.SQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || isCommentOnly(stmt) {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %s: %w", m.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		tx.Rebind("INSERT INTO migrations (migration_id, checksum, applied_at, execution_ms) VALUES (?, ?, ?, ?)"),
		m.ID, m.Checksum, time.Now().UTC().Format(time.RFC3339), time.Since(start).Milliseconds(),
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record migration %s: %w", m.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", m.ID, err)
	}
	return nil
}

func isCommentOnly(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}
