package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/twmb/murmur3"

	"github.com/CodeMonkeyCybersecurity/x9/internal/logger"
)

// Migration represents a single database migration
type Migration struct {
	Version     int
	Description string
	Up          string // SQL to apply migration
	Down        string // SQL to rollback migration (optional)
}

// MigrationRunner handles database migrations
type MigrationRunner struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewMigrationRunner creates a new migration runner
func NewMigrationRunner(db *sqlx.DB, log *logger.Logger) *MigrationRunner {
	return &MigrationRunner{
		db:  db,
		log: log.WithComponent("migrations"),
	}
}

// GetAllMigrations returns all available migrations in order
func GetAllMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create runs table",
			Up: `
				CREATE TABLE IF NOT EXISTS runs (
					id TEXT PRIMARY KEY,
					status TEXT NOT NULL,
					mode TEXT NOT NULL,
					value_strategy TEXT NOT NULL,
					chunk_size INTEGER NOT NULL,
					url_count INTEGER NOT NULL DEFAULT 0,
					word_count INTEGER NOT NULL DEFAULT 0,
					payload_count INTEGER NOT NULL DEFAULT 0,
					candidate_count INTEGER NOT NULL DEFAULT 0,
					failed_count INTEGER NOT NULL DEFAULT 0,
					error_message TEXT,
					created_at TIMESTAMP NOT NULL,
					completed_at TIMESTAMP
				);
				CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
				CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
			`,
			Down: `
				DROP TABLE IF EXISTS runs CASCADE;
			`,
		},
		{
			Version:     2,
			Description: "Create candidates table",
			Up: `
				CREATE TABLE IF NOT EXISTS candidates (
					run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
					seq INTEGER NOT NULL,
					url TEXT NOT NULL,
					base TEXT NOT NULL,
					origin TEXT NOT NULL,
					payload TEXT NOT NULL,
					params JSONB NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (run_id, seq)
				);
				CREATE INDEX IF NOT EXISTS idx_candidates_url ON candidates(url);
			`,
			Down: `
				DROP TABLE IF EXISTS candidates CASCADE;
			`,
		},
		{
			Version:     3,
			Description: "Create run_events table",
			Up: `
				CREATE TABLE IF NOT EXISTS run_events (
					id TEXT PRIMARY KEY,
					run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
					level TEXT NOT NULL,
					component TEXT NOT NULL,
					message TEXT NOT NULL,
					metadata JSONB,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
				CREATE INDEX IF NOT EXISTS idx_run_events_run_id ON run_events(run_id);
			`,
			Down: `
				DROP TABLE IF EXISTS run_events CASCADE;
			`,
		},
	}
}

func (mr *MigrationRunner) ensureMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			checksum TEXT NOT NULL
		);
	`
	if _, err := mr.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

func (mr *MigrationRunner) getAppliedMigrations(ctx context.Context) (map[int]string, error) {
	var rows []struct {
		Version  int    `db:"version"`
		Checksum string `db:"checksum"`
	}
	if err := mr.db.SelectContext(ctx, &rows, "SELECT version, checksum FROM schema_migrations ORDER BY version"); err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	applied := make(map[int]string, len(rows))
	for _, r := range rows {
		applied[r.Version] = r.Checksum
	}
	return applied, nil
}

// checksum detects a migration whose SQL changed after it was applied.
func checksum(m Migration) string {
	return fmt.Sprintf("%016x", murmur3.Sum64([]byte(m.Up)))
}

// RunMigrations applies every pending migration, each in its own transaction.
func (mr *MigrationRunner) RunMigrations(ctx context.Context) error {
	if err := mr.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	applied, err := mr.getAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	all := GetAllMigrations()
	sort.Slice(all, func(i, j int) bool { return all[i].Version < all[j].Version })

	pending := 0
	for _, m := range all {
		sum, ok := applied[m.Version]
		if !ok {
			pending++
			continue
		}
		if sum != checksum(m) {
			mr.log.Warnw("Applied migration differs from current definition",
				"version", m.Version,
				"recorded_checksum", sum,
			)
		}
	}

	if pending == 0 {
		mr.log.Debugw("Database schema is up to date", "latest_version", all[len(all)-1].Version)
		return nil
	}

	mr.log.Infow("Applying pending migrations", "pending_count", pending)
	for _, m := range all {
		if _, ok := applied[m.Version]; ok {
			continue
		}
		if err := mr.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func (mr *MigrationRunner) applyMigration(ctx context.Context, m Migration) error {
	start := time.Now()
	tx, err := mr.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		mr.log.Errorw("Migration failed",
			"version", m.Version,
			"error", err,
		)
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	record := `INSERT INTO schema_migrations (version, description, applied_at, checksum) VALUES ($1, $2, $3, $4)`
	if _, err := tx.ExecContext(ctx, record, m.Version, m.Description, time.Now().UTC(), checksum(m)); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	mr.log.LogDuration(ctx, "database.migrate", start,
		"version", m.Version,
		"description", m.Description,
	)
	return nil
}

// MigrationStatus summarizes which migrations have been applied.
type MigrationStatus struct {
	CurrentVersion int  `json:"current_version"`
	LatestVersion  int  `json:"latest_version"`
	PendingCount   int  `json:"pending_count"`
	UpToDate       bool `json:"is_up_to_date"`
}

func (mr *MigrationRunner) GetMigrationStatus(ctx context.Context) (*MigrationStatus, error) {
	if err := mr.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}

	applied, err := mr.getAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	status := &MigrationStatus{}
	for _, m := range GetAllMigrations() {
		if m.Version > status.LatestVersion {
			status.LatestVersion = m.Version
		}
		if _, ok := applied[m.Version]; ok {
			if m.Version > status.CurrentVersion {
				status.CurrentVersion = m.Version
			}
			continue
		}
		status.PendingCount++
	}
	status.UpToDate = status.PendingCount == 0
	return status, nil
}

// RollbackMigration reverts one applied migration.
func (mr *MigrationRunner) RollbackMigration(ctx context.Context, version int) error {
	var migration *Migration
	for _, m := range GetAllMigrations() {
		if m.Version == version {
			m := m
			migration = &m
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration version %d not found", version)
	}
	if migration.Down == "" {
		return fmt.Errorf("migration version %d has no rollback SQL", version)
	}

	mr.log.Warnw("Rolling back migration", "version", version)

	tx, err := mr.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to execute rollback SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = $1", version); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}
	return tx.Commit()
}

// CheckTableExists reports whether tableName exists in the current schema.
func CheckTableExists(ctx context.Context, db *sqlx.DB, tableName string) (bool, error) {
	var exists bool
	err := db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables WHERE table_name = $1
		)`, tableName)
	if err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	return exists, nil
}
