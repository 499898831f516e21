package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 6

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Taxonomy: categories, subjects, details",
		Up: execAll(
			`CREATE TABLE IF NOT EXISTS categories (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				tenant TEXT NOT NULL,
				name TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				UNIQUE (tenant, name)
			)`,
			`CREATE TABLE IF NOT EXISTS subjects (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				UNIQUE (category_id, name)
			)`,
			`CREATE TABLE IF NOT EXISTS details (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				subject_id INTEGER NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				UNIQUE (subject_id, name)
			)`,
			`CREATE INDEX idx_subjects_category ON subjects(category_id)`,
			`CREATE INDEX idx_details_subject ON details(subject_id)`,
		),
	},
	{
		Version:     2,
		Description: "Transactions with their confirmed classification",
		Up: execAll(
			`CREATE TABLE IF NOT EXISTS transactions (
				id TEXT PRIMARY KEY,
				tenant TEXT NOT NULL,
				hash TEXT UNIQUE NOT NULL,
				date DATETIME NOT NULL,
				description TEXT NOT NULL,
				payment_type TEXT NOT NULL DEFAULT '',
				owner_id TEXT NOT NULL DEFAULT '',
				amount REAL NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				category_id INTEGER,
				subject_id INTEGER,
				detail_id INTEGER,
				classified_at DATETIME,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX idx_transactions_tenant_status ON transactions(tenant, status)`,
			`CREATE INDEX idx_transactions_target ON transactions(tenant, category_id, subject_id, detail_id)`,
		),
	},
	{
		Version:     3,
		Description: "Classification rules",
		Up: execAll(
			`CREATE TABLE IF NOT EXISTS classification_rules (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				tenant TEXT NOT NULL,
				name TEXT NOT NULL,
				description_patterns TEXT NOT NULL DEFAULT '[]',
				payment_types TEXT NOT NULL DEFAULT '[]',
				amount_min REAL,
				amount_max REAL,
				category_id INTEGER NOT NULL,
				subject_id INTEGER NOT NULL,
				detail_id INTEGER,
				confidence INTEGER NOT NULL,
				priority INTEGER NOT NULL DEFAULT 0,
				reasoning TEXT NOT NULL DEFAULT '',
				enabled BOOLEAN NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX idx_rules_tenant_enabled ON classification_rules(tenant, enabled, priority)`,
		),
	},
	{
		Version:     4,
		Description: "Classification feedback",
		Up: execAll(
			`CREATE TABLE IF NOT EXISTS classification_feedback (
				id TEXT PRIMARY KEY,
				tenant TEXT NOT NULL,
				transaction_date DATETIME,
				original_description TEXT NOT NULL,
				amount REAL NOT NULL DEFAULT 0,
				suggested_category_id INTEGER,
				suggested_subject_id INTEGER,
				suggested_detail_id INTEGER,
				corrected_category_id INTEGER NOT NULL,
				corrected_subject_id INTEGER NOT NULL,
				corrected_detail_id INTEGER,
				method TEXT NOT NULL DEFAULT '',
				original_confidence INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX idx_feedback_tenant_created ON classification_feedback(tenant, created_at)`,
			`CREATE INDEX idx_feedback_corrected ON classification_feedback(tenant, corrected_category_id, corrected_subject_id, corrected_detail_id)`,
		),
	},
	{
		Version:     5,
		Description: "Classification metrics",
		Up: execAll(
			`CREATE TABLE IF NOT EXISTS classification_metrics (
				id TEXT PRIMARY KEY,
				tenant TEXT NOT NULL,
				transaction_id TEXT NOT NULL DEFAULT '',
				method TEXT NOT NULL,
				confidence INTEGER NOT NULL DEFAULT 0,
				needs_review BOOLEAN NOT NULL DEFAULT 0,
				latency_ms REAL NOT NULL DEFAULT 0,
				debug TEXT,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX idx_metrics_tenant_created ON classification_metrics(tenant, created_at)`,
		),
	},
	{
		Version:     6,
		Description: "Index feedback descriptions for token lookups",
		Up: execAll(
			`CREATE INDEX IF NOT EXISTS idx_feedback_description ON classification_feedback(tenant, original_description)`,
		),
	},
}

func execAll(queries ...string) func(*sql.Tx) error {
	return func(tx *sql.Tx) error {
		for _, query := range queries {
			if _, err := tx.Exec(query); err != nil {
				return fmt.Errorf("failed to execute query '%s': %w", query, err)
			}
		}
		return nil
	}
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion reports the current schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return v, nil
}
