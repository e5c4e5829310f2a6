package storage

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the current archive schema version.
const SchemaVersion = 1

var schemaV1 = []struct {
	name string
	stmt string
}{
	{"cases table", `
		CREATE TABLE IF NOT EXISTS cases (
			id TEXT PRIMARY KEY,
			detective TEXT NOT NULL,
			threat TEXT NOT NULL,
			location TEXT NOT NULL,
			objective TEXT NOT NULL,
			max_score INTEGER NOT NULL,
			status TEXT NOT NULL,
			score INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL,
			finished_at TEXT NULL,
			ending TEXT NULL,
			ending_fallback INTEGER NOT NULL DEFAULT 0
		);`},
	{"turns table", `
		CREATE TABLE IF NOT EXISTS turns (
			case_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			narrative TEXT NOT NULL,
			illustration TEXT NULL,
			choice_label TEXT NOT NULL,
			choice_text TEXT NOT NULL,
			points INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			score_before INTEGER NOT NULL,
			score_after INTEGER NOT NULL,
			at TEXT NOT NULL,
			PRIMARY KEY (case_id, turn),
			FOREIGN KEY (case_id) REFERENCES cases(id) ON DELETE CASCADE
		);`},
	{"idx_cases_started_at", `CREATE INDEX IF NOT EXISTS idx_cases_started_at ON cases(started_at);`},
}

// Migrate brings the schema up to SchemaVersion. It is idempotent.
func Migrate(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("migrate: db is nil")
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`); err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current); err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}
	if current >= SchemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, step := range schemaV1 {
		if _, err := tx.Exec(step.stmt); err != nil {
			return fmt.Errorf("migrate: create %s: %w", step.name, err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?);`, SchemaVersion); err != nil {
		return fmt.Errorf("migrate: record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit transaction: %w", err)
	}
	return nil
}
