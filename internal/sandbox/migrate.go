package sandbox

import (
	"database/sql"
	"fmt"
	"log/slog"
)

const schemaVersion = 2

type migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations are applied in order, each at most once.
var migrations = []migration{
	{
		Version:     1,
		Description: "SOAR backend: scopes, integration instances, executions, cases",
		SQL: `
		CREATE TABLE IF NOT EXISTS scopes (
			name        TEXT PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS integration_instances (
			identifier  TEXT PRIMARY KEY,
			integration TEXT NOT NULL,
			environment TEXT DEFAULT 'Default Environment',
			is_active   INTEGER NOT NULL DEFAULT 1,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_instances_integration ON integration_instances(integration);

		CREATE TABLE IF NOT EXISTS executions (
			id              TEXT PRIMARY KEY,
			case_id         TEXT,
			instance        TEXT NOT NULL,
			provider        TEXT NOT NULL,
			action_name     TEXT NOT NULL,
			scope           TEXT,
			is_predefined   INTEGER NOT NULL DEFAULT 0,
			target_entities TEXT,
			parameters      TEXT,
			created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS cases (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			title       TEXT NOT NULL,
			priority    TEXT NOT NULL DEFAULT 'PriorityMedium',
			status      TEXT NOT NULL DEFAULT 'Opened',
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS case_alerts (
			id                     INTEGER PRIMARY KEY AUTOINCREMENT,
			case_id                INTEGER NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
			alert_group_identifier TEXT NOT NULL,
			name                   TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_case_alerts_case ON case_alerts(case_id);

		CREATE TABLE IF NOT EXISTS case_comments (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			case_id     INTEGER NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
			comment     TEXT NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		`,
	},
	{
		Version:     2,
		Description: "OAuth2 tokens and endpoint alerts",
		SQL: `
		CREATE TABLE IF NOT EXISTS tokens (
			token       TEXT PRIMARY KEY,
			client_id   TEXT NOT NULL,
			expires_at  DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS falcon_alerts (
			composite_id TEXT PRIMARY KEY,
			hostname     TEXT NOT NULL,
			status       TEXT NOT NULL DEFAULT 'new',
			payload      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_falcon_alerts_host ON falcon_alerts(hostname);
		`,
	},
}

// RunMigrations brings db up to schemaVersion. Each step runs in its own
// transaction together with its schema_version row.
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	const tracking = `CREATE TABLE IF NOT EXISTS schema_version (
		version     INTEGER PRIMARY KEY,
		description TEXT,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := db.Exec(tracking); err != nil {
		return fmt.Errorf("sandbox: schema_version: %w", err)
	}
	have, err := GetSchemaVersion(db)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.Version <= have {
			continue
		}
		if err := apply(db, m); err != nil {
			return fmt.Errorf("sandbox: migration %d (%s): %w", m.Version, m.Description, err)
		}
		logger.Info("sandbox schema migrated", "version", m.Version)
	}
	return nil
}

func apply(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(m.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_version (version, description) VALUES (?, ?)`, m.Version, m.Description); err != nil {
		return err
	}
	return tx.Commit()
}

// GetSchemaVersion returns the highest applied migration, 0 for a new database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("sandbox: schema version: %w", err)
	}
	return v, nil
}
