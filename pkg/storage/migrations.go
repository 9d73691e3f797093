package storage

import (
	"database/sql"
	"fmt"
)

var migrations = []string{
	// Migration 1: Initial schema
	`CREATE TABLE IF NOT EXISTS cost_records (
		id           TEXT PRIMARY KEY,
		service_id   TEXT NOT NULL,
		provider     TEXT NOT NULL CHECK(provider IN ('aws', 'azure', 'gcp')),
		region       TEXT NOT NULL DEFAULT '',
		account      TEXT NOT NULL DEFAULT '',
		service_name TEXT NOT NULL,
		resource     TEXT NOT NULL DEFAULT '',
		cost         REAL NOT NULL DEFAULT 0.0,
		currency     TEXT NOT NULL DEFAULT 'USD',
		period       TEXT NOT NULL CHECK(period IN ('daily', 'monthly')),
		date         DATETIME NOT NULL,
		tags         TEXT NOT NULL DEFAULT '{}',
		created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(service_id, provider, service_name, date)
	);

	CREATE INDEX IF NOT EXISTS idx_cost_service ON cost_records(service_id);
	CREATE INDEX IF NOT EXISTS idx_cost_provider ON cost_records(provider);
	CREATE INDEX IF NOT EXISTS idx_cost_date ON cost_records(date);

	CREATE TABLE IF NOT EXISTS thresholds (
		id                   TEXT PRIMARY KEY,
		service_id           TEXT NOT NULL,
		metric_type          TEXT NOT NULL CHECK(metric_type IN ('hourly', 'daily', 'monthly')),
		threshold_value      REAL NOT NULL,
		comparison_operator  TEXT NOT NULL CHECK(comparison_operator IN ('greater_than', 'less_than', 'percent_increase')),
		baseline_period_days INTEGER NOT NULL DEFAULT 7,
		enabled              INTEGER NOT NULL DEFAULT 1,
		created_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS budgets (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL UNIQUE,
		service_id    TEXT NOT NULL DEFAULT '',
		team_id       TEXT NOT NULL DEFAULT '',
		amount        REAL NOT NULL,
		currency      TEXT NOT NULL DEFAULT 'USD',
		period        TEXT NOT NULL CHECK(period IN ('monthly', 'quarterly', 'yearly')),
		warning_pct   REAL NOT NULL DEFAULT 80.0,
		critical_pct  REAL NOT NULL DEFAULT 95.0,
		enabled       INTEGER NOT NULL DEFAULT 1,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CHECK(service_id = '' OR team_id = '')
	);

	CREATE TABLE IF NOT EXISTS services (
		id           TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		team_id      TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS alerts (
		id              TEXT PRIMARY KEY,
		service_id      TEXT NOT NULL,
		service_name    TEXT NOT NULL DEFAULT '',
		alert_type      TEXT NOT NULL CHECK(alert_type IN ('threshold', 'budget', 'anomaly', 'spike')),
		severity        TEXT NOT NULL CHECK(severity IN ('low', 'medium', 'high', 'critical')),
		title           TEXT NOT NULL,
		message         TEXT NOT NULL DEFAULT '',
		current_value   REAL NOT NULL DEFAULT 0.0,
		threshold_value REAL NOT NULL DEFAULT 0.0,
		currency        TEXT NOT NULL DEFAULT 'USD',
		provider        TEXT NOT NULL DEFAULT '',
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		resolved        INTEGER NOT NULL DEFAULT 0,
		resolved_at     DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_service ON alerts(service_id);
	CREATE INDEX IF NOT EXISTS idx_alerts_open ON alerts(resolved, alert_type, created_at);

	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
