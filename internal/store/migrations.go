package store

import (
	"fmt"
)

func (s *Store) migrate() error {
	if err := s.migrateV1(); err != nil {
		return err
	}
	return s.migrateV2()
}

func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS action_audits (
		id            TEXT PRIMARY KEY,
		permit_id     TEXT NOT NULL,
		action        TEXT NOT NULL,
		resource_type TEXT NOT NULL DEFAULT '',
		resource_id   TEXT NOT NULL DEFAULT '',
		actor         TEXT NOT NULL DEFAULT '',
		result        TEXT NOT NULL,
		detail        TEXT,
		created_at    INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audits_permit ON action_audits(permit_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_audits_created ON action_audits(created_at);

	CREATE TABLE IF NOT EXISTS dead_letters (
		id             TEXT PRIMARY KEY,
		target_channel TEXT NOT NULL,
		message        TEXT NOT NULL,
		error          TEXT NOT NULL,
		created_at     INTEGER NOT NULL,
		retry_count    INTEGER NOT NULL DEFAULT 0,
		next_retry_at  INTEGER,
		resolved_at    INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_dlq_unresolved ON dead_letters(next_retry_at) WHERE resolved_at IS NULL;

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '1');
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}
	return nil
}

func (s *Store) migrateV2() error {
	var version string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil || version >= "2" {
		return nil
	}

	// Request IDs were added to the audit trail after the fact.
	_, _ = s.db.Exec(`ALTER TABLE action_audits ADD COLUMN request_id TEXT NOT NULL DEFAULT ''`)
	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_audits_request ON action_audits(request_id)`)

	if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '2')`); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}
	return nil
}
