package db

import (
	"context"
	"fmt"
)

// migrations are applied in order at startup. Statements are idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS properties (
		property_id      TEXT PRIMARY KEY,
		document_type    TEXT NOT NULL,
		last_seen_owner  TEXT NOT NULL DEFAULT '',
		last_seen_survey TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS verification_records (
		verification_id           TEXT PRIMARY KEY,
		property_id               TEXT NOT NULL REFERENCES properties(property_id) ON DELETE CASCADE,
		risk_score                INTEGER NOT NULL CHECK (risk_score BETWEEN 0 AND 100),
		risk_level                TEXT NOT NULL,
		classification_label      TEXT NOT NULL DEFAULT '',
		classification_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		fingerprint               BYTEA NOT NULL CHECK (octet_length(fingerprint) = 32),
		anchor_reference          TEXT,
		anchor_block_height       BIGINT,
		anchor_timestamp          TIMESTAMPTZ,
		created_at                TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS verification_details (
		verification_id TEXT PRIMARY KEY REFERENCES verification_records(verification_id) ON DELETE CASCADE,
		entities        JSONB NOT NULL,
		text_preview    TEXT NOT NULL DEFAULT '',
		ocr_stats       JSONB NOT NULL,
		warnings        JSONB NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS tamper_checks (
		tamper_check_id        TEXT PRIMARY KEY,
		property_id            TEXT NOT NULL,
		anchored_fingerprint   BYTEA,
		recomputed_fingerprint BYTEA,
		hash_matched           BOOLEAN NOT NULL,
		risk_score_delta       INTEGER NOT NULL DEFAULT 0,
		status                 TEXT NOT NULL,
		warnings               JSONB NOT NULL DEFAULT '[]',
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id          TEXT PRIMARY KEY,
		operation   TEXT NOT NULL,
		property_id TEXT,
		status      TEXT NOT NULL,
		message     TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		block_height      BIGINT PRIMARY KEY,
		property_id       TEXT NOT NULL,
		fingerprint       BYTEA NOT NULL CHECK (octet_length(fingerprint) = 32),
		risk_score        INTEGER NOT NULL,
		verifier_identity TEXT NOT NULL DEFAULT '',
		ledger_timestamp  TIMESTAMPTZ NOT NULL,
		prev_block_height BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_verification_records_property ON verification_records(property_id)`,
	`CREATE INDEX IF NOT EXISTS idx_verification_records_created ON verification_records(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_tamper_checks_property ON tamper_checks(property_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_property ON ledger_entries(property_id, block_height)`,
}

// Migrate creates the schema.
func (d *DB) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	d.logger.Info("Database schema up to date", "migrations", len(migrations))
	return nil
}
