package postgres

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		account_id TEXT NOT NULL,
		external_id TEXT NOT NULL UNIQUE,
		sender TEXT,
		direction TEXT NOT NULL,
		category TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		timestamp TIMESTAMPTZ NOT NULL,
		conversation_id TEXT,
		conversation_expires_at TIMESTAMPTZ,
		is_in_free_window BOOLEAN NOT NULL DEFAULT FALSE,
		cost NUMERIC(12,6) NOT NULL DEFAULT 0,
		classification_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		classification_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_messages_account_ts
		ON messages (account_id, timestamp)`,

	`CREATE INDEX IF NOT EXISTS idx_messages_window_lookup
		ON messages (account_id, sender, timestamp DESC)
		WHERE direction = 'INBOUND'`,

	`CREATE TABLE IF NOT EXISTS rollups (
		account_id TEXT NOT NULL,
		period_start TIMESTAMPTZ NOT NULL,
		period_type TEXT NOT NULL,
		breakdown JSONB NOT NULL,
		actual_savings NUMERIC(12,6) NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (account_id, period_start, period_type)
	)`,
}

// Migrate creates the tables and indexes if they do not exist. Statements
// are individually idempotent, so a partially applied run can be retried.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
