package store

import (
	"context"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS recommendation_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fingerprint TEXT,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		target_count INTEGER NOT NULL,
		returned_count INTEGER NOT NULL,
		rounds_used INTEGER NOT NULL,
		stop_reason TEXT NOT NULL,
		under_target INTEGER NOT NULL DEFAULT 0,
		from_cache INTEGER NOT NULL DEFAULT 0,
		recommendations TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_history_fingerprint ON recommendation_history(fingerprint);`,
	`CREATE INDEX IF NOT EXISTS idx_history_created ON recommendation_history(created_at);`,
	`CREATE TABLE IF NOT EXISTS rate_limit_state (
		resource TEXT PRIMARY KEY,
		capacity INTEGER NOT NULL,
		period_seconds INTEGER NOT NULL,
		reserved_now INTEGER NOT NULL DEFAULT 0,
		last_grant_at INTEGER,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS provider_outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider TEXT NOT NULL,
		success INTEGER NOT NULL,
		error_kind TEXT,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		observed_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_outcomes_provider ON provider_outcomes(provider, observed_at);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	return nil
}
