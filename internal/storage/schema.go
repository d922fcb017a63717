package storage

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS observations (
        id BIGSERIAL PRIMARY KEY,
        series_key TEXT NOT NULL,
        date DATE NOT NULL,
        value DOUBLE PRECISION NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        UNIQUE (series_key, date)
    );`,
	`CREATE INDEX IF NOT EXISTS idx_obs_key_date ON observations (series_key, date);`,
	`CREATE TABLE IF NOT EXISTS derived_metrics (
        id BIGSERIAL PRIMARY KEY,
        metric_key TEXT NOT NULL,
        date DATE NOT NULL,
        value DOUBLE PRECISION NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        UNIQUE (metric_key, date)
    );`,
	`CREATE INDEX IF NOT EXISTS idx_derived_key_date ON derived_metrics (metric_key, date);`,
	`CREATE TABLE IF NOT EXISTS alert_state (
        id BIGSERIAL PRIMARY KEY,
        alert_id TEXT NOT NULL UNIQUE,
        state TEXT NOT NULL DEFAULT 'ok',
        last_value DOUBLE PRECISION,
        last_transition_time TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE TABLE IF NOT EXISTS alerts_log (
        id BIGSERIAL PRIMARY KEY,
        alert_id TEXT NOT NULL,
        severity TEXT NOT NULL,
        state_from TEXT NOT NULL,
        state_to TEXT NOT NULL,
        value DOUBLE PRECISION,
        note TEXT,
        triggered_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_log_time ON alerts_log (triggered_at);`,
	`CREATE TABLE IF NOT EXISTS fetch_log (
        id BIGSERIAL PRIMARY KEY,
        series_key TEXT NOT NULL,
        status TEXT NOT NULL,
        rows_fetched INTEGER NOT NULL DEFAULT 0,
        error_message TEXT,
        fetched_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
}

// InitSchema creates all tables and indexes if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range schemaStatements {
		if _, execErr := pool.Exec(ctx, stmt); execErr != nil {
			return fmt.Errorf("init schema: %w", execErr)
		}
	}
	return nil
}
