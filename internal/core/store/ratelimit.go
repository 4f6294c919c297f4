package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tracklens/tracklens/internal/core"
)

// SaveRateLimitStates persists a snapshot of every live rate-limited
// resource, replacing older rows for the same resource.
func (s *Store) SaveRateLimitStates(ctx context.Context, states []core.RateLimitState) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, state := range states {
		resource := strings.TrimSpace(state.Resource)
		if resource == "" {
			continue
		}

		var lastGrant sql.NullInt64
		if state.LastGrantAt != nil {
			lastGrant = sql.NullInt64{Int64: state.LastGrantAt.UTC().Unix(), Valid: true}
		}

		_, err := s.DB.ExecContext(ctx, `
			INSERT INTO rate_limit_state (resource, capacity, period_seconds, reserved_now, last_grant_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(resource) DO UPDATE SET
				capacity = excluded.capacity,
				period_seconds = excluded.period_seconds,
				reserved_now = excluded.reserved_now,
				last_grant_at = excluded.last_grant_at,
				updated_at = excluded.updated_at
		`,
			resource,
			state.Capacity,
			int64(state.Period/time.Second),
			state.ReservedNow,
			lastGrant,
			time.Now().UTC().Unix(),
		)
		if err != nil {
			return fmt.Errorf("store rate limit state for %s: %w", resource, err)
		}
	}
	return nil
}

// ListRateLimitStates returns every persisted rate limit snapshot.
func (s *Store) ListRateLimitStates(ctx context.Context) ([]core.RateLimitState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT resource, capacity, period_seconds, reserved_now, last_grant_at, updated_at
		FROM rate_limit_state
		ORDER BY resource
	`)
	if err != nil {
		return nil, fmt.Errorf("fetch rate limit states: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var states []core.RateLimitState
	for rows.Next() {
		var (
			state     core.RateLimitState
			periodSec int64
			lastGrant sql.NullInt64
			updatedAt int64
		)
		if err := rows.Scan(&state.Resource, &state.Capacity, &periodSec, &state.ReservedNow, &lastGrant, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan rate limit state: %w", err)
		}
		state.Period = time.Duration(periodSec) * time.Second
		if lastGrant.Valid {
			value := time.Unix(lastGrant.Int64, 0).UTC()
			state.LastGrantAt = &value
		}
		state.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch rate limit states: %w", err)
	}
	return states, nil
}

// ResetRateLimitState deletes the persisted snapshot for one resource, or all
// resources when resource is empty.
func (s *Store) ResetRateLimitState(ctx context.Context, resource string) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var (
		res sql.Result
		err error
	)
	if resource = strings.TrimSpace(resource); resource == "" {
		res, err = s.DB.ExecContext(ctx, `DELETE FROM rate_limit_state`)
	} else {
		res, err = s.DB.ExecContext(ctx, `DELETE FROM rate_limit_state WHERE resource = ?`, resource)
	}
	if err != nil {
		return 0, fmt.Errorf("reset rate limit state: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}
