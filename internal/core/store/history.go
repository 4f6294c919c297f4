package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tracklens/tracklens/internal/core"
)

// HistoryEntry is one persisted recommendation run.
type HistoryEntry struct {
	ID              int64                 `json:"id"`
	Fingerprint     string                `json:"fingerprint,omitempty"`
	Provider        string                `json:"provider"`
	Model           string                `json:"model"`
	TargetCount     int                   `json:"target_count"`
	ReturnedCount   int                   `json:"returned_count"`
	RoundsUsed      int                   `json:"rounds_used"`
	StopReason      core.StopReason       `json:"stop_reason"`
	UnderTarget     bool                  `json:"under_target"`
	FromCache       bool                  `json:"from_cache"`
	Recommendations []core.Recommendation `json:"recommendations"`
	CreatedAt       time.Time             `json:"created_at"`
}

// RecordRun persists one finished recommendation run.
func (s *Store) RecordRun(ctx context.Context, fingerprint string, targetCount int, result *core.RecommendationResult) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if result == nil {
		return errors.New("result is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := json.Marshal(result.Recommendations)
	if err != nil {
		return fmt.Errorf("encode recommendations: %w", err)
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO recommendation_history
			(fingerprint, provider, model, target_count, returned_count, rounds_used,
			 stop_reason, under_target, from_cache, recommendations, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		strings.TrimSpace(fingerprint),
		result.Provider,
		result.Model,
		targetCount,
		len(result.Recommendations),
		result.RoundsUsed,
		string(result.StopReason),
		boolToInt(result.UnderTarget),
		boolToInt(result.FromCache),
		string(payload),
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("store recommendation run: %w", err)
	}
	return nil
}

// RecentRuns returns the newest persisted runs, most recent first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, fingerprint, provider, model, target_count, returned_count,
		       rounds_used, stop_reason, under_target, from_cache, recommendations, created_at
		FROM recommendation_history
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch recommendation history: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var entries []HistoryEntry
	for rows.Next() {
		var (
			entry       HistoryEntry
			underTarget int
			fromCache   int
			payload     string
			createdAt   int64
			stopReason  string
		)
		if err := rows.Scan(
			&entry.ID, &entry.Fingerprint, &entry.Provider, &entry.Model,
			&entry.TargetCount, &entry.ReturnedCount, &entry.RoundsUsed,
			&stopReason, &underTarget, &fromCache, &payload, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan recommendation history: %w", err)
		}

		entry.StopReason = core.StopReason(stopReason)
		entry.UnderTarget = underTarget != 0
		entry.FromCache = fromCache != 0
		entry.CreatedAt = time.Unix(createdAt, 0).UTC()
		if err := json.Unmarshal([]byte(payload), &entry.Recommendations); err != nil {
			return nil, fmt.Errorf("decode recommendations for run %d: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch recommendation history: %w", err)
	}
	return entries, nil
}

// PruneRuns deletes history beyond the newest keep entries.
func (s *Store) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if keep < 0 {
		keep = 0
	}

	if ctx == nil {
		ctx = context.Background()
	}

	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM recommendation_history
		WHERE id NOT IN (
			SELECT id FROM recommendation_history
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune recommendation history: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
