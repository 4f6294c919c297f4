package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tracklens/tracklens/internal/core"
)

// OutcomeSummary aggregates a provider's persisted call outcomes.
type OutcomeSummary struct {
	Provider     string        `json:"provider"`
	Successes    int           `json:"successes"`
	Failures     int           `json:"failures"`
	MeanLatency  time.Duration `json:"mean_latency"`
	LastObserved time.Time     `json:"last_observed"`
}

// RecordOutcome persists one provider call outcome for offline diagnostics.
func (s *Store) RecordOutcome(ctx context.Context, providerName string, success bool, kind core.ProviderErrorKind, latency time.Duration) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	providerName = strings.TrimSpace(providerName)
	if providerName == "" {
		return errors.New("provider is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var errorKind string
	if !success {
		errorKind = string(kind)
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO provider_outcomes (provider, success, error_kind, latency_ms, observed_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		providerName,
		boolToInt(success),
		errorKind,
		latency.Milliseconds(),
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("store provider outcome: %w", err)
	}
	return nil
}

// SummarizeOutcomes aggregates outcomes per provider observed within the
// window ending now.
func (s *Store) SummarizeOutcomes(ctx context.Context, window time.Duration) ([]OutcomeSummary, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if window <= 0 {
		window = 24 * time.Hour
	}

	if ctx == nil {
		ctx = context.Background()
	}

	cutoff := time.Now().UTC().Add(-window).Unix()
	rows, err := s.DB.QueryContext(ctx, `
		SELECT provider,
		       SUM(success),
		       COUNT(*) - SUM(success),
		       AVG(latency_ms),
		       MAX(observed_at)
		FROM provider_outcomes
		WHERE observed_at >= ?
		GROUP BY provider
		ORDER BY provider
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("summarize provider outcomes: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var summaries []OutcomeSummary
	for rows.Next() {
		var (
			summary      OutcomeSummary
			meanLatency  float64
			lastObserved int64
		)
		if err := rows.Scan(&summary.Provider, &summary.Successes, &summary.Failures, &meanLatency, &lastObserved); err != nil {
			return nil, fmt.Errorf("scan provider outcome summary: %w", err)
		}
		summary.MeanLatency = time.Duration(meanLatency) * time.Millisecond
		summary.LastObserved = time.Unix(lastObserved, 0).UTC()
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("summarize provider outcomes: %w", err)
	}
	return summaries, nil
}

// PruneOutcomes deletes outcomes older than the retention window.
func (s *Store) PruneOutcomes(ctx context.Context, retention time.Duration) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}

	if ctx == nil {
		ctx = context.Background()
	}

	cutoff := time.Now().UTC().Add(-retention).Unix()
	res, err := s.DB.ExecContext(ctx, `DELETE FROM provider_outcomes WHERE observed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune provider outcomes: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}
