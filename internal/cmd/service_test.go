package cmd

import (
	"context"
	"errors"
	"testing"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/stretchr/testify/require"

	"github.com/tracklens/tracklens/internal/config"
	"github.com/tracklens/tracklens/internal/core"
	"github.com/tracklens/tracklens/internal/core/engine"
	"github.com/tracklens/tracklens/internal/library"
	"github.com/tracklens/tracklens/internal/provider"
	"github.com/tracklens/tracklens/internal/provider/mock"
	"github.com/tracklens/tracklens/internal/server/handlers"
)

// newTestApp wires the composition root by hand so run() can be exercised
// without loading configuration or opening a store.
func newTestApp(t *testing.T) *app {
	t.Helper()

	cfg := &config.Config{
		Engine: config.EngineConfig{
			DefaultProvider: "local",
			TargetCount:     3,
			Backfill:        "standard",
			StopSensitivity: "normal",
			MaxIterations:   3,
		},
		Providers: map[string]config.ProviderConfig{
			"local": {Type: "mock", Model: "catalog-v1", Enabled: true},
		},
	}

	limiter := engine.NewRateLimiter()
	health := engine.NewHealthMonitor()
	cache := engine.NewRecommendationCache(0, 0)
	t.Cleanup(cache.Close)

	return &app{
		cfg:     cfg,
		models:  provider.NewModelRegistry(),
		limiter: limiter,
		health:  health,
		cache:   cache,
		orch: &engine.Orchestrator{
			Providers: map[string]engine.Provider{"local": mock.New("local")},
			Limiter:   limiter,
			Health:    health,
			Budgeter:  &engine.TokenBudgeter{Counter: library.Counter{}},
			Planner:   engine.IterationPlanner{},
			Cache:     cache,
		},
	}
}

func TestRunUsesEngineDefaults(t *testing.T) {
	a := newTestApp(t)

	result, err := a.run(context.Background(), runOptions{})
	require.NoError(t, err)
	require.Equal(t, "local", result.Provider)
	require.Equal(t, "catalog-v1", result.Model)
	require.Len(t, result.Recommendations, 3)
	require.False(t, result.UnderTarget)
}

func TestRunRejectsUnknownProvider(t *testing.T) {
	a := newTestApp(t)

	_, err := a.run(context.Background(), runOptions{Provider: "nope"})
	require.Error(t, err)

	var envelope *gferrors.ErrorEnvelope
	require.True(t, errors.As(err, &envelope))
	require.Equal(t, "INVALID_INPUT", envelope.Code)
}

func TestRunRejectsZeroTarget(t *testing.T) {
	a := newTestApp(t)
	a.cfg.Engine.TargetCount = 0

	_, err := a.run(context.Background(), runOptions{})
	require.Error(t, err)

	var envelope *gferrors.ErrorEnvelope
	require.True(t, errors.As(err, &envelope))
	require.Equal(t, "VALIDATION_FAILED", envelope.Code)
}

func TestRunExcludesProfileArtists(t *testing.T) {
	a := newTestApp(t)
	a.profile = library.Profile{
		Artists: []library.ArtistRef{{Name: "Portishead"}, {Name: "Burial"}},
	}

	result, err := a.run(context.Background(), runOptions{TargetCount: 5})
	require.NoError(t, err)
	for _, rec := range result.Recommendations {
		require.NotEqual(t, "Portishead", rec.Artist)
		require.NotEqual(t, "Burial", rec.Artist)
	}
}

func TestRunCachesRepeatRequests(t *testing.T) {
	a := newTestApp(t)

	first, err := a.run(context.Background(), runOptions{TargetCount: 2})
	require.NoError(t, err)
	require.False(t, first.FromCache)

	second, err := a.run(context.Background(), runOptions{TargetCount: 2})
	require.NoError(t, err)
	require.True(t, second.FromCache)
	require.Equal(t, core.StopReasonCacheHit, second.StopReason)

	// Refresh bypasses the cache and hits the backend again.
	third, err := a.run(context.Background(), runOptions{TargetCount: 2, Refresh: true})
	require.NoError(t, err)
	require.False(t, third.FromCache)
}

func TestRecommendAdaptsHandlerRequest(t *testing.T) {
	a := newTestApp(t)

	result, err := a.Recommend(context.Background(), handlers.RecommendRequest{
		Provider:    "local",
		TargetCount: 4,
	})
	require.NoError(t, err)
	require.Equal(t, "local", result.Provider)
	require.Len(t, result.Recommendations, 4)
}

func TestFormatFileSize(t *testing.T) {
	cases := []struct {
		size int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, formatFileSize(tc.size))
	}
}
