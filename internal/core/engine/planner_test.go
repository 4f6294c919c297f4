package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tracklens/tracklens/internal/core"
)

func TestBackfillOffDisablesEverything(t *testing.T) {
	planner := IterationPlanner{}

	profile := planner.Profile(IterationOptions{
		Backfill:             core.BackfillOff,
		StopSensitivity:      core.StopStrict,
		ZeroStopThreshold:    9,
		LowStopThreshold:     9,
		MaxIterations:        9,
		Cooldown:             time.Second,
		GuaranteeExactTarget: true,
	})

	require.False(t, profile.EnableRefinement)
	require.Equal(t, 0, profile.MaxIterations)
	require.Equal(t, 0, profile.ZeroStopThreshold)
	require.Equal(t, 0, profile.LowStopThreshold)
}

func TestSensitivityFloorsAreMinimums(t *testing.T) {
	planner := IterationPlanner{}

	tests := []struct {
		sensitivity core.StopSensitivity
		rawZero     int
		rawLow      int
		wantZero    int
		wantLow     int
	}{
		{core.StopStrict, 0, 0, 1, 2},
		{core.StopStrict, 3, 1, 3, 2},
		{core.StopNormal, 0, 0, 1, 1},
		{core.StopLenient, 0, 0, 2, 4},
		{core.StopLenient, 5, 6, 5, 6},
		{core.StopAggressive, 0, 0, 1, 1},
		{core.StopOff, 0, 0, 0, 0},
		{core.StopOff, 2, 3, 2, 3},
	}

	for _, tt := range tests {
		profile := planner.Profile(IterationOptions{
			Backfill:          core.BackfillStandard,
			StopSensitivity:   tt.sensitivity,
			ZeroStopThreshold: tt.rawZero,
			LowStopThreshold:  tt.rawLow,
			MaxIterations:     3,
		})
		require.True(t, profile.EnableRefinement)
		require.Equal(t, tt.wantZero, profile.ZeroStopThreshold, "sensitivity %s zero", tt.sensitivity)
		require.Equal(t, tt.wantLow, profile.LowStopThreshold, "sensitivity %s low", tt.sensitivity)
	}
}

func TestProfileSanitizesIterationBounds(t *testing.T) {
	planner := IterationPlanner{}

	profile := planner.Profile(IterationOptions{
		Backfill:        core.BackfillStandard,
		StopSensitivity: core.StopNormal,
		MaxIterations:   -2,
		Cooldown:        -time.Second,
	})

	require.Equal(t, defaultMaxIterations, profile.MaxIterations)
	require.Equal(t, time.Duration(0), profile.Cooldown)
}

func TestStopStateStreaks(t *testing.T) {
	profile := core.IterationProfile{ZeroStopThreshold: 2, LowStopThreshold: 3}

	var s stopState

	s.observe(5, profile) // sufficient
	_, fired := s.stopReason(profile)
	require.False(t, fired)

	s.observe(0, profile) // zero counts toward both streaks
	_, fired = s.stopReason(profile)
	require.False(t, fired)

	s.observe(0, profile)
	reason, fired := s.stopReason(profile)
	require.True(t, fired)
	require.Equal(t, core.StopReasonZeroStreak, reason)
}

func TestStopStateLowStreakResetOnSufficientRound(t *testing.T) {
	profile := core.IterationProfile{ZeroStopThreshold: 5, LowStopThreshold: 2}

	var s stopState
	s.observe(1, profile) // low: below threshold 2 but nonzero
	s.observe(4, profile) // sufficient resets
	s.observe(1, profile)
	_, fired := s.stopReason(profile)
	require.False(t, fired)

	s.observe(1, profile)
	reason, fired := s.stopReason(profile)
	require.True(t, fired)
	require.Equal(t, core.StopReasonLowStreak, reason)
}

func TestZeroThresholdNeverFires(t *testing.T) {
	profile := core.IterationProfile{ZeroStopThreshold: 0, LowStopThreshold: 0}

	var s stopState
	for i := 0; i < 10; i++ {
		s.observe(0, profile)
	}
	_, fired := s.stopReason(profile)
	require.False(t, fired)
}
