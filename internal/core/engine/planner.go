package engine

import (
	"time"

	"github.com/tracklens/tracklens/internal/core"
)

const defaultMaxIterations = 5

// stopFloors is the minimum streak threshold pair a sensitivity level
// enforces. User configuration can raise thresholds above the floor, never
// lower them below it.
type stopFloors struct {
	zero int
	low  int
}

// sensitivityFloors is the policy table consulted by Profile. Keeping the
// mapping as data makes it trivially testable against expected outputs.
var sensitivityFloors = map[core.StopSensitivity]stopFloors{
	core.StopOff:        {zero: 0, low: 0},
	core.StopAggressive: {zero: 1, low: 1},
	core.StopNormal:     {zero: 1, low: 1},
	core.StopStrict:     {zero: 1, low: 2},
	core.StopLenient:    {zero: 2, low: 4},
}

// IterationOptions are the raw configuration inputs for one request.
type IterationOptions struct {
	Backfill             core.BackfillStrategy
	StopSensitivity      core.StopSensitivity
	ZeroStopThreshold    int
	LowStopThreshold     int
	MaxIterations        int
	Cooldown             time.Duration
	GuaranteeExactTarget bool
}

// IterationPlanner maps configuration into concrete loop-control thresholds.
type IterationPlanner struct{}

// Profile resolves the effective iteration profile. BackfillOff disables
// refinement entirely regardless of every other input; otherwise each
// threshold is max(sensitivity floor, configured value).
func (IterationPlanner) Profile(opts IterationOptions) core.IterationProfile {
	if opts.Backfill == core.BackfillOff {
		return core.IterationProfile{}
	}

	floors, ok := sensitivityFloors[opts.StopSensitivity]
	if !ok {
		floors = sensitivityFloors[core.StopNormal]
	}

	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}

	cooldown := opts.Cooldown
	if cooldown < 0 {
		cooldown = 0
	}

	return core.IterationProfile{
		EnableRefinement:     true,
		MaxIterations:        maxIterations,
		ZeroStopThreshold:    maxInt(floors.zero, opts.ZeroStopThreshold),
		LowStopThreshold:     maxInt(floors.low, opts.LowStopThreshold),
		Cooldown:             cooldown,
		GuaranteeExactTarget: opts.GuaranteeExactTarget,
	}
}

// stopState tracks the zero and low streaks across rounds. A zero round also
// counts toward the low streak; a sufficient round resets both.
type stopState struct {
	zeroStreak int
	lowStreak  int
}

// observe records one round's net new accepted count against the profile's
// low boundary.
func (s *stopState) observe(netNew int, profile core.IterationProfile) {
	switch {
	case netNew == 0:
		s.zeroStreak++
		s.lowStreak++
	case profile.LowStopThreshold > 0 && netNew < profile.LowStopThreshold:
		s.zeroStreak = 0
		s.lowStreak++
	default:
		s.zeroStreak = 0
		s.lowStreak = 0
	}
}

// stopReason reports which streak threshold fired, if any. Zero-valued
// thresholds never fire.
func (s *stopState) stopReason(profile core.IterationProfile) (core.StopReason, bool) {
	if profile.ZeroStopThreshold > 0 && s.zeroStreak >= profile.ZeroStopThreshold {
		return core.StopReasonZeroStreak, true
	}
	if profile.LowStopThreshold > 0 && s.lowStreak >= profile.LowStopThreshold {
		return core.StopReasonLowStreak, true
	}
	return "", false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
