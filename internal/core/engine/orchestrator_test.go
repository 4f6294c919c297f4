package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tracklens/tracklens/internal/core"
	"github.com/tracklens/tracklens/internal/library"
)

// scriptedProvider returns one pre-baked response per round, in order. Rounds
// past the script return the last entry.
type scriptedProvider struct {
	name   string
	rounds []scriptedRound
	calls  int
}

type scriptedRound struct {
	recs []core.Recommendation
	err  error
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) GetRecommendations(ctx context.Context, prompt ProviderPrompt) ([]core.Recommendation, error) {
	idx := p.calls
	if idx >= len(p.rounds) {
		idx = len(p.rounds) - 1
	}
	p.calls++
	round := p.rounds[idx]
	return round.recs, round.err
}

func (p *scriptedProvider) TestConnection(ctx context.Context) error {
	if len(p.rounds) > 0 {
		return p.rounds[0].err
	}
	return nil
}

type kindedError struct {
	kind core.ProviderErrorKind
}

func (e kindedError) Error() string                    { return string(e.kind) }
func (e kindedError) ErrorKind() core.ProviderErrorKind { return e.kind }

func newTestOrchestrator(prov *scriptedProvider) *Orchestrator {
	limiter := NewRateLimiter()
	limiter.Configure(prov.name, 1000, time.Second)
	return &Orchestrator{
		Providers: map[string]Provider{prov.name: prov},
		Limiter:   limiter,
		Health:    NewHealthMonitor(),
		Budgeter:  &TokenBudgeter{Counter: library.Counter{}},
		Planner:   IterationPlanner{},
		Cache:     NewRecommendationCache(0, 0),
		Sleep:     func(ctx context.Context, d time.Duration) error { return ctx.Err() },
	}
}

func baseRequest(prov string, target int) core.RecommendationRequest {
	return core.RecommendationRequest{
		Provider:        prov,
		Model:           core.ModelDescriptor{ID: "test-model", ContextTokens: 8192},
		TargetCount:     target,
		SystemPrompt:    "You recommend music.",
		Backfill:        core.BackfillStandard,
		StopSensitivity: core.StopNormal,
		MaxIterations:   4,
	}
}

func rec(artist, album string) core.Recommendation {
	return core.Recommendation{Artist: artist, Album: album, Confidence: 0.8}
}

func TestOrchestratorReachesTargetInOneRound(t *testing.T) {
	prov := &scriptedProvider{name: "mock", rounds: []scriptedRound{
		{recs: []core.Recommendation{rec("Boards of Canada", ""), rec("Autechre", ""), rec("Aphex Twin", "")}},
	}}
	o := newTestOrchestrator(prov)

	result, err := o.Recommend(context.Background(), baseRequest("mock", 3))
	require.NoError(t, err)

	require.Equal(t, core.StopReasonTargetMet, result.StopReason)
	require.Len(t, result.Recommendations, 3)
	require.Equal(t, 1, result.RoundsUsed)
	require.False(t, result.UnderTarget)
	require.False(t, result.FromCache)
	require.NotEmpty(t, result.PlanRationale)
}

func TestOrchestratorFiltersDuplicatesAndGarbage(t *testing.T) {
	prov := &scriptedProvider{name: "mock", rounds: []scriptedRound{
		{recs: []core.Recommendation{
			rec("Portishead", "Dummy"),
			rec("  portishead ", " dummy "), // duplicate after normalization
			rec("", "Orphan Album"),         // no artist, dropped
			rec("Excluded Artist", "Anything"),
			{Artist: "Clamped", Confidence: 4.2},
		}},
		{recs: []core.Recommendation{rec("Massive Attack", "Mezzanine")}},
	}}
	o := newTestOrchestrator(prov)

	req := baseRequest("mock", 3)
	req.ExcludeKeys = []string{"excluded artist|"}

	result, err := o.Recommend(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, core.StopReasonTargetMet, result.StopReason)
	require.Len(t, result.Recommendations, 3)
	require.Equal(t, 2, result.RoundsUsed)

	artists := make([]string, 0, 3)
	for _, r := range result.Recommendations {
		artists = append(artists, r.Artist)
		require.GreaterOrEqual(t, r.Confidence, 0.0)
		require.LessOrEqual(t, r.Confidence, 1.0)
	}
	require.Equal(t, []string{"Portishead", "Clamped", "Massive Attack"}, artists)
}

func TestOrchestratorStopsOnZeroStreak(t *testing.T) {
	prov := &scriptedProvider{name: "mock", rounds: []scriptedRound{
		{recs: []core.Recommendation{rec("Burial", "")}},
		{recs: nil},
		{recs: nil},
		{recs: nil},
	}}
	o := newTestOrchestrator(prov)

	req := baseRequest("mock", 10)
	req.StopSensitivity = core.StopStrict // zero streak threshold 1

	result, err := o.Recommend(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, core.StopReasonZeroStreak, result.StopReason)
	require.Len(t, result.Recommendations, 1)
	require.True(t, result.UnderTarget)
	require.Equal(t, 2, result.RoundsUsed)
}

func TestOrchestratorGuaranteeExactTargetIgnoresStreaks(t *testing.T) {
	prov := &scriptedProvider{name: "mock", rounds: []scriptedRound{
		{recs: []core.Recommendation{rec("A", ""), rec("B", ""), rec("C", ""), rec("D", "")}},
		{recs: nil},
		{recs: []core.Recommendation{rec("E", "")}},
	}}
	o := newTestOrchestrator(prov)

	req := baseRequest("mock", 5)
	req.StopSensitivity = core.StopStrict
	req.GuaranteeExactTarget = true

	result, err := o.Recommend(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, core.StopReasonTargetMet, result.StopReason)
	require.Len(t, result.Recommendations, 5)
	require.False(t, result.UnderTarget)
	require.Equal(t, 3, result.RoundsUsed, "zero round must not stop a guaranteed run")
}

func TestOrchestratorExhaustsIterations(t *testing.T) {
	prov := &scriptedProvider{name: "mock", rounds: []scriptedRound{
		{recs: []core.Recommendation{rec("One Artist", "")}},
	}}
	o := newTestOrchestrator(prov)

	req := baseRequest("mock", 50)
	req.MaxIterations = 2
	req.StopSensitivity = core.StopOff

	result, err := o.Recommend(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, core.StopReasonIterationsExhausted, result.StopReason)
	require.Equal(t, 3, result.RoundsUsed) // initial round plus two refinements
	require.True(t, result.UnderTarget)
}

func TestOrchestratorCacheHitShortCircuits(t *testing.T) {
	prov := &scriptedProvider{name: "mock", rounds: []scriptedRound{
		{recs: []core.Recommendation{rec("Cached", "")}},
	}}
	o := newTestOrchestrator(prov)

	cached := []core.Recommendation{rec("Flying Lotus", "Cosmogramma")}
	o.Cache.Set("fp-1", cached)

	req := baseRequest("mock", 1)
	req.Fingerprint = "fp-1"

	result, err := o.Recommend(context.Background(), req)
	require.NoError(t, err)

	require.True(t, result.FromCache)
	require.Equal(t, core.StopReasonCacheHit, result.StopReason)
	require.Equal(t, 0, result.RoundsUsed)
	require.Equal(t, cached, result.Recommendations)
	require.Equal(t, 0, prov.calls, "provider must not be called on a cache hit")
}

func TestOrchestratorPopulatesCacheAfterRun(t *testing.T) {
	prov := &scriptedProvider{name: "mock", rounds: []scriptedRound{
		{recs: []core.Recommendation{rec("Four Tet", "")}},
	}}
	o := newTestOrchestrator(prov)

	req := baseRequest("mock", 1)
	req.Fingerprint = "fp-2"

	_, err := o.Recommend(context.Background(), req)
	require.NoError(t, err)

	recs, found := o.Cache.Get("fp-2")
	require.True(t, found)
	require.Len(t, recs, 1)
}

func TestOrchestratorEmptyRunDoesNotPoisonCache(t *testing.T) {
	prov := &scriptedProvider{name: "mock", rounds: []scriptedRound{
		{recs: nil},
	}}
	o := newTestOrchestrator(prov)

	req := baseRequest("mock", 3)
	req.Fingerprint = "fp-3"
	req.StopSensitivity = core.StopStrict

	result, err := o.Recommend(context.Background(), req)
	require.NoError(t, err)
	require.Empty(t, result.Recommendations)

	require.Equal(t, 0, o.Cache.Len())
}

func TestOrchestratorInfeasibleBudgetIsFatal(t *testing.T) {
	prov := &scriptedProvider{name: "mock", rounds: []scriptedRound{{recs: nil}}}
	o := newTestOrchestrator(prov)

	req := baseRequest("mock", 5)
	req.Model.ContextTokens = 0

	_, err := o.Recommend(context.Background(), req)
	require.ErrorIs(t, err, ErrBudgetInfeasible)
	require.Equal(t, 0, prov.calls)
}

func TestOrchestratorAbsorbsProviderFailures(t *testing.T) {
	prov := &scriptedProvider{name: "mock", rounds: []scriptedRound{
		{err: kindedError{core.ErrorKindRateLimited}},
		{recs: []core.Recommendation{rec("Recovered", "")}},
	}}
	o := newTestOrchestrator(prov)

	req := baseRequest("mock", 1)
	req.StopSensitivity = core.StopLenient // one failed round must not end the run

	result, err := o.Recommend(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, core.StopReasonTargetMet, result.StopReason)
	require.Len(t, result.Recommendations, 1)
	require.Equal(t, 2, result.RoundsUsed)
}

func TestOrchestratorStopsWhenProviderUnhealthy(t *testing.T) {
	prov := &scriptedProvider{name: "mock", rounds: []scriptedRound{{recs: nil}}}
	o := newTestOrchestrator(prov)

	for i := 0; i < 8; i++ {
		o.Health.RecordFailure("mock", core.ErrorKindServerError)
	}

	result, err := o.Recommend(context.Background(), baseRequest("mock", 3))
	require.NoError(t, err)

	require.Equal(t, core.StopReasonProviderUnavailable, result.StopReason)
	require.Empty(t, result.Recommendations)
	require.True(t, result.UnderTarget)
	require.Equal(t, 0, prov.calls)
}

func TestOrchestratorCancellationDuringCooldown(t *testing.T) {
	prov := &scriptedProvider{name: "mock", rounds: []scriptedRound{
		{recs: []core.Recommendation{rec("First", "")}},
	}}
	o := newTestOrchestrator(prov)
	o.Sleep = func(ctx context.Context, d time.Duration) error { return context.Canceled }

	req := baseRequest("mock", 5)
	req.Cooldown = time.Second
	req.StopSensitivity = core.StopOff

	_, err := o.Recommend(context.Background(), req)
	require.ErrorIs(t, err, context.Canceled)
}

func TestOrchestratorValidatesRequest(t *testing.T) {
	prov := &scriptedProvider{name: "mock", rounds: []scriptedRound{{recs: nil}}}
	o := newTestOrchestrator(prov)

	_, err := o.Recommend(context.Background(), baseRequest("", 1))
	require.Error(t, err)

	_, err = o.Recommend(context.Background(), baseRequest("nope", 1))
	require.Error(t, err)

	req := baseRequest("mock", -1)
	_, err = o.Recommend(context.Background(), req)
	require.Error(t, err)
}

func TestOrchestratorZeroTargetIsNoOp(t *testing.T) {
	prov := &scriptedProvider{name: "mock", rounds: []scriptedRound{
		{recs: []core.Recommendation{rec("Anything", "")}},
	}}
	o := newTestOrchestrator(prov)

	result, err := o.Recommend(context.Background(), baseRequest("mock", 0))
	require.NoError(t, err)

	require.Equal(t, core.StopReasonTargetMet, result.StopReason)
	require.False(t, result.UnderTarget)
}

func TestOrchestratorTestProviderRecordsHealth(t *testing.T) {
	prov := &scriptedProvider{name: "mock", rounds: []scriptedRound{
		{err: kindedError{core.ErrorKindAuthFailed}},
	}}
	o := newTestOrchestrator(prov)

	err := o.TestProvider(context.Background(), "mock")
	require.Error(t, err)

	var kinder errorKinder
	require.True(t, errors.As(err, &kinder))
	require.Equal(t, core.ErrorKindAuthFailed, kinder.ErrorKind())

	err = o.TestProvider(context.Background(), "missing")
	require.Error(t, err)
}
