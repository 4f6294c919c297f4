// Package engine implements the recommendation orchestration core: admission
// control, provider health tracking, token budgeting, iteration planning,
// and result caching, composed by the Orchestrator.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tracklens/tracklens/internal/core"
)

// Provider is the abstract backend capability the engine consumes. Concrete
// HTTP clients live outside the core.
type Provider interface {
	Name() string
	GetRecommendations(ctx context.Context, prompt ProviderPrompt) ([]core.Recommendation, error)
	TestConnection(ctx context.Context) error
}

// ProviderPrompt is the engine-side request handed to a provider for one call.
type ProviderPrompt struct {
	Model    core.ModelDescriptor
	System   string
	User     string
	Count    int
	JSONMode bool
}

// errorKinder is implemented by provider errors that carry a failure class.
type errorKinder interface {
	ErrorKind() core.ProviderErrorKind
}

// Orchestrator owns one instance of each engine component for its process
// lifetime. Components never reference each other; this is the sole
// composition point.
type Orchestrator struct {
	Providers map[string]Provider
	Limiter   *RateLimiter
	Health    *HealthMonitor
	Budgeter  *TokenBudgeter
	Planner   IterationPlanner
	Cache     *RecommendationCache

	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Recommend runs the full pipeline for one request: cache check, budget
// plan, then adaptive provider rounds until the target is met or a stop
// condition fires.
//
// Provider failures are absorbed: they are recorded with the health monitor
// and the loop retries up to its thresholds. Only an infeasible budget, an
// invalid request, or caller cancellation produce an error; everything else
// degrades to a (possibly partial) result with machine-readable metadata.
func (o *Orchestrator) Recommend(ctx context.Context, req core.RecommendationRequest) (*core.RecommendationResult, error) {
	if o == nil {
		return nil, errors.New("orchestrator not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	providerName := strings.TrimSpace(req.Provider)
	if providerName == "" {
		return nil, errors.New("provider is required")
	}
	prov, ok := o.Providers[providerName]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", providerName)
	}
	if req.TargetCount < 0 {
		return nil, fmt.Errorf("target count must be >= 0, got %d", req.TargetCount)
	}

	if req.Fingerprint != "" && o.Cache != nil {
		if recs, found := o.Cache.Get(req.Fingerprint); found {
			return &core.RecommendationResult{
				Recommendations: recs,
				RoundsUsed:      0,
				StopReason:      core.StopReasonCacheHit,
				UnderTarget:     req.TargetCount > 0 && len(recs) < req.TargetCount,
				FromCache:       true,
				Provider:        providerName,
				Model:           req.Model.ID,
			}, nil
		}
	}

	plan, err := o.Budgeter.Build(ctx, BudgetRequest{
		Provider:        providerName,
		Model:           req.Model,
		SystemPrompt:    req.SystemPrompt,
		ToolSchema:      req.ToolSchema,
		SamplingPreview: req.SamplingPreview,
		TargetCount:     req.TargetCount,
	})
	if err != nil {
		return nil, err
	}

	profile := o.Planner.Profile(IterationOptions{
		Backfill:             req.Backfill,
		StopSensitivity:      req.StopSensitivity,
		ZeroStopThreshold:    req.ZeroStopThreshold,
		LowStopThreshold:     req.LowStopThreshold,
		MaxIterations:        req.MaxIterations,
		Cooldown:             req.Cooldown,
		GuaranteeExactTarget: req.GuaranteeExactTarget,
	})

	maxRounds := 1
	if profile.EnableRefinement {
		maxRounds = 1 + profile.MaxIterations
	}

	seen := make(map[string]struct{}, len(req.ExcludeKeys)+req.TargetCount)
	for _, key := range req.ExcludeKeys {
		seen[key] = struct{}{}
	}

	result := &core.RecommendationResult{
		PlanRationale: plan.Rationale,
		Provider:      providerName,
		Model:         req.Model.ID,
	}

	var streaks stopState
	accepted := make([]core.Recommendation, 0, req.TargetCount)

	for round := 1; round <= maxRounds; round++ {
		if !o.Health.IsHealthy(providerName) {
			result.StopReason = core.StopReasonProviderUnavailable
			break
		}

		if round > 1 && profile.Cooldown > 0 {
			if err := o.sleep(ctx, profile.Cooldown); err != nil {
				return nil, err
			}
		}

		count := plan.BatchSize
		if req.TargetCount > 0 {
			if remaining := req.TargetCount - len(accepted); profile.GuaranteeExactTarget && remaining < count {
				count = remaining
			}
		}
		if count < 1 {
			count = 1
		}

		prompt := ProviderPrompt{
			Model:    req.Model,
			System:   req.SystemPrompt,
			User:     buildUserPrompt(req, plan, count),
			Count:    count,
			JSONMode: req.Model.Capabilities.JSONMode,
		}

		var recs []core.Recommendation
		started := o.now()
		callErr := o.Limiter.Do(ctx, providerName, func(ctx context.Context) error {
			var err error
			recs, err = prov.GetRecommendations(ctx, prompt)
			return err
		})
		result.RoundsUsed = round

		if callErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.Health.RecordFailure(providerName, classifyProviderError(callErr))
			streaks.observe(0, profile)
		} else {
			o.Health.RecordSuccess(providerName, o.now().Sub(started))
			netNew := 0
			for _, rec := range recs {
				clean, ok := sanitizeRecommendation(rec)
				if !ok {
					continue
				}
				key := clean.Key()
				if _, dup := seen[key]; dup {
					continue
				}
				// An artist-level exclusion also covers its albums.
				if _, dup := seen[artistOnlyKey(clean)]; dup {
					continue
				}
				seen[key] = struct{}{}
				accepted = append(accepted, clean)
				netNew++
			}
			streaks.observe(netNew, profile)
		}

		if req.TargetCount == 0 || len(accepted) >= req.TargetCount {
			result.StopReason = core.StopReasonTargetMet
			break
		}

		if !profile.GuaranteeExactTarget {
			if reason, fired := streaks.stopReason(profile); fired {
				result.StopReason = reason
				break
			}
		}

		if round == maxRounds {
			result.StopReason = core.StopReasonIterationsExhausted
		}
	}

	result.Recommendations = accepted
	result.UnderTarget = req.TargetCount > 0 && len(accepted) < req.TargetCount

	if req.Fingerprint != "" && o.Cache != nil && len(accepted) > 0 {
		o.Cache.Set(req.Fingerprint, accepted)
	}

	return result, nil
}

// TestProvider checks connectivity for a named provider, recording the
// outcome with the health monitor.
func (o *Orchestrator) TestProvider(ctx context.Context, name string) error {
	prov, ok := o.Providers[name]
	if !ok {
		return fmt.Errorf("unknown provider %q", name)
	}

	started := o.now()
	err := o.Limiter.Do(ctx, name, func(ctx context.Context) error {
		return prov.TestConnection(ctx)
	})
	if err != nil {
		if ctx.Err() == nil {
			o.Health.RecordFailure(name, classifyProviderError(err))
		}
		return err
	}
	o.Health.RecordSuccess(name, o.now().Sub(started))
	return nil
}

// buildUserPrompt assembles the round's user message from the plan-selected
// sampling entries. Prompt authoring beyond this assembly is a collaborator
// concern; the engine only respects the plan's budget.
func buildUserPrompt(req core.RecommendationRequest, plan *core.TokenBudgetPlan, count int) string {
	var b strings.Builder
	if plan.SamplingItems > 0 && len(req.SamplingPreview) > 0 {
		items := plan.SamplingItems
		if items > len(req.SamplingPreview) {
			items = len(req.SamplingPreview)
		}
		b.WriteString("Library sample:\n")
		for _, entry := range req.SamplingPreview[:items] {
			b.WriteString("- ")
			b.WriteString(entry)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Recommend %d new artists or albums that are not in the library sample.", count)
	return b.String()
}

func sanitizeRecommendation(rec core.Recommendation) (core.Recommendation, bool) {
	rec.Artist = strings.TrimSpace(rec.Artist)
	rec.Album = strings.TrimSpace(rec.Album)
	rec.Genre = strings.TrimSpace(rec.Genre)
	rec.Reason = strings.TrimSpace(rec.Reason)
	if rec.Artist == "" {
		return core.Recommendation{}, false
	}
	if rec.Confidence < 0 {
		rec.Confidence = 0
	}
	if rec.Confidence > 1 {
		rec.Confidence = 1
	}
	return rec, true
}

func artistOnlyKey(rec core.Recommendation) string {
	return strings.ToLower(rec.Artist) + "|"
}

// classifyProviderError maps an error to its failure kind for health
// bookkeeping.
func classifyProviderError(err error) core.ProviderErrorKind {
	var kinder errorKinder
	if errors.As(err, &kinder) {
		return kinder.ErrorKind()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.ErrorKindTimeout
	}
	return core.ErrorKindUnknown
}

func (o *Orchestrator) now() time.Time {
	if o != nil && o.Clock != nil {
		return o.Clock()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if o != nil && o.Sleep != nil {
		return o.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}
