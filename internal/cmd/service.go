package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/tracklens/tracklens/internal/config"
	"github.com/tracklens/tracklens/internal/core"
	"github.com/tracklens/tracklens/internal/core/engine"
	"github.com/tracklens/tracklens/internal/core/store"
	errwrap "github.com/tracklens/tracklens/internal/errors"
	"github.com/tracklens/tracklens/internal/library"
	"github.com/tracklens/tracklens/internal/metrics"
	"github.com/tracklens/tracklens/internal/provider"
	"github.com/tracklens/tracklens/internal/server/handlers"
)

const defaultSystemPrompt = `You are a music discovery assistant. Given a listener's library profile,
recommend albums they do not already own. Respond with a JSON object of the
form {"recommendations": [{"artist", "album", "genre", "confidence",
"reason"}]}. Confidence is a number between 0 and 1. Never recommend artists
already present in the library.`

// runOptions are the per-invocation knobs shared by the CLI and the HTTP
// handler. Zero values fall back to the configured engine defaults.
type runOptions struct {
	Provider             string
	Model                string
	TargetCount          int
	Backfill             string
	StopSensitivity      string
	MaxIterations        int
	GuaranteeExactTarget bool
	ExcludeKeys          []string
	Refresh              bool
}

// app is the composition root: configuration resolved into a provider
// registry, the engine, and optional persistence.
type app struct {
	cfg      *config.Config
	registry *provider.Registry
	models   *provider.ModelRegistry
	limiter  *engine.RateLimiter
	health   *engine.HealthMonitor
	cache    *engine.RecommendationCache
	orch     *engine.Orchestrator
	db       *store.Store
	profile  library.Profile
	log      *logging.Logger
}

// newApp builds the engine from the loaded configuration. When withStore is
// set the libsql store is opened and migrated so runs can be persisted.
func newApp(ctx context.Context, withStore bool, log *logging.Logger) (*app, error) {
	cfg := config.GetConfig()
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}

	models := provider.NewModelRegistry()
	if cfg.ModelsFile != "" {
		if err := models.LoadFile(cfg.ModelsFile); err != nil {
			return nil, fmt.Errorf("load model registry: %w", err)
		}
	}

	registry := provider.NewRegistry()
	limiter := engine.NewRateLimiter()

	providers := make(map[string]engine.Provider)
	for _, name := range cfg.EnabledProviders() {
		provCfg := cfg.Providers[name]
		client, err := registry.Resolve(name, provider.Settings{
			Type:    provCfg.Type,
			BaseURL: provCfg.BaseURL,
			APIKey:  provCfg.APIKey,
			Timeout: provCfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("configure provider %s: %w", name, err)
		}
		providers[name] = client

		if provCfg.RateLimit.MaxRequests > 0 {
			limiter.Configure(name, provCfg.RateLimit.MaxRequests, provCfg.RateLimit.Period)
		}
	}

	health := engine.NewHealthMonitor()
	if cfg.Health.Window > 0 {
		health.Window = cfg.Health.Window
	}
	if cfg.Health.MaxSamples > 0 {
		health.MaxSamples = cfg.Health.MaxSamples
	}

	cache := engine.NewRecommendationCache(cfg.Cache.TTL, cfg.Cache.Capacity)
	cache.StartSweeper()

	a := &app{
		cfg:      cfg,
		registry: registry,
		models:   models,
		limiter:  limiter,
		health:   health,
		cache:    cache,
		orch: &engine.Orchestrator{
			Providers: providers,
			Limiter:   limiter,
			Health:    health,
			Budgeter:  &engine.TokenBudgeter{Counter: library.Counter{}},
			Planner:   engine.IterationPlanner{},
			Cache:     cache,
		},
		log: log,
	}

	if cfg.LibraryFile != "" {
		profile, err := library.LoadProfile(cfg.LibraryFile)
		if err != nil {
			a.close()
			return nil, err
		}
		a.profile = profile
	}

	if withStore {
		db, err := store.Open(ctx, cfg.Store)
		if err != nil {
			a.close()
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			a.close()
			return nil, err
		}
		a.db = db
	}

	return a, nil
}

func (a *app) close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// run executes one recommendation request end to end: resolve provider and
// model, assemble the engine request from the library profile and engine
// defaults, invoke the orchestrator, then persist and record metrics.
func (a *app) run(ctx context.Context, opts runOptions) (*core.RecommendationResult, error) {
	providerName, provCfg, err := a.cfg.ResolveProvider(opts.Provider)
	if err != nil {
		return nil, errwrap.NewInvalidInputError(err.Error())
	}

	modelID := strings.TrimSpace(opts.Model)
	if modelID == "" {
		modelID = provCfg.Model
	}
	if modelID == "" {
		return nil, errwrap.NewInvalidInputError(fmt.Sprintf("provider %s has no model configured", providerName))
	}

	target := opts.TargetCount
	if target <= 0 {
		target = a.cfg.Engine.TargetCount
	}
	if target <= 0 {
		return nil, errwrap.NewValidationError("target count must be positive")
	}

	engineCfg := a.cfg.Engine

	backfill := opts.Backfill
	if backfill == "" {
		backfill = engineCfg.Backfill
	}
	sensitivity := opts.StopSensitivity
	if sensitivity == "" {
		sensitivity = engineCfg.StopSensitivity
	}
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = engineCfg.MaxIterations
	}

	var fingerprint string
	if !opts.Refresh {
		fingerprint = library.Fingerprint(providerName, modelID, target, a.profile)
	}

	req := core.RecommendationRequest{
		Provider:             providerName,
		Model:                a.models.Lookup(modelID),
		TargetCount:          target,
		SystemPrompt:         defaultSystemPrompt,
		SamplingPreview:      a.profile.Preview(),
		ExcludeKeys:          append(a.profile.ExcludeKeys(), opts.ExcludeKeys...),
		Fingerprint:          fingerprint,
		Backfill:             core.ParseBackfillStrategy(backfill),
		StopSensitivity:      core.ParseStopSensitivity(sensitivity),
		ZeroStopThreshold:    engineCfg.ZeroStopThreshold,
		LowStopThreshold:     engineCfg.LowStopThreshold,
		MaxIterations:        maxIterations,
		Cooldown:             engineCfg.Cooldown,
		GuaranteeExactTarget: opts.GuaranteeExactTarget || engineCfg.GuaranteeExactTarget,
	}

	started := time.Now()
	result, err := a.orch.Recommend(ctx, req)
	duration := time.Since(started)

	metrics.SetProviderHealth(providerName, a.health.Status(providerName))
	if err != nil {
		return nil, err
	}

	metrics.RecordRecommendationRun(providerName, result, duration)
	metrics.RecordCacheLookup(result.FromCache)

	a.persistRun(ctx, req, result)

	return result, nil
}

// persistRun writes history and rate limit snapshots best-effort. Storage
// failures never fail the run.
func (a *app) persistRun(ctx context.Context, req core.RecommendationRequest, result *core.RecommendationResult) {
	if a.db == nil {
		return
	}

	if err := a.db.RecordRun(ctx, req.Fingerprint, req.TargetCount, result); err != nil {
		a.warn("Failed to persist recommendation run", err)
	}
	if err := a.db.SaveRateLimitStates(ctx, a.limiter.Snapshot()); err != nil {
		a.warn("Failed to persist rate limit state", err)
	}
}

func (a *app) warn(msg string, err error) {
	if a.log != nil {
		a.log.Warn(msg, zap.Error(err))
	}
}

// Recommend implements handlers.Recommender for the HTTP server.
func (a *app) Recommend(ctx context.Context, req handlers.RecommendRequest) (*core.RecommendationResult, error) {
	return a.run(ctx, runOptions{
		Provider:             req.Provider,
		Model:                req.Model,
		TargetCount:          req.TargetCount,
		Backfill:             req.Backfill,
		StopSensitivity:      req.StopSensitivity,
		MaxIterations:        req.MaxIterations,
		GuaranteeExactTarget: req.GuaranteeExactTarget,
		ExcludeKeys:          req.ExcludeKeys,
		Refresh:              req.Refresh,
	})
}
