package core

import (
	"strings"
	"time"
)

// Recommendation is a single suggested record, ordered by the engine.
type Recommendation struct {
	Artist     string  `json:"artist"`
	Album      string  `json:"album,omitempty"`
	Genre      string  `json:"genre,omitempty"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// Key returns the case-insensitive dedupe key for a recommendation.
func (r Recommendation) Key() string {
	return strings.ToLower(strings.TrimSpace(r.Artist)) + "|" + strings.ToLower(strings.TrimSpace(r.Album))
}

// ModelCapabilities describes optional model features.
type ModelCapabilities struct {
	JSONMode bool `json:"json_mode" yaml:"json_mode" mapstructure:"json_mode"`
	Stream   bool `json:"stream" yaml:"stream" mapstructure:"stream"`
	Tools    bool `json:"tools" yaml:"tools" mapstructure:"tools"`
}

// ModelDescriptor identifies a model and its context window.
type ModelDescriptor struct {
	ID            string            `json:"id" yaml:"id" mapstructure:"id"`
	ContextTokens int               `json:"context_tokens" yaml:"context_tokens" mapstructure:"context_tokens"`
	Capabilities  ModelCapabilities `json:"capabilities" yaml:"capabilities" mapstructure:"capabilities"`
}

// ProviderErrorKind classifies provider call failures.
type ProviderErrorKind string

const (
	ErrorKindTimeout     ProviderErrorKind = "timeout"
	ErrorKindRateLimited ProviderErrorKind = "rate_limited"
	ErrorKindAuthFailed  ProviderErrorKind = "auth_failed"
	ErrorKindServerError ProviderErrorKind = "server_error"
	ErrorKindUnknown     ProviderErrorKind = "unknown"
)

// HealthStatus is the verdict computed from a provider's rolling outcomes.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// BackfillStrategy controls whether under-filled results trigger follow-up rounds.
type BackfillStrategy string

const (
	BackfillOff      BackfillStrategy = "off"
	BackfillStandard BackfillStrategy = "standard"
)

// ParseBackfillStrategy normalizes a configured strategy name.
func ParseBackfillStrategy(value string) BackfillStrategy {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "off", "none", "disabled":
		return BackfillOff
	default:
		return BackfillStandard
	}
}

// StopSensitivity selects the floor pair applied to stop thresholds.
type StopSensitivity string

const (
	StopOff        StopSensitivity = "off"
	StopAggressive StopSensitivity = "aggressive"
	StopNormal     StopSensitivity = "normal"
	StopStrict     StopSensitivity = "strict"
	StopLenient    StopSensitivity = "lenient"
)

// ParseStopSensitivity normalizes a configured sensitivity name.
func ParseStopSensitivity(value string) StopSensitivity {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "off":
		return StopOff
	case "aggressive":
		return StopAggressive
	case "strict":
		return StopStrict
	case "lenient":
		return StopLenient
	default:
		return StopNormal
	}
}

// TokenBudgetPlan is the immutable per-request plan produced by the budgeter.
type TokenBudgetPlan struct {
	AllowedInputTokens   int    `json:"allowed_input_tokens"`
	ReservedOutputTokens int    `json:"reserved_output_tokens"`
	SamplingItems        int    `json:"sampling_items"`
	BatchSize            int    `json:"batch_size"`
	Batches              int    `json:"batches"`
	Rationale            string `json:"rationale"`
}

// IterationProfile holds loop-control thresholds derived from configuration.
// It is read-only during the recommendation loop.
type IterationProfile struct {
	EnableRefinement     bool          `json:"enable_refinement"`
	MaxIterations        int           `json:"max_iterations"`
	ZeroStopThreshold    int           `json:"zero_stop_threshold"`
	LowStopThreshold     int           `json:"low_stop_threshold"`
	Cooldown             time.Duration `json:"cooldown"`
	GuaranteeExactTarget bool          `json:"guarantee_exact_target"`
}

// StopReason explains why the recommendation loop ended.
type StopReason string

const (
	StopReasonTargetMet           StopReason = "target_met"
	StopReasonZeroStreak          StopReason = "zero_streak"
	StopReasonLowStreak           StopReason = "low_streak"
	StopReasonIterationsExhausted StopReason = "iterations_exhausted"
	StopReasonProviderUnavailable StopReason = "provider_unavailable"
	StopReasonCacheHit            StopReason = "cache_hit"
	StopReasonCancelled           StopReason = "cancelled"
)

// RecommendationRequest carries everything the orchestrator needs for one run.
// The fingerprint and sampling preview are constructed by external
// collaborators and consumed here opaquely.
type RecommendationRequest struct {
	Provider    string
	Model       ModelDescriptor
	TargetCount int

	SystemPrompt    string
	ToolSchema      string
	SamplingPreview []string

	// ExcludeKeys lists Recommendation keys already present in the library.
	ExcludeKeys []string

	// Fingerprint is the cache key. Empty disables caching for the request.
	Fingerprint string

	Backfill             BackfillStrategy
	StopSensitivity      StopSensitivity
	ZeroStopThreshold    int
	LowStopThreshold     int
	MaxIterations        int
	Cooldown             time.Duration
	GuaranteeExactTarget bool
}

// RecommendationResult is the ordered output plus loop metadata for the
// caller's diagnostic surface.
type RecommendationResult struct {
	Recommendations []Recommendation `json:"recommendations"`
	PlanRationale   string           `json:"plan_rationale,omitempty"`
	RoundsUsed      int              `json:"rounds_used"`
	StopReason      StopReason       `json:"stop_reason"`
	UnderTarget     bool             `json:"under_target"`
	FromCache       bool             `json:"from_cache"`
	Provider        string           `json:"provider"`
	Model           string           `json:"model"`
}

// RateLimitState is a persisted snapshot of a rate-limited resource, used by
// the admin CLI. The live sliding window is owned by the engine.
type RateLimitState struct {
	Resource    string        `json:"resource"`
	Capacity    int           `json:"capacity"`
	Period      time.Duration `json:"period"`
	ReservedNow int           `json:"reserved_now"`
	LastGrantAt *time.Time    `json:"last_grant_at,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
