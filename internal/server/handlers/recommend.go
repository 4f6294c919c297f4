package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tracklens/tracklens/internal/core"
	"github.com/tracklens/tracklens/internal/core/engine"
	apperrors "github.com/tracklens/tracklens/internal/errors"
	"github.com/tracklens/tracklens/internal/provider/driver"
)

// RecommendRequest is the JSON body accepted by POST /v1/recommendations.
// Provider and model fall back to the configured defaults when omitted.
type RecommendRequest struct {
	Provider             string   `json:"provider,omitempty"`
	Model                string   `json:"model,omitempty"`
	TargetCount          int      `json:"target_count"`
	Backfill             string   `json:"backfill,omitempty"`
	StopSensitivity      string   `json:"stop_sensitivity,omitempty"`
	MaxIterations        int      `json:"max_iterations,omitempty"`
	GuaranteeExactTarget bool     `json:"guarantee_exact_target,omitempty"`
	ExcludeKeys          []string `json:"exclude_keys,omitempty"`
	Refresh              bool     `json:"refresh,omitempty"`
}

// Recommender runs one recommendation request end to end. The concrete
// implementation resolves providers and models from configuration, consults
// the cache, and drives the engine.
type Recommender interface {
	Recommend(ctx context.Context, req RecommendRequest) (*core.RecommendationResult, error)
}

// RecommendHandler serves POST /v1/recommendations.
type RecommendHandler struct {
	Service Recommender
}

func (h *RecommendHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		respondWithError(w, r, apperrors.NewInternalError("recommendation service not configured"))
		return
	}

	var req RecommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, apperrors.NewInvalidInputError("request body must be valid JSON"))
		return
	}

	if req.TargetCount <= 0 {
		respondWithError(w, r, apperrors.NewValidationError("target_count must be positive"))
		return
	}

	result, err := h.Service.Recommend(r.Context(), req)
	if err != nil {
		respondWithError(w, r, adaptRecommendError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}

// adaptRecommendError maps engine and provider failures onto envelope codes.
// Errors that already carry an envelope pass through untouched.
func adaptRecommendError(err error) error {
	if errors.Is(err, engine.ErrBudgetInfeasible) {
		return apperrors.NewBudgetInfeasibleError(err.Error())
	}

	var provErr *driver.Error
	if errors.As(err, &provErr) {
		switch provErr.Kind {
		case core.ErrorKindTimeout:
			return apperrors.NewTimeoutError(provErr.Error())
		case core.ErrorKindAuthFailed:
			return apperrors.NewProviderUnavailableError(provErr.Error())
		default:
			return apperrors.NewProviderError(provErr.Error())
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeoutError("recommendation run timed out")
	}

	return err
}
