// Package driver holds the surface shared by every LLM backend: the uniform
// provider error and the recommendation payload parser.
package driver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tracklens/tracklens/internal/core"
)

// Error is the uniform failure a driver returns for a rejected or failed
// provider call. Kind feeds health bookkeeping; StatusCode and Message feed
// diagnostics.
type Error struct {
	Provider   string
	Kind       core.ProviderErrorKind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s: %s: %s", e.Provider, e.Kind, e.Message)
}

// ErrorKind reports the failure class for health classification.
func (e *Error) ErrorKind() core.ProviderErrorKind {
	if e == nil {
		return core.ErrorKindUnknown
	}
	return e.Kind
}

// KindFromStatus maps an HTTP status code to a failure class.
func KindFromStatus(status int) core.ProviderErrorKind {
	switch {
	case status == 401 || status == 403:
		return core.ErrorKindAuthFailed
	case status == 429:
		return core.ErrorKindRateLimited
	case status == 408 || status == 504:
		return core.ErrorKindTimeout
	case status >= 500 && status <= 599:
		return core.ErrorKindServerError
	default:
		return core.ErrorKindUnknown
	}
}

// NewHTTPError builds an Error from an HTTP failure response.
func NewHTTPError(providerName string, status int, body string) *Error {
	return &Error{
		Provider:   providerName,
		Kind:       KindFromStatus(status),
		StatusCode: status,
		Message:    strings.TrimSpace(body),
	}
}

// recommendationPayload is the JSON shape models are instructed to emit.
type recommendationPayload struct {
	Recommendations []core.Recommendation `json:"recommendations"`
}

// ParseRecommendations extracts recommendations from a model's text output.
// It accepts either {"recommendations": [...]} or a bare array, and strips a
// markdown code fence if the model wrapped its JSON in one.
func ParseRecommendations(text string) ([]core.Recommendation, error) {
	trimmed := stripCodeFence(strings.TrimSpace(text))
	if trimmed == "" {
		return nil, fmt.Errorf("empty model output")
	}

	if strings.HasPrefix(trimmed, "[") {
		var recs []core.Recommendation
		if err := json.Unmarshal([]byte(trimmed), &recs); err != nil {
			return nil, fmt.Errorf("decode recommendations array: %w", err)
		}
		return recs, nil
	}

	var payload recommendationPayload
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return nil, fmt.Errorf("decode recommendations object: %w", err)
	}
	return payload.Recommendations, nil
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
