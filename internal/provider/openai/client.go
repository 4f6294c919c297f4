// Package openai implements the OpenAI chat-completions backend.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tracklens/tracklens/internal/core"
	"github.com/tracklens/tracklens/internal/core/engine"
	"github.com/tracklens/tracklens/internal/provider/driver"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client speaks the OpenAI chat completions API via direct HTTP.
type Client struct {
	ProviderName string
	BaseURL      string
	APIKey       string
	HTTPClient   *http.Client
	Timeout      time.Duration
}

// NewClient returns a client with defaults applied.
func NewClient(name, baseURL, apiKey string) *Client {
	url := strings.TrimSpace(baseURL)
	if url == "" {
		url = defaultBaseURL
	}
	if strings.TrimSpace(name) == "" {
		name = "openai"
	}

	return &Client{
		ProviderName: name,
		BaseURL:      url,
		APIKey:       strings.TrimSpace(apiKey),
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return c.ProviderName
}

// GetRecommendations sends one chat completion round and parses the
// structured recommendation payload out of the first choice.
func (c *Client) GetRecommendations(ctx context.Context, prompt engine.ProviderPrompt) ([]core.Recommendation, error) {
	if c == nil {
		return nil, fmt.Errorf("openai client not configured")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, &driver.Error{Provider: c.ProviderName, Kind: core.ErrorKindAuthFailed, Message: "api key is required"}
	}

	payload := buildChatRequest(prompt)
	parsed, err := c.complete(ctx, payload)
	if err != nil {
		return nil, err
	}
	if len(parsed.Choices) == 0 {
		return nil, &driver.Error{Provider: c.ProviderName, Kind: core.ErrorKindServerError, Message: "empty response choices"}
	}

	recs, err := driver.ParseRecommendations(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parse %s output: %w", c.ProviderName, err)
	}
	return recs, nil
}

// TestConnection verifies credentials against the models listing endpoint.
func (c *Client) TestConnection(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("openai client not configured")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return &driver.Error{Provider: c.ProviderName, Kind: core.ErrorKindAuthFailed, Message: "api key is required"}
	}

	ctx, cancel := withTimeout(ctx, c.Timeout)
	if cancel != nil {
		defer cancel()
	}

	url := strings.TrimRight(c.BaseURL, "/") + "/models"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return driver.NewHTTPError(c.ProviderName, resp.StatusCode, string(body))
	}
	return nil
}

func (c *Client) complete(ctx context.Context, payload *chatCompletionRequest) (*chatCompletionResponse, error) {
	ctx, cancel := withTimeout(ctx, c.Timeout)
	if cancel != nil {
		defer cancel()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := strings.TrimRight(c.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, driver.NewHTTPError(c.ProviderName, resp.StatusCode, string(respBody))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &parsed, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, timeout)
}
