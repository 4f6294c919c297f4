// Package compat implements a backend for OpenAI-compatible servers such as
// Ollama, LM Studio, and vLLM.
//
// Note: this is distinct from the openai driver, which targets api.openai.com
// and always authenticates. Compatible servers are frequently local and
// keyless, and some reject unknown response_format values.
package compat

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

// Client speaks the OpenAI-compatible chat completions shape against a
// caller-supplied base URL.
type Client struct {
	ProviderName string
	BaseURL      string
	APIKey       string
	HTTPClient   *http.Client
	Timeout      time.Duration
}

// NewClient returns a client for an OpenAI-compatible endpoint. The base URL
// is required; the API key is optional for keyless local servers.
func NewClient(name, baseURL, apiKey string) (*Client, error) {
	url := strings.TrimSpace(baseURL)
	if url == "" {
		return nil, fmt.Errorf("base url is required for openai-compatible provider %q", name)
	}
	if strings.TrimSpace(name) == "" {
		name = "compat"
	}

	return &Client{
		ProviderName: name,
		BaseURL:      url,
		APIKey:       strings.TrimSpace(apiKey),
	}, nil
}

func (c *Client) Name() string {
	return c.ProviderName
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *formatSpec   `json:"response_format,omitempty"`
	Stream         bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type formatSpec struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GetRecommendations sends one chat completion round against the compatible
// endpoint and parses the recommendation payload.
func (c *Client) GetRecommendations(ctx context.Context, prompt engine.ProviderPrompt) ([]core.Recommendation, error) {
	if c == nil {
		return nil, fmt.Errorf("compat client not configured")
	}

	payload := &chatRequest{
		Model: prompt.Model.ID,
		Messages: []chatMessage{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
		// Streaming is off; the engine consumes whole responses.
		Stream: false,
	}
	if prompt.JSONMode {
		payload.ResponseFormat = &formatSpec{Type: "json_object"}
	}

	respBody, err := c.post(ctx, "/chat/completions", payload)
	if err != nil {
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
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

// TestConnection probes the models listing endpoint.
func (c *Client) TestConnection(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("compat client not configured")
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
	c.authorize(httpReq)

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

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, c.Timeout)
	if cancel != nil {
		defer cancel()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := strings.TrimRight(c.BaseURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

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
	return respBody, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
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
