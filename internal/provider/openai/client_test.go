package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracklens/tracklens/internal/core"
	"github.com/tracklens/tracklens/internal/core/engine"
	"github.com/tracklens/tracklens/internal/provider/driver"
)

func testPrompt() engine.ProviderPrompt {
	return engine.ProviderPrompt{
		Model:    core.ModelDescriptor{ID: "gpt-4o-mini", ContextTokens: 128000},
		System:   "You recommend music.",
		User:     "Recommend 2 new artists.",
		Count:    2,
		JSONMode: true,
	}
}

func TestClientRequiresAPIKey(t *testing.T) {
	client := NewClient("openai", "", "")
	_, err := client.GetRecommendations(context.Background(), testPrompt())
	require.Error(t, err)

	var perr *driver.Error
	require.True(t, errors.As(err, &perr))
	require.Equal(t, core.ErrorKindAuthFailed, perr.ErrorKind())
}

func TestClientSendsRequestAndParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		require.Equal(t, "gpt-4o-mini", payload["model"])

		format, ok := payload["response_format"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, "json_object", format["type"])

		messages, ok := payload["messages"].([]any)
		require.True(t, ok)
		require.Len(t, messages, 2)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"recommendations\":[{\"artist\":\"Broadcast\",\"album\":\"Tender Buttons\",\"confidence\":0.9}]}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":20,"total_tokens":30}}`))
	}))
	defer server.Close()

	client := NewClient("openai", server.URL, "test-key")
	client.HTTPClient = server.Client()

	recs, err := client.GetRecommendations(context.Background(), testPrompt())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "Broadcast", recs[0].Artist)
}

func TestClientMapsHTTPFailures(t *testing.T) {
	tests := []struct {
		status int
		want   core.ProviderErrorKind
	}{
		{http.StatusUnauthorized, core.ErrorKindAuthFailed},
		{http.StatusTooManyRequests, core.ErrorKindRateLimited},
		{http.StatusInternalServerError, core.ErrorKindServerError},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte("nope"))
		}))

		client := NewClient("openai", server.URL, "test-key")
		client.HTTPClient = server.Client()

		_, err := client.GetRecommendations(context.Background(), testPrompt())
		require.Error(t, err)

		var perr *driver.Error
		require.True(t, errors.As(err, &perr), "status %d", tt.status)
		require.Equal(t, tt.want, perr.ErrorKind(), "status %d", tt.status)
		require.Contains(t, perr.Error(), "nope")

		server.Close()
	}
}

func TestClientRejectsEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := NewClient("openai", server.URL, "test-key")
	client.HTTPClient = server.Client()

	_, err := client.GetRecommendations(context.Background(), testPrompt())
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty response choices")
}

func TestClientTestConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		require.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	client := NewClient("openai", server.URL, "test-key")
	client.HTTPClient = server.Client()

	require.NoError(t, client.TestConnection(context.Background()))
}
