package openai

import "github.com/tracklens/tracklens/internal/core/engine"

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

func buildChatRequest(prompt engine.ProviderPrompt) *chatCompletionRequest {
	payload := &chatCompletionRequest{
		Model: prompt.Model.ID,
		Messages: []chatMessage{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
	}
	if prompt.JSONMode {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return payload
}
