// Package provider builds and caches the concrete LLM backends the engine
// consumes, and resolves model IDs to their descriptors.
package provider

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tracklens/tracklens/internal/core"
	"github.com/tracklens/tracklens/internal/core/engine"
	"github.com/tracklens/tracklens/internal/provider/compat"
	"github.com/tracklens/tracklens/internal/provider/mock"
	"github.com/tracklens/tracklens/internal/provider/openai"
)

// Settings is the per-provider wiring a registry needs to build a client.
type Settings struct {
	Type    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Registry lazily constructs and caches one client per provider name.
type Registry struct {
	mu      sync.Mutex
	clients map[string]engine.Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Resolve returns the cached client for name, building it on first use.
func (r *Registry) Resolve(name string, settings Settings) (engine.Provider, error) {
	if r == nil {
		return nil, fmt.Errorf("provider registry not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("provider name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clients == nil {
		r.clients = map[string]engine.Provider{}
	}
	if client, ok := r.clients[name]; ok {
		return client, nil
	}

	client, err := buildClient(name, settings)
	if err != nil {
		return nil, err
	}
	r.clients[name] = client
	return client, nil
}

func buildClient(name string, settings Settings) (engine.Provider, error) {
	providerType := strings.ToLower(strings.TrimSpace(settings.Type))
	switch providerType {
	case "openai":
		client := openai.NewClient(name, settings.BaseURL, settings.APIKey)
		client.Timeout = settings.Timeout
		return client, nil
	case "openai_compat", "ollama", "lmstudio", "vllm":
		client, err := compat.NewClient(name, settings.BaseURL, settings.APIKey)
		if err != nil {
			return nil, err
		}
		client.Timeout = settings.Timeout
		return client, nil
	case "mock":
		return mock.New(name), nil
	default:
		if providerType == "" {
			providerType = "(unset)"
		}
		return nil, fmt.Errorf("unsupported provider type %q for provider %q", providerType, name)
	}
}

// ModelRegistry maps model IDs to their descriptors. Unknown models fall back
// to a conservative default context window.
type ModelRegistry struct {
	models map[string]core.ModelDescriptor
}

const fallbackContextTokens = 8192

// builtinModels covers the models the recommend pipeline is commonly pointed
// at. A models file extends or overrides these.
var builtinModels = []core.ModelDescriptor{
	{ID: "gpt-4o", ContextTokens: 128000, Capabilities: core.ModelCapabilities{JSONMode: true, Tools: true, Stream: true}},
	{ID: "gpt-4o-mini", ContextTokens: 128000, Capabilities: core.ModelCapabilities{JSONMode: true, Tools: true, Stream: true}},
	{ID: "gpt-4.1", ContextTokens: 128000, Capabilities: core.ModelCapabilities{JSONMode: true, Tools: true, Stream: true}},
	{ID: "gpt-4.1-mini", ContextTokens: 128000, Capabilities: core.ModelCapabilities{JSONMode: true, Tools: true, Stream: true}},
	{ID: "llama3.1", ContextTokens: 131072, Capabilities: core.ModelCapabilities{JSONMode: true, Stream: true}},
	{ID: "llama3.2", ContextTokens: 131072, Capabilities: core.ModelCapabilities{JSONMode: true, Stream: true}},
	{ID: "mistral", ContextTokens: 32768, Capabilities: core.ModelCapabilities{JSONMode: true, Stream: true}},
	{ID: "qwen2.5", ContextTokens: 32768, Capabilities: core.ModelCapabilities{JSONMode: true, Stream: true}},
}

// NewModelRegistry returns a registry seeded with the built-in descriptors.
func NewModelRegistry() *ModelRegistry {
	r := &ModelRegistry{models: make(map[string]core.ModelDescriptor, len(builtinModels))}
	for _, m := range builtinModels {
		r.models[strings.ToLower(m.ID)] = m
	}
	return r
}

type modelsFile struct {
	Models []core.ModelDescriptor `yaml:"models"`
}

// LoadFile merges model descriptors from a YAML file into the registry.
// Entries with an existing ID override the built-ins.
func (r *ModelRegistry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read models file: %w", err)
	}

	var file modelsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse models file %s: %w", path, err)
	}

	for _, m := range file.Models {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			return fmt.Errorf("models file %s: entry with empty id", path)
		}
		if m.ContextTokens <= 0 {
			return fmt.Errorf("models file %s: model %q has invalid context_tokens %d", path, id, m.ContextTokens)
		}
		r.models[strings.ToLower(id)] = m
	}
	return nil
}

// Lookup resolves a model ID to its descriptor. Unknown IDs get the fallback
// window with JSON mode assumed off.
func (r *ModelRegistry) Lookup(id string) core.ModelDescriptor {
	trimmed := strings.TrimSpace(id)
	if r != nil && r.models != nil {
		if m, ok := r.models[strings.ToLower(trimmed)]; ok {
			return m
		}
	}
	return core.ModelDescriptor{ID: trimmed, ContextTokens: fallbackContextTokens}
}

// Known reports whether the model ID has an explicit descriptor.
func (r *ModelRegistry) Known(id string) bool {
	if r == nil || r.models == nil {
		return false
	}
	_, ok := r.models[strings.ToLower(strings.TrimSpace(id))]
	return ok
}
