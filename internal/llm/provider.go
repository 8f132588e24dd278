package llm

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Provider is the contract the planner and executor use to talk to an LLM
// backend. Implementations must honor ctx cancellation: this is the
// propagation point for the executor's abort signal.
type Provider interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	ChatStream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error)
	Name() string
}

// ProviderType identifies a supported backend.
type ProviderType string

const (
	ProviderOpenAI     ProviderType = "openai"
	ProviderAnthropic  ProviderType = "anthropic"
	ProviderGemini     ProviderType = "gemini"
	ProviderOpenRouter ProviderType = "openrouter"
	ProviderLocal      ProviderType = "local"
)

// ParseProviderType parses a provider name, accepting a few common aliases.
func ParseProviderType(s string) (ProviderType, error) {
	switch s {
	case "openai":
		return ProviderOpenAI, nil
	case "anthropic":
		return ProviderAnthropic, nil
	case "gemini", "google":
		return ProviderGemini, nil
	case "openrouter":
		return ProviderOpenRouter, nil
	case "local", "ollama", "vllm", "llama":
		return ProviderLocal, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidProvider, s)
	}
}

// DefaultAPIKeyEnvVar returns the conventional environment variable name
// holding the API key for provider, or "" if none is expected (local).
func DefaultAPIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderGemini:
		return "GOOGLE_API_KEY"
	case ProviderOpenRouter:
		return "OPENROUTER_API_KEY"
	default:
		return ""
	}
}

// DefaultBaseURL returns the conventional base URL for provider.
func DefaultBaseURL(provider ProviderType) string {
	switch provider {
	case ProviderOpenAI:
		return "https://api.openai.com/v1"
	case ProviderAnthropic:
		return "https://api.anthropic.com"
	case ProviderGemini:
		return "https://generativelanguage.googleapis.com/v1beta"
	case ProviderOpenRouter:
		return "https://openrouter.ai/api/v1"
	case ProviderLocal:
		return "http://localhost:11434/v1"
	default:
		return ""
	}
}

// GetAPIKeyFromEnv reads the conventional API key environment variable for
// provider, returning "" for ProviderLocal or an unrecognized provider.
func GetAPIKeyFromEnv(provider ProviderType) string {
	v := DefaultAPIKeyEnvVar(provider)
	if v == "" {
		return ""
	}
	return os.Getenv(v)
}

// ProviderFactory constructs a Provider from a Config.
type ProviderFactory func(Config) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[ProviderType]ProviderFactory)
)

// RegisterProvider registers a factory for providerType. Intended to be
// called from a provider package's init().
func RegisterProvider(providerType ProviderType, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[providerType] = factory
}

// NewProvider constructs a Provider of the given type using its registered
// factory.
func NewProvider(providerType ProviderType, cfg Config) (Provider, error) {
	registryMu.RLock()
	factory, ok := registry[providerType]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q has no registered factory (forgot a blank import?)", ErrInvalidProvider, providerType)
	}
	return factory(cfg)
}
