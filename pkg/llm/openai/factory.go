package openai

import (
	"fmt"
	"strings"

	"github.com/landovsky/gmail-assistant-sub002/pkg/llm"
)

// ProviderType represents the LLM backend type.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
)

const (
	defaultOpenAIURL = "https://api.openai.com/v1"
	defaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	defaultOllamaURL = "http://localhost:11434/v1"
)

// Settings selects and configures a provider.
type Settings struct {
	Provider ProviderType
	BaseURL  string
	APIKey   string
	Model    string

	// Optional fallback backend, used on connection, quota or server errors.
	FallbackProvider ProviderType
	FallbackBaseURL  string
	FallbackAPIKey   string
	FallbackModel    string
}

// NewProvider creates an llm.Provider based on the settings. Switching the
// backend only requires changing Settings.Provider; all three speak the
// OpenAI chat completions protocol.
func NewProvider(s Settings) (llm.Provider, error) {
	primary, err := newClient(s.Provider, s.BaseURL, s.APIKey, s.Model)
	if err != nil {
		return nil, err
	}
	if s.FallbackBaseURL == "" && s.FallbackProvider == "" {
		return primary, nil
	}

	fbType := s.FallbackProvider
	if fbType == "" {
		fbType = ProviderOllama
	}
	fallback, err := newClient(fbType, s.FallbackBaseURL, s.FallbackAPIKey, s.FallbackModel)
	if err != nil {
		return nil, fmt.Errorf("fallback provider: %w", err)
	}
	return llm.NewFallback(primary, fallback), nil
}

func newClient(t ProviderType, baseURL, apiKey, model string) (*Client, error) {
	switch ProviderType(strings.ToLower(string(t))) {
	case ProviderOpenAI, "":
		if apiKey == "" && baseURL == "" {
			return nil, fmt.Errorf("LLM_API_KEY is required for openai provider")
		}
		return New(&llm.Config{Name: "openai", BaseURL: orDefault(baseURL, defaultOpenAIURL), APIKey: apiKey, Model: orDefault(model, "gpt-4o-mini")}), nil
	case ProviderGemini:
		if apiKey == "" {
			return nil, fmt.Errorf("LLM_API_KEY is required for gemini provider")
		}
		return New(&llm.Config{Name: "gemini", BaseURL: orDefault(baseURL, defaultGeminiURL), APIKey: apiKey, Model: orDefault(model, "gemini-2.0-flash")}), nil
	case ProviderOllama:
		return New(&llm.Config{Name: "ollama", BaseURL: orDefault(baseURL, defaultOllamaURL), APIKey: apiKey, Model: orDefault(model, "llama3")}), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", t)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
