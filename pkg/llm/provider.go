package llm

import "context"

// Provider defines the interface for interacting with LLM backends.
// Implementations handle protocol-specific details such as request formatting,
// authentication, and response parsing.
type Provider interface {
	// Complete sends a chat completion request and returns the full response.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Name identifies the backend in logs.
	Name() string
}

// Config holds common configuration for LLM providers.
type Config struct {
	Name      string
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

// Completer is what engines depend on. Gateway and every Provider satisfy it.
type Completer interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}
