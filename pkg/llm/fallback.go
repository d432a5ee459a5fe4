package llm

import (
	"context"
	"fmt"
	"log"
)

// FallbackProvider routes calls to a primary backend and retries on a
// secondary one when the primary is unreachable, rate limited or failing
// server-side. Client errors (bad request, auth) are returned as-is.
type FallbackProvider struct {
	primary   Provider
	secondary Provider
}

// NewFallback creates a provider that prefers primary.
func NewFallback(primary, secondary Provider) *FallbackProvider {
	return &FallbackProvider{primary: primary, secondary: secondary}
}

func (f *FallbackProvider) Name() string {
	return f.primary.Name() + "+" + f.secondary.Name()
}

func (f *FallbackProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	resp, err := f.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	if !shouldFallback(err) {
		return nil, err
	}

	switch {
	case IsQuotaError(err):
		log.Printf("[LLM] %s quota exhausted: %v, falling back to %s", f.primary.Name(), err, f.secondary.Name())
	case IsConnectionError(err):
		log.Printf("[LLM] %s connection failed: %v, falling back to %s", f.primary.Name(), err, f.secondary.Name())
	default:
		log.Printf("[LLM] %s error: %v, falling back to %s", f.primary.Name(), err, f.secondary.Name())
	}

	// The secondary backend serves its own model.
	fallbackReq := *req
	fallbackReq.Model = ""
	resp, fbErr := f.secondary.Complete(ctx, &fallbackReq)
	if fbErr != nil {
		return nil, fmt.Errorf("%s failed after %s error (%v): %w", f.secondary.Name(), f.primary.Name(), err, fbErr)
	}
	return resp, nil
}

func shouldFallback(err error) bool {
	return IsConnectionError(err) || IsQuotaError(err) || IsServerError(err)
}
