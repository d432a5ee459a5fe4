package llm

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/landovsky/gmail-assistant-sub002/pkg/retry"
)

// CallRecord is the log entry written for every gateway call.
type CallRecord struct {
	CallType         string
	Model            string
	UserID           string
	ThreadID         string
	SystemPrompt     string
	UserMessage      string
	ResponseText     string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	LatencyMs        int64
	Error            string
	CreatedAt        time.Time
}

// Recorder persists call records.
type Recorder interface {
	RecordCall(ctx context.Context, rec *CallRecord) error
}

// Gateway is the single entry point for model calls. It fills in the default
// model, estimates token usage when the backend omits it, and records every
// call whether it succeeds or not. Transient provider failures are retried
// with backoff and recorded once, with the final outcome.
type Gateway struct {
	provider     Provider
	recorder     Recorder
	tokens       TokenCounter
	defaultModel string
	retry        *retry.Policy
}

// NewGateway creates a gateway. recorder and tokens may be nil.
func NewGateway(provider Provider, recorder Recorder, tokens TokenCounter, defaultModel string) *Gateway {
	if tokens == nil {
		tokens = EstimateCounter{}
	}
	return &Gateway{
		provider:     provider,
		recorder:     recorder,
		tokens:       tokens,
		defaultModel: defaultModel,
		retry:        retry.DefaultPolicy(),
	}
}

// WithRetry replaces the retry policy.
func (g *Gateway) WithRetry(p *retry.Policy) *Gateway {
	g.retry = p
	return g
}

// IsTransient reports failures worth another attempt: timeouts, connection
// errors, rate limits and 5xx answers.
func IsTransient(err error) bool {
	return IsQuotaError(err) || IsServerError(err) || IsConnectionError(err)
}

// Tokens exposes the gateway's token counter for prompt budgeting.
func (g *Gateway) Tokens() TokenCounter { return g.tokens }

// Complete sends req to the provider and logs the call.
func (g *Gateway) Complete(ctx context.Context, req *Request) (*Response, error) {
	if req.Model == "" {
		req.Model = g.defaultModel
	}

	start := time.Now()
	var resp *Response
	err := g.retry.Do(ctx, "llm "+req.CallType, func() retry.Outcome {
		var callErr error
		resp, callErr = g.provider.Complete(ctx, req)
		if callErr == nil {
			return retry.OK()
		}
		if IsTransient(callErr) {
			return retry.Transient(callErr)
		}
		return retry.Permanent(callErr)
	})
	latency := time.Since(start)
	if err != nil {
		resp = nil
	}

	rec := &CallRecord{
		CallType:     req.CallType,
		Model:        req.Model,
		UserID:       req.UserID,
		ThreadID:     req.ThreadID,
		SystemPrompt: joinRole(req.Messages, RoleSystem),
		UserMessage:  joinRole(req.Messages, RoleUser),
		LatencyMs:    latency.Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	}
	if err != nil {
		rec.Error = err.Error()
		log.Printf("[LLM] %s call via %s failed after %s: %v", req.CallType, g.provider.Name(), latency.Round(time.Millisecond), err)
	} else {
		if resp.Usage.TotalTokens == 0 {
			resp.Usage = g.estimateUsage(req, resp)
		}
		if resp.Model != "" {
			rec.Model = resp.Model
		}
		rec.ResponseText = resp.Content
		rec.PromptTokens = resp.Usage.InputTokens
		rec.CompletionTokens = resp.Usage.OutputTokens
		rec.TotalTokens = resp.Usage.TotalTokens
	}

	if g.recorder != nil {
		if recErr := g.recorder.RecordCall(ctx, rec); recErr != nil {
			log.Printf("[LLM] Failed to record %s call: %v", req.CallType, recErr)
		}
	}
	return resp, err
}

func (g *Gateway) estimateUsage(req *Request, resp *Response) Usage {
	in := 0
	for _, m := range req.Messages {
		in += g.tokens.Count(m.Content)
	}
	out := g.tokens.Count(resp.Content)
	for _, tc := range resp.ToolCalls {
		out += g.tokens.Count(tc.Function.Name) + g.tokens.Count(string(tc.Function.Arguments))
	}
	return Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
}

func joinRole(messages []Message, role string) string {
	var parts []string
	for _, m := range messages {
		if m.Role == role && m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}
