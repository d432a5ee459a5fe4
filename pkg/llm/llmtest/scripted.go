// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/landovsky/gmail-assistant-sub002/pkg/llm"
)

// ErrExhausted is returned once every scripted step has been consumed.
var ErrExhausted = errors.New("llmtest: no scripted response left")

// Step is one scripted reply.
type Step struct {
	Response *llm.Response
	Err      error
}

// ScriptedProvider replays Steps in order. When Handler is set it is used
// instead of the script.
type ScriptedProvider struct {
	mu       sync.Mutex
	steps    []Step
	requests []llm.Request

	Handler func(req *llm.Request) (*llm.Response, error)
}

var _ llm.Provider = (*ScriptedProvider)(nil)

// New returns a provider that answers with the given steps.
func New(steps ...Step) *ScriptedProvider {
	return &ScriptedProvider{steps: steps}
}

// Text is a step answering with plain content.
func Text(content string) Step {
	return Step{Response: &llm.Response{Content: content}}
}

// Calls is a step answering with tool calls.
func Calls(calls ...llm.ToolCall) Step {
	return Step{Response: &llm.Response{ToolCalls: calls}}
}

// Fail is a step answering with an error.
func Fail(err error) Step {
	return Step{Err: err}
}

func (p *ScriptedProvider) Name() string { return "scripted" }

func (p *ScriptedProvider) Complete(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp := *req
	cp.Messages = append([]llm.Message(nil), req.Messages...)
	p.requests = append(p.requests, cp)

	if p.Handler != nil {
		return p.Handler(&cp)
	}
	if len(p.steps) == 0 {
		return nil, ErrExhausted
	}
	step := p.steps[0]
	p.steps = p.steps[1:]
	if step.Err != nil {
		return nil, step.Err
	}
	resp := *step.Response
	return &resp, nil
}

// Requests returns a copy of every request received so far.
func (p *ScriptedProvider) Requests() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.Request(nil), p.requests...)
}

// CallCount returns the number of requests received.
func (p *ScriptedProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}
