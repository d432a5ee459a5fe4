package usecase

import (
	"context"
	"encoding/json"
	"log"

	agentdomain "github.com/landovsky/gmail-assistant-sub002/internal/agent/domain"
	"github.com/landovsky/gmail-assistant-sub002/pkg/llm"
)

// Result is the outcome of one agent run.
type Result struct {
	Status       agentdomain.RunStatus
	FinalMessage string
	ToolCalls    []agentdomain.ToolCallLog
	Iterations   int
	Error        string
}

// Loop drives the tool-use conversation: call the model, execute the
// requested tools, feed the results back, repeat.
type Loop struct {
	llm      llm.Completer
	registry *Registry
}

// NewLoop creates an agent loop.
func NewLoop(completer llm.Completer, registry *Registry) *Loop {
	return &Loop{llm: completer, registry: registry}
}

// Run executes profile on userMessage until the model answers without tool
// calls or the iteration budget is spent.
func (l *Loop) Run(ctx context.Context, profile *Profile, env *Env, userMessage string) *Result {
	ctx = WithEnv(ctx, env)

	var messages []llm.Message
	if profile.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: profile.SystemPrompt})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})
	// The model can only run the tools its profile declares.
	registry := l.registry.Subset(profile.Tools)
	tools := registry.Specs(profile.Tools)

	res := &Result{}
	for iteration := 1; iteration <= profile.MaxIterations; iteration++ {
		res.Iterations = iteration
		resp, err := l.llm.Complete(ctx, &llm.Request{
			Model:       profile.Model,
			Messages:    messages,
			Tools:       tools,
			Temperature: profile.Temperature,
			MaxTokens:   profile.MaxTokens,
			CallType:    "agent",
			UserID:      env.UserID,
			ThreadID:    env.ThreadID,
		})
		if err != nil {
			log.Printf("[Agent] %s: LLM call failed at iteration %d: %v", profile.Name, iteration, err)
			res.Status = agentdomain.RunError
			res.Error = err.Error()
			return res
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		if len(resp.ToolCalls) == 0 {
			res.Status = agentdomain.RunCompleted
			res.FinalMessage = resp.Content
			return res
		}

		for _, tc := range resp.ToolCalls {
			log.Printf("[Agent] %s: executing tool %s (iteration %d)", profile.Name, tc.Function.Name, iteration)
			out, isError, err := registry.Execute(ctx, tc.Function.Name, tc.Function.Arguments)
			res.ToolCalls = append(res.ToolCalls, agentdomain.ToolCallLog{
				Tool:      tc.Function.Name,
				Arguments: arguments(tc.Function.Arguments),
				Result:    out,
				IsError:   isError,
				Iteration: iteration,
			})
			if err != nil {
				log.Printf("[Agent] %s: %v", profile.Name, err)
				res.Status = agentdomain.RunError
				res.Error = err.Error()
				return res
			}
			messages = append(messages, llm.Message{Role: llm.RoleTool, ToolCallID: tc.ID, Content: out})
		}
	}

	res.Status = agentdomain.RunMaxIterations
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleAssistant && messages[i].Content != "" {
			res.FinalMessage = messages[i].Content
			break
		}
	}
	return res
}

func arguments(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
