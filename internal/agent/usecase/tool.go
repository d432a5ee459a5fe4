package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/landovsky/gmail-assistant-sub002/pkg/llm"
)

// Tool is an executable capability offered to the model.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

type typedTool[In, Out any] struct {
	name        string
	description string
	schema      json.RawMessage
	handler     func(ctx context.Context, in In) (Out, error)
}

// NewTool builds a Tool whose arguments decode into In and whose result is
// Out encoded as JSON. A string Out is returned verbatim.
func NewTool[In, Out any](name, description string, schema json.RawMessage, handler func(ctx context.Context, in In) (Out, error)) Tool {
	return &typedTool[In, Out]{name: name, description: description, schema: schema, handler: handler}
}

func (t *typedTool[In, Out]) Name() string                { return t.name }
func (t *typedTool[In, Out]) Description() string         { return t.description }
func (t *typedTool[In, Out]) Parameters() json.RawMessage { return t.schema }

func (t *typedTool[In, Out]) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in In
	if len(args) > 0 && string(args) != "null" {
		if err := json.Unmarshal(args, &in); err != nil {
			return "", fmt.Errorf("invalid arguments for %s: %w", t.name, err)
		}
	}
	out, err := t.handler(ctx, in)
	if err != nil {
		return "", err
	}
	if s, ok := any(out).(string); ok {
		return s, nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode %s result: %w", t.name, err)
	}
	return string(data), nil
}

// ErrToolPanic marks a tool that panicked. It ends the agent run.
var ErrToolPanic = errors.New("tool panicked")

// Registry holds the tools available to agent profiles.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Empty or duplicate names and parameter schemas that
// are not JSON objects are rejected.
func (r *Registry) Register(t Tool) error {
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return errors.New("tool name is empty")
	}
	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("tool %q already registered", name)
	}
	var schema map[string]any
	if err := json.Unmarshal(t.Parameters(), &schema); err != nil || schema == nil {
		return fmt.Errorf("tool %q: parameters must be a JSON object schema", name)
	}
	if typ, ok := schema["type"]; ok && typ != "object" {
		return fmt.Errorf("tool %q: parameters must have type object, got %v", name, typ)
	}
	r.tools[name] = t
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Subset returns a registry holding only the named tools. Names that are
// not registered are ignored.
func (r *Registry) Subset(names []string) *Registry {
	sub := NewRegistry()
	for _, n := range names {
		if t, ok := r.tools[n]; ok {
			sub.tools[n] = t
		}
	}
	return sub
}

// Specs converts the named tools to the LLM tool format.
func (r *Registry) Specs(names []string) []llm.Tool {
	out := make([]llm.Tool, 0, len(names))
	for _, n := range names {
		t, ok := r.tools[n]
		if !ok {
			continue
		}
		out = append(out, llm.Tool{
			Type: "function",
			Function: llm.Function{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return out
}

// Execute runs a tool. Unknown tools and tool errors are reported to the
// model as an error result; a panic is returned as ErrToolPanic.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (result string, isError bool, err error) {
	t, ok := r.tools[name]
	if !ok {
		data, _ := json.Marshal(map[string]string{"error": "unknown tool: " + name})
		return string(data), true, nil
	}
	defer func() {
		if p := recover(); p != nil {
			result, isError = "", true
			err = fmt.Errorf("%w: %s: %v", ErrToolPanic, name, p)
		}
	}()
	out, execErr := t.Execute(ctx, args)
	if execErr != nil {
		data, _ := json.Marshal(map[string]string{"error": "tool execution failed: " + execErr.Error()})
		return string(data), true, nil
	}
	return out, false, nil
}
