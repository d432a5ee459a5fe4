package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/landovsky/gmail-assistant-sub002/pkg/llm"
)

func TestOpenAIClientRequestFormat(t *testing.T) {
	var reqBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("expected path '/v1/chat/completions', got %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Error("missing or invalid auth header")
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &reqBody)

		json.NewEncoder(w).Encode(map[string]any{
			"model": "gpt-4o-mini-2024",
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": `{"category":"fyi"}`}},
			},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	defer server.Close()

	client := New(&llm.Config{BaseURL: server.URL + "/v1/", APIKey: "key", Model: "gpt-4o-mini"})
	resp, err := client.Complete(context.Background(), &llm.Request{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "classify"}},
		Temperature: 0,
		MaxTokens:   256,
		Schema:      &llm.Schema{Name: "classification", Schema: json.RawMessage(`{"type":"object"}`)},
	})
	if err != nil {
		t.Fatal(err)
	}

	if reqBody["model"] != "gpt-4o-mini" {
		t.Errorf("expected configured model, got %v", reqBody["model"])
	}
	if temp, ok := reqBody["temperature"]; !ok || temp != float64(0) {
		t.Errorf("expected explicit temperature 0, got %v (present=%v)", temp, ok)
	}
	if reqBody["max_tokens"] != float64(256) {
		t.Errorf("expected max_tokens 256, got %v", reqBody["max_tokens"])
	}
	format, _ := reqBody["response_format"].(map[string]any)
	if format["type"] != "json_schema" {
		t.Errorf("expected json_schema response format, got %v", reqBody["response_format"])
	}
	if resp.Usage.TotalTokens != 15 || resp.Model != "gpt-4o-mini-2024" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestOpenAIClientToolCalls(t *testing.T) {
	var sentTools []any
	var sentMessages []any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var reqBody map[string]any
		json.Unmarshal(body, &reqBody)
		sentTools, _ = reqBody["tools"].([]any)
		sentMessages, _ = reqBody["messages"].([]any)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"role":    "assistant",
					"content": nil,
					"tool_calls": []map[string]any{{
						"id":   "call_123",
						"type": "function",
						"function": map[string]any{
							"name":      "search_mailbox",
							"arguments": `{"query":"from:bob"}`,
						},
					}},
				},
			}},
		})
	}))
	defer server.Close()

	client := New(&llm.Config{BaseURL: server.URL, Model: "gpt-4"})
	history := []llm.Message{
		{Role: llm.RoleUser, Content: "find bob"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "call_0", Type: "function", Function: llm.FunctionCall{Name: "get_thread", Arguments: json.RawMessage(`{"thread_id":"t1"}`)}}}},
		{Role: llm.RoleTool, ToolCallID: "call_0", Content: `{"ok":true}`},
	}
	tools := []llm.Tool{{
		Type:     "function",
		Function: llm.Function{Name: "search_mailbox", Description: "Search", Parameters: json.RawMessage(`{"type":"object"}`)},
	}}

	resp, err := client.Complete(context.Background(), &llm.Request{Messages: history, Tools: tools})
	if err != nil {
		t.Fatal(err)
	}
	if len(sentTools) != 1 {
		t.Errorf("expected 1 tool, got %v", sentTools)
	}

	assistant := sentMessages[1].(map[string]any)
	call := assistant["tool_calls"].([]any)[0].(map[string]any)
	fn := call["function"].(map[string]any)
	if fn["arguments"] != `{"thread_id":"t1"}` {
		t.Errorf("expected string-encoded arguments on the wire, got %#v", fn["arguments"])
	}
	if sentMessages[2].(map[string]any)["tool_call_id"] != "call_0" {
		t.Errorf("expected tool_call_id on tool message")
	}

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	var args struct{ Query string }
	if err := json.Unmarshal(resp.ToolCalls[0].Function.Arguments, &args); err != nil || args.Query != "from:bob" {
		t.Errorf("expected decoded arguments, got %s (%v)", resp.ToolCalls[0].Function.Arguments, err)
	}
}

func TestOpenAIClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer server.Close()

	client := New(&llm.Config{BaseURL: server.URL, APIKey: "k", Model: "gpt-4"})
	_, err := client.Complete(context.Background(), &llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})

	var statusErr *llm.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 StatusError, got %v", err)
	}
	if !llm.IsQuotaError(err) {
		t.Error("expected quota error classification")
	}
}

func TestNewProvider(t *testing.T) {
	if _, err := NewProvider(Settings{Provider: "bogus"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := NewProvider(Settings{Provider: ProviderGemini}); err == nil {
		t.Error("expected error for gemini without key")
	}

	p, err := NewProvider(Settings{Provider: ProviderOllama})
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "ollama" {
		t.Errorf("expected ollama, got %s", p.Name())
	}

	p, err = NewProvider(Settings{Provider: ProviderOpenAI, APIKey: "k", FallbackBaseURL: "http://localhost:11434/v1"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "openai+ollama" {
		t.Errorf("expected fallback chain, got %s", p.Name())
	}
}
