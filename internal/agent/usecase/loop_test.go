package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	agentdomain "github.com/landovsky/gmail-assistant-sub002/internal/agent/domain"
	agentrepo "github.com/landovsky/gmail-assistant-sub002/internal/agent/repository"
	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"
	emailrepo "github.com/landovsky/gmail-assistant-sub002/internal/email/repository"
	"github.com/landovsky/gmail-assistant-sub002/internal/storetest"
	"github.com/landovsky/gmail-assistant-sub002/pkg/config"
	"github.com/landovsky/gmail-assistant-sub002/pkg/gmail"
	"github.com/landovsky/gmail-assistant-sub002/pkg/gmail/gmailtest"
	"github.com/landovsky/gmail-assistant-sub002/pkg/llm"
	"github.com/landovsky/gmail-assistant-sub002/pkg/llm/llmtest"
)

func call(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Type: "function", Function: llm.FunctionCall{Name: name, Arguments: json.RawMessage(args)}}
}

func echoRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestLoopCompletes(t *testing.T) {
	provider := llmtest.New(
		llmtest.Calls(call("c1", "echo", `{"text":"one"}`)),
		llmtest.Text("done"),
	)
	loop := NewLoop(provider, echoRegistry(t))
	profile := &Profile{Name: "p", SystemPrompt: "sys", Tools: []string{"echo"}, MaxIterations: 5}

	res := loop.Run(context.Background(), profile, &Env{UserID: "u", ThreadID: "t"}, "hello")
	if res.Status != agentdomain.RunCompleted || res.FinalMessage != "done" || res.Iterations != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.ToolCalls) != 1 || res.ToolCalls[0].Result != `{"echo":"one"}` || res.ToolCalls[0].Iteration != 1 {
		t.Errorf("unexpected tool log %+v", res.ToolCalls)
	}

	reqs := provider.Requests()
	second := reqs[1].Messages
	if len(second) != 4 || second[2].Role != llm.RoleAssistant || second[3].Role != llm.RoleTool || second[3].ToolCallID != "c1" {
		t.Errorf("conversation not threaded correctly: %+v", second)
	}
	if len(reqs[0].Tools) != 1 || reqs[0].CallType != "agent" {
		t.Errorf("unexpected first request %+v", reqs[0])
	}
}

func TestLoopOnlyRunsProfileTools(t *testing.T) {
	r := echoRegistry(t)
	wrote := 0
	_ = r.Register(NewTool("create_draft", "", json.RawMessage(`{"type":"object"}`), func(context.Context, echoIn) (string, error) {
		wrote++
		return "created", nil
	}))

	provider := llmtest.New(
		llmtest.Calls(call("c1", "create_draft", `{"text":"x"}`)),
		llmtest.Text("done"),
	)
	profile := &Profile{Name: "readonly", Tools: []string{"echo"}, MaxIterations: 3}
	res := NewLoop(provider, r).Run(context.Background(), profile, &Env{}, "hi")

	if res.Status != agentdomain.RunCompleted {
		t.Fatalf("unexpected result %+v", res)
	}
	if wrote != 0 {
		t.Error("undeclared tool must not execute")
	}
	if len(res.ToolCalls) != 1 || !res.ToolCalls[0].IsError || res.ToolCalls[0].Result != `{"error":"unknown tool: create_draft"}` {
		t.Errorf("unexpected tool log %+v", res.ToolCalls)
	}
	if tools := provider.Requests()[0].Tools; len(tools) != 1 || tools[0].Function.Name != "echo" {
		t.Errorf("only the profile's tools should be advertised, got %+v", tools)
	}
}

func TestLoopMaxIterations(t *testing.T) {
	provider := llmtest.New()
	provider.Handler = func(*llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: "thinking", ToolCalls: []llm.ToolCall{call("c", "echo", `{}`)}}, nil
	}
	loop := NewLoop(provider, echoRegistry(t))
	res := loop.Run(context.Background(), &Profile{Name: "p", Tools: []string{"echo"}, MaxIterations: 3}, &Env{}, "hi")
	if res.Status != agentdomain.RunMaxIterations || res.Iterations != 3 || provider.CallCount() != 3 {
		t.Fatalf("unexpected result %+v after %d calls", res, provider.CallCount())
	}
	if res.FinalMessage != "thinking" {
		t.Errorf("expected last assistant text, got %q", res.FinalMessage)
	}
}

func TestLoopErrorEndings(t *testing.T) {
	provider := llmtest.New(llmtest.Fail(errors.New("quota")))
	res := NewLoop(provider, echoRegistry(t)).Run(context.Background(), &Profile{Name: "p", MaxIterations: 3}, &Env{}, "hi")
	if res.Status != agentdomain.RunError || res.Error != "quota" {
		t.Errorf("expected error status, got %+v", res)
	}

	r := NewRegistry()
	_ = r.Register(NewTool("boom", "", json.RawMessage(`{"type":"object"}`), func(context.Context, echoIn) (string, error) {
		panic("bad")
	}))
	provider = llmtest.New(llmtest.Calls(call("c", "boom", `{}`)))
	res = NewLoop(provider, r).Run(context.Background(), &Profile{Name: "p", Tools: []string{"boom"}, MaxIterations: 3}, &Env{}, "hi")
	if res.Status != agentdomain.RunError || !strings.Contains(res.Error, "panicked") {
		t.Errorf("expected panic to end the run, got %+v", res)
	}
}

func TestLoadProfiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "prompt.md"), []byte("  You help pharmacy customers.\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.AgentConfig{Profiles: map[string]config.AgentProfileConfig{
		"pharmacy": {SystemPromptFile: "prompt.md", Tools: []string{"echo"}, Preprocessor: "crisp"},
	}}
	profiles, err := LoadProfiles(cfg, echoRegistry(t), dir)
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}
	p := profiles["pharmacy"]
	if p.Name != "pharmacy" || p.SystemPrompt != "You help pharmacy customers." || p.MaxIterations != defaultMaxIterations {
		t.Errorf("unexpected profile %+v", p)
	}

	cfg.Profiles["bad"] = config.AgentProfileConfig{Tools: []string{"nope"}}
	if _, err := LoadProfiles(cfg, echoRegistry(t), dir); err == nil {
		t.Error("expected unknown tool error")
	}
}

func TestProcessorRecordsRun(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t)
	u := storetest.CreateUser(t, db, "owner@example.com")
	storetest.LabelIDs(t, db, u.ID)

	reg := NewRegistry()
	for _, tool := range MailboxTools(emailrepo.NewLabelMappingRepository(db)) {
		if err := reg.Register(tool); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	provider := llmtest.New(
		llmtest.Calls(
			call("c1", "create_draft", `{"body":"Dobrý den, lék je skladem."}`),
			call("c2", "apply_label", `{"label":"outbox"}`),
		),
		llmtest.Text("Replied and labeled."),
	)
	profiles := map[string]*Profile{"pharmacy": {Name: "pharmacy", Tools: reg.Names(), MaxIterations: 5, Preprocessor: "crisp"}}
	events := emailrepo.NewEmailEventRepository(db)
	runs := agentrepo.NewAgentRunRepository(db)
	proc := NewProcessor(NewLoop(provider, reg), profiles, runs, events)

	mb := gmailtest.New()
	mb.AddMessage(&gmail.Message{
		ID: "m1", ThreadID: "t1", SenderEmail: "support@crisp.chat", Subject: "Dotaz",
		Body: "Name: Eva\n---\nMáte Paralen?", Headers: map[string]string{"Message-ID": "<m1@x>"},
	})

	run, err := proc.Process(ctx, mb, u.ID, "t1", "m1", "pharmacy")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if run.Status != agentdomain.RunCompleted || run.Iterations != 2 {
		t.Fatalf("unexpected run %+v", run)
	}
	if len(mb.Created) != 1 || mb.Created[0].InReplyTo != "<m1@x>" {
		t.Errorf("expected one reply draft, got %+v", mb.Created)
	}
	if !mb.ThreadHasLabel("t1", storetest.LabelID(emaildomain.LabelOutbox)) {
		t.Error("expected outbox label")
	}
	if !strings.Contains(provider.Requests()[0].Messages[0].Content, "Patient name: Eva") {
		t.Error("crisp preprocessor should shape the input")
	}

	stored, err := runs.Get(ctx, run.ID)
	if err != nil || stored == nil {
		t.Fatalf("Get: %v", err)
	}
	var log []agentdomain.ToolCallLog
	if err := json.Unmarshal([]byte(stored.ToolCallsLog), &log); err != nil || len(log) != 2 {
		t.Fatalf("unexpected tool log %q: %v", stored.ToolCallsLog, err)
	}
	evs, _ := events.ListByThread(ctx, u.ID, "t1")
	if len(evs) != 1 || evs[0].Detail != "Agent pharmacy: completed (2 iterations, 2 tool calls)" {
		t.Errorf("unexpected events %+v", evs)
	}
}
