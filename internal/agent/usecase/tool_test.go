package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type echoIn struct {
	Text string `json:"text"`
}

type echoOut struct {
	Echo string `json:"echo"`
}

func echoTool(name string) Tool {
	return NewTool(name, "echo", json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`),
		func(_ context.Context, in echoIn) (echoOut, error) {
			return echoOut{Echo: in.Text}, nil
		})
}

func TestRegistryRejectsInvalidTools(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(echoTool("echo")); err == nil {
		t.Error("expected duplicate name error")
	}
	if err := r.Register(echoTool(" ")); err == nil {
		t.Error("expected empty name error")
	}
	arr := NewTool("arr", "", json.RawMessage(`[]`), func(context.Context, echoIn) (string, error) { return "", nil })
	if err := r.Register(arr); err == nil {
		t.Error("expected non-object schema error")
	}
	str := NewTool("str", "", json.RawMessage(`{"type":"string"}`), func(context.Context, echoIn) (string, error) { return "", nil })
	if err := r.Register(str); err == nil {
		t.Error("expected non-object type error")
	}
}

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(echoTool("echo"))
	_ = r.Register(NewTool("fail", "", json.RawMessage(`{"type":"object"}`), func(context.Context, echoIn) (string, error) {
		return "", errors.New("backend down")
	}))
	_ = r.Register(NewTool("boom", "", json.RawMessage(`{"type":"object"}`), func(context.Context, echoIn) (string, error) {
		panic("nil map")
	}))
	ctx := context.Background()

	out, isErr, err := r.Execute(ctx, "echo", json.RawMessage(`{"text":"hi"}`))
	if err != nil || isErr || out != `{"echo":"hi"}` {
		t.Errorf("echo: %q %v %v", out, isErr, err)
	}
	out, isErr, err = r.Execute(ctx, "missing", nil)
	if err != nil || !isErr || out != `{"error":"unknown tool: missing"}` {
		t.Errorf("missing: %q %v %v", out, isErr, err)
	}
	out, isErr, err = r.Execute(ctx, "fail", nil)
	if err != nil || !isErr || out != `{"error":"tool execution failed: backend down"}` {
		t.Errorf("fail: %q %v %v", out, isErr, err)
	}
	out, isErr, err = r.Execute(ctx, "echo", json.RawMessage(`{"text":`))
	if err != nil || !isErr {
		t.Errorf("bad args should be a tool error: %q %v %v", out, isErr, err)
	}
	if _, _, err = r.Execute(ctx, "boom", nil); !errors.Is(err, ErrToolPanic) {
		t.Errorf("expected ErrToolPanic, got %v", err)
	}
}

func TestSpecsFollowProfileOrder(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(echoTool("a"))
	_ = r.Register(echoTool("b"))
	specs := r.Specs([]string{"b", "a", "zzz"})
	if len(specs) != 2 || specs[0].Function.Name != "b" || specs[0].Type != "function" {
		t.Errorf("unexpected specs %+v", specs)
	}
}
