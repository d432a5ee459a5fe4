package usecase

import (
	"context"

	"github.com/landovsky/gmail-assistant-sub002/pkg/gmail"
)

// Env is the per-run environment tools act on.
type Env struct {
	UserID   string
	ThreadID string
	Mailbox  gmail.Mailbox
}

type envKey struct{}

// WithEnv attaches env to ctx for tool handlers.
func WithEnv(ctx context.Context, env *Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// EnvFrom returns the run environment, or nil outside an agent run.
func EnvFrom(ctx context.Context) *Env {
	env, _ := ctx.Value(envKey{}).(*Env)
	return env
}
