package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"
	"github.com/landovsky/gmail-assistant-sub002/pkg/gmail"
	"github.com/landovsky/gmail-assistant-sub002/pkg/llm"
	"github.com/landovsky/gmail-assistant-sub002/pkg/styles"
)

const (
	draftTemperature = 0.3
	maxPromptTokens  = 6000
)

// ErrEmptyDraft is returned when the model answers with no text.
var ErrEmptyDraft = errors.New("model returned an empty draft")

// StyleProvider resolves a style name to its definition.
type StyleProvider interface {
	Get(name string) styles.Style
}

// Request describes the thread a draft is written for.
type Request struct {
	UserID      string
	ThreadID    string
	SenderEmail string
	SenderName  string
	Subject     string
	ThreadBody  string
	Style       string
	// Language is the resolved reply language; it overrides the style's.
	Language    string
	// Instructions from the user guide what the reply says.
	Instructions string
}

// Engine generates reply drafts.
type Engine struct {
	llm       llm.Completer
	styles    StyleProvider
	gatherer  *ContextGatherer
	tokens    llm.TokenCounter
	model     string
	maxTokens int
}

// NewEngine creates a draft engine. gatherer and tokens may be nil.
func NewEngine(completer llm.Completer, provider StyleProvider, gatherer *ContextGatherer, tokens llm.TokenCounter, model string, maxTokens int) *Engine {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	if provider == nil {
		provider = styles.New(nil)
	}
	return &Engine{
		llm:       completer,
		styles:    provider,
		gatherer:  gatherer,
		tokens:    tokens,
		model:     model,
		maxTokens: maxTokens,
	}
}

// GenerateDraft writes a reply and returns it below an empty notes region.
func (e *Engine) GenerateDraft(ctx context.Context, mb gmail.Mailbox, req *Request) (string, error) {
	related := e.related(ctx, mb, req)
	text, err := e.complete(ctx, req, buildUserMessage(req, related), "draft")
	if err != nil {
		return "", err
	}
	return WrapWithMarker(text), nil
}

// ReworkDraft regenerates currentDraft following the notes the user wrote
// above the marker, or req.Instructions when set. It returns the new body
// and the instruction that was applied.
func (e *Engine) ReworkDraft(ctx context.Context, mb gmail.Mailbox, req *Request, currentDraft string, reworkCount int) (string, string, error) {
	instruction, previous := ExtractInstruction(currentDraft)
	if req.Instructions != "" {
		instruction = req.Instructions
	}
	if instruction == "" {
		instruction = NoInstruction
	}

	related := e.related(ctx, mb, req)
	text, err := e.complete(ctx, req, buildReworkMessage(req, related, previous, instruction, reworkCount), "rework")
	if err != nil {
		return "", "", err
	}
	if reworkCount+1 >= emaildomain.MaxReworks {
		text = LastReworkWarning + text
	}
	return WrapWithMarker(text), instruction, nil
}

func (e *Engine) related(ctx context.Context, mb gmail.Mailbox, req *Request) string {
	if e.gatherer == nil || mb == nil {
		return ""
	}
	return e.gatherer.Gather(ctx, mb, req).Format()
}

func (e *Engine) complete(ctx context.Context, req *Request, userMessage, callType string) (string, error) {
	if e.tokens != nil {
		userMessage = e.tokens.Truncate(userMessage, maxPromptTokens)
	}
	style := req.Style
	if style == "" {
		style = styles.DefaultStyle
	}
	resp, err := e.llm.Complete(ctx, &llm.Request{
		Model: e.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: buildSystemPrompt(e.styles.Get(style), style, req.Language)},
			{Role: llm.RoleUser, Content: userMessage},
		},
		Temperature: draftTemperature,
		MaxTokens:   e.maxTokens,
		CallType:    callType,
		UserID:      req.UserID,
		ThreadID:    req.ThreadID,
	})
	if err != nil {
		return "", fmt.Errorf("%s completion failed: %w", callType, err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", ErrEmptyDraft
	}
	return text, nil
}
