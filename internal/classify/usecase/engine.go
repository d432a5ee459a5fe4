package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"
	userdomain "github.com/landovsky/gmail-assistant-sub002/internal/user/domain"
	"github.com/landovsky/gmail-assistant-sub002/pkg/llm"
	"github.com/landovsky/gmail-assistant-sub002/pkg/styles"
)

// Source tells where a classification came from.
type Source string

const (
	SourceRules Source = "rules"
	SourceLLM   Source = "llm"
)

// OverrideMarker prefixes the reasoning of a needs_response verdict that the
// automation safety net downgraded to fyi.
const OverrideMarker = "[override]"

// Metadata is the message data classification looks at.
type Metadata struct {
	UserID       string
	ThreadID     string
	SenderEmail  string
	SenderName   string
	Subject      string
	Snippet      string
	Body         string
	MessageCount int
	Headers      map[string]string
}

// Classification is the outcome for one thread.
type Classification struct {
	Category   emaildomain.Category
	Confidence emaildomain.Confidence
	Reasoning  string
	Language   string
	Style      string
	VendorName string
	Source     Source
}

// StyleCatalog lists the available communication styles.
type StyleCatalog interface {
	Names() []string
}

// Engine is the two-tier classifier: automation rules, then the LLM.
type Engine struct {
	llm       llm.Completer
	styles    StyleCatalog
	model     string
	maxTokens int
}

// NewEngine creates a classification engine. styles may be nil.
func NewEngine(completer llm.Completer, catalog StyleCatalog, model string, maxTokens int) *Engine {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	return &Engine{llm: completer, styles: catalog, model: model, maxTokens: maxTokens}
}

// Classify triages one message. Decisive automation rules answer without an
// LLM call. Model output that cannot be parsed degrades to fyi/low; only
// transport failures are returned as errors.
func (e *Engine) Classify(ctx context.Context, meta *Metadata, settings *userdomain.UserSettings) (*Classification, error) {
	var blacklist []string
	if settings != nil {
		blacklist = settings.Blacklist
	}
	rule := Evaluate(meta.SenderEmail, meta.Headers, blacklist)

	if rule.Decisive {
		log.Printf("[Classify] %s short-circuited by %s rule", meta.ThreadID, rule.Rule)
		return &Classification{
			Category:   emaildomain.CategoryFYI,
			Confidence: emaildomain.ConfidenceHigh,
			Reasoning:  rule.Reason,
			Language:   ResolveLanguage(meta.SenderEmail, settings, ""),
			Style:      ResolveStyle(meta.SenderEmail, settings, ""),
			Source:     SourceRules,
		}, nil
	}

	var names []string
	if e.styles != nil {
		names = e.styles.Names()
	}
	req := &llm.Request{
		Model: e.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: buildSystemPrompt(names, styles.DefaultStyle)},
			{Role: llm.RoleUser, Content: buildUserMessage(meta)},
		},
		Schema:      responseSchema(),
		Temperature: 0,
		MaxTokens:   e.maxTokens,
		CallType:    "classify",
		UserID:      meta.UserID,
		ThreadID:    meta.ThreadID,
	}
	resp, err := e.llm.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("classification call failed: %w", err)
	}

	verdict, err := parseVerdict(resp.Content)
	if err != nil {
		var perr *llm.OutputParseError
		if !errors.As(err, &perr) {
			return nil, err
		}
		log.Printf("[Classify] Unparseable response for %s: %v; raw: %q", meta.ThreadID, perr.Err, truncate(perr.Raw, 200))
		return &Classification{
			Category:   emaildomain.CategoryFYI,
			Confidence: emaildomain.ConfidenceLow,
			Reasoning:  "Classifier output could not be parsed",
			Language:   ResolveLanguage(meta.SenderEmail, settings, ""),
			Style:      ResolveStyle(meta.SenderEmail, settings, ""),
			Source:     SourceLLM,
		}, nil
	}

	out := &Classification{
		Category:   emaildomain.Category(verdict.Category),
		Confidence: emaildomain.Confidence(strings.ToLower(verdict.Confidence)),
		Reasoning:  verdict.Reasoning,
		Language:   ResolveLanguage(meta.SenderEmail, settings, verdict.DetectedLanguage),
		Style:      ResolveStyle(meta.SenderEmail, settings, verdict.ResolvedStyle),
		Source:     SourceLLM,
	}
	if !out.Confidence.Valid() {
		out.Confidence = emaildomain.ConfidenceMedium
	}

	if rule.IsAutomated && out.Category == emaildomain.CategoryNeedsResponse {
		log.Printf("[Classify] Overriding needs_response to fyi for %s (%s)", meta.ThreadID, rule.Reason)
		out.Category = emaildomain.CategoryFYI
		out.Reasoning = fmt.Sprintf("%s %s; model said needs_response: %s", OverrideMarker, rule.Reason, verdict.Reasoning)
	}
	if out.Category == emaildomain.CategoryPaymentRequest {
		out.VendorName = strings.TrimSpace(verdict.VendorName)
	}
	return out, nil
}
