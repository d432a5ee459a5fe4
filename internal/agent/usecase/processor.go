package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	agentdomain "github.com/landovsky/gmail-assistant-sub002/internal/agent/domain"
	agentrepo "github.com/landovsky/gmail-assistant-sub002/internal/agent/repository"
	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"
	emailrepo "github.com/landovsky/gmail-assistant-sub002/internal/email/repository"
	routing "github.com/landovsky/gmail-assistant-sub002/internal/routing/usecase"
	"github.com/landovsky/gmail-assistant-sub002/pkg/gmail"
)

const maxFinalMessage = 5000

// Processor runs an agent profile on a routed thread and records the run.
type Processor struct {
	loop     *Loop
	profiles map[string]*Profile
	runs     agentrepo.AgentRunRepository
	events   emailrepo.EmailEventRepository
}

// NewProcessor creates an agent processor.
func NewProcessor(loop *Loop, profiles map[string]*Profile, runs agentrepo.AgentRunRepository, events emailrepo.EmailEventRepository) *Processor {
	return &Processor{loop: loop, profiles: profiles, runs: runs, events: events}
}

// HasProfile reports whether name is a loaded profile.
func (p *Processor) HasProfile(name string) bool {
	_, ok := p.profiles[name]
	return ok
}

// Process runs profileName on the message. A failed run is recorded, not
// returned as an error; errors mean the run could not be recorded.
func (p *Processor) Process(ctx context.Context, mb gmail.Mailbox, userID, threadID, messageID, profileName string) (*agentdomain.AgentRun, error) {
	profile, ok := p.profiles[profileName]
	if !ok {
		return nil, fmt.Errorf("unknown agent profile %q", profileName)
	}

	msg, err := mb.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load message %s: %w", messageID, err)
	}
	input, err := routing.Preprocess(profile.Preprocessor, &routing.Meta{
		SenderEmail: msg.SenderEmail,
		Subject:     msg.Subject,
		Body:        msg.Body,
		Headers:     msg.Headers,
	})
	if err != nil {
		return nil, err
	}

	runID, err := p.runs.Create(ctx, userID, threadID, profile.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent run: %w", err)
	}

	res := p.loop.Run(ctx, profile, &Env{UserID: userID, ThreadID: threadID, Mailbox: mb}, input)

	calls := res.ToolCalls
	if calls == nil {
		calls = []agentdomain.ToolCallLog{}
	}
	callsJSON, err := json.Marshal(calls)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool calls: %w", err)
	}
	final := []rune(res.FinalMessage)
	if len(final) > maxFinalMessage {
		final = final[:maxFinalMessage]
	}
	run := &agentdomain.AgentRun{
		ID:            runID,
		UserID:        userID,
		GmailThreadID: threadID,
		Profile:       profile.Name,
		Status:        res.Status,
		Iterations:    res.Iterations,
		ToolCallsLog:  string(callsJSON),
		FinalMessage:  string(final),
		Error:         res.Error,
	}
	if err := p.runs.Complete(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to complete agent run: %w", err)
	}

	detail := fmt.Sprintf("Agent %s: %s (%d iterations, %d tool calls)", profile.Name, res.Status, res.Iterations, len(res.ToolCalls))
	if err := p.events.Append(ctx, &emaildomain.EmailEvent{
		UserID:        userID,
		GmailThreadID: threadID,
		EventType:     emaildomain.EventClassified,
		Detail:        detail,
	}); err != nil {
		return nil, fmt.Errorf("failed to append agent event: %w", err)
	}
	log.Printf("[Agent] %s", detail)
	return run, nil
}
