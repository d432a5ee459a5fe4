package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"

	classifyuc "github.com/landovsky/gmail-assistant-sub002/internal/classify/usecase"
	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"
	emailrepo "github.com/landovsky/gmail-assistant-sub002/internal/email/repository"
	lifecycle "github.com/landovsky/gmail-assistant-sub002/internal/lifecycle/usecase"
	userrepo "github.com/landovsky/gmail-assistant-sub002/internal/user/repository"
	"github.com/landovsky/gmail-assistant-sub002/pkg/gmail"
)

// ReworkOutcome is the result of a rework request.
type ReworkOutcome int

const (
	// ReworkSkipped means the thread was not in a reworkable state.
	ReworkSkipped ReworkOutcome = iota
	ReworkCompleted
	// ReworkLimitReached means the budget was spent; the thread moved to
	// Action Required without an LLM call.
	ReworkLimitReached
)

func (o ReworkOutcome) String() string {
	switch o {
	case ReworkCompleted:
		return "completed"
	case ReworkLimitReached:
		return "limit_reached"
	}
	return "skipped"
}

// Service runs the draft workflows against a user's mailbox: the first
// draft, a manually requested draft and reworks.
type Service struct {
	engine    *Engine
	emails    emailrepo.EmailRecordRepository
	settings  userrepo.SettingsRepository
	lifecycle *lifecycle.Manager
}

// NewService creates a draft service.
func NewService(engine *Engine, emails emailrepo.EmailRecordRepository, settings userrepo.SettingsRepository, manager *lifecycle.Manager) *Service {
	return &Service{engine: engine, emails: emails, settings: settings, lifecycle: manager}
}

// CreateDraft drafts a reply for a pending thread. It returns "" without
// error when there is nothing to do.
func (s *Service) CreateDraft(ctx context.Context, mb gmail.Mailbox, userID, threadID string) (string, error) {
	rec, err := s.emails.GetByThread(ctx, userID, threadID)
	if err != nil {
		return "", fmt.Errorf("failed to load record: %w", err)
	}
	if rec == nil || rec.Status != emaildomain.StatusPending {
		log.Printf("[Draft] Thread %s is not pending, skipping draft", threadID)
		return "", nil
	}
	thread, err := s.thread(ctx, mb, threadID)
	if err != nil || thread == nil {
		return "", err
	}

	body, err := s.engine.GenerateDraft(ctx, mb, newRequest(rec, thread, ""))
	if err != nil {
		return "", err
	}
	draftID, err := s.replace(ctx, mb, rec, thread, body)
	if err != nil {
		return "", err
	}

	if err := s.lifecycle.MarkDrafted(ctx, mb, rec, draftID, thread.MessageIDs(), "Draft created with style: "+rec.ResolvedStyle); err != nil {
		return "", err
	}
	log.Printf("[Draft] Created draft %s for thread %s", draftID, threadID)
	return draftID, nil
}

// ManualDraft drafts a reply for a thread the user labeled Needs Response.
// A draft the user left in the thread supplies the instructions: the text
// above the marker, or its whole body when there is no marker.
func (s *Service) ManualDraft(ctx context.Context, mb gmail.Mailbox, userID, messageID string) (string, error) {
	msg, err := mb.GetMessage(ctx, messageID)
	if err != nil {
		if gmail.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	threadID := msg.ThreadID

	rec, err := s.emails.GetByThread(ctx, userID, threadID)
	if err != nil {
		return "", fmt.Errorf("failed to load record: %w", err)
	}
	if rec != nil && rec.Status != emaildomain.StatusPending && !emaildomain.CanTransition(rec.Status, emaildomain.StatusPending) {
		log.Printf("[Draft] Thread %s is %s, skipping manual draft", threadID, rec.Status)
		return "", nil
	}
	thread, err := s.thread(ctx, mb, threadID)
	if err != nil || thread == nil {
		return "", err
	}

	instructions, err := s.userNotes(ctx, mb, threadID)
	if err != nil {
		return "", err
	}

	var fresh *emaildomain.EmailRecord
	if rec == nil {
		settings, err := s.settings.Get(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("failed to load settings: %w", err)
		}
		fresh = &emaildomain.EmailRecord{
			UserID:           userID,
			GmailThreadID:    threadID,
			GmailMessageID:   msg.ID,
			SenderEmail:      msg.SenderEmail,
			SenderName:       msg.SenderName,
			Subject:          msg.Subject,
			Snippet:          msg.Snippet,
			ReceivedAt:       msg.InternalDate,
			DetectedLanguage: classifyuc.ResolveLanguage(msg.SenderEmail, settings, ""),
			ResolvedStyle:    classifyuc.ResolveStyle(msg.SenderEmail, settings, ""),
			MessageCount:     len(thread.Messages),
		}
	}
	rec, err = s.lifecycle.RequestManualDraft(ctx, rec, fresh)
	if err != nil {
		return "", err
	}

	body, err := s.engine.GenerateDraft(ctx, mb, newRequest(rec, thread, instructions))
	if err != nil {
		return "", err
	}
	draftID, err := s.replace(ctx, mb, rec, thread, body)
	if err != nil {
		return "", err
	}

	detail := "Manual draft created"
	if instructions != "" {
		detail += " with instructions: " + truncate(instructions, 100)
	}
	if err := s.lifecycle.MarkDrafted(ctx, mb, rec, draftID, thread.MessageIDs(), detail); err != nil {
		return "", err
	}
	log.Printf("[Draft] Created manual draft %s for thread %s", draftID, threadID)
	return draftID, nil
}

// Rework regenerates the draft of a thread the user labeled Rework.
// explicit, when set, replaces the notes written above the marker.
func (s *Service) Rework(ctx context.Context, mb gmail.Mailbox, userID, threadID, explicit string) (ReworkOutcome, error) {
	rec, err := s.emails.GetByThread(ctx, userID, threadID)
	if err != nil {
		return ReworkSkipped, fmt.Errorf("failed to load record: %w", err)
	}
	if rec == nil || (rec.Status != emaildomain.StatusDrafted && rec.Status != emaildomain.StatusReworkRequested) {
		log.Printf("[Draft] Thread %s has no draft to rework", threadID)
		return ReworkSkipped, nil
	}
	thread, err := s.thread(ctx, mb, threadID)
	if err != nil || thread == nil {
		return ReworkSkipped, err
	}

	if !rec.CanRework() {
		if err := s.lifecycle.SkipReworkLimit(ctx, mb, rec, thread.MessageIDs()); err != nil {
			return ReworkSkipped, err
		}
		log.Printf("[Draft] Rework limit reached for thread %s", threadID)
		return ReworkLimitReached, nil
	}

	var current *gmail.Draft
	if rec.DraftID != "" {
		if current, err = mb.GetDraft(ctx, rec.DraftID); err != nil {
			return ReworkSkipped, err
		}
	}
	currentBody := ""
	if current != nil && current.Message != nil {
		currentBody = current.Message.Body
	}

	req := newRequest(rec, thread, explicit)
	if rec.Status == emaildomain.StatusDrafted {
		instruction, _ := ExtractInstruction(currentBody)
		if explicit != "" {
			instruction = explicit
		}
		if err := s.lifecycle.BeginRework(ctx, rec, instruction); err != nil {
			return ReworkSkipped, err
		}
	} else if currentBody == "" && req.Instructions == "" {
		// Resuming after the old draft was already trashed.
		req.Instructions = rec.LastReworkNote
	}

	body, instruction, err := s.engine.ReworkDraft(ctx, mb, req, currentBody, rec.ReworkCount)
	if err != nil {
		return ReworkSkipped, err
	}

	if current != nil {
		if err := mb.DeleteDraft(ctx, current.ID); err != nil {
			return ReworkSkipped, fmt.Errorf("failed to trash draft %s: %w", current.ID, err)
		}
		if err := s.lifecycle.RecordDraftTrashed(ctx, rec, current.ID, "Old draft trashed for rework"); err != nil {
			return ReworkSkipped, err
		}
	}
	draftID, err := mb.CreateDraft(ctx, draftInput(rec, thread, body))
	if err != nil {
		return ReworkSkipped, fmt.Errorf("failed to create draft: %w", err)
	}
	if err := s.lifecycle.CompleteRework(ctx, mb, rec, draftID, instruction, thread.MessageIDs()); err != nil {
		return ReworkSkipped, err
	}
	log.Printf("[Draft] Rework #%d done for thread %s", rec.ReworkCount, threadID)
	return ReworkCompleted, nil
}

func (s *Service) thread(ctx context.Context, mb gmail.Mailbox, threadID string) (*gmail.Thread, error) {
	thread, err := mb.GetThread(ctx, threadID)
	if err != nil {
		if gmail.IsNotFound(err) {
			log.Printf("[Draft] Thread %s no longer exists", threadID)
			return nil, nil
		}
		return nil, err
	}
	if thread.Latest() == nil {
		return nil, nil
	}
	return thread, nil
}

func (s *Service) userNotes(ctx context.Context, mb gmail.Mailbox, threadID string) (string, error) {
	drafts, err := mb.ListThreadDrafts(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("failed to list drafts: %w", err)
	}
	for _, d := range drafts {
		if d.Message == nil {
			continue
		}
		instruction, _ := ExtractInstruction(d.Message.Body)
		if instruction == "" && !strings.Contains(d.Message.Body, Marker) {
			instruction = strings.TrimSpace(d.Message.Body)
		}
		if instruction != "" {
			return instruction, nil
		}
	}
	return "", nil
}

// replace trashes every draft in the thread and creates the new one.
func (s *Service) replace(ctx context.Context, mb gmail.Mailbox, rec *emaildomain.EmailRecord, thread *gmail.Thread, body string) (string, error) {
	stale, err := mb.ListThreadDrafts(ctx, thread.ID)
	if err != nil {
		return "", fmt.Errorf("failed to list drafts: %w", err)
	}
	for _, d := range stale {
		if err := mb.DeleteDraft(ctx, d.ID); err != nil {
			return "", fmt.Errorf("failed to trash stale draft %s: %w", d.ID, err)
		}
	}
	draftID, err := mb.CreateDraft(ctx, draftInput(rec, thread, body))
	if err != nil {
		return "", fmt.Errorf("failed to create draft: %w", err)
	}
	return draftID, nil
}

func newRequest(rec *emaildomain.EmailRecord, thread *gmail.Thread, instructions string) *Request {
	bodies := make([]string, 0, len(thread.Messages))
	for _, m := range thread.Messages {
		bodies = append(bodies, m.Body)
	}
	return &Request{
		UserID:       rec.UserID,
		ThreadID:     rec.GmailThreadID,
		SenderEmail:  rec.SenderEmail,
		SenderName:   rec.SenderName,
		Subject:      rec.Subject,
		ThreadBody:   ThreadBody(bodies),
		Style:        rec.ResolvedStyle,
		Language:     rec.DetectedLanguage,
		Instructions: instructions,
	}
}

func draftInput(rec *emaildomain.EmailRecord, thread *gmail.Thread, body string) gmail.DraftInput {
	latest := thread.Latest()
	return gmail.DraftInput{
		ThreadID:   thread.ID,
		To:         rec.SenderEmail,
		Subject:    rec.Subject,
		Body:       body,
		InReplyTo:  latest.Header("Message-ID"),
		References: latest.Header("References"),
	}
}
