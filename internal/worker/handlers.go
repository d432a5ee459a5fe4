package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	agentuc "github.com/landovsky/gmail-assistant-sub002/internal/agent/usecase"
	classifyuc "github.com/landovsky/gmail-assistant-sub002/internal/classify/usecase"
	draftuc "github.com/landovsky/gmail-assistant-sub002/internal/draft/usecase"
	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"
	emailrepo "github.com/landovsky/gmail-assistant-sub002/internal/email/repository"
	jobdomain "github.com/landovsky/gmail-assistant-sub002/internal/job/domain"
	jobrepo "github.com/landovsky/gmail-assistant-sub002/internal/job/repository"
	lifecycle "github.com/landovsky/gmail-assistant-sub002/internal/lifecycle/usecase"
	syncuc "github.com/landovsky/gmail-assistant-sub002/internal/sync/usecase"
	userdomain "github.com/landovsky/gmail-assistant-sub002/internal/user/domain"
	userrepo "github.com/landovsky/gmail-assistant-sub002/internal/user/repository"
	"github.com/landovsky/gmail-assistant-sub002/pkg/gmail"
)

// syncRetryDelay is how long a sync job waits when another worker holds
// the user's lease.
const syncRetryDelay = 30 * time.Second

// Handlers binds the job types to the usecases that execute them.
type Handlers struct {
	Jobs      jobrepo.JobRepository
	Emails    emailrepo.EmailRecordRepository
	Settings  userrepo.SettingsRepository
	Lifecycle *lifecycle.Manager
	Sync      *syncuc.Engine
	Classify  *classifyuc.Engine
	Drafts    *draftuc.Service
	// Agents is optional; agent_process jobs fail without it.
	Agents *agentuc.Processor
}

// Register installs every handler on the pool.
func (h *Handlers) Register(p *Pool) {
	p.Register(jobdomain.TypeSync, h.sync)
	p.Register(jobdomain.TypeClassify, h.classify)
	p.Register(jobdomain.TypeDraft, h.draft)
	p.Register(jobdomain.TypeCleanup, h.cleanup)
	p.Register(jobdomain.TypeRework, h.rework)
	p.Register(jobdomain.TypeManualDraft, h.manualDraft)
	p.Register(jobdomain.TypeAgentProcess, h.agentProcess)
}

func (h *Handlers) sync(ctx context.Context, job *jobdomain.Job, user *userdomain.User, mb gmail.Mailbox) error {
	var p jobdomain.SyncPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	res, err := h.Sync.SyncUser(ctx, mb, user.ID, p)
	if errors.Is(err, syncuc.ErrSyncInProgress) {
		return Defer(syncRetryDelay, "sync already running for "+user.ID)
	}
	if err != nil {
		return err
	}
	log.Printf("[Worker] Synced %s: bootstrapped=%t messages=%d label_changes=%d deletions=%d jobs=%d",
		user.Email, res.Bootstrapped, res.NewMessages, res.LabelChanges, res.Deletions, res.JobsQueued)
	return nil
}

func (h *Handlers) classify(ctx context.Context, job *jobdomain.Job, user *userdomain.User, mb gmail.Mailbox) error {
	var p jobdomain.ThreadPayload
	if err := job.Decode(&p); err != nil {
		return err
	}

	msg, count, err := h.target(ctx, mb, p)
	if err != nil || msg == nil {
		return err
	}

	existing, err := h.Emails.GetByThread(ctx, user.ID, msg.ThreadID)
	if err != nil {
		return fmt.Errorf("failed to load record: %w", err)
	}
	if existing != nil && !p.Force {
		log.Printf("[Worker] Thread %s already classified, skipping", msg.ThreadID)
		return nil
	}
	if existing != nil && existing.MessageCount > count {
		count = existing.MessageCount
	}

	settings, err := h.Settings.Get(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	result, err := h.Classify.Classify(ctx, &classifyuc.Metadata{
		UserID:       user.ID,
		ThreadID:     msg.ThreadID,
		SenderEmail:  msg.SenderEmail,
		SenderName:   msg.SenderName,
		Subject:      msg.Subject,
		Snippet:      msg.Snippet,
		Body:         msg.Body,
		MessageCount: count,
		Headers:      msg.Headers,
	}, settings)
	if err != nil {
		return err
	}

	rec := &emaildomain.EmailRecord{
		UserID:           user.ID,
		GmailThreadID:    msg.ThreadID,
		GmailMessageID:   msg.ID,
		SenderEmail:      msg.SenderEmail,
		SenderName:       msg.SenderName,
		Subject:          msg.Subject,
		Snippet:          msg.Snippet,
		ReceivedAt:       msg.InternalDate,
		Classification:   result.Category,
		Confidence:       result.Confidence,
		Reasoning:        result.Reasoning,
		DetectedLanguage: result.Language,
		ResolvedStyle:    result.Style,
		MessageCount:     count,
		VendorName:       result.VendorName,
	}
	detail := fmt.Sprintf("%s (%s, source=%s)", result.Category, result.Confidence, result.Source)
	stored, err := h.Lifecycle.RecordClassification(ctx, mb, rec, []string{msg.ID}, detail)
	if err != nil {
		var terr *lifecycle.TransitionError
		if errors.As(err, &terr) {
			log.Printf("[Worker] Not reclassifying %s: %v", msg.ThreadID, err)
			return nil
		}
		return err
	}
	log.Printf("[Worker] Classified %s -> %s", msg.ThreadID, detail)

	if stored.Classification == emaildomain.CategoryNeedsResponse && stored.Status == emaildomain.StatusPending {
		payload := jobdomain.ThreadPayload{ThreadID: msg.ThreadID, MessageID: msg.ID}
		if _, err := h.Jobs.Enqueue(ctx, jobdomain.TypeDraft, user.ID, payload, 0); err != nil {
			return fmt.Errorf("failed to enqueue draft: %w", err)
		}
	}
	return nil
}

// target resolves the message a thread job is about and the thread's
// message count. A vanished message yields nil without error.
func (h *Handlers) target(ctx context.Context, mb gmail.Mailbox, p jobdomain.ThreadPayload) (*gmail.Message, int, error) {
	if p.MessageID != "" {
		msg, err := mb.GetMessage(ctx, p.MessageID)
		if err != nil {
			if gmail.IsNotFound(err) {
				log.Printf("[Worker] Message %s no longer exists", p.MessageID)
				return nil, 0, nil
			}
			return nil, 0, err
		}
		return msg, 1, nil
	}
	if p.ThreadID == "" {
		return nil, 0, nil
	}
	thread, err := mb.GetThread(ctx, p.ThreadID)
	if err != nil {
		if gmail.IsNotFound(err) {
			log.Printf("[Worker] Thread %s no longer exists", p.ThreadID)
			return nil, 0, nil
		}
		return nil, 0, err
	}
	return thread.Latest(), len(thread.Messages), nil
}

func (h *Handlers) draft(ctx context.Context, job *jobdomain.Job, user *userdomain.User, mb gmail.Mailbox) error {
	var p jobdomain.ThreadPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	if p.ThreadID == "" {
		return nil
	}
	_, err := h.Drafts.CreateDraft(ctx, mb, user.ID, p.ThreadID)
	return err
}

func (h *Handlers) cleanup(ctx context.Context, job *jobdomain.Job, user *userdomain.User, mb gmail.Mailbox) error {
	var p jobdomain.CleanupPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	threadID, err := threadOf(ctx, mb, p.ThreadID, p.MessageID)
	if err != nil || threadID == "" {
		return err
	}

	switch p.Action {
	case jobdomain.CleanupDone:
		return h.Lifecycle.HandleDone(ctx, mb, user.ID, threadID)
	case jobdomain.CleanupCheckSent:
		sent, err := h.Lifecycle.HandleSentDetection(ctx, mb, user.ID, threadID)
		if err == nil && sent {
			log.Printf("[Worker] Draft for thread %s was sent", threadID)
		}
		return err
	default:
		return fmt.Errorf("unknown cleanup action %q", p.Action)
	}
}

func (h *Handlers) rework(ctx context.Context, job *jobdomain.Job, user *userdomain.User, mb gmail.Mailbox) error {
	var p jobdomain.ReworkPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	threadID, err := threadOf(ctx, mb, p.ThreadID, p.MessageID)
	if err != nil || threadID == "" {
		return err
	}
	outcome, err := h.Drafts.Rework(ctx, mb, user.ID, threadID, p.Instruction)
	if err != nil {
		return err
	}
	log.Printf("[Worker] Rework of thread %s: %s", threadID, outcome)
	return nil
}

func (h *Handlers) manualDraft(ctx context.Context, job *jobdomain.Job, user *userdomain.User, mb gmail.Mailbox) error {
	var p jobdomain.ThreadPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	messageID := p.MessageID
	if messageID == "" && p.ThreadID != "" {
		msg, _, err := h.target(ctx, mb, p)
		if err != nil || msg == nil {
			return err
		}
		messageID = msg.ID
	}
	if messageID == "" {
		return nil
	}
	_, err := h.Drafts.ManualDraft(ctx, mb, user.ID, messageID)
	return err
}

func (h *Handlers) agentProcess(ctx context.Context, job *jobdomain.Job, user *userdomain.User, mb gmail.Mailbox) error {
	if h.Agents == nil {
		return errors.New("agent processing is not configured")
	}
	var p jobdomain.AgentPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	run, err := h.Agents.Process(ctx, mb, user.ID, p.ThreadID, p.MessageID, p.Profile)
	if err != nil {
		return err
	}
	log.Printf("[Worker] Agent run %s on thread %s finished: %s (%d iterations)", run.ID, p.ThreadID, run.Status, run.Iterations)
	return nil
}

// threadOf returns threadID, or the thread of messageID when it is empty.
func threadOf(ctx context.Context, mb gmail.Mailbox, threadID, messageID string) (string, error) {
	if threadID != "" || messageID == "" {
		return threadID, nil
	}
	msg, err := mb.GetMessage(ctx, messageID)
	if err != nil {
		if gmail.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return msg.ThreadID, nil
}
