package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"
	emailrepo "github.com/landovsky/gmail-assistant-sub002/internal/email/repository"
	jobdomain "github.com/landovsky/gmail-assistant-sub002/internal/job/domain"
	jobrepo "github.com/landovsky/gmail-assistant-sub002/internal/job/repository"
	lifecycle "github.com/landovsky/gmail-assistant-sub002/internal/lifecycle/usecase"
	routing "github.com/landovsky/gmail-assistant-sub002/internal/routing/usecase"
	userrepo "github.com/landovsky/gmail-assistant-sub002/internal/user/repository"
	"github.com/landovsky/gmail-assistant-sub002/pkg/config"
	"github.com/landovsky/gmail-assistant-sub002/pkg/gmail"

	"github.com/google/uuid"
)

// ErrSyncInProgress is returned when another worker holds the user's sync
// lease. The caller should retry later.
var ErrSyncInProgress = errors.New("sync already in progress")

// Result summarises one sync run.
type Result struct {
	Bootstrapped bool
	NewMessages  int
	LabelChanges int
	Deletions    int
	JobsQueued   int
	HistoryID    string
}

// Engine turns mailbox changes into queued jobs.
type Engine struct {
	jobs      jobrepo.JobRepository
	emails    emailrepo.EmailRecordRepository
	labels    emailrepo.LabelMappingRepository
	states    userrepo.SyncStateRepository
	lifecycle *lifecycle.Manager
	router    *routing.Router
	cfg       config.SyncConfig
}

// NewEngine creates a sync engine. router may be nil, in which case every
// new thread goes to classification.
func NewEngine(
	jobs jobrepo.JobRepository,
	emails emailrepo.EmailRecordRepository,
	labels emailrepo.LabelMappingRepository,
	states userrepo.SyncStateRepository,
	manager *lifecycle.Manager,
	router *routing.Router,
	cfg config.SyncConfig,
) *Engine {
	if cfg.FullSyncDays <= 0 {
		cfg.FullSyncDays = 10
	}
	if cfg.FullSyncMaxResults <= 0 {
		cfg.FullSyncMaxResults = 50
	}
	if cfg.LeaseTimeoutMinutes <= 0 {
		cfg.LeaseTimeoutMinutes = 10
	}
	return &Engine{
		jobs:      jobs,
		emails:    emails,
		labels:    labels,
		states:    states,
		lifecycle: manager,
		router:    router,
		cfg:       cfg,
	}
}

// SyncUser processes every change since the stored cursor, or bootstraps
// when there is no usable cursor. Syncs of one user never overlap.
func (e *Engine) SyncUser(ctx context.Context, mb gmail.Mailbox, userID string, p jobdomain.SyncPayload) (*Result, error) {
	owner := "sync-" + uuid.New().String()
	ok, err := e.states.AcquireLease(ctx, userID, owner, e.cfg.LeaseTimeout())
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sync lease: %w", err)
	}
	if !ok {
		return nil, ErrSyncInProgress
	}
	defer func() {
		// Release even when ctx was cancelled mid-sync.
		if err := e.states.ReleaseLease(context.WithoutCancel(ctx), userID, owner); err != nil {
			log.Printf("[Sync] Failed to release lease for user %s: %v", userID, err)
		}
	}()

	if p.ForceFull {
		log.Printf("[Sync] Forced full sync for user %s", userID)
		return e.bootstrap(ctx, mb, userID)
	}

	state, err := e.states.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync state: %w", err)
	}
	if state.NeverSynced() {
		log.Printf("[Sync] No cursor for user %s, running full sync", userID)
		return e.bootstrap(ctx, mb, userID)
	}

	history, err := mb.ListHistory(ctx, state.LastHistoryID)
	if err != nil {
		if errors.Is(err, gmail.ErrCursorExpired) {
			log.Printf("[Sync] Cursor %s expired for user %s, running full sync", state.LastHistoryID, userID)
			if err := e.states.ResetCursor(ctx, userID); err != nil {
				return nil, fmt.Errorf("failed to reset cursor: %w", err)
			}
			return e.bootstrap(ctx, mb, userID)
		}
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	result, err := e.incremental(ctx, mb, userID, history)
	if err != nil {
		return nil, err
	}

	cursor := history.HistoryID
	if cursor == "" {
		cursor = state.LastHistoryID
	}
	if err := e.states.SetCursor(ctx, userID, cursor); err != nil {
		return nil, fmt.Errorf("failed to store cursor: %w", err)
	}
	result.HistoryID = cursor

	log.Printf("[Sync] Synced user %s: %d new, %d label changes, %d deletions, %d jobs",
		userID, result.NewMessages, result.LabelChanges, result.Deletions, result.JobsQueued)
	return result, nil
}

// bootstrapQuery finds recent inbox mail that carries none of the managed
// labels.
func (e *Engine) bootstrapQuery() string {
	var b strings.Builder
	fmt.Fprintf(&b, "in:inbox newer_than:%dd", e.cfg.FullSyncDays)
	for _, k := range emaildomain.LabelKeys {
		fmt.Fprintf(&b, " -label:%q", k.DisplayName())
	}
	b.WriteString(" -in:trash -in:spam")
	return b.String()
}

func (e *Engine) bootstrap(ctx context.Context, mb gmail.Mailbox, userID string) (*Result, error) {
	result := &Result{Bootstrapped: true}

	messages, err := mb.Search(ctx, e.bootstrapQuery(), e.cfg.FullSyncMaxResults)
	if err != nil {
		return nil, fmt.Errorf("failed to search inbox: %w", err)
	}

	seen := map[string]bool{}
	for _, msg := range messages {
		if seen[msg.ThreadID] {
			continue
		}
		seen[msg.ThreadID] = true

		rec, err := e.emails.GetByThread(ctx, userID, msg.ThreadID)
		if err != nil {
			return nil, fmt.Errorf("failed to load record: %w", err)
		}
		if rec != nil {
			continue
		}
		pending, err := e.jobs.HasPendingJob(ctx, userID, jobdomain.TypeClassify, msg.ThreadID)
		if err != nil {
			return nil, fmt.Errorf("failed to check pending jobs: %w", err)
		}
		if pending {
			continue
		}
		if err := e.enqueue(ctx, userID, jobdomain.TypeClassify, jobdomain.ThreadPayload{ThreadID: msg.ThreadID, MessageID: msg.ID}); err != nil {
			return nil, err
		}
		result.NewMessages++
		result.JobsQueued++
	}

	profile, err := mb.GetProfile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	if err := e.states.SetCursor(ctx, userID, profile.HistoryID); err != nil {
		return nil, fmt.Errorf("failed to store cursor: %w", err)
	}
	result.HistoryID = profile.HistoryID

	log.Printf("[Sync] Full sync for user %s: %d unclassified threads queued", userID, result.NewMessages)
	return result, nil
}

type jobKey struct {
	jobType  string
	threadID string
}

// run holds the state of one incremental pass.
type run struct {
	ctx    context.Context
	mb     gmail.Mailbox
	userID string
	labels *emaildomain.LabelMap
	seen   map[jobKey]bool
	result *Result
}

func (r *run) once(jobType, threadID string) bool {
	k := jobKey{jobType, threadID}
	if r.seen[k] {
		return false
	}
	r.seen[k] = true
	return true
}

func (e *Engine) incremental(ctx context.Context, mb gmail.Mailbox, userID string, history *gmail.History) (*Result, error) {
	labels, err := e.labels.LabelMap(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load labels: %w", err)
	}
	r := &run{
		ctx:    ctx,
		mb:     mb,
		userID: userID,
		labels: labels,
		seen:   map[jobKey]bool{},
		result: &Result{},
	}

	for _, rec := range history.Records {
		for _, added := range rec.MessagesAdded {
			if err := e.messageAdded(r, added); err != nil {
				return nil, err
			}
		}
		for _, change := range rec.LabelsAdded {
			if err := e.labelsAdded(r, change); err != nil {
				return nil, err
			}
		}
		for _, change := range rec.LabelsRemoved {
			if err := e.labelsRemoved(r, change); err != nil {
				return nil, err
			}
		}
		for _, deleted := range rec.MessagesDeleted {
			if err := e.messageDeleted(r, deleted); err != nil {
				return nil, err
			}
		}
	}
	return r.result, nil
}

func (e *Engine) messageAdded(r *run, msg gmail.MessageRef) error {
	if !hasLabel(msg.LabelIDs, "INBOX") || msg.ThreadID == "" {
		return nil
	}

	rec, err := e.emails.GetByThread(r.ctx, r.userID, msg.ThreadID)
	if err != nil {
		return fmt.Errorf("failed to load record: %w", err)
	}
	if rec != nil {
		return e.replyAdded(r, rec, msg)
	}

	jobType := jobdomain.TypeClassify
	var payload any = jobdomain.ThreadPayload{ThreadID: msg.ThreadID, MessageID: msg.ID}
	if decision, ok := e.route(r, msg); ok && decision.IsAgent() {
		jobType = jobdomain.TypeAgentProcess
		payload = jobdomain.AgentPayload{
			ThreadID:  msg.ThreadID,
			MessageID: msg.ID,
			Profile:   decision.Profile,
			RouteRule: decision.Rule,
		}
	}

	if !r.once(string(jobType), msg.ThreadID) {
		return nil
	}
	if err := e.enqueue(r.ctx, r.userID, jobType, payload); err != nil {
		return err
	}
	r.result.NewMessages++
	r.result.JobsQueued++
	return nil
}

// replyAdded handles a new message on a known thread.
func (e *Engine) replyAdded(r *run, rec *emaildomain.EmailRecord, msg gmail.MessageRef) error {
	if !r.once("message_count:"+msg.ID, msg.ThreadID) {
		return nil
	}
	if err := e.emails.IncrementMessageCount(r.ctx, r.userID, msg.ThreadID); err != nil {
		return fmt.Errorf("failed to count message: %w", err)
	}
	rec.MessageCount++
	r.result.NewMessages++

	if rec.Classification != emaildomain.CategoryWaiting || !emaildomain.CanTransition(rec.Status, emaildomain.StatusPending) {
		return nil
	}
	if !r.once("retriage", msg.ThreadID) {
		return nil
	}
	if err := e.lifecycle.RetriageWaiting(r.ctx, r.mb, rec, []string{msg.ID}); err != nil {
		return fmt.Errorf("failed to retriage thread %s: %w", msg.ThreadID, err)
	}
	if err := e.enqueue(r.ctx, r.userID, jobdomain.TypeClassify, jobdomain.ThreadPayload{ThreadID: msg.ThreadID, MessageID: msg.ID, Force: true}); err != nil {
		return err
	}
	r.result.JobsQueued++
	return nil
}

// route asks the router where a new thread goes. The message is only
// fetched when some rule could send it to an agent.
func (e *Engine) route(r *run, ref gmail.MessageRef) (routing.Decision, bool) {
	if e.router == nil || len(e.router.Profiles()) == 0 {
		return routing.Decision{}, false
	}
	msg, err := r.mb.GetMessage(r.ctx, ref.ID)
	if err != nil {
		log.Printf("[Sync] Could not fetch message %s for routing, using pipeline: %v", ref.ID, err)
		return routing.Decision{}, false
	}
	return e.router.Route(&routing.Meta{
		SenderEmail: msg.SenderEmail,
		Subject:     msg.Subject,
		Body:        msg.Body,
		Headers:     msg.Headers,
	}), true
}

func (e *Engine) labelsAdded(r *run, change gmail.LabelChange) error {
	threadID := change.ThreadID
	if threadID == "" {
		threadID = change.MessageID
	}

	for _, labelID := range change.LabelIDs {
		key, ok := r.labels.Key(labelID)
		if !ok {
			continue
		}
		switch key {
		case emaildomain.LabelDone:
			if !r.once("cleanup_done", threadID) {
				continue
			}
			if err := e.enqueue(r.ctx, r.userID, jobdomain.TypeCleanup, jobdomain.CleanupPayload{
				ThreadID:  threadID,
				MessageID: change.MessageID,
				Action:    jobdomain.CleanupDone,
			}); err != nil {
				return err
			}
			r.result.LabelChanges++
			r.result.JobsQueued++

		case emaildomain.LabelRework:
			if !r.once(string(jobdomain.TypeRework), threadID) {
				continue
			}
			rec, err := e.emails.GetByThread(r.ctx, r.userID, threadID)
			if err != nil {
				return fmt.Errorf("failed to load record: %w", err)
			}
			if rec == nil || rec.Status != emaildomain.StatusDrafted {
				log.Printf("[Sync] Ignoring Rework label on thread %s (status %q)", threadID, statusOf(rec))
				continue
			}
			if err := e.enqueue(r.ctx, r.userID, jobdomain.TypeRework, jobdomain.ReworkPayload{ThreadID: threadID, MessageID: change.MessageID}); err != nil {
				return err
			}
			r.result.LabelChanges++
			r.result.JobsQueued++

		case emaildomain.LabelNeedsResponse:
			if !r.once(string(jobdomain.TypeManualDraft), threadID) {
				continue
			}
			skip, err := e.draftUnderway(r, threadID)
			if err != nil {
				return err
			}
			if skip {
				continue
			}
			if err := e.enqueue(r.ctx, r.userID, jobdomain.TypeManualDraft, jobdomain.ThreadPayload{ThreadID: threadID, MessageID: change.MessageID}); err != nil {
				return err
			}
			r.result.LabelChanges++
			r.result.JobsQueued++
		}
	}
	return nil
}

// draftUnderway reports whether the thread is already drafted or waits for
// an automatic draft, which is the case when the classifier itself applied
// Needs Response.
func (e *Engine) draftUnderway(r *run, threadID string) (bool, error) {
	rec, err := e.emails.GetByThread(r.ctx, r.userID, threadID)
	if err != nil {
		return false, fmt.Errorf("failed to load record: %w", err)
	}
	if rec != nil {
		if rec.Status == emaildomain.StatusDrafted {
			return true, nil
		}
		if rec.Status == emaildomain.StatusPending && rec.Classification == emaildomain.CategoryNeedsResponse {
			return true, nil
		}
	}
	pending, err := e.jobs.HasPendingJob(r.ctx, r.userID, jobdomain.TypeDraft, threadID)
	if err != nil {
		return false, fmt.Errorf("failed to check pending jobs: %w", err)
	}
	return pending, nil
}

func (e *Engine) labelsRemoved(r *run, change gmail.LabelChange) error {
	if change.ThreadID == "" {
		return nil
	}
	for _, labelID := range change.LabelIDs {
		if _, ok := r.labels.Key(labelID); !ok {
			continue
		}
		if !r.once("label_removed:"+labelID, change.ThreadID) {
			continue
		}
		rec, err := e.emails.GetByThread(r.ctx, r.userID, change.ThreadID)
		if err != nil {
			return fmt.Errorf("failed to load record: %w", err)
		}
		if rec == nil {
			continue
		}
		if err := e.lifecycle.RecordLabelChange(r.ctx, r.userID, change.ThreadID, labelID, false); err != nil {
			return err
		}
		r.result.LabelChanges++
	}
	return nil
}

func (e *Engine) messageDeleted(r *run, msg gmail.MessageRef) error {
	if msg.ThreadID == "" || !r.once("cleanup_check_sent", msg.ThreadID) {
		return nil
	}
	if err := e.enqueue(r.ctx, r.userID, jobdomain.TypeCleanup, jobdomain.CleanupPayload{
		ThreadID:  msg.ThreadID,
		MessageID: msg.ID,
		Action:    jobdomain.CleanupCheckSent,
	}); err != nil {
		return err
	}
	r.result.Deletions++
	r.result.JobsQueued++
	return nil
}

func (e *Engine) enqueue(ctx context.Context, userID string, jobType jobdomain.Type, payload any) error {
	if _, err := e.jobs.Enqueue(ctx, jobType, userID, payload, 0); err != nil {
		return fmt.Errorf("failed to enqueue %s job: %w", jobType, err)
	}
	return nil
}

func hasLabel(labels []string, id string) bool {
	for _, l := range labels {
		if l == id {
			return true
		}
	}
	return false
}

func statusOf(rec *emaildomain.EmailRecord) emaildomain.Status {
	if rec == nil {
		return emaildomain.StatusNew
	}
	return rec.Status
}
