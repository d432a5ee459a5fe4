package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"
	emailrepo "github.com/landovsky/gmail-assistant-sub002/internal/email/repository"
	"github.com/landovsky/gmail-assistant-sub002/pkg/gmail"
)

// Manager applies workflow transitions: it checks them against the status
// table, persists the record, projects labels onto the mailbox and appends
// exactly one audit event per transition.
type Manager struct {
	emails emailrepo.EmailRecordRepository
	events emailrepo.EmailEventRepository
	labels emailrepo.LabelMappingRepository
}

// NewManager creates a lifecycle manager.
func NewManager(emails emailrepo.EmailRecordRepository, events emailrepo.EmailEventRepository, labels emailrepo.LabelMappingRepository) *Manager {
	return &Manager{emails: emails, events: events, labels: labels}
}

// TransitionError reports a transition the status table forbids.
type TransitionError struct {
	ThreadID string
	From, To emaildomain.Status
}

func (e *TransitionError) Error() string {
	from := e.From
	if from == emaildomain.StatusNew {
		from = "new"
	}
	return fmt.Sprintf("thread %s: transition %s -> %s not allowed", e.ThreadID, from, e.To)
}

func (m *Manager) transition(rec *emaildomain.EmailRecord, to emaildomain.Status) error {
	if !emaildomain.CanTransition(rec.Status, to) {
		return &TransitionError{ThreadID: rec.GmailThreadID, From: rec.Status, To: to}
	}
	rec.Status = to
	return nil
}

func (m *Manager) append(ctx context.Context, userID, threadID string, et emaildomain.EventType, detail, labelID, draftID string) error {
	err := m.events.Append(ctx, &emaildomain.EmailEvent{
		UserID:        userID,
		GmailThreadID: threadID,
		EventType:     et,
		Detail:        detail,
		LabelID:       labelID,
		DraftID:       draftID,
	})
	if err != nil {
		return fmt.Errorf("failed to append %s event: %w", et, err)
	}
	return nil
}

func (m *Manager) modify(ctx context.Context, mb gmail.Mailbox, messageIDs, add, remove []string) error {
	if len(messageIDs) == 0 || (len(add) == 0 && len(remove) == 0) {
		return nil
	}
	if err := mb.ModifyLabels(ctx, messageIDs, add, remove); err != nil {
		return fmt.Errorf("failed to update labels: %w", err)
	}
	return nil
}

func (m *Manager) record(ctx context.Context, userID, threadID string) (*emaildomain.EmailRecord, error) {
	rec, err := m.emails.GetByThread(ctx, userID, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load record for thread %s: %w", threadID, err)
	}
	return rec, nil
}

// LabelMap returns the user's label table.
func (m *Manager) LabelMap(ctx context.Context, userID string) (*emaildomain.LabelMap, error) {
	return m.labels.LabelMap(ctx, userID)
}

// RecordClassification stores a classification and labels the message with
// its category. New records start pending or skipped; an existing record is
// reclassified from its current status.
func (m *Manager) RecordClassification(ctx context.Context, mb gmail.Mailbox, rec *emaildomain.EmailRecord, messageIDs []string, detail string) (*emaildomain.EmailRecord, error) {
	existing, err := m.record(ctx, rec.UserID, rec.GmailThreadID)
	if err != nil {
		return nil, err
	}
	target := emaildomain.InitialStatus(rec.Classification)
	from := emaildomain.StatusNew
	if existing != nil {
		from = existing.Status
	}
	if !emaildomain.CanTransition(from, target) {
		return nil, &TransitionError{ThreadID: rec.GmailThreadID, From: from, To: target}
	}
	rec.Status = target

	stored, err := m.emails.Upsert(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to store classification: %w", err)
	}

	labels, err := m.labels.LabelMap(ctx, rec.UserID)
	if err != nil {
		return nil, err
	}
	labelID := labels.ID(rec.Classification.LabelKey())
	remove := without(labels.ClassificationIDs(), labelID)
	if err := m.modify(ctx, mb, messageIDs, labels.IDs(rec.Classification.LabelKey()), remove); err != nil {
		return nil, err
	}
	if err := m.append(ctx, rec.UserID, rec.GmailThreadID, emaildomain.EventClassified, detail, labelID, ""); err != nil {
		return nil, err
	}
	return stored, nil
}

// RequestManualDraft reopens a thread the user labeled Needs Response by
// hand. The record is created or reclassified as needs_response and moved
// to pending.
func (m *Manager) RequestManualDraft(ctx context.Context, rec *emaildomain.EmailRecord, fresh *emaildomain.EmailRecord) (*emaildomain.EmailRecord, error) {
	if rec == nil {
		fresh.Classification = emaildomain.CategoryNeedsResponse
		fresh.Confidence = emaildomain.ConfidenceHigh
		fresh.Reasoning = "Manually requested by user"
		fresh.Status = emaildomain.StatusPending
		stored, err := m.emails.Upsert(ctx, fresh)
		if err != nil {
			return nil, fmt.Errorf("failed to store manual request: %w", err)
		}
		return stored, m.append(ctx, fresh.UserID, fresh.GmailThreadID, emaildomain.EventClassified, "needs_response (high, source=manual)", "", "")
	}
	if rec.Status == emaildomain.StatusPending && rec.Classification == emaildomain.CategoryNeedsResponse {
		return rec, nil
	}
	if err := m.transition(rec, emaildomain.StatusPending); err != nil {
		return nil, err
	}
	rec.Classification = emaildomain.CategoryNeedsResponse
	rec.Confidence = emaildomain.ConfidenceHigh
	rec.Reasoning = "Reclassified: manually requested by user"
	rec.VendorName = ""
	if err := m.emails.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store manual request: %w", err)
	}
	return rec, m.append(ctx, rec.UserID, rec.GmailThreadID, emaildomain.EventClassified, "needs_response (high, source=manual)", "", "")
}

// MarkDrafted records a created draft: pending -> drafted, Outbox replaces
// Needs Response.
func (m *Manager) MarkDrafted(ctx context.Context, mb gmail.Mailbox, rec *emaildomain.EmailRecord, draftID string, messageIDs []string, detail string) error {
	if err := m.transition(rec, emaildomain.StatusDrafted); err != nil {
		return err
	}
	now := time.Now().UTC()
	rec.DraftID = draftID
	rec.DraftedAt = &now
	if err := m.emails.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to store draft: %w", err)
	}

	labels, err := m.labels.LabelMap(ctx, rec.UserID)
	if err != nil {
		return err
	}
	if err := m.modify(ctx, mb, messageIDs, labels.IDs(emaildomain.LabelOutbox), labels.IDs(emaildomain.LabelNeedsResponse)); err != nil {
		return err
	}
	return m.append(ctx, rec.UserID, rec.GmailThreadID, emaildomain.EventDraftCreated, detail, labels.ID(emaildomain.LabelOutbox), draftID)
}

// BeginRework moves a drafted record to rework_requested and remembers the
// instruction so an interrupted rework can resume.
func (m *Manager) BeginRework(ctx context.Context, rec *emaildomain.EmailRecord, instruction string) error {
	if err := m.transition(rec, emaildomain.StatusReworkRequested); err != nil {
		return err
	}
	rec.LastReworkNote = instruction
	if err := m.emails.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to store rework request: %w", err)
	}
	labels, err := m.labels.LabelMap(ctx, rec.UserID)
	if err != nil {
		return err
	}
	return m.append(ctx, rec.UserID, rec.GmailThreadID, emaildomain.EventLabelAdded, "Rework requested", labels.ID(emaildomain.LabelRework), rec.DraftID)
}

// RecordDraftTrashed logs the removal of a superseded draft.
func (m *Manager) RecordDraftTrashed(ctx context.Context, rec *emaildomain.EmailRecord, draftID, detail string) error {
	return m.append(ctx, rec.UserID, rec.GmailThreadID, emaildomain.EventDraftTrashed, detail, "", draftID)
}

// CompleteRework stores the regenerated draft: rework_requested -> drafted,
// rework_count+1. Rework is replaced by Outbox, or by Action Required after
// the last automatic rework.
func (m *Manager) CompleteRework(ctx context.Context, mb gmail.Mailbox, rec *emaildomain.EmailRecord, draftID, instruction string, messageIDs []string) error {
	if rec.ReworkCount >= emaildomain.MaxReworks {
		return fmt.Errorf("thread %s: rework limit reached", rec.GmailThreadID)
	}
	if err := m.transition(rec, emaildomain.StatusDrafted); err != nil {
		return err
	}
	now := time.Now().UTC()
	rec.ReworkCount++
	rec.DraftID = draftID
	rec.DraftedAt = &now
	rec.LastReworkNote = instruction
	if err := m.emails.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to store rework: %w", err)
	}

	labels, err := m.labels.LabelMap(ctx, rec.UserID)
	if err != nil {
		return err
	}
	target := emaildomain.LabelOutbox
	if rec.ReworkCount >= emaildomain.MaxReworks {
		target = emaildomain.LabelActionRequired
	}
	if err := m.modify(ctx, mb, messageIDs, labels.IDs(target), labels.IDs(emaildomain.LabelRework)); err != nil {
		return err
	}
	detail := fmt.Sprintf("Rework #%d: %s", rec.ReworkCount, truncate(instruction, 100))
	return m.append(ctx, rec.UserID, rec.GmailThreadID, emaildomain.EventDraftReworked, detail, labels.ID(target), draftID)
}

// SkipReworkLimit closes a thread whose rework budget is spent: the record
// is skipped and Rework is replaced by Action Required.
func (m *Manager) SkipReworkLimit(ctx context.Context, mb gmail.Mailbox, rec *emaildomain.EmailRecord, messageIDs []string) error {
	if err := m.transition(rec, emaildomain.StatusSkipped); err != nil {
		return err
	}
	if err := m.emails.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to store skipped record: %w", err)
	}
	labels, err := m.labels.LabelMap(ctx, rec.UserID)
	if err != nil {
		return err
	}
	if err := m.modify(ctx, mb, messageIDs, labels.IDs(emaildomain.LabelActionRequired), labels.IDs(emaildomain.LabelRework)); err != nil {
		return err
	}
	detail := fmt.Sprintf("Rework limit (%d) reached, moved to Action Required", emaildomain.MaxReworks)
	return m.append(ctx, rec.UserID, rec.GmailThreadID, emaildomain.EventReworkLimitReached, detail, labels.ID(emaildomain.LabelActionRequired), rec.DraftID)
}

// HandleDone archives a thread the user marked Done: every managed label
// except Done is removed together with INBOX.
func (m *Manager) HandleDone(ctx context.Context, mb gmail.Mailbox, userID, threadID string) error {
	thread, err := mb.GetThread(ctx, threadID)
	if err != nil {
		if gmail.IsNotFound(err) {
			log.Printf("[Lifecycle] Thread %s no longer exists, nothing to archive", threadID)
			return nil
		}
		return err
	}
	labels, err := m.labels.LabelMap(ctx, userID)
	if err != nil {
		return err
	}
	remove := append(without(labels.AllIDs(), labels.ID(emaildomain.LabelDone)), "INBOX")
	if err := m.modify(ctx, mb, thread.MessageIDs(), nil, remove); err != nil {
		return err
	}

	rec, err := m.record(ctx, userID, threadID)
	if err != nil {
		return err
	}
	if rec != nil {
		if rec.Status == emaildomain.StatusArchived {
			return nil
		}
		if err := m.transition(rec, emaildomain.StatusArchived); err != nil {
			return err
		}
		now := time.Now().UTC()
		rec.ActedAt = &now
		if err := m.emails.Save(ctx, rec); err != nil {
			return fmt.Errorf("failed to archive record: %w", err)
		}
	}
	log.Printf("[Lifecycle] Archived thread %s for user %s", threadID, userID)
	return m.append(ctx, userID, threadID, emaildomain.EventArchived, "Done: archived thread, kept Done label", labels.ID(emaildomain.LabelDone), "")
}

// HandleSentDetection marks a drafted thread sent once its draft is gone.
// It reports whether a transition happened.
func (m *Manager) HandleSentDetection(ctx context.Context, mb gmail.Mailbox, userID, threadID string) (bool, error) {
	rec, err := m.record(ctx, userID, threadID)
	if err != nil || rec == nil || rec.DraftID == "" || rec.Status != emaildomain.StatusDrafted {
		return false, err
	}
	draft, err := mb.GetDraft(ctx, rec.DraftID)
	if err != nil {
		return false, err
	}
	if draft != nil {
		return false, nil
	}

	labels, err := m.labels.LabelMap(ctx, userID)
	if err != nil {
		return false, err
	}
	if outbox := labels.ID(emaildomain.LabelOutbox); outbox != "" {
		thread, err := mb.GetThread(ctx, threadID)
		if err != nil && !gmail.IsNotFound(err) {
			return false, err
		}
		if thread != nil {
			if err := m.modify(ctx, mb, thread.MessageIDs(), nil, []string{outbox}); err != nil {
				return false, err
			}
		}
	}

	if err := m.transition(rec, emaildomain.StatusSent); err != nil {
		return false, err
	}
	now := time.Now().UTC()
	rec.ActedAt = &now
	if err := m.emails.Save(ctx, rec); err != nil {
		return false, fmt.Errorf("failed to mark sent: %w", err)
	}
	log.Printf("[Lifecycle] Detected sent draft for thread %s", threadID)
	return true, m.append(ctx, userID, threadID, emaildomain.EventSentDetected, "Draft no longer exists, marking as sent", "", rec.DraftID)
}

// RetriageWaiting reopens a waiting thread after a new reply: the Waiting
// label is removed and the record goes back to pending for reclassification.
func (m *Manager) RetriageWaiting(ctx context.Context, mb gmail.Mailbox, rec *emaildomain.EmailRecord, messageIDs []string) error {
	if err := m.transition(rec, emaildomain.StatusPending); err != nil {
		return err
	}
	if err := m.emails.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to reopen record: %w", err)
	}
	labels, err := m.labels.LabelMap(ctx, rec.UserID)
	if err != nil {
		return err
	}
	if err := m.modify(ctx, mb, messageIDs, nil, labels.IDs(emaildomain.LabelWaiting)); err != nil {
		return err
	}
	detail := fmt.Sprintf("New reply detected (%d messages), removed Waiting label", rec.MessageCount)
	return m.append(ctx, rec.UserID, rec.GmailThreadID, emaildomain.EventWaitingRetriaged, detail, labels.ID(emaildomain.LabelWaiting), "")
}

// RecordLabelChange logs a label change that needs no further action.
func (m *Manager) RecordLabelChange(ctx context.Context, userID, threadID, labelID string, added bool) error {
	et := emaildomain.EventLabelRemoved
	if added {
		et = emaildomain.EventLabelAdded
	}
	return m.append(ctx, userID, threadID, et, "", labelID, "")
}

// RecordError logs a terminal processing failure for a thread.
func (m *Manager) RecordError(ctx context.Context, userID, threadID, msg string) error {
	return m.append(ctx, userID, threadID, emaildomain.EventError, truncate(msg, 500), "", "")
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
