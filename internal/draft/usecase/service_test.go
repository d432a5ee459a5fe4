package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"
	emailrepo "github.com/landovsky/gmail-assistant-sub002/internal/email/repository"
	lifecycle "github.com/landovsky/gmail-assistant-sub002/internal/lifecycle/usecase"
	"github.com/landovsky/gmail-assistant-sub002/internal/storetest"
	userrepo "github.com/landovsky/gmail-assistant-sub002/internal/user/repository"
	"github.com/landovsky/gmail-assistant-sub002/pkg/gmail"
	"github.com/landovsky/gmail-assistant-sub002/pkg/gmail/gmailtest"
	"github.com/landovsky/gmail-assistant-sub002/pkg/llm"
	"github.com/landovsky/gmail-assistant-sub002/pkg/llm/llmtest"
)

type fixture struct {
	svc      *Service
	emails   emailrepo.EmailRecordRepository
	events   emailrepo.EmailEventRepository
	manager  *lifecycle.Manager
	mb       *gmailtest.FakeMailbox
	provider *llmtest.ScriptedProvider
	userID   string
}

// replies answers context calls with one sender query and draft calls with
// a fixed reply.
func replies(req *llm.Request) (*llm.Response, error) {
	if req.CallType == "context" {
		return &llm.Response{Content: `["from:alice@example.com"]`}, nil
	}
	return &llm.Response{Content: "Dobrý den, posílám."}, nil
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := storetest.Open(t)
	u := storetest.CreateUser(t, db, "owner@example.com")
	storetest.LabelIDs(t, db, u.ID)

	emails := emailrepo.NewEmailRecordRepository(db)
	events := emailrepo.NewEmailEventRepository(db)
	manager := lifecycle.NewManager(emails, events, emailrepo.NewLabelMappingRepository(db))

	provider := llmtest.New()
	provider.Handler = replies
	engine := NewEngine(provider, nil, NewContextGatherer(provider, "m"), llm.EstimateCounter{}, "m", 0)

	mb := gmailtest.New()
	mb.AddMessage(&gmail.Message{
		ID: "m1", ThreadID: "t1", LabelIDs: []string{"INBOX"},
		SenderEmail: "alice@example.com", Subject: "Report", Body: "Can you send the report?",
		Headers: map[string]string{"Message-ID": "<m1@mail.example.com>"},
	})
	mb.AddMessage(&gmail.Message{
		ID: "old", ThreadID: "t-old", LabelIDs: []string{"INBOX"},
		SenderEmail: "alice@example.com", Subject: "Earlier report", Body: "Here is Q1.",
	})

	return &fixture{
		svc:      NewService(engine, emails, userrepo.NewSettingsRepository(db), manager),
		emails:   emails,
		events:   events,
		manager:  manager,
		mb:       mb,
		provider: provider,
		userID:   u.ID,
	}
}

func (f *fixture) pending(t *testing.T) {
	t.Helper()
	f.pendingIn(t, "")
}

func (f *fixture) pendingIn(t *testing.T, language string) {
	t.Helper()
	_, err := f.manager.RecordClassification(context.Background(), f.mb, &emaildomain.EmailRecord{
		UserID:           f.userID,
		GmailThreadID:    "t1",
		GmailMessageID:   "m1",
		SenderEmail:      "alice@example.com",
		Subject:          "Report",
		Classification:   emaildomain.CategoryNeedsResponse,
		ResolvedStyle:    "business",
		DetectedLanguage: language,
	}, []string{"m1"}, "needs_response")
	if err != nil {
		t.Fatalf("RecordClassification: %v", err)
	}
}

func (f *fixture) record(t *testing.T) *emaildomain.EmailRecord {
	t.Helper()
	rec, err := f.emails.GetByThread(context.Background(), f.userID, "t1")
	if err != nil || rec == nil {
		t.Fatalf("GetByThread: %v %v", rec, err)
	}
	return rec
}

func TestCreateDraft(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.pending(t)
	stale := f.mb.AddDraft("t1", "leftover from a crashed attempt")

	draftID, err := f.svc.CreateDraft(ctx, f.mb, f.userID, "t1")
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	if f.mb.HasDraft(stale) {
		t.Error("stale draft should be trashed")
	}
	body := f.mb.DraftBody(draftID)
	if !strings.HasPrefix(body, "\n\n"+Marker+"\n\n") || !strings.Contains(body, "posílám") {
		t.Errorf("unexpected draft body %q", body)
	}
	in := f.mb.Created[len(f.mb.Created)-1]
	if in.InReplyTo != "<m1@mail.example.com>" || in.To != "alice@example.com" {
		t.Errorf("unexpected draft input %+v", in)
	}

	rec := f.record(t)
	if rec.Status != emaildomain.StatusDrafted || rec.DraftID != draftID {
		t.Errorf("unexpected record %+v", rec)
	}
	if !f.mb.ThreadHasLabel("t1", storetest.LabelID(emaildomain.LabelOutbox)) {
		t.Error("expected outbox label")
	}

	var draftReq *llm.Request
	for _, r := range f.provider.Requests() {
		if r.CallType == "draft" {
			draftReq = &r
		}
	}
	if draftReq == nil || draftReq.Temperature != draftTemperature {
		t.Fatalf("expected a draft call at temperature %.1f", draftTemperature)
	}
	if !strings.Contains(draftReq.Messages[1].Content, "Earlier report") {
		t.Error("related thread should be in the prompt")
	}

	// A second run is a no-op.
	again, err := f.svc.CreateDraft(ctx, f.mb, f.userID, "t1")
	if err != nil || again != "" {
		t.Errorf("expected no-op, got %q %v", again, err)
	}
}

func TestCreateDraftUsesResolvedLanguage(t *testing.T) {
	f := setup(t)
	f.pendingIn(t, "de")

	if _, err := f.svc.CreateDraft(context.Background(), f.mb, f.userID, "t1"); err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	var system string
	for _, req := range f.provider.Requests() {
		if req.CallType != "context" {
			system = req.Messages[0].Content
		}
	}
	if !strings.Contains(system, "Language: de") {
		t.Errorf("draft prompt should carry the resolved language, got:\n%s", system)
	}
}

func TestContextFailureDoesNotBlockDraft(t *testing.T) {
	f := setup(t)
	f.pending(t)
	f.provider.Handler = func(req *llm.Request) (*llm.Response, error) {
		if req.CallType == "context" {
			return &llm.Response{Content: "not json"}, nil
		}
		return replies(req)
	}
	f.mb.Fail["Search"] = errors.New("boom")

	if _, err := f.svc.CreateDraft(context.Background(), f.mb, f.userID, "t1"); err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	if f.record(t).Status != emaildomain.StatusDrafted {
		t.Error("expected drafted")
	}
}

func TestReworkUsesNotesAboveMarker(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.pending(t)
	if _, err := f.svc.CreateDraft(ctx, f.mb, f.userID, "t1"); err != nil {
		t.Fatal(err)
	}
	old := f.record(t).DraftID
	f.mb.RemoveDraft(old)
	old = f.mb.AddDraft("t1", "add the Q2 numbers\n\n"+Marker+"\n\nDobrý den, posílám.")
	rec := f.record(t)
	rec.DraftID = old
	if err := f.emails.Save(ctx, rec); err != nil {
		t.Fatal(err)
	}

	outcome, err := f.svc.Rework(ctx, f.mb, f.userID, "t1", "")
	if err != nil || outcome != ReworkCompleted {
		t.Fatalf("Rework: %v %v", outcome, err)
	}
	if f.mb.HasDraft(old) {
		t.Error("old draft should be trashed")
	}
	rec = f.record(t)
	if rec.ReworkCount != 1 || rec.LastReworkNote != "add the Q2 numbers" || rec.Status != emaildomain.StatusDrafted {
		t.Errorf("unexpected record %+v", rec)
	}

	reqs := f.provider.Requests()
	last := reqs[len(reqs)-1]
	if last.CallType != "rework" || !strings.Contains(last.Messages[1].Content, "User feedback / instructions:\nadd the Q2 numbers") {
		t.Errorf("unexpected rework request %+v", last)
	}
}

func TestReworkLimit(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.pending(t)
	if _, err := f.svc.CreateDraft(ctx, f.mb, f.userID, "t1"); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= emaildomain.MaxReworks; i++ {
		outcome, err := f.svc.Rework(ctx, f.mb, f.userID, "t1", "shorter")
		if err != nil || outcome != ReworkCompleted {
			t.Fatalf("rework #%d: %v %v", i, outcome, err)
		}
	}
	last := f.mb.DraftBody(f.record(t).DraftID)
	if !strings.Contains(last, LastReworkWarning) {
		t.Errorf("last rework should carry the warning, got %q", last)
	}

	calls := f.provider.CallCount()
	outcome, err := f.svc.Rework(ctx, f.mb, f.userID, "t1", "again")
	if err != nil || outcome != ReworkLimitReached {
		t.Fatalf("expected limit, got %v %v", outcome, err)
	}
	if f.provider.CallCount() != calls {
		t.Error("limit branch must not call the model")
	}
	rec := f.record(t)
	if rec.Status != emaildomain.StatusSkipped || rec.ReworkCount != emaildomain.MaxReworks {
		t.Errorf("unexpected record %+v", rec)
	}
	if !f.mb.ThreadHasLabel("t1", storetest.LabelID(emaildomain.LabelActionRequired)) {
		t.Error("expected action_required label")
	}
}

func TestReworkWithoutDraftIsSkipped(t *testing.T) {
	f := setup(t)
	f.pending(t)
	outcome, err := f.svc.Rework(context.Background(), f.mb, f.userID, "t1", "")
	if err != nil || outcome != ReworkSkipped {
		t.Fatalf("expected skipped, got %v %v", outcome, err)
	}
}

func TestManualDraftUsesUserNotes(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	notes := f.mb.AddDraft("t1", "say we agree, deadline Friday")

	draftID, err := f.svc.ManualDraft(ctx, f.mb, f.userID, "m1")
	if err != nil {
		t.Fatalf("ManualDraft: %v", err)
	}
	if f.mb.HasDraft(notes) {
		t.Error("notes draft should be trashed")
	}
	rec := f.record(t)
	if rec.Classification != emaildomain.CategoryNeedsResponse || rec.Status != emaildomain.StatusDrafted || rec.DraftID != draftID {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Reasoning != "Manually requested by user" {
		t.Errorf("unexpected reasoning %q", rec.Reasoning)
	}

	events, _ := f.events.ListByThread(ctx, f.userID, "t1")
	detail := events[len(events)-1].Detail
	if detail != "Manual draft created with instructions: say we agree, deadline Friday" {
		t.Errorf("unexpected detail %q", detail)
	}
}
