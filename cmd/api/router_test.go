package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	agentdelivery "github.com/landovsky/gmail-assistant-sub002/internal/agent/delivery"
	agentrepo "github.com/landovsky/gmail-assistant-sub002/internal/agent/repository"
	authuc "github.com/landovsky/gmail-assistant-sub002/internal/auth/usecase"
	emaildelivery "github.com/landovsky/gmail-assistant-sub002/internal/email/delivery"
	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"
	emailrepo "github.com/landovsky/gmail-assistant-sub002/internal/email/repository"
	jobdelivery "github.com/landovsky/gmail-assistant-sub002/internal/job/delivery"
	jobrepo "github.com/landovsky/gmail-assistant-sub002/internal/job/repository"
	llmcalldelivery "github.com/landovsky/gmail-assistant-sub002/internal/llmcall/delivery"
	llmcallrepo "github.com/landovsky/gmail-assistant-sub002/internal/llmcall/repository"
	"github.com/landovsky/gmail-assistant-sub002/internal/storetest"
	syncdelivery "github.com/landovsky/gmail-assistant-sub002/internal/sync/delivery"
	userrepo "github.com/landovsky/gmail-assistant-sub002/internal/user/repository"

	"github.com/gin-gonic/gin"
)

type server struct {
	router *gin.Engine
	token  string
	emails emailrepo.EmailRecordRepository
	userID string
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := storetest.Open(t)
	owner := storetest.CreateUser(t, db, "owner@example.com")

	users := userrepo.NewUserRepository(db)
	jobs := jobrepo.NewJobRepository(db)
	llmCalls := llmcallrepo.NewLLMCallRepository(db)
	agentRuns := agentrepo.NewAgentRunRepository(db)
	auth := authuc.NewAuthUsecase(users, "test-secret")
	emails := emailrepo.NewEmailRecordRepository(db)

	h := NewHandler(
		auth,
		syncdelivery.NewNotificationHandler(users, jobs),
		emaildelivery.NewEmailHandler(emails, emailrepo.NewEmailEventRepository(db), llmCalls, agentRuns, jobs),
		jobdelivery.NewJobHandler(jobs),
		agentdelivery.NewAgentHandler(agentRuns),
		llmcalldelivery.NewLLMCallHandler(llmCalls),
		NewSettingsHandler(userrepo.NewSettingsRepository(db)),
	)

	token, err := auth.IssueToken(context.Background(), "owner@example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return &server{router: h.Router(), token: token, emails: emails, userID: owner.ID}
}

func (s *server) do(method, path, body string, authed bool) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealthIsPublic(t *testing.T) {
	s := newServer(t)
	if w := s.do(http.MethodGet, "/api/health", "", false); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	s := newServer(t)
	for _, path := range []string{"/api/emails", "/api/jobs", "/api/settings", "/api/agent/runs", "/api/llm/stats", "/api/events", "/api/briefing"} {
		if w := s.do(http.MethodGet, path, "", false); w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token: expected 401, got %d", path, w.Code)
		}
		if w := s.do(http.MethodGet, path, "", true); w.Code != http.StatusOK {
			t.Errorf("GET %s with token: expected 200, got %d: %s", path, w.Code, w.Body)
		}
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodPut, "/api/settings", `{"blacklist":["*@spam.example"],"sign_off_name":"Tomas"}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT settings: %d %s", w.Code, w.Body)
	}

	w = s.do(http.MethodGet, "/api/settings", "", true)
	var got struct {
		Blacklist   []string `json:"blacklist"`
		SignOffName string   `json:"sign_off_name"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Blacklist) != 1 || got.Blacklist[0] != "*@spam.example" || got.SignOffName != "Tomas" {
		t.Fatalf("unexpected settings: %+v", got)
	}
}

func TestReclassifyUnknownThread(t *testing.T) {
	s := newServer(t)
	if w := s.do(http.MethodPost, "/api/emails/t-missing/reclassify", "", true); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestTriggerSyncQueuesJob(t *testing.T) {
	s := newServer(t)
	if w := s.do(http.MethodPost, "/api/sync", "", true); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body)
	}
	w := s.do(http.MethodGet, "/api/jobs?status=pending", "", true)
	if !strings.Contains(w.Body.String(), `"sync"`) {
		t.Fatalf("expected a pending sync job, got %s", w.Body)
	}
}

func TestWebhookIsPublic(t *testing.T) {
	s := newServer(t)
	if w := s.do(http.MethodPost, "/api/webhook/gmail", `{"message":{}}`, false); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty notification, got %d", w.Code)
	}
}

func TestBriefingSummarisesOpenThreads(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	seed := []struct {
		thread   string
		category emaildomain.Category
		status   emaildomain.Status
	}{
		{"t1", emaildomain.CategoryNeedsResponse, emaildomain.StatusDrafted},
		{"t2", emaildomain.CategoryNeedsResponse, emaildomain.StatusSent},
		{"t3", emaildomain.CategoryActionRequired, emaildomain.StatusPending},
		{"t4", emaildomain.CategoryFYI, emaildomain.StatusArchived},
	}
	for _, r := range seed {
		rec, err := s.emails.Upsert(ctx, &emaildomain.EmailRecord{
			UserID:         s.userID,
			GmailThreadID:  r.thread,
			GmailMessageID: "m-" + r.thread,
			SenderEmail:    "bob@example.com",
			Subject:        "Subject " + r.thread,
			Classification: r.category,
			Confidence:     emaildomain.ConfidenceHigh,
			Status:         emaildomain.InitialStatus(r.category),
		})
		if err != nil {
			t.Fatalf("Upsert %s: %v", r.thread, err)
		}
		rec.Status = r.status
		if err := s.emails.Save(ctx, rec); err != nil {
			t.Fatalf("Save %s: %v", r.thread, err)
		}
	}

	w := s.do(http.MethodGet, "/api/briefing", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var got struct {
		User    string `json:"user"`
		Summary map[string]struct {
			Total  int `json:"total"`
			Active int `json:"active"`
			Items  []struct {
				ThreadID string `json:"thread_id"`
			} `json:"items"`
		} `json:"summary"`
		PendingDrafts int64 `json:"pending_drafts"`
		ActionItems   int   `json:"action_items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.User != "owner@example.com" || got.PendingDrafts != 1 || got.ActionItems != 2 {
		t.Fatalf("unexpected briefing: %+v", got)
	}
	nr := got.Summary["needs_response"]
	if nr.Total != 2 || nr.Active != 1 || len(nr.Items) != 1 || nr.Items[0].ThreadID != "t1" {
		t.Errorf("unexpected needs_response summary: %+v", nr)
	}
	if fyi := got.Summary["fyi"]; fyi.Total != 1 || fyi.Active != 0 || len(fyi.Items) != 0 {
		t.Errorf("unexpected fyi summary: %+v", fyi)
	}
	if _, ok := got.Summary["waiting"]; !ok {
		t.Error("every classification should be summarised")
	}
}
