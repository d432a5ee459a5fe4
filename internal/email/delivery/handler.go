package delivery

import (
	"net/http"
	"strconv"

	agentrepo "github.com/landovsky/gmail-assistant-sub002/internal/agent/repository"
	authdelivery "github.com/landovsky/gmail-assistant-sub002/internal/auth/delivery"
	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"
	emaildto "github.com/landovsky/gmail-assistant-sub002/internal/email/dto"
	emailrepo "github.com/landovsky/gmail-assistant-sub002/internal/email/repository"
	jobdomain "github.com/landovsky/gmail-assistant-sub002/internal/job/domain"
	jobrepo "github.com/landovsky/gmail-assistant-sub002/internal/job/repository"
	llmcallrepo "github.com/landovsky/gmail-assistant-sub002/internal/llmcall/repository"

	"github.com/gin-gonic/gin"
)

// EmailHandler exposes the workflow records and audit trail of the
// authenticated user's threads.
type EmailHandler struct {
	emails    emailrepo.EmailRecordRepository
	events    emailrepo.EmailEventRepository
	llmCalls  llmcallrepo.LLMCallRepository
	agentRuns agentrepo.AgentRunRepository
	jobs      jobrepo.JobRepository
}

func NewEmailHandler(
	emails emailrepo.EmailRecordRepository,
	events emailrepo.EmailEventRepository,
	llmCalls llmcallrepo.LLMCallRepository,
	agentRuns agentrepo.AgentRunRepository,
	jobs jobrepo.JobRepository,
) *EmailHandler {
	return &EmailHandler{
		emails:    emails,
		events:    events,
		llmCalls:  llmCalls,
		agentRuns: agentRuns,
		jobs:      jobs,
	}
}

// GetEmails handles GET /api/emails?status=&limit=
func (h *EmailHandler) GetEmails(c *gin.Context) {
	user := authdelivery.CurrentUser(c)

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	status := emaildomain.Status(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	emails, err := h.emails.ListByStatus(c.Request.Context(), user.ID, status, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, emaildto.EmailsResponse{Emails: emails, Status: string(status), Limit: limit})
}

// GetStatusCounts handles GET /api/emails/stats
func (h *EmailHandler) GetStatusCounts(c *gin.Context) {
	user := authdelivery.CurrentUser(c)

	counts, err := h.emails.CountByStatus(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	c.JSON(http.StatusOK, emaildto.StatusCountsResponse{Counts: counts, Total: total})
}

// briefingItems caps the threads listed per classification.
const briefingItems = 10

// GetBriefing handles GET /api/briefing
func (h *EmailHandler) GetBriefing(c *gin.Context) {
	user := authdelivery.CurrentUser(c)
	ctx := c.Request.Context()

	resp := emaildto.BriefingResponse{
		User:    user.Email,
		Summary: make(map[emaildomain.Category]emaildto.CategorySummary, len(emaildomain.Categories)),
	}
	for _, category := range emaildomain.Categories {
		records, err := h.emails.ListByClassification(ctx, user.ID, category)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		summary := emaildto.CategorySummary{Total: len(records), Items: []emaildto.BriefingItem{}}
		for _, r := range records {
			if r.Status == emaildomain.StatusSent || r.Status == emaildomain.StatusArchived {
				continue
			}
			summary.Active++
			if len(summary.Items) < briefingItems {
				summary.Items = append(summary.Items, emaildto.BriefingItem{
					ThreadID:   r.GmailThreadID,
					Subject:    r.Subject,
					Sender:     r.SenderEmail,
					Status:     r.Status,
					Confidence: r.Confidence,
				})
			}
		}
		resp.Summary[category] = summary
	}

	counts, err := h.emails.CountByStatus(ctx, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp.PendingDrafts = counts[emaildomain.StatusDrafted]
	resp.ActionItems = resp.Summary[emaildomain.CategoryNeedsResponse].Active +
		resp.Summary[emaildomain.CategoryActionRequired].Active

	c.JSON(http.StatusOK, resp)
}

// GetThreadDebug handles GET /api/emails/:thread_id/debug
func (h *EmailHandler) GetThreadDebug(c *gin.Context) {
	user := authdelivery.CurrentUser(c)
	threadID := c.Param("thread_id")
	ctx := c.Request.Context()

	email, err := h.emails.GetByThread(ctx, user.ID, threadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if email == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
		return
	}

	events, err := h.events.ListByThread(ctx, user.ID, threadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	calls, err := h.llmCalls.ListByThread(ctx, user.ID, threadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	runs, err := h.agentRuns.ListByThread(ctx, user.ID, threadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, emaildto.ThreadDebugResponse{
		Email:     email,
		Events:    events,
		LLMCalls:  calls,
		AgentRuns: runs,
	})
}

// GetRecentEvents handles GET /api/events?limit=
func (h *EmailHandler) GetRecentEvents(c *gin.Context) {
	user := authdelivery.CurrentUser(c)

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	events, err := h.events.ListRecent(c.Request.Context(), user.ID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

// Reclassify handles POST /api/emails/:thread_id/reclassify. It queues a
// forced classification of the thread's latest message.
func (h *EmailHandler) Reclassify(c *gin.Context) {
	user := authdelivery.CurrentUser(c)
	threadID := c.Param("thread_id")
	ctx := c.Request.Context()

	email, err := h.emails.GetByThread(ctx, user.ID, threadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if email == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
		return
	}

	jobID, err := h.jobs.Enqueue(ctx, jobdomain.TypeClassify, user.ID, jobdomain.ThreadPayload{
		ThreadID: threadID,
		Force:    true,
	}, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, emaildto.ReclassifyResponse{JobID: jobID, ThreadID: threadID})
}
