package dto

import (
	agentdomain "github.com/landovsky/gmail-assistant-sub002/internal/agent/domain"
	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"
	llmcalldomain "github.com/landovsky/gmail-assistant-sub002/internal/llmcall/domain"
)

// EmailsResponse lists thread records.
type EmailsResponse struct {
	Emails []*emaildomain.EmailRecord `json:"emails"`
	Status string                     `json:"status,omitempty"`
	Limit  int                        `json:"limit"`
}

// StatusCountsResponse counts the user's records per status.
type StatusCountsResponse struct {
	Counts map[emaildomain.Status]int64 `json:"counts"`
	Total  int64                        `json:"total"`
}

// ThreadDebugResponse is everything recorded about one thread.
type ThreadDebugResponse struct {
	Email     *emaildomain.EmailRecord  `json:"email"`
	Events    []*emaildomain.EmailEvent `json:"events"`
	LLMCalls  []*llmcalldomain.LLMCall  `json:"llm_calls"`
	AgentRuns []*agentdomain.AgentRun   `json:"agent_runs"`
}

// ReclassifyResponse reports the queued classification job.
type ReclassifyResponse struct {
	JobID    string `json:"job_id"`
	ThreadID string `json:"thread_id"`
}

// BriefingItem is one open thread listed in the briefing.
type BriefingItem struct {
	ThreadID   string                 `json:"thread_id"`
	Subject    string                 `json:"subject"`
	Sender     string                 `json:"sender"`
	Status     emaildomain.Status     `json:"status"`
	Confidence emaildomain.Confidence `json:"confidence"`
}

// CategorySummary counts the threads of one classification. Active threads
// are the ones not yet sent or archived.
type CategorySummary struct {
	Total  int            `json:"total"`
	Active int            `json:"active"`
	Items  []BriefingItem `json:"items"`
}

// BriefingResponse is the inbox summary of one user.
type BriefingResponse struct {
	User          string                                   `json:"user"`
	Summary       map[emaildomain.Category]CategorySummary `json:"summary"`
	PendingDrafts int64                                    `json:"pending_drafts"`
	ActionItems   int                                      `json:"action_items"`
}
