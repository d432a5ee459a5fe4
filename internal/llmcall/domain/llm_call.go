package domain

import "time"

// LLMCall is the persisted log of one gateway call.
type LLMCall struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	UserID           string    `json:"user_id,omitempty" gorm:"index"`
	GmailThreadID    string    `json:"gmail_thread_id,omitempty" gorm:"index"`
	CallType         string    `json:"call_type" gorm:"type:varchar(32);not null;index"`
	Model            string    `json:"model" gorm:"not null"`
	SystemPrompt     string    `json:"system_prompt,omitempty" gorm:"type:text"`
	UserMessage      string    `json:"user_message,omitempty" gorm:"type:text"`
	ResponseText     string    `json:"response_text,omitempty" gorm:"type:text"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	LatencyMs        int64     `json:"latency_ms"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at" gorm:"index"`
}

// CallStats aggregates calls of one type.
type CallStats struct {
	CallType     string  `json:"call_type"`
	Calls        int64   `json:"calls"`
	Errors       int64   `json:"errors"`
	TotalTokens  int64   `json:"total_tokens"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}
