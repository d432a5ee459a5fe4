package repository

import (
	"context"
	"time"

	llmcalldomain "github.com/landovsky/gmail-assistant-sub002/internal/llmcall/domain"
	"github.com/landovsky/gmail-assistant-sub002/pkg/llm"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LLMCallRepository stores gateway call logs. It also serves as the
// gateway's llm.Recorder.
type LLMCallRepository interface {
	llm.Recorder
	ListByThread(ctx context.Context, userID, threadID string) ([]*llmcalldomain.LLMCall, error)
	Stats(ctx context.Context, since time.Time) ([]llmcalldomain.CallStats, error)
}

type llmCallRepository struct {
	db *gorm.DB
}

// NewLLMCallRepository creates a new instance of llmCallRepository
func NewLLMCallRepository(db *gorm.DB) LLMCallRepository {
	return &llmCallRepository{db: db}
}

func (r *llmCallRepository) RecordCall(ctx context.Context, rec *llm.CallRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	call := &llmcalldomain.LLMCall{
		ID:               uuid.New().String(),
		UserID:           rec.UserID,
		GmailThreadID:    rec.ThreadID,
		CallType:         rec.CallType,
		Model:            rec.Model,
		SystemPrompt:     rec.SystemPrompt,
		UserMessage:      rec.UserMessage,
		ResponseText:     rec.ResponseText,
		PromptTokens:     rec.PromptTokens,
		CompletionTokens: rec.CompletionTokens,
		TotalTokens:      rec.TotalTokens,
		LatencyMs:        rec.LatencyMs,
		Error:            rec.Error,
		CreatedAt:        createdAt,
	}
	// Logging must outlive a cancelled request context.
	return r.db.WithContext(context.WithoutCancel(ctx)).Create(call).Error
}

func (r *llmCallRepository) ListByThread(ctx context.Context, userID, threadID string) ([]*llmcalldomain.LLMCall, error) {
	var calls []*llmcalldomain.LLMCall
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND gmail_thread_id = ?", userID, threadID).
		Order("created_at").
		Find(&calls).Error
	return calls, err
}

func (r *llmCallRepository) Stats(ctx context.Context, since time.Time) ([]llmcalldomain.CallStats, error) {
	var stats []llmcalldomain.CallStats
	err := r.db.WithContext(ctx).Model(&llmcalldomain.LLMCall{}).
		Select(`call_type,
			COUNT(*) AS calls,
			SUM(CASE WHEN error <> '' THEN 1 ELSE 0 END) AS errors,
			COALESCE(SUM(total_tokens), 0) AS total_tokens,
			COALESCE(AVG(latency_ms), 0) AS avg_latency_ms`).
		Where("created_at >= ?", since.UTC()).
		Group("call_type").
		Order("call_type").
		Scan(&stats).Error
	return stats, err
}
