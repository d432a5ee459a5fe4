package repository

import (
	"context"
	"errors"
	"time"

	agentdomain "github.com/landovsky/gmail-assistant-sub002/internal/agent/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AgentRunRepository defines the interface for agent run records
type AgentRunRepository interface {
	// Create stores a new run in the running state and returns its id.
	Create(ctx context.Context, userID, threadID, profile string) (string, error)
	Complete(ctx context.Context, run *agentdomain.AgentRun) error
	Get(ctx context.Context, id string) (*agentdomain.AgentRun, error)
	ListRecent(ctx context.Context, userID string, limit int) ([]*agentdomain.AgentRun, error)
	ListByThread(ctx context.Context, userID, threadID string) ([]*agentdomain.AgentRun, error)
}

type agentRunRepository struct {
	db *gorm.DB
}

// NewAgentRunRepository creates a new instance of agentRunRepository
func NewAgentRunRepository(db *gorm.DB) AgentRunRepository {
	return &agentRunRepository{db: db}
}

func (r *agentRunRepository) Create(ctx context.Context, userID, threadID, profile string) (string, error) {
	run := &agentdomain.AgentRun{
		ID:            uuid.New().String(),
		UserID:        userID,
		GmailThreadID: threadID,
		Profile:       profile,
		Status:        agentdomain.RunRunning,
		ToolCallsLog:  "[]",
		CreatedAt:     time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return "", err
	}
	return run.ID, nil
}

func (r *agentRunRepository) Complete(ctx context.Context, run *agentdomain.AgentRun) error {
	now := time.Now().UTC()
	run.CompletedAt = &now
	return r.db.WithContext(ctx).Model(&agentdomain.AgentRun{}).Where("id = ?", run.ID).Updates(map[string]any{
		"status":         run.Status,
		"iterations":     run.Iterations,
		"tool_calls_log": run.ToolCallsLog,
		"final_message":  run.FinalMessage,
		"error":          run.Error,
		"completed_at":   now,
	}).Error
}

func (r *agentRunRepository) Get(ctx context.Context, id string) (*agentdomain.AgentRun, error) {
	var run agentdomain.AgentRun
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (r *agentRunRepository) ListRecent(ctx context.Context, userID string, limit int) ([]*agentdomain.AgentRun, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.db.WithContext(ctx)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var runs []*agentdomain.AgentRun
	err := q.Order("created_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

func (r *agentRunRepository) ListByThread(ctx context.Context, userID, threadID string) ([]*agentdomain.AgentRun, error) {
	var runs []*agentdomain.AgentRun
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND gmail_thread_id = ?", userID, threadID).
		Order("created_at ASC").
		Find(&runs).Error
	return runs, err
}
