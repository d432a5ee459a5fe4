package repository

import (
	"context"
	"fmt"
	"time"

	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type emailEventRepository struct {
	db *gorm.DB
}

// NewEmailEventRepository creates a new instance of emailEventRepository
func NewEmailEventRepository(db *gorm.DB) EmailEventRepository {
	return &emailEventRepository{db: db}
}

func (r *emailEventRepository) Append(ctx context.Context, event *emaildomain.EmailEvent) error {
	if !event.EventType.Valid() {
		return fmt.Errorf("invalid event type %q", event.EventType)
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *emailEventRepository) ListByThread(ctx context.Context, userID, threadID string) ([]*emaildomain.EmailEvent, error) {
	var events []*emaildomain.EmailEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND gmail_thread_id = ?", userID, threadID).
		Order("created_at, id").
		Find(&events).Error
	return events, err
}

func (r *emailEventRepository) ListRecent(ctx context.Context, userID string, limit int) ([]*emaildomain.EmailEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []*emaildomain.EmailEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
