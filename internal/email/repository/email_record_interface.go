package repository

import (
	"context"

	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"
)

// EmailRecordRepository defines the interface for thread workflow records
type EmailRecordRepository interface {
	// Upsert inserts the record or refreshes the classification of the
	// existing (user, thread) row, returning the stored row.
	Upsert(ctx context.Context, record *emaildomain.EmailRecord) (*emaildomain.EmailRecord, error)
	GetByThread(ctx context.Context, userID, threadID string) (*emaildomain.EmailRecord, error)
	// Save persists every field of an existing record.
	Save(ctx context.Context, record *emaildomain.EmailRecord) error
	IncrementMessageCount(ctx context.Context, userID, threadID string) error
	ListByStatus(ctx context.Context, userID string, status emaildomain.Status, limit int) ([]*emaildomain.EmailRecord, error)
	ListByClassification(ctx context.Context, userID string, category emaildomain.Category) ([]*emaildomain.EmailRecord, error)
	CountByStatus(ctx context.Context, userID string) (map[emaildomain.Status]int64, error)
}
