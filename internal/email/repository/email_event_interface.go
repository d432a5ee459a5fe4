package repository

import (
	"context"

	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"
)

// EmailEventRepository is the append-only audit log. It has no update or
// delete operations.
type EmailEventRepository interface {
	Append(ctx context.Context, event *emaildomain.EmailEvent) error
	ListByThread(ctx context.Context, userID, threadID string) ([]*emaildomain.EmailEvent, error)
	ListRecent(ctx context.Context, userID string, limit int) ([]*emaildomain.EmailEvent, error)
}
