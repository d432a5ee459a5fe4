package repository

import (
	"context"
	"time"

	userdomain "github.com/landovsky/gmail-assistant-sub002/internal/user/domain"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *userdomain.User) error
	FindByID(ctx context.Context, id string) (*userdomain.User, error)
	FindByEmail(ctx context.Context, email string) (*userdomain.User, error)
	ListActive(ctx context.Context) ([]*userdomain.User, error)
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiry time.Time) error
}

// SyncStateRepository stores mailbox cursors, watch state and sync leases.
type SyncStateRepository interface {
	Get(ctx context.Context, userID string) (*userdomain.SyncState, error)
	// SetCursor stores historyID and stamps last_sync_at.
	SetCursor(ctx context.Context, userID, historyID string) error
	// ResetCursor invalidates the cursor so the next sync bootstraps.
	ResetCursor(ctx context.Context, userID string) error
	SetWatch(ctx context.Context, userID, resourceID string, expiration time.Time) error
	// AcquireLease grants owner exclusive sync rights until now+ttl. It fails
	// (false, nil) while another owner holds an unexpired lease.
	AcquireLease(ctx context.Context, userID, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, userID, owner string) error
}

// SettingsRepository stores per-user preferences.
type SettingsRepository interface {
	// Get returns the user's settings, or empty settings if none were saved.
	Get(ctx context.Context, userID string) (*userdomain.UserSettings, error)
	Save(ctx context.Context, settings *userdomain.UserSettings) error
}
