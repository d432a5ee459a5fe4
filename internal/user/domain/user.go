package domain

import "time"

// User is a mailbox owner. Users are created by onboarding; the core only
// reads them and persists refreshed OAuth tokens.
type User struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	Email        string     `json:"email" gorm:"uniqueIndex;not null"`
	DisplayName  string     `json:"display_name,omitempty"`
	IsActive     bool       `json:"is_active" gorm:"not null"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	TokenExpiry  *time.Time `json:"-"`
	OnboardedAt  *time.Time `json:"onboarded_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CursorNeverSynced is the history id of a mailbox that has not been synced
// yet, or whose cursor was invalidated.
const CursorNeverSynced = "0"

// SyncState is the per-user mailbox cursor. LeaseOwner/LeaseUntil serialise
// syncs of the same mailbox across workers.
type SyncState struct {
	UserID          string     `json:"user_id" gorm:"primaryKey"`
	LastHistoryID   string     `json:"last_history_id" gorm:"not null;default:'0'"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
	WatchExpiration *time.Time `json:"watch_expiration,omitempty"`
	WatchResourceID string     `json:"watch_resource_id,omitempty"`
	LeaseOwner      string     `json:"-"`
	LeaseUntil      *time.Time `json:"-"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NeverSynced reports whether the next sync must bootstrap.
func (s *SyncState) NeverSynced() bool {
	return s == nil || s.LastHistoryID == "" || s.LastHistoryID == CursorNeverSynced
}

// UserSettings are per-user classification and drafting preferences.
type UserSettings struct {
	UserID          string     `json:"user_id" gorm:"primaryKey"`
	Blacklist       StringList `json:"blacklist" gorm:"type:text"`
	SenderStyles    StringMap  `json:"sender_styles" gorm:"type:text"`
	DomainStyles    StringMap  `json:"domain_styles" gorm:"type:text"`
	SenderLanguages StringMap  `json:"sender_languages" gorm:"type:text"`
	DomainLanguages StringMap  `json:"domain_languages" gorm:"type:text"`
	SignOffName     string     `json:"sign_off_name,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
