package domain

import "time"

// EmailEvent is one immutable audit row. It is written once and never updated.
type EmailEvent struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	UserID        string    `json:"user_id" gorm:"not null;index:idx_event_user_thread"`
	GmailThreadID string    `json:"gmail_thread_id" gorm:"not null;index:idx_event_user_thread"`
	EventType     EventType `json:"event_type" gorm:"type:varchar(32);not null;index"`
	Detail        string    `json:"detail,omitempty"`
	LabelID       string    `json:"label_id,omitempty"`
	DraftID       string    `json:"draft_id,omitempty"`
	CreatedAt     time.Time `json:"created_at" gorm:"index"`
}
