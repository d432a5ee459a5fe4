package domain

import "time"

// MaxReworks caps automatic draft regenerations per thread.
const MaxReworks = 3

// EmailRecord is the workflow state of one thread of one user.
type EmailRecord struct {
	ID               string     `json:"id" gorm:"primaryKey"`
	UserID           string     `json:"user_id" gorm:"not null;uniqueIndex:idx_email_user_thread"`
	GmailThreadID    string     `json:"gmail_thread_id" gorm:"not null;uniqueIndex:idx_email_user_thread"`
	GmailMessageID   string     `json:"gmail_message_id" gorm:"not null"`
	SenderEmail      string     `json:"sender_email" gorm:"not null;index"`
	SenderName       string     `json:"sender_name,omitempty"`
	Subject          string     `json:"subject"`
	Snippet          string     `json:"snippet"`
	ReceivedAt       time.Time  `json:"received_at"`
	Classification   Category   `json:"classification" gorm:"type:varchar(32);not null;index"`
	Confidence       Confidence `json:"confidence" gorm:"type:varchar(16);not null;default:'medium'"`
	Reasoning        string     `json:"reasoning,omitempty"`
	DetectedLanguage string     `json:"detected_language" gorm:"not null;default:'cs'"`
	ResolvedStyle    string     `json:"resolved_style" gorm:"not null;default:'business'"`
	MessageCount     int        `json:"message_count" gorm:"not null;default:1"`
	Status           Status     `json:"status" gorm:"type:varchar(32);not null;index"`
	DraftID          string     `json:"draft_id,omitempty"`
	ReworkCount      int        `json:"rework_count" gorm:"not null;default:0"`
	LastReworkNote   string     `json:"last_rework_instruction,omitempty"`
	VendorName       string     `json:"vendor_name,omitempty"`
	ProcessedAt      time.Time  `json:"processed_at"`
	DraftedAt        *time.Time `json:"drafted_at,omitempty"`
	ActedAt          *time.Time `json:"acted_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// CanRework reports whether another automatic rework is allowed.
func (r *EmailRecord) CanRework() bool {
	return r.ReworkCount < MaxReworks
}

// IsLastRework reports whether the next rework is the final automatic one.
func (r *EmailRecord) IsLastRework() bool {
	return r.ReworkCount == MaxReworks-1
}
