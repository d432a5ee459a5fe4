package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type is the kind of work a job performs.
type Type string

const (
	TypeSync         Type = "sync"
	TypeClassify     Type = "classify"
	TypeDraft        Type = "draft"
	TypeCleanup      Type = "cleanup"
	TypeRework       Type = "rework"
	TypeManualDraft  Type = "manual_draft"
	TypeAgentProcess Type = "agent_process"
)

// Status of a job in the queue.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// DefaultMaxAttempts is used when Enqueue is called without a limit.
const DefaultMaxAttempts = 3

// Job is a durable unit of work. DedupKey is set only while the job is
// pending, so a unique index on it rejects pending duplicates.
type Job struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	Type         Type       `json:"type" gorm:"type:varchar(32);not null;index:idx_job_claim,priority:2"`
	UserID       string     `json:"user_id" gorm:"not null;index"`
	Payload      string     `json:"payload" gorm:"type:text;not null"`
	ThreadKey    string     `json:"thread_key,omitempty" gorm:"index"`
	Status       Status     `json:"status" gorm:"type:varchar(16);not null;index:idx_job_claim,priority:1"`
	Attempts     int        `json:"attempts" gorm:"not null;default:0"`
	MaxAttempts  int        `json:"max_attempts" gorm:"not null;default:3"`
	ErrorMessage string     `json:"error_message,omitempty"`
	DedupKey     *string    `json:"-" gorm:"uniqueIndex"`
	AvailableAt  time.Time  `json:"available_at" gorm:"index"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at" gorm:"index:idx_job_claim,priority:3"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal([]byte(j.Payload), v); err != nil {
		return fmt.Errorf("invalid %s payload for job %s: %w", j.Type, j.ID, err)
	}
	return nil
}

// Exhausted reports whether no attempts remain.
func (j *Job) Exhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

// SyncPayload triggers a mailbox sync. The history cursor lives in the sync
// state, so a burst of notifications collapses into one pending job.
type SyncPayload struct {
	ForceFull bool `json:"force_full,omitempty"`
}

// ThreadPayload addresses one thread, optionally through one of its messages.
// Force makes classification redo an already classified thread.
type ThreadPayload struct {
	ThreadID  string `json:"thread_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Force     bool   `json:"force,omitempty"`
}

// CleanupAction selects what a cleanup job does.
type CleanupAction string

const (
	CleanupDone      CleanupAction = "done"
	CleanupCheckSent CleanupAction = "check_sent"
)

// CleanupPayload archives a thread or checks whether its draft was sent.
type CleanupPayload struct {
	ThreadID  string        `json:"thread_id,omitempty"`
	MessageID string        `json:"message_id,omitempty"`
	Action    CleanupAction `json:"action"`
}

// ReworkPayload requests a draft rework. Instruction overrides the text
// above the marker in the current draft.
type ReworkPayload struct {
	ThreadID    string `json:"thread_id,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
	Instruction string `json:"instruction,omitempty"`
}

// AgentPayload routes a thread to an agent profile.
type AgentPayload struct {
	ThreadID  string `json:"thread_id"`
	MessageID string `json:"message_id"`
	Profile   string `json:"profile"`
	RouteRule string `json:"route_rule,omitempty"`
}

// Stats counts jobs per type and status.
type Stats struct {
	Type   Type   `json:"type"`
	Status Status `json:"status"`
	Count  int64  `json:"count"`
}
