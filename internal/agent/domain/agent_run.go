package domain

import "time"

// RunStatus is the state of an agent run.
type RunStatus string

const (
	RunRunning       RunStatus = "running"
	RunCompleted     RunStatus = "completed"
	RunError         RunStatus = "error"
	RunMaxIterations RunStatus = "max_iterations"
)

// AgentRun is the audit record of one agent loop invocation.
type AgentRun struct {
	ID            string     `json:"id" gorm:"primaryKey"`
	UserID        string     `json:"user_id" gorm:"not null;index"`
	GmailThreadID string     `json:"gmail_thread_id" gorm:"not null;index"`
	Profile       string     `json:"profile" gorm:"not null"`
	Status        RunStatus  `json:"status" gorm:"type:varchar(32);not null;index"`
	Iterations    int        `json:"iterations"`
	ToolCallsLog  string     `json:"tool_calls_log" gorm:"type:text"`
	FinalMessage  string     `json:"final_message,omitempty" gorm:"type:text"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at" gorm:"index"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// ToolCallLog is one executed tool call, as stored in ToolCallsLog.
type ToolCallLog struct {
	Tool      string `json:"tool"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error,omitempty"`
	Iteration int    `json:"iteration"`
}
