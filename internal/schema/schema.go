// Package schema owns the table set and its migration.
package schema

import (
	"fmt"
	"log"

	agentdomain "github.com/landovsky/gmail-assistant-sub002/internal/agent/domain"
	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"
	jobdomain "github.com/landovsky/gmail-assistant-sub002/internal/job/domain"
	llmcalldomain "github.com/landovsky/gmail-assistant-sub002/internal/llmcall/domain"
	userdomain "github.com/landovsky/gmail-assistant-sub002/internal/user/domain"

	"gorm.io/gorm"
)

// Models lists every persisted entity.
func Models() []any {
	return []any{
		&userdomain.User{},
		&userdomain.SyncState{},
		&userdomain.UserSettings{},
		&emaildomain.EmailRecord{},
		&emaildomain.EmailEvent{},
		&emaildomain.LabelMapping{},
		&jobdomain.Job{},
		&agentdomain.AgentRun{},
		&llmcalldomain.LLMCall{},
	}
}

// Migrate creates or updates all tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Println("Database migration completed")
	return nil
}
