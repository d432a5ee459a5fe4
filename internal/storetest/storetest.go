// Package storetest opens throwaway SQLite databases for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"
	"github.com/landovsky/gmail-assistant-sub002/internal/schema"
	userdomain "github.com/landovsky/gmail-assistant-sub002/internal/user/domain"
	"github.com/landovsky/gmail-assistant-sub002/pkg/database"

	"gorm.io/gorm"
)

// Open returns a migrated database in the test's temp dir.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := schema.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// CreateUser inserts an active user.
func CreateUser(t *testing.T, db *gorm.DB, email string) *userdomain.User {
	t.Helper()
	now := time.Now().UTC()
	u := &userdomain.User{
		ID:        "user-" + email,
		Email:     email,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(context.Background()).Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// LabelIDs maps every managed key to "Label_<key>".
func LabelIDs(t *testing.T, db *gorm.DB, userID string) *emaildomain.LabelMap {
	t.Helper()
	var mappings []emaildomain.LabelMapping
	for _, k := range emaildomain.LabelKeys {
		m := emaildomain.LabelMapping{
			UserID:       userID,
			LabelKey:     k,
			GmailLabelID: LabelID(k),
			GmailName:    k.DisplayName(),
			CreatedAt:    time.Now().UTC(),
		}
		if err := db.Create(&m).Error; err != nil {
			t.Fatalf("create label mapping: %v", err)
		}
		mappings = append(mappings, m)
	}
	return emaildomain.NewLabelMap(mappings)
}

// LabelID is the provider id LabelIDs assigns to key.
func LabelID(key emaildomain.LabelKey) string {
	return "Label_" + string(key)
}
