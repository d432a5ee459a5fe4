package repository

import (
	"context"
	"errors"
	"time"

	userdomain "github.com/landovsky/gmail-assistant-sub002/internal/user/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type settingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository creates a new instance of settingsRepository
func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Get(ctx context.Context, userID string) (*userdomain.UserSettings, error) {
	var settings userdomain.UserSettings
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&settings).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &userdomain.UserSettings{UserID: userID}, nil
		}
		return nil, err
	}
	return &settings, nil
}

func (r *settingsRepository) Save(ctx context.Context, settings *userdomain.UserSettings) error {
	settings.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(settings).Error
}
