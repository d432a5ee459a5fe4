package repository

import (
	"context"
	"time"

	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type labelMappingRepository struct {
	db *gorm.DB
}

// NewLabelMappingRepository creates a new instance of labelMappingRepository
func NewLabelMappingRepository(db *gorm.DB) LabelMappingRepository {
	return &labelMappingRepository{db: db}
}

func (r *labelMappingRepository) LabelMap(ctx context.Context, userID string) (*emaildomain.LabelMap, error) {
	var mappings []emaildomain.LabelMapping
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&mappings).Error; err != nil {
		return nil, err
	}
	return emaildomain.NewLabelMap(mappings), nil
}

func (r *labelMappingRepository) Save(ctx context.Context, mapping *emaildomain.LabelMapping) error {
	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "label_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"gmail_label_id", "gmail_name"}),
	}).Create(mapping).Error
}
