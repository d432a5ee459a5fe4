package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// emailRecordRepository implements EmailRecordRepository interface
type emailRecordRepository struct {
	db *gorm.DB
}

// NewEmailRecordRepository creates a new instance of emailRecordRepository
func NewEmailRecordRepository(db *gorm.DB) EmailRecordRepository {
	return &emailRecordRepository{
		db: db,
	}
}

func validate(r *emaildomain.EmailRecord) error {
	if !r.Classification.Valid() {
		return fmt.Errorf("invalid classification %q", r.Classification)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("invalid status %q", r.Status)
	}
	if r.ReworkCount < 0 || r.ReworkCount > emaildomain.MaxReworks {
		return fmt.Errorf("rework_count %d out of range", r.ReworkCount)
	}
	if r.MessageCount < 1 {
		return fmt.Errorf("message_count %d must be positive", r.MessageCount)
	}
	return nil
}

func (r *emailRecordRepository) Upsert(ctx context.Context, record *emaildomain.EmailRecord) (*emaildomain.EmailRecord, error) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.MessageCount == 0 {
		record.MessageCount = 1
	}
	if record.Confidence == "" {
		record.Confidence = emaildomain.ConfidenceMedium
	}
	if record.Classification != emaildomain.CategoryPaymentRequest {
		record.VendorName = ""
	}
	if err := validate(record); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if record.ProcessedAt.IsZero() {
		record.ProcessedAt = now
	}
	record.CreatedAt = now
	record.UpdatedAt = now

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "gmail_thread_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"gmail_message_id", "sender_email", "sender_name", "subject", "snippet",
			"classification", "confidence", "reasoning", "detected_language",
			"resolved_style", "vendor_name", "status", "processed_at", "updated_at",
		}),
	}).Create(record).Error
	if err != nil {
		return nil, err
	}
	return r.GetByThread(ctx, record.UserID, record.GmailThreadID)
}

func (r *emailRecordRepository) GetByThread(ctx context.Context, userID, threadID string) (*emaildomain.EmailRecord, error) {
	var record emaildomain.EmailRecord
	err := r.db.WithContext(ctx).Where("user_id = ? AND gmail_thread_id = ?", userID, threadID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *emailRecordRepository) Save(ctx context.Context, record *emaildomain.EmailRecord) error {
	if err := validate(record); err != nil {
		return err
	}
	record.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(record).Error
}

func (r *emailRecordRepository) IncrementMessageCount(ctx context.Context, userID, threadID string) error {
	return r.db.WithContext(ctx).Model(&emaildomain.EmailRecord{}).
		Where("user_id = ? AND gmail_thread_id = ?", userID, threadID).
		Updates(map[string]any{
			"message_count": gorm.Expr("message_count + 1"),
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (r *emailRecordRepository) ListByStatus(ctx context.Context, userID string, status emaildomain.Status, limit int) ([]*emaildomain.EmailRecord, error) {
	var records []*emaildomain.EmailRecord
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Order("updated_at DESC").Find(&records).Error
	return records, err
}

func (r *emailRecordRepository) ListByClassification(ctx context.Context, userID string, category emaildomain.Category) ([]*emaildomain.EmailRecord, error) {
	var records []*emaildomain.EmailRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND classification = ?", userID, category).
		Order("received_at DESC").
		Find(&records).Error
	return records, err
}

func (r *emailRecordRepository) CountByStatus(ctx context.Context, userID string) (map[emaildomain.Status]int64, error) {
	var rows []struct {
		Status emaildomain.Status
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&emaildomain.EmailRecord{}).
		Select("status, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[emaildomain.Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
