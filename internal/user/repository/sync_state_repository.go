package repository

import (
	"context"
	"errors"
	"time"

	userdomain "github.com/landovsky/gmail-assistant-sub002/internal/user/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type syncStateRepository struct {
	db *gorm.DB
}

// NewSyncStateRepository creates a new instance of syncStateRepository
func NewSyncStateRepository(db *gorm.DB) SyncStateRepository {
	return &syncStateRepository{db: db}
}

func (r *syncStateRepository) Get(ctx context.Context, userID string) (*userdomain.SyncState, error) {
	var state userdomain.SyncState
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

// ensure creates the row with a never-synced cursor if it is missing.
func (r *syncStateRepository) ensure(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&userdomain.SyncState{
		UserID:        userID,
		LastHistoryID: userdomain.CursorNeverSynced,
		UpdatedAt:     time.Now().UTC(),
	}).Error
}

func (r *syncStateRepository) SetCursor(ctx context.Context, userID, historyID string) error {
	now := time.Now().UTC()
	state := &userdomain.SyncState{
		UserID:        userID,
		LastHistoryID: historyID,
		LastSyncAt:    &now,
		UpdatedAt:     now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_history_id", "last_sync_at", "updated_at"}),
	}).Create(state).Error
}

func (r *syncStateRepository) ResetCursor(ctx context.Context, userID string) error {
	if err := r.ensure(ctx, userID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&userdomain.SyncState{}).Where("user_id = ?", userID).
		Updates(map[string]any{"last_history_id": userdomain.CursorNeverSynced, "updated_at": time.Now().UTC()}).Error
}

func (r *syncStateRepository) SetWatch(ctx context.Context, userID, resourceID string, expiration time.Time) error {
	if err := r.ensure(ctx, userID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&userdomain.SyncState{}).Where("user_id = ?", userID).
		Updates(map[string]any{
			"watch_resource_id": resourceID,
			"watch_expiration":  expiration.UTC(),
			"updated_at":        time.Now().UTC(),
		}).Error
}

func (r *syncStateRepository) AcquireLease(ctx context.Context, userID, owner string, ttl time.Duration) (bool, error) {
	if err := r.ensure(ctx, userID); err != nil {
		return false, err
	}
	now := time.Now().UTC()
	until := now.Add(ttl)
	res := r.db.WithContext(ctx).Model(&userdomain.SyncState{}).
		Where("user_id = ? AND (lease_until IS NULL OR lease_until < ? OR lease_owner = ?)", userID, now, owner).
		Updates(map[string]any{"lease_owner": owner, "lease_until": until})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *syncStateRepository) ReleaseLease(ctx context.Context, userID, owner string) error {
	return r.db.WithContext(ctx).Model(&userdomain.SyncState{}).
		Where("user_id = ? AND lease_owner = ?", userID, owner).
		Updates(map[string]any{"lease_owner": "", "lease_until": nil}).Error
}
