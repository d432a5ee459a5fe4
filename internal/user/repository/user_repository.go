package repository

import (
	"context"
	"errors"
	"time"

	userdomain "github.com/landovsky/gmail-assistant-sub002/internal/user/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// userRepository implements UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new instance of userRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{
		db: db,
	}
}

func (r *userRepository) Create(ctx context.Context, user *userdomain.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*userdomain.User, error) {
	var user userdomain.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	var user userdomain.User
	err := r.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) ListActive(ctx context.Context) ([]*userdomain.User, error) {
	var users []*userdomain.User
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("created_at").Find(&users).Error
	return users, err
}

func (r *userRepository) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiry time.Time) error {
	updates := map[string]any{
		"access_token": accessToken,
		"token_expiry": expiry.UTC(),
		"updated_at":   time.Now().UTC(),
	}
	// Google omits the refresh token on most refreshes; keep the stored one.
	if refreshToken != "" {
		updates["refresh_token"] = refreshToken
	}
	return r.db.WithContext(ctx).Model(&userdomain.User{}).Where("id = ?", id).Updates(updates).Error
}
