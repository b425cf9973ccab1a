package postgres

import (
	"context"
	"errors"
	"fmt"

	"vidshare-realtime/internal/models"
	"vidshare-realtime/internal/websocket"

	"gorm.io/gorm"
)

// UserRepository resolves identified users against the account table. It
// implements websocket.UserDirectory.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) LookupUser(ctx context.Context, userID uint64) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ? AND deleted_at IS NULL", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %d: %w", userID, websocket.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find user %d: %w", userID, err)
	}
	return &user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}
