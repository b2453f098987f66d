package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"zivo/app/models/user"
)

// UserRepository 用户记录仓库
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建仓库实例
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID 根据 ID 获取用户，未找到时返回 (nil, nil)
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	var u user.User
	err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// GetFCMToken 获取用户的推送设备 token，用户不存在或未注册设备时返回空串
func (r *UserRepository) GetFCMToken(ctx context.Context, userID string) (string, error) {
	u, err := r.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", nil
	}
	return u.FCMToken, nil
}
