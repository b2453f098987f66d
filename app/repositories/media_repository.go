package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"zivo/app/models/media"
)

// MediaRepository 媒体记录仓库
type MediaRepository struct {
	db *gorm.DB
}

// NewMediaRepository 创建仓库实例
func NewMediaRepository(db *gorm.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// GetByID 根据 ID 获取媒体记录，未找到时返回 (nil, nil)
func (r *MediaRepository) GetByID(ctx context.Context, id string) (*media.Media, error) {
	var m media.Media
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// GetByIDForUser 获取属于指定用户的媒体记录
func (r *MediaRepository) GetByIDForUser(ctx context.Context, id, userID string) (*media.Media, error) {
	var m media.Media
	err := r.db.WithContext(ctx).First(&m, "id = ? AND user_id = ?", id, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}
