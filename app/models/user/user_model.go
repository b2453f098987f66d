// Package user 存放用户 Model 相关逻辑
package user

import (
	"zivo/app/models"
)

// User 用户模型
type User struct {
	ID        string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Email     string `gorm:"unique;type:varchar(255)" json:"email"`
	Nickname  string `gorm:"type:varchar(50)" json:"nickname"`
	AvatarURL string `gorm:"type:text" json:"avatar_url"`
	FCMToken  string `gorm:"type:text" json:"-"` // 推送令牌，支付成功通知使用

	models.CommonTimestampsField
}

// TableName 表名
func (User) TableName() string {
	return "users"
}
