// Package media 存放媒体 Model 的奖励/支付子集
package media

import (
	"time"

	"zivo/app/models"
)

// PaymentStatus 媒体侧的派生支付状态
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending" // 等待支付
	PaymentStatusPaid    PaymentStatus = "paid"    // 已支付
	// failed 属于该列的取值域，但支付流程从不写入：
	// 单次支付失败不改变媒体的派生状态，同一媒体随后可以开新一轮支付
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded" // 已退款
)

// Media 媒体模型（奖励相关字段子集）
// payment_status 与 amount_paid 只能由支付编排器写入，
// 和 Payment 记录在同一事务里保持一致
type Media struct {
	ID       string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID   string `gorm:"type:varchar(36);index" json:"user_id"`
	Name     string `gorm:"type:varchar(255)" json:"name"`
	FileName string `gorm:"type:varchar(255)" json:"file_name"`
	MimeType string `gorm:"type:varchar(100)" json:"mime_type"`
	Path     string `gorm:"type:varchar(512)" json:"path"`

	// 奖励金额，最小货币单位（分）
	Reward int64 `gorm:"not null" json:"reward"`

	// 派生支付字段
	PaymentStatus   PaymentStatus `gorm:"type:varchar(20);default:pending;index" json:"payment_status"`
	GatewayIntentID string        `gorm:"type:varchar(64)" json:"gateway_intent_id"`
	PaidAt          *time.Time    `json:"paid_at"`
	AmountPaid      int64         `gorm:"default:0" json:"amount_paid"`

	models.CommonTimestampsField
}

// TableName 指定表名
func (Media) TableName() string {
	return "media"
}

// IsPaid 检查媒体是否已完成支付
func (m *Media) IsPaid() bool {
	return m.PaymentStatus == PaymentStatusPaid
}
