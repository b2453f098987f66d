// Package payment 存放支付记录 Model 相关逻辑
package payment

import (
	"time"

	"zivo/app/models"

	"gorm.io/gorm"
)

// Payment 支付记录模型，一次资金流转的权威记录
type Payment struct {
	ID      string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID  string `gorm:"type:varchar(36);index:idx_payments_user_status" json:"user_id"`
	MediaID string `gorm:"type:varchar(36);index:idx_payments_media_status" json:"media_id"`

	// 内部交易参考号，创建时生成，全局唯一，永不复用
	TransactionReference string `gorm:"type:varchar(64);uniqueIndex" json:"transaction_reference"`

	// 网关侧标识，一旦获知即写入，intent id 全局唯一
	GatewayIntentID string `gorm:"type:varchar(64);uniqueIndex" json:"gateway_intent_id"`
	GatewayChargeID string `gorm:"type:varchar(64)" json:"gateway_charge_id"`

	Status Status `gorm:"type:varchar(20);index:idx_payments_user_status;index:idx_payments_media_status" json:"status"`

	// 金额为最小货币单位（分），创建后不可变
	Amount   int64  `gorm:"not null" json:"amount"`
	Currency string `gorm:"type:varchar(3);default:usd" json:"currency"`

	// 网关最近一次原始响应快照，仅供审计回放，不作为状态依据
	GatewayResponse JSON `gorm:"type:json" json:"gateway_response"`

	FailureReason string     `gorm:"type:text" json:"failure_reason"`
	PaidAt        *time.Time `json:"paid_at"`

	// 退款占位标记，发起方在调用网关前以 CAS 占住，
	// 保证同一笔支付同一时刻只有一个退款在途
	RefundInitiatedAt *time.Time `json:"refund_initiated_at"`

	models.CommonTimestampsField

	// 软删除，正常支付流程不会删除记录
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}
