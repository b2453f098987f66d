// Package types 定义支付核心的共享契约：网关客户端、台账、通知等接口
package types

import (
	"context"
	"time"

	"zivo/app/models/payment"
)

// CreateIntentRequest 创建支付意图的请求参数
type CreateIntentRequest struct {
	Amount   int64             `json:"amount"`   // 最小货币单位（分）
	Currency string            `json:"currency"` // ISO 货币代码，如 usd
	Metadata map[string]string `json:"metadata"`
	// IdempotencyKey 由调用方按支付轮次推导，
	// 同一轮的网关重试复用网关侧 intent，避免重复扣款
	IdempotencyKey string `json:"idempotency_key"`
}

// Intent 网关侧支付意图
type Intent struct {
	ID           string       `json:"id"`
	ClientSecret string       `json:"client_secret"`
	Status       string       `json:"status"`
	LatestCharge string       `json:"latest_charge"`
	Raw          payment.JSON `json:"raw"` // 原始响应快照
}

// RefundRequest 创建退款的请求参数
type RefundRequest struct {
	ChargeID string            `json:"charge_id"`
	Amount   int64             `json:"amount"`
	Metadata map[string]string `json:"metadata"`
	// IdempotencyKey 按 (payment_id, amount) 推导，
	// 同一笔退款的网关重试不会重复扣回资金
	IdempotencyKey string `json:"idempotency_key"`
}

// Refund 网关侧退款结果
type Refund struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Raw    payment.JSON `json:"raw"`
}

// Gateway 支付网关客户端接口，外部网关 HTTP API 的薄适配层
type Gateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)
	CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error)
	// VerifySignature 校验回调签名，纯函数，无副作用
	VerifySignature(payload []byte, signatureHeader string) bool
}

// ListFilter 支付历史查询条件
type ListFilter struct {
	Status    string
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PerPage   int
}

// Ledger 支付台账接口，Payment 记录的持久化存储。
// 所有状态写入和所属媒体记录的派生字段在同一事务中提交，
// Mark* 系列方法以状态 CAS 的方式应用迁移，返回 false 表示当前状态已被并发修改
type Ledger interface {
	Create(ctx context.Context, p *payment.Payment) error
	GetByID(ctx context.Context, id string) (*payment.Payment, error)
	GetByIntentID(ctx context.Context, intentID string) (*payment.Payment, error)
	GetPendingByMediaID(ctx context.Context, mediaID string) (*payment.Payment, error)
	ListByUser(ctx context.Context, userID string, filter ListFilter) ([]payment.Payment, int64, error)

	MarkSucceeded(ctx context.Context, p *payment.Payment, chargeID string, raw payment.JSON) (bool, error)
	MarkFailed(ctx context.Context, p *payment.Payment, reason string) (bool, error)
	MarkCanceled(ctx context.Context, p *payment.Payment, reason string) (bool, error)
	MarkRefunded(ctx context.Context, p *payment.Payment, refundRaw payment.JSON) (bool, error)

	// ClaimRefund 在调用网关之前以 CAS 占住退款资格，
	// 返回 false 表示已有退款在途或支付已不处于 succeeded。
	// ReleaseRefundClaim 在网关调用失败后释放占用，允许稍后重试
	ClaimRefund(ctx context.Context, p *payment.Payment) (bool, error)
	ReleaseRefundClaim(ctx context.Context, p *payment.Payment) error
}

// Notification 支付结果通知载荷
type Notification struct {
	PaymentID string `json:"payment_id"`
	UserID    string `json:"user_id"`
	MediaID   string `json:"media_id"`
	Event     string `json:"event"`
	Amount    int64  `json:"amount"`
}

// Notifier 通知分发接口，即发即忘，编排器不等待也不重试
type Notifier interface {
	Dispatch(ctx context.Context, n Notification)
}

// IntentResult 创建支付意图的返回结果
// Existing 区分新建意图和复用已有 pending 意图两条路径
type IntentResult struct {
	PaymentID    string `json:"payment_id"`
	ClientSecret string `json:"client_secret"`
	Existing     bool   `json:"existing"`
}

// RefundResult 退款操作的返回结果
type RefundResult struct {
	RefundID string `json:"refund_id"`
	Amount   int64  `json:"amount"`
	Status   string `json:"status"`
}
