// Package payment 支付核心：状态机编排器、回调对账器与审计日志
package payment

import (
	"go.uber.org/zap"

	model "zivo/app/models/payment"
	"zivo/pkg/logger"
)

// Auditor 支付审计日志。
// 记录每一次状态迁移和安全事件的结构化流水，仅供诊断，不作为权威数据
type Auditor struct{}

// NewAuditor 创建审计日志实例
func NewAuditor() *Auditor {
	return &Auditor{}
}

// PaymentAttempt 记录支付意图创建
func (a *Auditor) PaymentAttempt(p *model.Payment) {
	logger.Info("支付审计",
		zap.String("event", "payment_attempt"),
		zap.String("payment_id", p.ID),
		zap.String("user_id", p.UserID),
		zap.String("media_id", p.MediaID),
		zap.String("transaction_reference", p.TransactionReference),
		zap.String("gateway_intent_id", p.GatewayIntentID),
		zap.Int64("amount", p.Amount),
		zap.String("currency", p.Currency),
	)
}

// PaymentSucceeded 记录支付成功迁移
func (a *Auditor) PaymentSucceeded(p *model.Payment) {
	logger.Info("支付审计",
		zap.String("event", "payment_succeeded"),
		zap.String("payment_id", p.ID),
		zap.String("user_id", p.UserID),
		zap.String("media_id", p.MediaID),
		zap.String("transaction_reference", p.TransactionReference),
		zap.String("gateway_intent_id", p.GatewayIntentID),
		zap.String("gateway_charge_id", p.GatewayChargeID),
		zap.Int64("amount", p.Amount),
	)
}

// PaymentFailed 记录支付失败迁移
func (a *Auditor) PaymentFailed(p *model.Payment, reason string) {
	logger.Warn("支付审计",
		zap.String("event", "payment_failed"),
		zap.String("payment_id", p.ID),
		zap.String("user_id", p.UserID),
		zap.String("media_id", p.MediaID),
		zap.String("gateway_intent_id", p.GatewayIntentID),
		zap.String("failure_reason", reason),
	)
}

// PaymentCanceled 记录支付取消迁移
func (a *Auditor) PaymentCanceled(p *model.Payment, reason string) {
	logger.Info("支付审计",
		zap.String("event", "payment_canceled"),
		zap.String("payment_id", p.ID),
		zap.String("user_id", p.UserID),
		zap.String("media_id", p.MediaID),
		zap.String("gateway_intent_id", p.GatewayIntentID),
		zap.String("cancellation_reason", reason),
	)
}

// RefundAttempt 记录退款发起
func (a *Auditor) RefundAttempt(p *model.Payment, amount int64, reason string) {
	logger.Info("支付审计",
		zap.String("event", "refund_attempt"),
		zap.String("payment_id", p.ID),
		zap.Int64("original_amount", p.Amount),
		zap.Int64("refund_amount", amount),
		zap.String("refund_reason", reason),
		zap.String("gateway_charge_id", p.GatewayChargeID),
	)
}

// RefundSucceeded 记录退款成功
func (a *Auditor) RefundSucceeded(p *model.Payment, amount int64, refundID string) {
	logger.Info("支付审计",
		zap.String("event", "refund_succeeded"),
		zap.String("payment_id", p.ID),
		zap.Int64("refund_amount", amount),
		zap.String("gateway_refund_id", refundID),
	)
}

// IllegalTransition 记录非法状态迁移，属于编程/乱序缺陷或回放异常，高等级记录
func (a *Auditor) IllegalTransition(p *model.Payment, attempted model.Status) {
	logger.Error("支付审计",
		zap.String("event", "illegal_transition"),
		zap.String("payment_id", p.ID),
		zap.String("current_status", string(p.Status)),
		zap.String("attempted_status", string(attempted)),
	)
}

// WebhookReceived 记录回调事件到达
func (a *Auditor) WebhookReceived(eventType, intentID string) {
	logger.Info("支付审计",
		zap.String("event", "webhook_received"),
		zap.String("event_type", eventType),
		zap.String("gateway_intent_id", intentID),
	)
}

// WebhookProcessed 记录回调事件处理结果
func (a *Auditor) WebhookProcessed(eventType, intentID string, err error) {
	fields := []zap.Field{
		zap.String("event", "webhook_processed"),
		zap.String("event_type", eventType),
		zap.String("gateway_intent_id", intentID),
		zap.Bool("success", err == nil),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
		logger.Error("支付审计", fields...)
		return
	}
	logger.Info("支付审计", fields...)
}

// SecurityEvent 记录安全事件（如签名校验失败）
func (a *Auditor) SecurityEvent(event string, detail string) {
	logger.Warn("支付安全",
		zap.String("event", event),
		zap.String("detail", detail),
	)
}
