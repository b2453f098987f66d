package payment

import (
	"context"
	"encoding/json"
	"errors"

	"zivo/pkg/logger"
	"zivo/pkg/payment/types"
)

// 网关推送的回调事件类型
const (
	eventIntentSucceeded = "payment_intent.succeeded"
	eventIntentFailed    = "payment_intent.payment_failed"
	eventIntentCanceled  = "payment_intent.canceled"
	eventChargeRefunded  = "charge.refunded"
)

// Outcome 回调处理结论，决定给网关的 HTTP 应答
type Outcome int

const (
	// OutcomeAccepted 已处理或可安全忽略，应答 2xx 停止重投
	OutcomeAccepted Outcome = iota
	// OutcomeSecurityRejected 签名校验失败，应答 400 且不解析载荷
	OutcomeSecurityRejected
	// OutcomeRejected 处理出错，应答 5xx 让网关稍后重投
	OutcomeRejected
)

// ReconcileResult 单次回调的处理结果
type ReconcileResult struct {
	Outcome   Outcome
	EventType string
	IntentID  string
	Err       error
}

// Reconciler 回调对账器。
// 把网关推送的事件翻译成编排器的状态迁移调用，
// 载荷在签名校验通过之前不做任何解析
type Reconciler struct {
	gateway      types.Gateway
	orchestrator *Orchestrator
	auditor      *Auditor
}

// NewReconciler 创建回调对账器
func NewReconciler(gateway types.Gateway, orchestrator *Orchestrator, auditor *Auditor) *Reconciler {
	return &Reconciler{
		gateway:      gateway,
		orchestrator: orchestrator,
		auditor:      auditor,
	}
}

// webhookEvent 回调载荷中本系统关心的字段
type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID               string `json:"id"`
			LastPaymentError *struct {
				Message string `json:"message"`
			} `json:"last_payment_error"`
			CancellationReason string `json:"cancellation_reason"`
		} `json:"object"`
	} `json:"data"`
}

// Handle 处理一次回调投递。
//
// 签名非法的请求直接拒绝，零次业务调用；未知事件类型和
// 找不到对应支付记录的事件记录后确认收到，避免网关无限重投；
// 只有真正的处理错误才让网关重试
func (r *Reconciler) Handle(ctx context.Context, payload []byte, signatureHeader string) ReconcileResult {
	if !r.gateway.VerifySignature(payload, signatureHeader) {
		r.auditor.SecurityEvent("webhook_signature_invalid", "回调签名校验失败")
		return ReconcileResult{Outcome: OutcomeSecurityRejected}
	}

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		r.auditor.SecurityEvent("webhook_payload_malformed", err.Error())
		return ReconcileResult{Outcome: OutcomeSecurityRejected, Err: err}
	}

	intentID := event.Data.Object.ID
	r.auditor.WebhookReceived(event.Type, intentID)

	err := r.dispatch(ctx, event)
	r.auditor.WebhookProcessed(event.Type, intentID, err)

	result := ReconcileResult{EventType: event.Type, IntentID: intentID, Err: err}
	switch {
	case err == nil:
		result.Outcome = OutcomeAccepted
	case errors.Is(err, types.ErrPaymentNotFound):
		// 非本系统创建的意图，确认收到即可
		result.Outcome = OutcomeAccepted
		result.Err = nil
	case errors.Is(err, types.ErrIllegalTransition):
		// 乱序/重放事件，已审计，重投不会改变结果
		result.Outcome = OutcomeAccepted
		result.Err = nil
	default:
		result.Outcome = OutcomeRejected
	}
	return result
}

// dispatch 按事件类型路由到对应的状态迁移
func (r *Reconciler) dispatch(ctx context.Context, event webhookEvent) error {
	intentID := event.Data.Object.ID

	switch event.Type {
	case eventIntentSucceeded:
		_, err := r.orchestrator.ConfirmSuccess(ctx, intentID)
		return err

	case eventIntentFailed:
		reason := "Payment failed"
		if event.Data.Object.LastPaymentError != nil && event.Data.Object.LastPaymentError.Message != "" {
			reason = event.Data.Object.LastPaymentError.Message
		}
		_, err := r.orchestrator.HandleFailure(ctx, intentID, reason)
		return err

	case eventIntentCanceled:
		_, err := r.orchestrator.HandleCancellation(ctx, intentID)
		return err

	case eventChargeRefunded:
		// 退款由 ProcessRefund 主动发起并落库，回调只做确认
		logger.InfoString("支付", "回调", "收到退款确认事件 "+event.ID)
		return nil

	default:
		logger.InfoString("支付", "回调", "忽略未处理的事件类型 "+event.Type)
		return nil
	}
}
