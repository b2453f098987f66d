package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	mediamodel "zivo/app/models/media"
	model "zivo/app/models/payment"
	usermodel "zivo/app/models/user"
	"zivo/pkg/logger"
	"zivo/pkg/payment/types"
)

// intentStatusSucceeded 网关侧意图的已结算状态
const intentStatusSucceeded = "succeeded"

// Orchestrator 支付编排器，支付生命周期状态机的唯一入口。
// Payment 及其所属媒体的派生字段只能经由编排器修改
type Orchestrator struct {
	gateway  types.Gateway
	ledger   types.Ledger
	auditor  *Auditor
	notifier types.Notifier // 可为空，为空时不派发通知
	currency string
}

// NewOrchestrator 创建支付编排器
func NewOrchestrator(gateway types.Gateway, ledger types.Ledger, auditor *Auditor, notifier types.Notifier, currency string) *Orchestrator {
	if currency == "" {
		currency = "usd"
	}
	return &Orchestrator{
		gateway:  gateway,
		ledger:   ledger,
		auditor:  auditor,
		notifier: notifier,
		currency: currency,
	}
}

// CreateIntent 为媒体的奖励创建支付意图。
//
// 幂等路径：同一媒体已有 pending 支付时复用其网关意图，重新取回
// client secret 而不是重复建单，结果以 Existing=true 区分。
// 新建路径：先调网关后落库，网关失败时不会留下任何支付记录
func (o *Orchestrator) CreateIntent(ctx context.Context, m *mediamodel.Media, u *usermodel.User) (*types.IntentResult, error) {
	existing, err := o.ledger.GetPendingByMediaID(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return o.resumeIntent(ctx, existing)
	}

	ref := transactionReference(m.ID, u.ID)
	intent, err := o.gateway.CreateIntent(ctx, types.CreateIntentRequest{
		Amount:   m.Reward,
		Currency: o.currency,
		Metadata: map[string]string{
			"media_id":              m.ID,
			"user_id":               u.ID,
			"transaction_reference": ref,
		},
		IdempotencyKey: idempotencyKey(m.ID, u.ID, ref),
	})
	if err != nil {
		return nil, err
	}

	p := &model.Payment{
		UserID:               u.ID,
		MediaID:              m.ID,
		TransactionReference: ref,
		GatewayIntentID:      intent.ID,
		Status:               model.StatusPending,
		Amount:               m.Reward,
		Currency:             o.currency,
		GatewayResponse:      intent.Raw,
	}
	if err := o.ledger.Create(ctx, p); err != nil {
		if errors.Is(err, types.ErrDuplicatePendingPayment) {
			// 并发竞争落败，复用先到者的意图
			winner, lookupErr := o.ledger.GetPendingByMediaID(ctx, m.ID)
			if lookupErr == nil && winner != nil {
				return o.resumeIntent(ctx, winner)
			}
		}
		return nil, err
	}

	o.auditor.PaymentAttempt(p)

	return &types.IntentResult{
		PaymentID:    p.ID,
		ClientSecret: intent.ClientSecret,
		Existing:     false,
	}, nil
}

// resumeIntent 已有 pending 支付的复用路径
func (o *Orchestrator) resumeIntent(ctx context.Context, p *model.Payment) (*types.IntentResult, error) {
	intent, err := o.gateway.RetrieveIntent(ctx, p.GatewayIntentID)
	if err != nil {
		return nil, err
	}
	return &types.IntentResult{
		PaymentID:    p.ID,
		ClientSecret: intent.ClientSecret,
		Existing:     true,
	}, nil
}

// ConfirmSuccess 确认支付成功（pending → succeeded）。
//
// 权威状态以网关重查为准，从不单独信任回调载荷里的状态字段。
// 对已 succeeded 的支付重复调用是幂等成功（回调可能重复投递）。
// 首次迁移时 paid_at、charge id、媒体的 paid 状态在同一事务落库
func (o *Orchestrator) ConfirmSuccess(ctx context.Context, intentID string) (*model.Payment, error) {
	p, err := o.ledger.GetByIntentID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		// 非本系统创建的意图也会推送回调，记录后拒绝即可
		logger.WarnString("支付", "确认成功", "未找到对应支付记录 intent: "+intentID)
		return nil, types.ErrPaymentNotFound
	}

	if p.Status == model.StatusSucceeded {
		return p, nil
	}
	if !p.CanTransitionTo(model.StatusSucceeded) {
		o.auditor.IllegalTransition(p, model.StatusSucceeded)
		return nil, types.ErrIllegalTransition
	}

	intent, err := o.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status != intentStatusSucceeded {
		return nil, types.ErrPaymentNotSettled
	}

	applied, err := o.ledger.MarkSucceeded(ctx, p, intent.LatestCharge, intent.Raw)
	if err != nil {
		return nil, err
	}
	if !applied {
		// CAS 落败，重读判定是重复投递还是乱序
		return o.reloadAfterLostRace(ctx, intentID, model.StatusSucceeded)
	}

	o.auditor.PaymentSucceeded(p)
	o.dispatchNotification(ctx, p, "payment_succeeded")

	return p, nil
}

// HandleFailure 记录支付失败（pending → failed）。
// 对已 failed 的支付幂等；对已 succeeded 的支付非法，成功与失败互斥，先到先得
func (o *Orchestrator) HandleFailure(ctx context.Context, intentID, reason string) (*model.Payment, error) {
	if reason == "" {
		reason = "Payment failed"
	}
	return o.settleTerminal(ctx, intentID, model.StatusFailed, reason)
}

// HandleCancellation 记录支付取消（pending → canceled）。
// canceled 为终态，同一媒体的新一轮奖励会创建全新的支付记录
func (o *Orchestrator) HandleCancellation(ctx context.Context, intentID string) (*model.Payment, error) {
	return o.settleTerminal(ctx, intentID, model.StatusCanceled, "Payment canceled")
}

// settleTerminal failed / canceled 两条迁移的公共实现
func (o *Orchestrator) settleTerminal(ctx context.Context, intentID string, next model.Status, reason string) (*model.Payment, error) {
	p, err := o.ledger.GetByIntentID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		logger.WarnString("支付", "记录终态", "未找到对应支付记录 intent: "+intentID)
		return nil, types.ErrPaymentNotFound
	}

	if p.Status == next {
		return p, nil
	}
	if !p.CanTransitionTo(next) {
		o.auditor.IllegalTransition(p, next)
		return nil, types.ErrIllegalTransition
	}

	var applied bool
	if next == model.StatusCanceled {
		applied, err = o.ledger.MarkCanceled(ctx, p, reason)
	} else {
		applied, err = o.ledger.MarkFailed(ctx, p, reason)
	}
	if err != nil {
		return nil, err
	}
	if !applied {
		return o.reloadAfterLostRace(ctx, intentID, next)
	}

	if next == model.StatusCanceled {
		o.auditor.PaymentCanceled(p, reason)
	} else {
		o.auditor.PaymentFailed(p, reason)
	}
	return p, nil
}

// reloadAfterLostRace CAS 落败后重读，区分重复投递（幂等成功）和乱序（非法迁移）
func (o *Orchestrator) reloadAfterLostRace(ctx context.Context, intentID string, attempted model.Status) (*model.Payment, error) {
	current, err := o.ledger.GetByIntentID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, types.ErrPaymentNotFound
	}
	if current.Status == attempted {
		return current, nil
	}
	o.auditor.IllegalTransition(current, attempted)
	return nil, types.ErrIllegalTransition
}

// ProcessRefund 处理退款（succeeded → refunded）。
//
// 仅允许从 succeeded 发起；缺少 charge id 是前置条件失败而不是静默跳过；
// 未指定金额时默认全额退款，超额请求在任何网关调用之前被拒绝。
// 调用网关之前先以 CAS 占住退款资格，并发的第二个请求在触达网关之前
// 就被拒绝，资金不会被扣回两次；网关调用失败时释放占位，允许稍后重试。
// 退款成功后把网关原始响应以 refund 键追加进快照，不丢弃既有历史
func (o *Orchestrator) ProcessRefund(ctx context.Context, p *model.Payment, amount *int64, reason string) (*types.RefundResult, error) {
	if p.Status != model.StatusSucceeded {
		o.auditor.IllegalTransition(p, model.StatusRefunded)
		return nil, types.ErrIllegalTransition
	}
	if p.GatewayChargeID == "" {
		return nil, types.ErrMissingCharge
	}

	refundAmount := p.Amount
	if amount != nil {
		refundAmount = *amount
	}
	if refundAmount > p.Amount {
		return nil, types.ErrRefundExceedsOriginal
	}

	if reason == "" {
		reason = "Refund requested"
	}

	claimed, err := o.ledger.ClaimRefund(ctx, p)
	if err != nil {
		return nil, err
	}
	if !claimed {
		o.auditor.IllegalTransition(p, model.StatusRefunded)
		return nil, types.ErrIllegalTransition
	}

	o.auditor.RefundAttempt(p, refundAmount, reason)

	refund, err := o.gateway.CreateRefund(ctx, types.RefundRequest{
		ChargeID: p.GatewayChargeID,
		Amount:   refundAmount,
		Metadata: map[string]string{
			"payment_id":    p.ID,
			"refund_reason": reason,
		},
		IdempotencyKey: refundIdempotencyKey(p.ID, refundAmount),
	})
	if err != nil {
		if releaseErr := o.ledger.ReleaseRefundClaim(ctx, p); releaseErr != nil {
			logger.ErrorString("支付", "退款占位释放", releaseErr.Error())
		}
		return nil, err
	}

	// 保留既有响应历史，退款快照以 refund 键追加
	merged := model.JSON{}
	for k, v := range p.GatewayResponse {
		merged[k] = v
	}
	merged["refund"] = map[string]interface{}(refund.Raw)

	applied, err := o.ledger.MarkRefunded(ctx, p, merged)
	if err != nil {
		return nil, err
	}
	if !applied {
		o.auditor.IllegalTransition(p, model.StatusRefunded)
		return nil, types.ErrIllegalTransition
	}

	o.auditor.RefundSucceeded(p, refundAmount, refund.ID)

	return &types.RefundResult{
		RefundID: refund.ID,
		Amount:   refundAmount,
		Status:   refund.Status,
	}, nil
}

// dispatchNotification 即发即忘的结果通知，编排器不等待也不重试
func (o *Orchestrator) dispatchNotification(ctx context.Context, p *model.Payment, event string) {
	if o.notifier == nil {
		return
	}
	o.notifier.Dispatch(ctx, types.Notification{
		PaymentID: p.ID,
		UserID:    p.UserID,
		MediaID:   p.MediaID,
		Event:     event,
		Amount:    p.Amount,
	})
}

// transactionReference 生成内部交易参考号，人工可读且全局唯一。
// 末尾的随机片段保证失败后的新一轮支付不会和旧记录撞唯一索引
func transactionReference(mediaID, userID string) string {
	return fmt.Sprintf("TXN_%s_%s_%d_%s",
		strings.ToUpper(shortID(mediaID)),
		strings.ToUpper(shortID(userID)),
		time.Now().Unix(),
		strings.ToUpper(shortID(uuid.New().String())))
}

// idempotencyKey 根据 (media_id, user_id) 和本轮交易参考号推导幂等键。
// 同一轮内对网关的重试复用同一个 intent；失败或取消后的新一轮
// 带着新参考号，会在网关侧铸出全新的 intent，而不是重放旧 intent。
// 客户端层面的重试幂等由 pending 复用路径保证，不依赖这里的键
func idempotencyKey(mediaID, userID, ref string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", mediaID, userID, ref)))
	return "zivo_intent_" + hex.EncodeToString(sum[:16])
}

// refundIdempotencyKey 根据 (payment_id, amount) 推导退款幂等键，
// 同一笔退款的网关重试复用同一个键，不会重复扣回资金
func refundIdempotencyKey(paymentID string, amount int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", paymentID, amount)))
	return "zivo_refund_" + hex.EncodeToString(sum[:16])
}

// shortID 截取 ID 前 8 位
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
