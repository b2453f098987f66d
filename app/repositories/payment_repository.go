// Package repositories 数据仓储层
package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"zivo/app/models/media"
	"zivo/app/models/payment"
	"zivo/pkg/logger"
	"zivo/pkg/payment/types"
)

// PaymentRepository 支付台账仓库，实现 types.Ledger。
// 所有状态写入和所属媒体的派生字段在同一事务中提交，
// 并发读取方不会观察到两者不一致
type PaymentRepository struct {
	db *gorm.DB
}

// 编译期断言，确保实现 Ledger 接口
var _ types.Ledger = (*PaymentRepository)(nil)

// NewPaymentRepository 创建仓库实例
func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create 创建支付记录。
// 在事务内先对所属媒体行加锁再检查 pending 记录，
// 封死 check-then-create 的竞争窗口；同一媒体已有 pending
// 支付时返回 ErrDuplicatePendingPayment
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if err := p.Validate(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m media.Media
		if err := lockForUpdate(tx).First(&m, "id = ?", p.MediaID).Error; err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&payment.Payment{}).
			Where("media_id = ? AND status = ?", p.MediaID, payment.StatusPending).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return types.ErrDuplicatePendingPayment
		}

		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		if err := tx.Create(p).Error; err != nil {
			return err
		}

		// 同事务更新媒体的派生支付字段
		if err := tx.Model(&m).Updates(map[string]interface{}{
			"payment_status":    media.PaymentStatusPending,
			"gateway_intent_id": p.GatewayIntentID,
		}).Error; err != nil {
			return err
		}

		logger.InfoString("支付", "台账创建", p.TransactionReference)
		return nil
	})
}

// GetByID 根据 ID 获取支付记录
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByIntentID 根据网关 intent id 获取支付记录
func (r *PaymentRepository) GetByIntentID(ctx context.Context, intentID string) (*payment.Payment, error) {
	return r.first(ctx, "gateway_intent_id = ?", intentID)
}

// GetPendingByMediaID 获取媒体当前的 pending 支付记录，不存在时返回 (nil, nil)
func (r *PaymentRepository) GetPendingByMediaID(ctx context.Context, mediaID string) (*payment.Payment, error) {
	return r.first(ctx, "media_id = ? AND status = ?", mediaID, payment.StatusPending)
}

// ListByUser 分页查询用户的支付历史，支持状态和日期范围过滤
func (r *PaymentRepository) ListByUser(ctx context.Context, userID string, filter types.ListFilter) ([]payment.Payment, int64, error) {
	query := r.db.WithContext(ctx).Model(&payment.Payment{}).Where("user_id = ?", userID)

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.StartDate != nil {
		query = query.Where("created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("created_at <= ?", *filter.EndDate)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 || perPage > 100 {
		perPage = 15
	}

	var payments []payment.Payment
	err := query.Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&payments).Error
	if err != nil {
		return nil, 0, err
	}

	return payments, total, nil
}

// MarkSucceeded 以状态 CAS 应用 pending → succeeded 迁移。
// 返回 false 表示当前状态已被并发修改，由调用方重读判定。
// paid_at、charge id、媒体的 paid 状态和实付金额在同一事务内落库
func (r *PaymentRepository) MarkSucceeded(ctx context.Context, p *payment.Payment, chargeID string, raw payment.JSON) (bool, error) {
	now := time.Now()
	applied := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&payment.Payment{}).
			Where("id = ? AND status = ?", p.ID, payment.StatusPending).
			Updates(map[string]interface{}{
				"status":            payment.StatusSucceeded,
				"paid_at":           now,
				"gateway_charge_id": chargeID,
				"gateway_response":  raw,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil // CAS 失败，状态已迁移
		}

		if err := tx.Model(&media.Media{}).
			Where("id = ?", p.MediaID).
			Updates(map[string]interface{}{
				"payment_status": media.PaymentStatusPaid,
				"paid_at":        now,
				"amount_paid":    p.Amount,
			}).Error; err != nil {
			return err
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if applied {
		p.Status = payment.StatusSucceeded
		p.PaidAt = &now
		p.GatewayChargeID = chargeID
		p.GatewayResponse = raw
	}
	return applied, nil
}

// MarkFailed 以状态 CAS 应用 pending → failed 迁移。
// 媒体的派生状态保持原样，失败的支付不应把媒体置为 paid 之外的新状态
func (r *PaymentRepository) MarkFailed(ctx context.Context, p *payment.Payment, reason string) (bool, error) {
	return r.casTerminal(ctx, p, payment.StatusFailed, reason)
}

// MarkCanceled 以状态 CAS 应用 pending → canceled 迁移
func (r *PaymentRepository) MarkCanceled(ctx context.Context, p *payment.Payment, reason string) (bool, error) {
	return r.casTerminal(ctx, p, payment.StatusCanceled, reason)
}

// casTerminal pending → failed/canceled 的公共实现
func (r *PaymentRepository) casTerminal(ctx context.Context, p *payment.Payment, next payment.Status, reason string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&payment.Payment{}).
		Where("id = ? AND status = ?", p.ID, payment.StatusPending).
		Updates(map[string]interface{}{
			"status":         next,
			"failure_reason": reason,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	p.Status = next
	p.FailureReason = reason
	return true, nil
}

// ClaimRefund 在调用网关之前以 CAS 占住退款资格。
// 只有 succeeded 且尚无退款在途的支付能占到位，
// 并发的第二个退款请求拿到 0 行受影响，不会触达网关
func (r *PaymentRepository) ClaimRefund(ctx context.Context, p *payment.Payment) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&payment.Payment{}).
		Where("id = ? AND status = ? AND refund_initiated_at IS NULL", p.ID, payment.StatusSucceeded).
		Update("refund_initiated_at", now)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	p.RefundInitiatedAt = &now
	return true, nil
}

// ReleaseRefundClaim 网关调用失败后释放退款占位，允许稍后重试。
// 只在支付仍处于 succeeded 时释放，已完成的退款不受影响
func (r *PaymentRepository) ReleaseRefundClaim(ctx context.Context, p *payment.Payment) error {
	err := r.db.WithContext(ctx).Model(&payment.Payment{}).
		Where("id = ? AND status = ?", p.ID, payment.StatusSucceeded).
		Update("refund_initiated_at", nil).Error
	if err != nil {
		return err
	}

	p.RefundInitiatedAt = nil
	return nil
}

// MarkRefunded 以状态 CAS 应用 succeeded → refunded 迁移，
// 同事务把媒体派生状态置为 refunded
func (r *PaymentRepository) MarkRefunded(ctx context.Context, p *payment.Payment, refundRaw payment.JSON) (bool, error) {
	applied := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&payment.Payment{}).
			Where("id = ? AND status = ?", p.ID, payment.StatusSucceeded).
			Updates(map[string]interface{}{
				"status":           payment.StatusRefunded,
				"gateway_response": refundRaw,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		if err := tx.Model(&media.Media{}).
			Where("id = ?", p.MediaID).
			Update("payment_status", media.PaymentStatusRefunded).Error; err != nil {
			return err
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if applied {
		p.Status = payment.StatusRefunded
		p.GatewayResponse = refundRaw
	}
	return applied, nil
}

// SweepAbandoned 软删除超过截止时间仍处于 pending 的支付记录，
// 并清掉所属媒体上失效的 intent 引用，由后台清理任务定期调用，返回清理数量
func (r *PaymentRepository) SweepAbandoned(ctx context.Context, cutoff time.Time) (int64, error) {
	var swept int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stale []payment.Payment
		if err := tx.Select("id", "media_id").
			Where("status = ? AND created_at < ?", payment.StatusPending, cutoff).
			Find(&stale).Error; err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}

		ids := make([]string, 0, len(stale))
		mediaIDs := make([]string, 0, len(stale))
		for _, p := range stale {
			ids = append(ids, p.ID)
			mediaIDs = append(mediaIDs, p.MediaID)
		}

		result := tx.Where("id IN ?", ids).Delete(&payment.Payment{})
		if result.Error != nil {
			return result.Error
		}
		swept = result.RowsAffected

		// 只清理仍停留在 pending 的媒体，已支付的不受影响
		return tx.Model(&media.Media{}).
			Where("id IN ? AND payment_status = ?", mediaIDs, media.PaymentStatusPending).
			Update("gateway_intent_id", "").Error
	})

	return swept, err
}

// first 查询单条记录，未找到时返回 (nil, nil)
func (r *PaymentRepository) first(ctx context.Context, query string, args ...interface{}) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.WithContext(ctx).Where(query, args...).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// lockForUpdate 对查询加行锁。sqlite 不支持 FOR UPDATE，
// 其单写锁本身已串行化写入
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
