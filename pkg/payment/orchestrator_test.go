package payment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	mediamodel "zivo/app/models/media"
	model "zivo/app/models/payment"
	usermodel "zivo/app/models/user"
	"zivo/pkg/logger"
	"zivo/pkg/payment/types"
)

func init() {
	logger.Logger = zap.NewNop()
}

// ---- 测试替身 ----

type fakeGateway struct {
	createCalls   int
	retrieveCalls int
	refundCalls   int

	createErr     error
	retrieveErr   error
	refundErr     error
	intent        *types.Intent
	refund        *types.Refund
	sigValid      bool
	lastCreateReq types.CreateIntentRequest
	lastRefundReq types.RefundRequest
}

func (g *fakeGateway) CreateIntent(ctx context.Context, req types.CreateIntentRequest) (*types.Intent, error) {
	g.createCalls++
	g.lastCreateReq = req
	if g.createErr != nil {
		return nil, g.createErr
	}
	return g.intent, nil
}

func (g *fakeGateway) RetrieveIntent(ctx context.Context, intentID string) (*types.Intent, error) {
	g.retrieveCalls++
	if g.retrieveErr != nil {
		return nil, g.retrieveErr
	}
	return g.intent, nil
}

func (g *fakeGateway) CreateRefund(ctx context.Context, req types.RefundRequest) (*types.Refund, error) {
	g.refundCalls++
	g.lastRefundReq = req
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return g.refund, nil
}

func (g *fakeGateway) VerifySignature(payload []byte, signatureHeader string) bool {
	return g.sigValid
}

// fakeLedger 内存台账，复刻仓库层的 CAS 语义
type fakeLedger struct {
	payments  map[string]*model.Payment
	createErr error
	seq       int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{payments: make(map[string]*model.Payment)}
}

func (l *fakeLedger) add(p *model.Payment) *model.Payment {
	if p.ID == "" {
		l.seq++
		p.ID = fmt.Sprintf("pay_%d", l.seq)
	}
	l.payments[p.ID] = p
	return p
}

func (l *fakeLedger) Create(ctx context.Context, p *model.Payment) error {
	if l.createErr != nil {
		return l.createErr
	}
	for _, existing := range l.payments {
		if existing.MediaID == p.MediaID && existing.Status == model.StatusPending {
			return types.ErrDuplicatePendingPayment
		}
	}
	l.add(p)
	return nil
}

func (l *fakeLedger) GetByID(ctx context.Context, id string) (*model.Payment, error) {
	return l.payments[id], nil
}

func (l *fakeLedger) GetByIntentID(ctx context.Context, intentID string) (*model.Payment, error) {
	for _, p := range l.payments {
		if p.GatewayIntentID == intentID {
			return p, nil
		}
	}
	return nil, nil
}

func (l *fakeLedger) GetPendingByMediaID(ctx context.Context, mediaID string) (*model.Payment, error) {
	for _, p := range l.payments {
		if p.MediaID == mediaID && p.Status == model.StatusPending {
			return p, nil
		}
	}
	return nil, nil
}

func (l *fakeLedger) ListByUser(ctx context.Context, userID string, filter types.ListFilter) ([]model.Payment, int64, error) {
	var out []model.Payment
	for _, p := range l.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, int64(len(out)), nil
}

func (l *fakeLedger) MarkSucceeded(ctx context.Context, p *model.Payment, chargeID string, raw model.JSON) (bool, error) {
	stored := l.payments[p.ID]
	if stored == nil || stored.Status != model.StatusPending {
		return false, nil
	}
	stored.Status = model.StatusSucceeded
	stored.GatewayChargeID = chargeID
	stored.GatewayResponse = raw
	p.Status = model.StatusSucceeded
	p.GatewayChargeID = chargeID
	p.GatewayResponse = raw
	return true, nil
}

func (l *fakeLedger) MarkFailed(ctx context.Context, p *model.Payment, reason string) (bool, error) {
	return l.casTerminal(p, model.StatusFailed, reason)
}

func (l *fakeLedger) MarkCanceled(ctx context.Context, p *model.Payment, reason string) (bool, error) {
	return l.casTerminal(p, model.StatusCanceled, reason)
}

func (l *fakeLedger) casTerminal(p *model.Payment, next model.Status, reason string) (bool, error) {
	stored := l.payments[p.ID]
	if stored == nil || stored.Status != model.StatusPending {
		return false, nil
	}
	stored.Status = next
	stored.FailureReason = reason
	p.Status = next
	p.FailureReason = reason
	return true, nil
}

func (l *fakeLedger) ClaimRefund(ctx context.Context, p *model.Payment) (bool, error) {
	stored := l.payments[p.ID]
	if stored == nil || stored.Status != model.StatusSucceeded || stored.RefundInitiatedAt != nil {
		return false, nil
	}
	now := time.Now()
	stored.RefundInitiatedAt = &now
	p.RefundInitiatedAt = &now
	return true, nil
}

func (l *fakeLedger) ReleaseRefundClaim(ctx context.Context, p *model.Payment) error {
	stored := l.payments[p.ID]
	if stored != nil && stored.Status == model.StatusSucceeded {
		stored.RefundInitiatedAt = nil
		p.RefundInitiatedAt = nil
	}
	return nil
}

func (l *fakeLedger) MarkRefunded(ctx context.Context, p *model.Payment, refundRaw model.JSON) (bool, error) {
	stored := l.payments[p.ID]
	if stored == nil || stored.Status != model.StatusSucceeded {
		return false, nil
	}
	stored.Status = model.StatusRefunded
	stored.GatewayResponse = refundRaw
	p.Status = model.StatusRefunded
	p.GatewayResponse = refundRaw
	return true, nil
}

// ---- 辅助 ----

func testMedia() *mediamodel.Media {
	return &mediamodel.Media{
		ID:     "media-1234",
		UserID: "owner-1",
		Reward: 5000,
	}
}

func testUser() *usermodel.User {
	return &usermodel.User{ID: "user-5678"}
}

func newTestOrchestrator(g *fakeGateway, l *fakeLedger) *Orchestrator {
	return NewOrchestrator(g, l, NewAuditor(), nil, "usd")
}

// ---- 创建支付意图 ----

func TestCreateIntentCreatesNewPayment(t *testing.T) {
	gateway := &fakeGateway{
		intent: &types.Intent{
			ID:           "pi_100",
			ClientSecret: "pi_100_secret",
			Status:       "requires_payment_method",
			Raw:          model.JSON{"id": "pi_100"},
		},
	}
	ledger := newFakeLedger()
	orch := newTestOrchestrator(gateway, ledger)

	result, err := orch.CreateIntent(context.Background(), testMedia(), testUser())
	require.NoError(t, err)

	assert.False(t, result.Existing)
	assert.Equal(t, "pi_100_secret", result.ClientSecret)
	assert.Equal(t, 1, gateway.createCalls)

	p := ledger.payments[result.PaymentID]
	require.NotNil(t, p)
	assert.Equal(t, model.StatusPending, p.Status)
	assert.Equal(t, int64(5000), p.Amount)
	assert.Equal(t, "usd", p.Currency)
	assert.Equal(t, "pi_100", p.GatewayIntentID)
	assert.Contains(t, p.TransactionReference, "TXN_")

	// 幂等键与元数据必须随请求发给网关
	assert.NotEmpty(t, gateway.lastCreateReq.IdempotencyKey)
	assert.Equal(t, "media-1234", gateway.lastCreateReq.Metadata["media_id"])
	assert.Equal(t, "user-5678", gateway.lastCreateReq.Metadata["user_id"])
}

func TestCreateIntentReusesPendingPayment(t *testing.T) {
	gateway := &fakeGateway{
		intent: &types.Intent{ID: "pi_100", ClientSecret: "pi_100_secret", Status: "requires_payment_method"},
	}
	ledger := newFakeLedger()
	existing := ledger.add(&model.Payment{
		UserID:          "user-5678",
		MediaID:         "media-1234",
		GatewayIntentID: "pi_100",
		Status:          model.StatusPending,
		Amount:          5000,
	})
	orch := newTestOrchestrator(gateway, ledger)

	result, err := orch.CreateIntent(context.Background(), testMedia(), testUser())
	require.NoError(t, err)

	assert.True(t, result.Existing)
	assert.Equal(t, existing.ID, result.PaymentID)
	assert.Equal(t, "pi_100_secret", result.ClientSecret)

	// 复用路径只重查，不重复建单
	assert.Equal(t, 0, gateway.createCalls)
	assert.Equal(t, 1, gateway.retrieveCalls)
	assert.Len(t, ledger.payments, 1)
}

func TestCreateIntentGatewayFailureLeavesNoRecord(t *testing.T) {
	gateway := &fakeGateway{
		createErr: &types.GatewayError{Code: "network_error", Message: "boom", Transient: true},
	}
	ledger := newFakeLedger()
	orch := newTestOrchestrator(gateway, ledger)

	_, err := orch.CreateIntent(context.Background(), testMedia(), testUser())
	require.Error(t, err)

	assert.True(t, types.IsTransient(err))
	assert.Empty(t, ledger.payments)
}

func TestCreateIntentLostRaceFallsBackToWinner(t *testing.T) {
	gateway := &fakeGateway{
		intent: &types.Intent{ID: "pi_loser", ClientSecret: "winner_secret"},
	}
	ledger := newFakeLedger()
	winner := ledger.add(&model.Payment{
		MediaID:         "media-1234",
		GatewayIntentID: "pi_winner",
		Status:          model.StatusPending,
	})
	// 让初次的 pending 检查看不到竞争者，模拟写入时才撞上唯一性约束
	orch := newTestOrchestrator(gateway, ledger)
	ledgerWithRace := &racingLedger{fakeLedger: ledger, winner: winner}
	orch.ledger = ledgerWithRace

	result, err := orch.CreateIntent(context.Background(), testMedia(), testUser())
	require.NoError(t, err)

	assert.True(t, result.Existing)
	assert.Equal(t, winner.ID, result.PaymentID)
}

// racingLedger 首次 GetPendingByMediaID 返回空，Create 报重复，之后返回竞争胜者
type racingLedger struct {
	*fakeLedger
	winner *model.Payment
	lookup int
}

func (l *racingLedger) GetPendingByMediaID(ctx context.Context, mediaID string) (*model.Payment, error) {
	l.lookup++
	if l.lookup == 1 {
		return nil, nil
	}
	return l.winner, nil
}

func (l *racingLedger) Create(ctx context.Context, p *model.Payment) error {
	return types.ErrDuplicatePendingPayment
}

// ---- 确认支付成功 ----

func TestConfirmSuccessTransitionsPayment(t *testing.T) {
	gateway := &fakeGateway{
		intent: &types.Intent{
			ID:           "pi_100",
			Status:       "succeeded",
			LatestCharge: "ch_200",
			Raw:          model.JSON{"id": "pi_100", "status": "succeeded"},
		},
	}
	ledger := newFakeLedger()
	ledger.add(&model.Payment{GatewayIntentID: "pi_100", Status: model.StatusPending, Amount: 5000})
	orch := newTestOrchestrator(gateway, ledger)

	p, err := orch.ConfirmSuccess(context.Background(), "pi_100")
	require.NoError(t, err)

	assert.Equal(t, model.StatusSucceeded, p.Status)
	assert.Equal(t, "ch_200", p.GatewayChargeID)
	assert.Equal(t, 1, gateway.retrieveCalls)
}

func TestConfirmSuccessIsIdempotent(t *testing.T) {
	gateway := &fakeGateway{
		intent: &types.Intent{ID: "pi_100", Status: "succeeded", LatestCharge: "ch_200"},
	}
	ledger := newFakeLedger()
	ledger.add(&model.Payment{GatewayIntentID: "pi_100", Status: model.StatusPending})
	orch := newTestOrchestrator(gateway, ledger)

	_, err := orch.ConfirmSuccess(context.Background(), "pi_100")
	require.NoError(t, err)

	// 重复投递：直接返回成功，不再重查网关
	p, err := orch.ConfirmSuccess(context.Background(), "pi_100")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, p.Status)
	assert.Equal(t, 1, gateway.retrieveCalls)
}

func TestConfirmSuccessDistrustsUnsettledIntent(t *testing.T) {
	// 回调声称成功，但网关权威状态还未结算
	gateway := &fakeGateway{
		intent: &types.Intent{ID: "pi_100", Status: "requires_payment_method"},
	}
	ledger := newFakeLedger()
	stored := ledger.add(&model.Payment{GatewayIntentID: "pi_100", Status: model.StatusPending})
	orch := newTestOrchestrator(gateway, ledger)

	_, err := orch.ConfirmSuccess(context.Background(), "pi_100")
	assert.ErrorIs(t, err, types.ErrPaymentNotSettled)
	assert.Equal(t, model.StatusPending, stored.Status)
}

func TestConfirmSuccessUnknownIntent(t *testing.T) {
	orch := newTestOrchestrator(&fakeGateway{}, newFakeLedger())

	_, err := orch.ConfirmSuccess(context.Background(), "pi_ghost")
	assert.ErrorIs(t, err, types.ErrPaymentNotFound)
}

// ---- 失败与取消 ----

func TestHandleFailureTransitionsPayment(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add(&model.Payment{GatewayIntentID: "pi_100", Status: model.StatusPending})
	orch := newTestOrchestrator(&fakeGateway{}, ledger)

	p, err := orch.HandleFailure(context.Background(), "pi_100", "card declined")
	require.NoError(t, err)

	assert.Equal(t, model.StatusFailed, p.Status)
	assert.Equal(t, "card declined", p.FailureReason)
}

func TestHandleFailureIdempotentOnFailedPayment(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add(&model.Payment{GatewayIntentID: "pi_100", Status: model.StatusFailed})
	orch := newTestOrchestrator(&fakeGateway{}, ledger)

	p, err := orch.HandleFailure(context.Background(), "pi_100", "card declined")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, p.Status)
}

func TestHandleFailureAfterSuccessIsIllegal(t *testing.T) {
	// 成功与失败互斥，先到先得
	ledger := newFakeLedger()
	stored := ledger.add(&model.Payment{GatewayIntentID: "pi_100", Status: model.StatusSucceeded})
	orch := newTestOrchestrator(&fakeGateway{}, ledger)

	_, err := orch.HandleFailure(context.Background(), "pi_100", "late failure")
	assert.ErrorIs(t, err, types.ErrIllegalTransition)
	assert.Equal(t, model.StatusSucceeded, stored.Status)
}

func TestHandleCancellationTransitionsPayment(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add(&model.Payment{GatewayIntentID: "pi_100", Status: model.StatusPending})
	orch := newTestOrchestrator(&fakeGateway{}, ledger)

	p, err := orch.HandleCancellation(context.Background(), "pi_100")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCanceled, p.Status)
}

// ---- 退款 ----

func TestProcessRefundFullAmount(t *testing.T) {
	gateway := &fakeGateway{
		refund: &types.Refund{ID: "re_1", Status: "succeeded", Raw: model.JSON{"id": "re_1"}},
	}
	ledger := newFakeLedger()
	p := ledger.add(&model.Payment{
		Status:          model.StatusSucceeded,
		GatewayChargeID: "ch_200",
		Amount:          5000,
		GatewayResponse: model.JSON{"id": "pi_100", "status": "succeeded"},
	})
	orch := newTestOrchestrator(gateway, ledger)

	result, err := orch.ProcessRefund(context.Background(), p, nil, "requested a full refund")
	require.NoError(t, err)

	assert.Equal(t, "re_1", result.RefundID)
	assert.Equal(t, int64(5000), result.Amount)
	assert.Equal(t, model.StatusRefunded, p.Status)

	// 退款快照追加在 refund 键下，原始响应历史保留
	assert.Equal(t, "pi_100", p.GatewayResponse["id"])
	refundRaw, ok := p.GatewayResponse["refund"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "re_1", refundRaw["id"])
}

func TestProcessRefundPartialAmount(t *testing.T) {
	gateway := &fakeGateway{
		refund: &types.Refund{ID: "re_2", Status: "succeeded", Raw: model.JSON{}},
	}
	ledger := newFakeLedger()
	p := ledger.add(&model.Payment{
		Status:          model.StatusSucceeded,
		GatewayChargeID: "ch_200",
		Amount:          5000,
	})
	orch := newTestOrchestrator(gateway, ledger)

	amount := int64(2000)
	result, err := orch.ProcessRefund(context.Background(), p, &amount, "partial refund for dispute")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), result.Amount)
}

func TestProcessRefundExceedsOriginalRejectedBeforeGateway(t *testing.T) {
	gateway := &fakeGateway{}
	ledger := newFakeLedger()
	p := ledger.add(&model.Payment{
		Status:          model.StatusSucceeded,
		GatewayChargeID: "ch_200",
		Amount:          5000,
	})
	orch := newTestOrchestrator(gateway, ledger)

	amount := int64(5001)
	_, err := orch.ProcessRefund(context.Background(), p, &amount, "asking for too much here")
	assert.ErrorIs(t, err, types.ErrRefundExceedsOriginal)

	// 超额请求不触发任何网关调用
	assert.Equal(t, 0, gateway.refundCalls)
	assert.Equal(t, model.StatusSucceeded, p.Status)
}

func TestProcessRefundMissingCharge(t *testing.T) {
	ledger := newFakeLedger()
	p := ledger.add(&model.Payment{Status: model.StatusSucceeded, Amount: 5000})
	orch := newTestOrchestrator(&fakeGateway{}, ledger)

	_, err := orch.ProcessRefund(context.Background(), p, nil, "no charge on this payment")
	assert.ErrorIs(t, err, types.ErrMissingCharge)
}

// ---- 参考号与幂等键 ----

func TestTransactionReferenceUniquePerAttempt(t *testing.T) {
	// 同一秒内为同一 (媒体, 用户) 生成的两轮参考号不能撞唯一索引
	a := transactionReference("media-1", "user-1")
	b := transactionReference("media-1", "user-1")
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "TXN_MEDIA-1_USER-1_")
}

func TestIdempotencyKeyPerAttempt(t *testing.T) {
	refA := transactionReference("media-1", "user-1")
	refB := transactionReference("media-1", "user-1")

	a := idempotencyKey("media-1", "user-1", refA)
	assert.Equal(t, a, idempotencyKey("media-1", "user-1", refA), "同一轮内的网关重试复用同一个键")
	assert.NotEqual(t, a, idempotencyKey("media-1", "user-1", refB), "新一轮支付必须铸新键")
	assert.NotEqual(t, a, idempotencyKey("media-2", "user-1", refA), "不同媒体不共享键")
}

func TestProcessRefundRequiresSettledPayment(t *testing.T) {
	ledger := newFakeLedger()
	orch := newTestOrchestrator(&fakeGateway{}, ledger)

	for _, status := range []model.Status{model.StatusPending, model.StatusFailed, model.StatusRefunded} {
		p := ledger.add(&model.Payment{Status: status, GatewayChargeID: "ch_200", Amount: 5000})
		_, err := orch.ProcessRefund(context.Background(), p, nil, "refund on wrong status")
		assert.ErrorIs(t, err, types.ErrIllegalTransition, "status %s", status)
	}
}

func TestProcessRefundSendsIdempotencyKey(t *testing.T) {
	gateway := &fakeGateway{
		refund: &types.Refund{ID: "re_1", Status: "succeeded", Raw: model.JSON{}},
	}
	ledger := newFakeLedger()
	p := ledger.add(&model.Payment{
		Status:          model.StatusSucceeded,
		GatewayChargeID: "ch_200",
		Amount:          5000,
	})
	orch := newTestOrchestrator(gateway, ledger)

	_, err := orch.ProcessRefund(context.Background(), p, nil, "requested a full refund")
	require.NoError(t, err)

	// 退款请求必须携带按 (payment_id, amount) 推导的幂等键
	assert.Equal(t, refundIdempotencyKey(p.ID, 5000), gateway.lastRefundReq.IdempotencyKey)
}

func TestProcessRefundClaimBlocksConcurrentAttempt(t *testing.T) {
	gateway := &fakeGateway{
		refund: &types.Refund{ID: "re_1", Status: "succeeded", Raw: model.JSON{}},
	}
	ledger := newFakeLedger()
	p := ledger.add(&model.Payment{
		Status:          model.StatusSucceeded,
		GatewayChargeID: "ch_200",
		Amount:          5000,
	})
	orch := newTestOrchestrator(gateway, ledger)

	// 另一请求已占住退款资格
	claimed, err := ledger.ClaimRefund(context.Background(), p)
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = orch.ProcessRefund(context.Background(), p, nil, "second concurrent refund")
	assert.ErrorIs(t, err, types.ErrIllegalTransition)

	// 落败方在触达网关之前就被拒绝
	assert.Equal(t, 0, gateway.refundCalls)
}

func TestProcessRefundGatewayFailureReleasesClaim(t *testing.T) {
	gateway := &fakeGateway{
		refundErr: &types.GatewayError{Code: "network_error", Message: "boom", Transient: true},
	}
	ledger := newFakeLedger()
	p := ledger.add(&model.Payment{
		Status:          model.StatusSucceeded,
		GatewayChargeID: "ch_200",
		Amount:          5000,
	})
	orch := newTestOrchestrator(gateway, ledger)

	_, err := orch.ProcessRefund(context.Background(), p, nil, "first attempt hits outage")
	require.Error(t, err)
	assert.Equal(t, model.StatusSucceeded, p.Status)
	assert.Nil(t, ledger.payments[p.ID].RefundInitiatedAt, "网关失败后占位应被释放")

	// 故障恢复后重试成功
	gateway.refundErr = nil
	gateway.refund = &types.Refund{ID: "re_1", Status: "succeeded", Raw: model.JSON{}}

	result, err := orch.ProcessRefund(context.Background(), p, nil, "retry after the outage")
	require.NoError(t, err)
	assert.Equal(t, "re_1", result.RefundID)
	assert.Equal(t, model.StatusRefunded, p.Status)
}

// ---- 取消审计 ----

func TestHandleCancellationAuditsCancellationEvent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	previous := logger.Logger
	logger.Logger = zap.New(core)
	defer func() { logger.Logger = previous }()

	ledger := newFakeLedger()
	ledger.add(&model.Payment{GatewayIntentID: "pi_100", Status: model.StatusPending})
	orch := newTestOrchestrator(&fakeGateway{}, ledger)

	_, err := orch.HandleCancellation(context.Background(), "pi_100")
	require.NoError(t, err)

	var events []string
	for _, entry := range logs.All() {
		for _, field := range entry.Context {
			if field.Key == "event" {
				events = append(events, field.String)
			}
		}
	}
	assert.Contains(t, events, "payment_canceled")
	assert.NotContains(t, events, "payment_failed", "取消不能被记成失败事件")
}
