package payment

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	mediamodel "zivo/app/models/media"
	model "zivo/app/models/payment"
	usermodel "zivo/app/models/user"
	"zivo/app/repositories"
	"zivo/pkg/payment/types"
)

// replayGateway 复刻网关侧的幂等语义：同一个幂等键重放同一个 intent，
// 新键铸出新 intent
type replayGateway struct {
	byKey map[string]*types.Intent
	seq   int
}

func newReplayGateway() *replayGateway {
	return &replayGateway{byKey: make(map[string]*types.Intent)}
}

func (g *replayGateway) CreateIntent(ctx context.Context, req types.CreateIntentRequest) (*types.Intent, error) {
	if intent, ok := g.byKey[req.IdempotencyKey]; ok {
		return intent, nil
	}
	g.seq++
	intent := &types.Intent{
		ID:           fmt.Sprintf("pi_replay_%d", g.seq),
		ClientSecret: fmt.Sprintf("pi_replay_%d_secret", g.seq),
		Status:       "requires_payment_method",
		Raw:          model.JSON{},
	}
	g.byKey[req.IdempotencyKey] = intent
	return intent, nil
}

func (g *replayGateway) RetrieveIntent(ctx context.Context, intentID string) (*types.Intent, error) {
	for _, intent := range g.byKey {
		if intent.ID == intentID {
			return intent, nil
		}
	}
	return nil, &types.GatewayError{Code: "resource_missing", Message: "no such intent"}
}

func (g *replayGateway) CreateRefund(ctx context.Context, req types.RefundRequest) (*types.Refund, error) {
	return &types.Refund{ID: "re_replay", Status: "succeeded", Raw: model.JSON{}}, nil
}

func (g *replayGateway) VerifySignature(payload []byte, signatureHeader string) bool {
	return true
}

func newRetryFlowRepo(t *testing.T) (*repositories.PaymentRepository, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&usermodel.User{}, &mediamodel.Media{}, &model.Payment{}))

	return repositories.NewPaymentRepository(db), db
}

// 失败后的新一轮支付必须落下全新的记录：
// 新参考号、新网关 intent，旧的 failed 记录原样保留
func TestCreateIntentAfterFailureCreatesNewPayment(t *testing.T) {
	repo, db := newRetryFlowRepo(t)

	m := &mediamodel.Media{ID: "m1", UserID: "owner-1", Reward: 5000}
	require.NoError(t, db.Create(m).Error)
	u := &usermodel.User{ID: "u1"}

	orch := NewOrchestrator(newReplayGateway(), repo, NewAuditor(), nil, "usd")
	ctx := context.Background()

	first, err := orch.CreateIntent(ctx, m, u)
	require.NoError(t, err)
	firstPayment, err := repo.GetByID(ctx, first.PaymentID)
	require.NoError(t, err)
	require.NotNil(t, firstPayment)

	_, err = orch.HandleFailure(ctx, firstPayment.GatewayIntentID, "card declined")
	require.NoError(t, err)

	// 同一秒内立刻重试，不能撞参考号或 intent id 的唯一索引
	second, err := orch.CreateIntent(ctx, m, u)
	require.NoError(t, err)
	assert.False(t, second.Existing)
	assert.NotEqual(t, first.PaymentID, second.PaymentID)

	secondPayment, err := repo.GetByID(ctx, second.PaymentID)
	require.NoError(t, err)
	require.NotNil(t, secondPayment)
	assert.Equal(t, model.StatusPending, secondPayment.Status)
	assert.NotEqual(t, firstPayment.TransactionReference, secondPayment.TransactionReference)
	assert.NotEqual(t, firstPayment.GatewayIntentID, secondPayment.GatewayIntentID)

	// 旧的 failed 记录原样保留
	stored, err := repo.GetByID(ctx, first.PaymentID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.StatusFailed, stored.Status)
}

// 取消同样是终态，取消后的新一轮支付与失败后一致
func TestCreateIntentAfterCancellationCreatesNewPayment(t *testing.T) {
	repo, db := newRetryFlowRepo(t)

	m := &mediamodel.Media{ID: "m1", UserID: "owner-1", Reward: 5000}
	require.NoError(t, db.Create(m).Error)
	u := &usermodel.User{ID: "u1"}

	orch := NewOrchestrator(newReplayGateway(), repo, NewAuditor(), nil, "usd")
	ctx := context.Background()

	first, err := orch.CreateIntent(ctx, m, u)
	require.NoError(t, err)
	firstPayment, err := repo.GetByID(ctx, first.PaymentID)
	require.NoError(t, err)

	_, err = orch.HandleCancellation(ctx, firstPayment.GatewayIntentID)
	require.NoError(t, err)

	second, err := orch.CreateIntent(ctx, m, u)
	require.NoError(t, err)
	assert.False(t, second.Existing)
	assert.NotEqual(t, first.PaymentID, second.PaymentID)
}
