package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "zivo/app/models/payment"
	"zivo/pkg/payment/types"
)

func newTestReconciler(gateway *fakeGateway, ledger *fakeLedger) *Reconciler {
	auditor := NewAuditor()
	orch := NewOrchestrator(gateway, ledger, auditor, nil, "usd")
	return NewReconciler(gateway, orch, auditor)
}

func TestHandleRejectsInvalidSignature(t *testing.T) {
	gateway := &fakeGateway{sigValid: false}
	ledger := newFakeLedger()
	ledger.add(&model.Payment{GatewayIntentID: "pi_100", Status: model.StatusPending})
	rec := newTestReconciler(gateway, ledger)

	payload := []byte(`{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_100"}}}`)
	result := rec.Handle(context.Background(), payload, "t=1,v1=bogus")

	assert.Equal(t, OutcomeSecurityRejected, result.Outcome)

	// 签名非法时零次业务调用，状态不变
	assert.Equal(t, 0, gateway.retrieveCalls)
	p, _ := ledger.GetByIntentID(context.Background(), "pi_100")
	assert.Equal(t, model.StatusPending, p.Status)
}

func TestHandleRejectsMalformedPayload(t *testing.T) {
	gateway := &fakeGateway{sigValid: true}
	rec := newTestReconciler(gateway, newFakeLedger())

	result := rec.Handle(context.Background(), []byte(`{not json`), "t=1,v1=ok")
	assert.Equal(t, OutcomeSecurityRejected, result.Outcome)
}

func TestHandleSucceededEventConfirmsPayment(t *testing.T) {
	gateway := &fakeGateway{
		sigValid: true,
		intent:   &types.Intent{ID: "pi_100", Status: "succeeded", LatestCharge: "ch_1"},
	}
	ledger := newFakeLedger()
	ledger.add(&model.Payment{GatewayIntentID: "pi_100", Status: model.StatusPending})
	rec := newTestReconciler(gateway, ledger)

	payload := []byte(`{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_100"}}}`)
	result := rec.Handle(context.Background(), payload, "t=1,v1=ok")

	assert.Equal(t, OutcomeAccepted, result.Outcome)
	assert.Equal(t, "payment_intent.succeeded", result.EventType)

	p, _ := ledger.GetByIntentID(context.Background(), "pi_100")
	assert.Equal(t, model.StatusSucceeded, p.Status)
	// 权威状态来自网关重查，不是回调载荷
	assert.Equal(t, 1, gateway.retrieveCalls)
}

func TestHandleFailedEventRecordsReason(t *testing.T) {
	gateway := &fakeGateway{sigValid: true}
	ledger := newFakeLedger()
	ledger.add(&model.Payment{GatewayIntentID: "pi_100", Status: model.StatusPending})
	rec := newTestReconciler(gateway, ledger)

	payload := []byte(`{
		"type": "payment_intent.payment_failed",
		"data": {"object": {"id": "pi_100", "last_payment_error": {"message": "card declined"}}}
	}`)
	result := rec.Handle(context.Background(), payload, "t=1,v1=ok")

	assert.Equal(t, OutcomeAccepted, result.Outcome)

	p, _ := ledger.GetByIntentID(context.Background(), "pi_100")
	assert.Equal(t, model.StatusFailed, p.Status)
	assert.Equal(t, "card declined", p.FailureReason)
}

func TestHandleCanceledEvent(t *testing.T) {
	gateway := &fakeGateway{sigValid: true}
	ledger := newFakeLedger()
	ledger.add(&model.Payment{GatewayIntentID: "pi_100", Status: model.StatusPending})
	rec := newTestReconciler(gateway, ledger)

	payload := []byte(`{"type":"payment_intent.canceled","data":{"object":{"id":"pi_100"}}}`)
	result := rec.Handle(context.Background(), payload, "t=1,v1=ok")

	assert.Equal(t, OutcomeAccepted, result.Outcome)

	p, _ := ledger.GetByIntentID(context.Background(), "pi_100")
	assert.Equal(t, model.StatusCanceled, p.Status)
}

func TestHandleUnknownEventTypeIsAcknowledged(t *testing.T) {
	gateway := &fakeGateway{sigValid: true}
	rec := newTestReconciler(gateway, newFakeLedger())

	payload := []byte(`{"type":"customer.created","data":{"object":{"id":"cus_1"}}}`)
	result := rec.Handle(context.Background(), payload, "t=1,v1=ok")

	// 未知事件确认收到，避免网关无限重投
	assert.Equal(t, OutcomeAccepted, result.Outcome)
	assert.NoError(t, result.Err)
}

func TestHandleUnknownIntentIsAcknowledged(t *testing.T) {
	gateway := &fakeGateway{sigValid: true}
	rec := newTestReconciler(gateway, newFakeLedger())

	payload := []byte(`{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_ghost"}}}`)
	result := rec.Handle(context.Background(), payload, "t=1,v1=ok")

	assert.Equal(t, OutcomeAccepted, result.Outcome)
	assert.NoError(t, result.Err)
}

func TestHandleChargeRefundedIsAcknowledgedWithoutStateChange(t *testing.T) {
	gateway := &fakeGateway{sigValid: true}
	ledger := newFakeLedger()
	stored := ledger.add(&model.Payment{GatewayIntentID: "pi_100", Status: model.StatusRefunded})
	rec := newTestReconciler(gateway, ledger)

	payload := []byte(`{"type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`)
	result := rec.Handle(context.Background(), payload, "t=1,v1=ok")

	// 退款状态由主动退款流程落库，回调只确认
	assert.Equal(t, OutcomeAccepted, result.Outcome)
	assert.Equal(t, model.StatusRefunded, stored.Status)
}

func TestHandleDuplicateSucceededDeliveryIsAccepted(t *testing.T) {
	gateway := &fakeGateway{
		sigValid: true,
		intent:   &types.Intent{ID: "pi_100", Status: "succeeded", LatestCharge: "ch_1"},
	}
	ledger := newFakeLedger()
	ledger.add(&model.Payment{GatewayIntentID: "pi_100", Status: model.StatusPending})
	rec := newTestReconciler(gateway, ledger)

	payload := []byte(`{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_100"}}}`)

	first := rec.Handle(context.Background(), payload, "t=1,v1=ok")
	require.Equal(t, OutcomeAccepted, first.Outcome)

	second := rec.Handle(context.Background(), payload, "t=1,v1=ok")
	assert.Equal(t, OutcomeAccepted, second.Outcome)
}

func TestHandleProcessingErrorIsRejectedForRetry(t *testing.T) {
	gateway := &fakeGateway{
		sigValid:    true,
		retrieveErr: &types.GatewayError{Code: "network_error", Message: "timeout", Transient: true},
	}
	ledger := newFakeLedger()
	ledger.add(&model.Payment{GatewayIntentID: "pi_100", Status: model.StatusPending})
	rec := newTestReconciler(gateway, ledger)

	payload := []byte(`{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_100"}}}`)
	result := rec.Handle(context.Background(), payload, "t=1,v1=ok")

	// 瞬时错误让网关稍后重投
	assert.Equal(t, OutcomeRejected, result.Outcome)
	assert.Error(t, result.Err)
}
