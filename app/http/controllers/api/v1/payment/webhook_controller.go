package payment

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	corepayment "zivo/pkg/payment"
	"zivo/pkg/response"
)

// 回调请求体大小上限，防御超大载荷
const maxWebhookBodySize = 1 << 20

// WebhookController 网关回调控制器
type WebhookController struct {
	reconciler *corepayment.Reconciler
}

// NewWebhookController 创建回调控制器
func NewWebhookController(reconciler *corepayment.Reconciler) *WebhookController {
	return &WebhookController{reconciler: reconciler}
}

// HandleStripe 处理 Stripe 回调
// POST /v1/webhooks/stripe
//
// 签名非法应答 400；处理出错应答 500 让网关重投；
// 其余（含未知事件类型）应答 200 确认收到
func (wc *WebhookController) HandleStripe(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodySize))
	if err != nil {
		response.Abort400(c, "无法读取请求体")
		return
	}

	result := wc.reconciler.Handle(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))

	switch result.Outcome {
	case corepayment.OutcomeSecurityRejected:
		response.ErrorCode(c, http.StatusBadRequest, "security_rejection", "invalid signature")
	case corepayment.OutcomeRejected:
		response.ErrorCode(c, http.StatusInternalServerError, "webhook_processing_failed", "event processing failed")
	default:
		response.JSON(c, gin.H{"received": true})
	}
}
