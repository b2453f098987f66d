// Package payment 支付相关的 API 控制器
package payment

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"zivo/app/http/middlewares"
	"zivo/app/repositories"
	"zivo/app/requests"
	corepayment "zivo/pkg/payment"
	"zivo/pkg/payment/types"
	"zivo/pkg/response"
	"zivo/pkg/storage"
)

// PaymentController 支付控制器
type PaymentController struct {
	orchestrator *corepayment.Orchestrator
	payments     *repositories.PaymentRepository
	media        *repositories.MediaRepository
	users        *repositories.UserRepository
	storage      *storage.Client // 可为空，为空时状态响应不含下载链接
}

// NewPaymentController 创建支付控制器
func NewPaymentController(
	orchestrator *corepayment.Orchestrator,
	payments *repositories.PaymentRepository,
	media *repositories.MediaRepository,
	users *repositories.UserRepository,
	store *storage.Client,
) *PaymentController {
	return &PaymentController{
		orchestrator: orchestrator,
		payments:     payments,
		media:        media,
		users:        users,
		storage:      store,
	}
}

// CreateIntent 创建支付意图
// POST /v1/payments/intent
func (pc *PaymentController) CreateIntent(c *gin.Context) {
	req, err := requests.ValidateCreateIntent(c)
	if err != nil {
		response.BadRequest(c, err)
		return
	}

	userID := middlewares.CurrentUserID(c)
	u, err := pc.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		response.ServerError(c, err)
		return
	}
	if u == nil {
		response.Abort401(c)
		return
	}

	m, err := pc.media.GetByID(c.Request.Context(), req.MediaID)
	if err != nil {
		response.ServerError(c, err)
		return
	}
	if m == nil {
		response.Abort404(c, "媒体不存在")
		return
	}
	if m.IsPaid() {
		response.ErrorCode(c, http.StatusConflict, "already_paid", "该媒体的奖励已支付")
		return
	}

	result, err := pc.orchestrator.CreateIntent(c.Request.Context(), m, u)
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	if result.Existing {
		response.Data(c, result)
		return
	}
	response.Created(c, result, "支付意图已创建")
}

// GetStatus 查询支付状态
// GET /v1/payments/:id/status
func (pc *PaymentController) GetStatus(c *gin.Context) {
	p, err := pc.payments.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.ServerError(c, err)
		return
	}
	// 他人的支付记录按不存在处理，不泄露存在性
	if p == nil || p.UserID != middlewares.CurrentUserID(c) {
		response.Abort404(c, "支付记录不存在")
		return
	}

	data := gin.H{"payment": p}

	// 已支付时附带媒体原件下载链接
	if p.IsSuccessful() && pc.storage != nil {
		m, err := pc.media.GetByID(c.Request.Context(), p.MediaID)
		if err == nil && m != nil {
			data["download_url"] = pc.storage.DownloadURL(m)
		}
	}

	response.Data(c, data)
}

// GetHistory 分页查询支付历史
// GET /v1/payments/history
func (pc *PaymentController) GetHistory(c *gin.Context) {
	req, err := requests.ValidateHistory(c)
	if err != nil {
		response.BadRequest(c, err)
		return
	}

	userID := middlewares.CurrentUserID(c)
	payments, total, err := pc.payments.ListByUser(c.Request.Context(), userID, types.ListFilter{
		Status:    req.Status,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Page:      req.Page,
		PerPage:   req.PerPage,
	})
	if err != nil {
		response.ServerError(c, err)
		return
	}

	response.Data(c, gin.H{
		"payments": payments,
		"meta": gin.H{
			"total":    total,
			"page":     req.Page,
			"per_page": req.PerPage,
		},
	})
}

// RequestRefund 发起退款
// POST /v1/payments/:id/refund
func (pc *PaymentController) RequestRefund(c *gin.Context) {
	req, err := requests.ValidateRefund(c)
	if err != nil {
		response.BadRequest(c, err)
		return
	}

	p, err := pc.payments.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.ServerError(c, err)
		return
	}
	if p == nil || p.UserID != middlewares.CurrentUserID(c) {
		response.Abort404(c, "支付记录不存在")
		return
	}

	result, err := pc.orchestrator.ProcessRefund(c.Request.Context(), p, req.Amount, req.Reason)
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	response.Data(c, result)
}

// respondPaymentError 把支付域错误映射为结构化 HTTP 响应
func respondPaymentError(c *gin.Context, err error) {
	var typed *types.Error
	if errors.As(err, &typed) {
		response.ErrorCode(c, typed.HTTPStatus, typed.Code, typed.Message)
		return
	}

	var gatewayErr *types.GatewayError
	if errors.As(err, &gatewayErr) {
		if gatewayErr.Transient {
			response.ErrorCode(c, http.StatusServiceUnavailable,
				"transient_network_error", "支付网关暂时不可用，请稍后重试")
			return
		}
		response.ErrorCode(c, http.StatusUnprocessableEntity,
			"payment_gateway_error", gatewayErr.Message)
		return
	}

	response.ServerError(c, err)
}
