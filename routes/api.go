// Package routes 注册 Web 应用的路由
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	paymentctrl "zivo/app/http/controllers/api/v1/payment"
	"zivo/app/http/middlewares"
)

// 路由限流配置
const (
	// 全局限流：每小时每IP 30000 请求
	GlobalRateLimit = "30000-H"
	// 创建支付意图限流：每小时每用户 60 请求
	CreateIntentLimit = "60-H"
	// 退款限流：每小时每用户 20 请求
	RefundLimit = "20-H"
	// 查询限流：每分钟每IP 300 请求
	QueryLimit = "300-M"
	// 回调限流：每分钟每IP 600 请求
	WebhookLimit = "600-M"
)

// Controllers 路由依赖的控制器集合，由 bootstrap 组装
type Controllers struct {
	Payment *paymentctrl.PaymentController
	Webhook *paymentctrl.WebhookController
}

// RegisterAPIRoutes 注册所有 API 路由
func RegisterAPIRoutes(r *gin.Engine, ctrl Controllers) {
	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")

	v1.Use(
		middlewares.Recovery(),
		middlewares.SecurityHeaders(),
		middlewares.LimitIP(GlobalRateLimit),
		middlewares.Cors(),
	)

	// 网关回调，不走用户认证，靠签名校验保护
	// POST /v1/webhooks/stripe
	v1.POST("/webhooks/stripe",
		middlewares.LimitIP(WebhookLimit),
		ctrl.Webhook.HandleStripe,
	)

	// 支付相关路由，全部要求认证
	paymentRoutes := v1.Group("/payments", middlewares.AuthJWT())
	{
		// 创建支付意图
		// POST /v1/payments/intent
		paymentRoutes.POST("/intent",
			middlewares.LimitUser(CreateIntentLimit),
			ctrl.Payment.CreateIntent,
		)

		// 支付历史
		// GET /v1/payments/history
		paymentRoutes.GET("/history",
			middlewares.LimitPerRoute(QueryLimit),
			ctrl.Payment.GetHistory,
		)

		// 支付状态
		// GET /v1/payments/:id/status
		paymentRoutes.GET("/:id/status",
			middlewares.LimitPerRoute(QueryLimit),
			ctrl.Payment.GetStatus,
		)

		// 发起退款
		// POST /v1/payments/:id/refund
		paymentRoutes.POST("/:id/refund",
			middlewares.LimitUser(RefundLimit),
			ctrl.Payment.RequestRefund,
		)
	}
}
