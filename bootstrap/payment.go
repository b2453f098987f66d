package bootstrap

import (
	appconfig "zivo/config"

	paymentctrl "zivo/app/http/controllers/api/v1/payment"
	"zivo/app/repositories"
	"zivo/pkg/config"
	"zivo/pkg/database"
	"zivo/pkg/logger"
	"zivo/pkg/payment"
	"zivo/pkg/payment/stripe"
	"zivo/pkg/payment/types"
	"zivo/pkg/storage"
	"zivo/routes"
)

// SetupPayment 组装支付核心：网关客户端、台账、编排器、对账器和控制器
func SetupPayment(notifier types.Notifier) routes.Controllers {
	gateway := stripe.New(appconfig.LoadStripeConfig())
	auditor := payment.NewAuditor()
	ledger := repositories.NewPaymentRepository(database.DB)

	orchestrator := payment.NewOrchestrator(
		gateway,
		ledger,
		auditor,
		notifier,
		config.GetString("stripe.currency", "usd"),
	)
	reconciler := payment.NewReconciler(gateway, orchestrator, auditor)

	return routes.Controllers{
		Payment: paymentctrl.NewPaymentController(
			orchestrator,
			ledger,
			repositories.NewMediaRepository(database.DB),
			repositories.NewUserRepository(database.DB),
			setupStorage(),
		),
		Webhook: paymentctrl.NewWebhookController(reconciler),
	}
}

// setupStorage 初始化媒体存储客户端，未配置凭证时返回 nil
func setupStorage() *storage.Client {
	cloudName := config.GetString("storage.cloudinary_cloud_name")
	if cloudName == "" {
		return nil
	}

	client, err := storage.New(
		cloudName,
		config.GetString("storage.cloudinary_api_key"),
		config.GetString("storage.cloudinary_api_secret"),
	)
	if err != nil {
		logger.ErrorString("存储", "初始化", err.Error())
		return nil
	}
	return client
}
