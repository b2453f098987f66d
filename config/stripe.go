package config

import (
	"time"

	"zivo/pkg/config"
)

// StripeConfig Stripe 网关客户端配置
type StripeConfig struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
	Currency       string
	BaseURL        string
	Timeout        time.Duration
}

func init() {
	config.Add("stripe", func() map[string]interface{} {
		return map[string]interface{}{
			"secret_key":      config.Env("STRIPE_SECRET_KEY", ""),
			"publishable_key": config.Env("STRIPE_PUBLISHABLE_KEY", ""),
			"webhook_secret":  config.Env("STRIPE_WEBHOOK_SECRET", ""),

			// 结算货币，ISO 代码
			"currency": config.Env("STRIPE_CURRENCY", "usd"),

			// API 地址，测试时指向本地 mock
			"base_url": config.Env("STRIPE_BASE_URL", ""),

			// 网关调用超时（秒）
			"timeout": config.Env("STRIPE_TIMEOUT", 15),
		}
	})
}

// LoadStripeConfig 读取 Stripe 配置
func LoadStripeConfig() StripeConfig {
	return StripeConfig{
		SecretKey:      config.GetString("stripe.secret_key"),
		PublishableKey: config.GetString("stripe.publishable_key"),
		WebhookSecret:  config.GetString("stripe.webhook_secret"),
		Currency:       config.GetString("stripe.currency", "usd"),
		BaseURL:        config.GetString("stripe.base_url"),
		Timeout:        time.Duration(config.GetInt("stripe.timeout", 15)) * time.Second,
	}
}
