package config

import (
	"zivo/pkg/config"
)

func init() {
	config.Add("queue", func() map[string]interface{} {
		return map[string]interface{}{
			// 入队限流，每秒任务数
			"rate_limit": config.Env("QUEUE_RATE_LIMIT", 1000),
			"rate_burst": config.Env("QUEUE_RATE_BURST", 1000),

			// 通知工作器
			"worker_count":   config.Env("QUEUE_WORKER_COUNT", 4),
			"max_retries":    config.Env("QUEUE_MAX_RETRIES", 3),
			"retry_interval": config.Env("QUEUE_RETRY_INTERVAL", 5),

			// 超过该时长仍未完成的 pending 支付会被后台清理（分钟）
			"abandoned_after": config.Env("QUEUE_ABANDONED_AFTER", 60),
			// 清理任务执行间隔（分钟）
			"sweep_interval": config.Env("QUEUE_SWEEP_INTERVAL", 30),
		}
	})
}
