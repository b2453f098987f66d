package bootstrap

import (
	"context"
	"fmt"
	"time"

	"zivo/app/repositories"
	"zivo/pkg/config"
	"zivo/pkg/database"
	"zivo/pkg/logger"
	"zivo/pkg/notify"
	"zivo/pkg/queue"
	"zivo/pkg/redis"
)

// SetupQueue 启动通知队列和工作器组，
// 返回供编排器使用的分发器和供优雅关闭使用的工作器句柄
func SetupQueue() (*notify.QueueNotifier, *queue.Worker) {
	if redis.Manager == nil {
		logger.ErrorString("Queue", "Setup", "Redis manager not initialized")
		return nil, nil
	}

	queueService := queue.NewService()
	notifier := notify.NewQueueNotifier(queueService)

	sender := notify.NewFCMSender(config.GetString("notify.fcm_credentials_file"))
	if sender == nil {
		logger.WarnString("Queue", "Setup", "FCM 未配置，通知将不会发送")
	}

	worker := queue.NewWorker(
		queueService,
		sender,
		repositories.NewUserRepository(database.DB),
		queue.WorkerConfig{
			WorkerCount:     config.GetInt("queue.worker_count", 4),
			MaxRetries:      config.GetInt("queue.max_retries", 3),
			RetryInterval:   time.Duration(config.GetInt("queue.retry_interval", 5)) * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
	)

	worker.Start()
	logger.InfoString("Queue", "Setup", "通知队列服务启动成功")

	return notifier, worker
}

// SetupSweeper 启动滞留支付的后台清理任务，
// 定期软删除超过时限仍处于 pending 的支付记录，返回停止通道
func SetupSweeper() chan struct{} {
	stop := make(chan struct{})

	interval := time.Duration(config.GetInt("queue.sweep_interval", 30)) * time.Minute
	maxAge := time.Duration(config.GetInt("queue.abandoned_after", 60)) * time.Minute
	repo := repositories.NewPaymentRepository(database.DB)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				swept, err := repo.SweepAbandoned(ctx, time.Now().Add(-maxAge))
				cancel()

				if err != nil {
					logger.ErrorString("支付", "清理滞留支付", err.Error())
					continue
				}
				if swept > 0 {
					logger.InfoString("支付", "清理滞留支付", fmt.Sprintf("清理 %d 条记录", swept))
				}
			}
		}
	}()

	return stop
}
