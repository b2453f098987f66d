package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"zivo/pkg/logger"
)

// Deliverer 通知投递端，由推送服务实现
type Deliverer interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// TokenFinder 设备 token 查询，由用户仓库实现
type TokenFinder interface {
	GetFCMToken(ctx context.Context, userID string) (string, error)
}

// WorkerConfig 工作器配置
type WorkerConfig struct {
	WorkerCount     int           // 并发工作器数量
	MaxRetries      int           // 单条通知最大重试次数
	RetryInterval   time.Duration // 重试间隔
	ShutdownTimeout time.Duration // 关闭超时时间
}

// Worker 通知队列工作器组，消费队列并把支付结果推送给用户
type Worker struct {
	queue     *Service
	deliverer Deliverer
	tokens    TokenFinder
	stopChan  chan struct{}
	wg        sync.WaitGroup
	config    WorkerConfig
}

// NewWorker 创建工作器组
func NewWorker(q *Service, deliverer Deliverer, tokens TokenFinder, config WorkerConfig) *Worker {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 4
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 5 * time.Second
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}

	return &Worker{
		queue:     q,
		deliverer: deliverer,
		tokens:    tokens,
		stopChan:  make(chan struct{}),
		config:    config,
	}
}

// Start 启动工作器组
func (w *Worker) Start() {
	for i := 0; i < w.config.WorkerCount; i++ {
		w.wg.Add(1)
		go w.run(i)
	}
}

// run 单个工作器主循环
func (w *Worker) run(id int) {
	defer w.wg.Done()

	logger.InfoString("Worker", "Start", fmt.Sprintf("notification worker %d started", id))

	for {
		select {
		case <-w.stopChan:
			logger.InfoString("Worker", "Stop", fmt.Sprintf("notification worker %d stopping", id))
			return
		default:
			if err := w.processNext(); err != nil {
				logger.ErrorString("Worker", "Process", fmt.Sprintf("worker %d: %v", id, err))
				time.Sleep(time.Second)
			}
		}
	}
}

// processNext 取出并处理下一条通知
func (w *Worker) processNext() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	task, err := w.queue.Pop(ctx, 5*time.Second)
	if err != nil {
		return err
	}
	if task == nil {
		return nil
	}

	start := time.Now()
	defer func() {
		w.queue.metrics.RecordDeliverLatency(time.Since(start))
	}()

	return w.deliver(ctx, task)
}

// deliver 投递单条通知，失败时按配置重试
func (w *Worker) deliver(ctx context.Context, task *NotificationTask) error {
	token, err := w.tokens.GetFCMToken(ctx, task.Notification.UserID)
	if err != nil {
		w.queue.metrics.RecordError(OpDeliver)
		return fmt.Errorf("lookup fcm token: %w", err)
	}
	if token == "" {
		// 用户未注册设备，通知不可达，直接完结
		if err := w.queue.UpdateStatus(ctx, task.ID, TaskSent); err != nil {
			logger.ErrorString("Worker", "UpdateStatus", err.Error())
		}
		return nil
	}

	title, body := renderNotification(task)
	data := map[string]string{
		"type":       task.Notification.Event,
		"payment_id": task.Notification.PaymentID,
		"media_id":   task.Notification.MediaID,
		"amount":     strconv.FormatInt(task.Notification.Amount, 10),
	}

	var sendErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-w.stopChan:
				return nil
			case <-time.After(w.config.RetryInterval):
			}
		}
		if sendErr = w.deliverer.Send(ctx, token, title, body, data); sendErr == nil {
			break
		}
	}

	status := TaskSent
	if sendErr != nil {
		status = TaskFailed
		w.queue.metrics.RecordError(OpDeliver)
	} else {
		w.queue.metrics.RecordSuccess(OpDeliver)
	}
	if err := w.queue.UpdateStatus(ctx, task.ID, status); err != nil {
		logger.ErrorString("Worker", "UpdateStatus", err.Error())
	}

	if sendErr != nil {
		return fmt.Errorf("deliver notification %s: %w", task.ID, sendErr)
	}
	return nil
}

// renderNotification 生成推送标题和正文
func renderNotification(task *NotificationTask) (title, body string) {
	amount := float64(task.Notification.Amount) / 100

	switch task.Notification.Event {
	case "payment_succeeded":
		return "Reward paid", fmt.Sprintf("Your reward of $%.2f has been paid.", amount)
	case "payment_refunded":
		return "Payment refunded", fmt.Sprintf("A refund of $%.2f has been issued.", amount)
	default:
		return "Payment update", fmt.Sprintf("Your payment status changed: %s", task.Notification.Event)
	}
}

// Stop 优雅关闭工作器组
func (w *Worker) Stop() {
	close(w.stopChan)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.InfoString("Worker", "Stop", "all notification workers stopped gracefully")
	case <-time.After(w.config.ShutdownTimeout):
		logger.WarnString("Worker", "Stop", "worker shutdown timed out")
	}
}
