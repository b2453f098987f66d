package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"zivo/pkg/logger"
	"zivo/pkg/payment/types"
	"zivo/pkg/queue"
)

// QueueNotifier 把支付通知投递到 Redis 队列，由后台工作器异步发送。
// 实现 types.Notifier，即发即忘，投递失败只记录日志，
// 不影响支付状态迁移本身
type QueueNotifier struct {
	queue *queue.Service
}

// 编译期断言
var _ types.Notifier = (*QueueNotifier)(nil)

// NewQueueNotifier 创建队列分发器
func NewQueueNotifier(q *queue.Service) *QueueNotifier {
	return &QueueNotifier{queue: q}
}

// Dispatch 投递一条支付通知
func (n *QueueNotifier) Dispatch(ctx context.Context, notification types.Notification) {
	task := &queue.NotificationTask{
		ID:           uuid.New().String(),
		Notification: notification,
		Status:       queue.TaskPending,
		CreatedAt:    time.Now(),
	}
	if err := n.queue.Push(ctx, task); err != nil {
		logger.ErrorString("通知", "入队", err.Error())
	}
}
