// Package queue 基于 Redis 的支付通知队列。
// 编排器把支付结果通知投递进来，后台工作器消费并推送给用户
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"zivo/pkg/config"
	"zivo/pkg/payment/types"
	"zivo/pkg/redis"
)

// TaskStatus 通知任务状态
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskSent    TaskStatus = "sent"
	TaskFailed  TaskStatus = "failed"
)

// NotificationTask 支付通知任务
type NotificationTask struct {
	ID           string             `json:"id"`
	Notification types.Notification `json:"notification"`
	Status       TaskStatus         `json:"status"`
	Attempts     int                `json:"attempts"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Service Redis 通知队列服务
type Service struct {
	client      *redis.RedisClient
	prefix      string
	timeout     time.Duration
	rateLimiter *rate.Limiter
	metrics     *Metrics
}

// NewService 创建队列服务实例
func NewService() *Service {
	rateLimit := config.GetInt("queue.rate_limit", 1000)
	burst := config.GetInt("queue.rate_burst", rateLimit)

	return &Service{
		client:      redis.GetRedis(redis.QueueDB),
		prefix:      config.GetString("redis.queue_prefix", "zivo"),
		timeout:     time.Duration(config.GetInt("redis.queue_timeout", 3600)) * time.Second,
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), burst),
		metrics:     NewMetrics(),
	}
}

// Push 把通知任务推入队列，入队与状态写入走同一个 pipeline
func (q *Service) Push(ctx context.Context, task *NotificationTask) error {
	if err := q.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	start := time.Now()
	defer func() {
		q.metrics.RecordPushLatency(time.Since(start))
	}()

	taskJSON, err := json.Marshal(task)
	if err != nil {
		q.metrics.RecordError(OpPush)
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	key := fmt.Sprintf("%s:notifications", q.prefix)
	statusKey := fmt.Sprintf("%s:notification_status:%s", q.prefix, task.ID)

	pipe := q.client.Client.Pipeline()
	pipe.LPush(ctx, key, taskJSON)
	pipe.Set(ctx, statusKey, string(TaskPending), q.timeout)

	if _, err = pipe.Exec(ctx); err != nil {
		q.metrics.RecordError(OpPush)
		return fmt.Errorf("failed to push task: %w", err)
	}

	q.metrics.RecordSuccess(OpPush)
	return nil
}

// Pop 从队列取出一个通知任务，队列为空时阻塞到超时并返回 (nil, nil)
func (q *Service) Pop(ctx context.Context, timeout time.Duration) (*NotificationTask, error) {
	key := fmt.Sprintf("%s:notifications", q.prefix)

	result, err := q.client.Client.BRPop(ctx, timeout, key).Result()
	if err != nil {
		if err == goredis.Nil || err == context.DeadlineExceeded {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop task from queue: %w", err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("invalid result from queue")
	}

	var task NotificationTask
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// UpdateStatus 更新通知任务状态
func (q *Service) UpdateStatus(ctx context.Context, taskID string, status TaskStatus) error {
	statusKey := fmt.Sprintf("%s:notification_status:%s", q.prefix, taskID)
	if err := q.client.Client.Set(ctx, statusKey, string(status), q.timeout).Err(); err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return nil
}

// GetStatus 获取通知任务状态，任务不存在时返回空字符串
func (q *Service) GetStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	statusKey := fmt.Sprintf("%s:notification_status:%s", q.prefix, taskID)
	status, err := q.client.Client.Get(ctx, statusKey).Result()
	if err != nil {
		if err == goredis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("failed to get task status: %w", err)
	}
	return TaskStatus(status), nil
}

// Ping 检查队列服务健康状态
func (q *Service) Ping(ctx context.Context) error {
	return q.client.Ping()
}
