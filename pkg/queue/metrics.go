package queue

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricOperation 指标操作类型
type MetricOperation string

const (
	OpPush    MetricOperation = "push"
	OpPop     MetricOperation = "pop"
	OpDeliver MetricOperation = "deliver"
)

// latencyStats 延迟统计
type latencyStats struct {
	mu    sync.Mutex
	count int64
	total time.Duration
	min   time.Duration
	max   time.Duration
}

// Metrics 队列性能指标收集器
type Metrics struct {
	totalTasks      atomic.Int64
	successfulTasks atomic.Int64
	failedTasks     atomic.Int64

	pushLatency    *latencyStats
	deliverLatency *latencyStats
}

// NewMetrics 创建指标收集器
func NewMetrics() *Metrics {
	return &Metrics{
		pushLatency:    &latencyStats{},
		deliverLatency: &latencyStats{},
	}
}

// RecordSuccess 记录成功操作
func (m *Metrics) RecordSuccess(op MetricOperation) {
	m.successfulTasks.Add(1)
	m.totalTasks.Add(1)
}

// RecordError 记录失败操作
func (m *Metrics) RecordError(op MetricOperation) {
	m.failedTasks.Add(1)
	m.totalTasks.Add(1)
}

// RecordPushLatency 记录入队延迟
func (m *Metrics) RecordPushLatency(d time.Duration) {
	m.pushLatency.record(d)
}

// RecordDeliverLatency 记录投递延迟
func (m *Metrics) RecordDeliverLatency(d time.Duration) {
	m.deliverLatency.record(d)
}

// Snapshot 当前指标快照
func (m *Metrics) Snapshot() (total, successful, failed int64) {
	return m.totalTasks.Load(), m.successfulTasks.Load(), m.failedTasks.Load()
}

func (s *latencyStats) record(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	s.total += d
	if s.min == 0 || d < s.min {
		s.min = d
	}
	if d > s.max {
		s.max = d
	}
}
