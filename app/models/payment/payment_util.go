package payment

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// Status 支付状态
type Status string

const (
	StatusPending   Status = "pending"   // 待支付
	StatusSucceeded Status = "succeeded" // 支付成功
	StatusFailed    Status = "failed"    // 支付失败（终态）
	StatusCanceled  Status = "canceled"  // 已取消（终态）
	StatusRefunded  Status = "refunded"  // 已退款（终态）
)

// legalTransitions 状态机合法迁移表
// pending → succeeded | failed | canceled；succeeded → refunded；其余一律非法
var legalTransitions = map[Status][]Status{
	StatusPending:   {StatusSucceeded, StatusFailed, StatusCanceled},
	StatusSucceeded: {StatusRefunded},
}

// IsValid 判断是否为已定义的支付状态
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSucceeded, StatusFailed, StatusCanceled, StatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo 判断从当前状态迁移到 next 是否合法
func (p *Payment) CanTransitionTo(next Status) bool {
	for _, s := range legalTransitions[p.Status] {
		if s == next {
			return true
		}
	}
	return false
}

// IsTerminal 判断当前状态是否为终态
func (p *Payment) IsTerminal() bool {
	return len(legalTransitions[p.Status]) == 0
}

// IsSuccessful 检查支付是否成功
func (p *Payment) IsSuccessful() bool {
	return p.Status == StatusSucceeded
}

// IsPending 检查是否待支付
func (p *Payment) IsPending() bool {
	return p.Status == StatusPending
}

// IsRefunded 检查是否已退款
func (p *Payment) IsRefunded() bool {
	return p.Status == StatusRefunded
}

// Validate 验证支付记录
func (p *Payment) Validate() error {
	if p.UserID == "" {
		return errors.New("user_id is required")
	}
	if p.MediaID == "" {
		return errors.New("media_id is required")
	}
	if p.Amount <= 0 {
		return errors.New("amount must be greater than 0")
	}
	return nil
}

// JSON 自定义 JSON 类型，存放网关原始响应
type JSON map[string]interface{}

// Value 实现 driver.Valuer 接口
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan 实现 sql.Scanner 接口
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSON)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("invalid scan source")
	}
	return json.Unmarshal(bytes, j)
}
