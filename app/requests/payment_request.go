package requests

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thedevsaddam/govalidator"

	"zivo/app/models/payment"
)

// CreateIntentRequest 创建支付意图的请求
type CreateIntentRequest struct {
	MediaID string `json:"media_id" valid:"media_id"`
}

// ValidateCreateIntent 验证创建支付意图请求
func ValidateCreateIntent(c *gin.Context) (*CreateIntentRequest, error) {
	rules := govalidator.MapData{
		"media_id": []string{"required", "min:1"},
	}
	messages := govalidator.MapData{
		"media_id": []string{
			"required:媒体 ID 不能为空",
		},
	}

	req, err := ValidateRequest[CreateIntentRequest](c, rules, messages)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// RefundRequest 退款请求
// amount 省略时表示全额退款
type RefundRequest struct {
	Reason string `json:"reason" valid:"reason"`
	Amount *int64 `json:"amount" valid:"amount"`
}

// ValidateRefund 验证退款请求
func ValidateRefund(c *gin.Context) (*RefundRequest, error) {
	rules := govalidator.MapData{
		"reason": []string{"required", "min:10", "max:500"},
	}
	messages := govalidator.MapData{
		"reason": []string{
			"required:退款原因不能为空",
			"min:退款原因不能少于 10 个字符",
			"max:退款原因不能超过 500 个字符",
		},
	}

	req, err := ValidateRequest[RefundRequest](c, rules, messages)
	if err != nil {
		return nil, err
	}

	if req.Amount != nil && *req.Amount < 1 {
		return nil, fmt.Errorf("退款金额必须大于 0")
	}

	return &req, nil
}

// HistoryRequest 支付历史查询条件
type HistoryRequest struct {
	Status    string
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PerPage   int
}

// ValidateHistory 解析并验证支付历史查询参数
func ValidateHistory(c *gin.Context) (*HistoryRequest, error) {
	req := &HistoryRequest{
		Status:  c.Query("status"),
		Page:    queryInt(c, "page", 1),
		PerPage: queryInt(c, "per_page", 15),
	}

	if req.Status != "" && !payment.Status(req.Status).IsValid() {
		return nil, fmt.Errorf("无效的状态过滤条件: %s", req.Status)
	}

	if v := c.Query("start_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return nil, fmt.Errorf("无效的开始日期: %s", v)
		}
		req.StartDate = &t
	}
	if v := c.Query("end_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return nil, fmt.Errorf("无效的结束日期: %s", v)
		}
		// 结束日期按当天末尾计算
		end := t.Add(24*time.Hour - time.Nanosecond)
		req.EndDate = &end
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return nil, fmt.Errorf("结束日期不能早于开始日期")
	}

	return req, nil
}

// queryInt 解析整数查询参数，非法值回退到默认值
func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n < 1 {
		return def
	}
	return n
}
