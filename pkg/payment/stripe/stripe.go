// Package stripe Stripe 支付网关客户端
// 对网关 HTTP API 的薄适配：创建/查询支付意图、创建退款、校验回调签名
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"zivo/config"
	"zivo/pkg/logger"
	"zivo/pkg/payment/types"
)

const (
	// DefaultBaseURL Stripe API 地址
	DefaultBaseURL = "https://api.stripe.com"
	// DefaultTimeout 网关调用超时上限，所有调用都有界
	DefaultTimeout = 15 * time.Second
)

// Client Stripe 网关客户端
type Client struct {
	http          *resty.Client
	webhookSecret string
	tolerance     time.Duration
}

// 编译期断言，确保实现 Gateway 接口
var _ types.Gateway = (*Client)(nil)

// New 创建 Stripe 网关客户端
func New(cfg config.StripeConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(cfg.SecretKey).
		SetHeader("Content-Type", "application/x-www-form-urlencoded")

	return &Client{
		http:          httpClient,
		webhookSecret: cfg.WebhookSecret,
		tolerance:     5 * time.Minute,
	}
}

// CreateIntent 创建支付意图
// 幂等键通过 Idempotency-Key 请求头传给网关，同键重试复用网关侧 intent
func (c *Client) CreateIntent(ctx context.Context, req types.CreateIntentRequest) (*types.Intent, error) {
	form := map[string]string{
		"amount":                             strconv.FormatInt(req.Amount, 10),
		"currency":                           req.Currency,
		"automatic_payment_methods[enabled]": "true",
	}
	for k, v := range req.Metadata {
		form[fmt.Sprintf("metadata[%s]", k)] = v
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", req.IdempotencyKey).
		SetFormData(form).
		Post("/v1/payment_intents")

	raw, err := c.classify("CreateIntent", resp, err)
	if err != nil {
		return nil, err
	}

	return intentFromRaw(raw), nil
}

// RetrieveIntent 查询支付意图的权威状态
func (c *Client) RetrieveIntent(ctx context.Context, intentID string) (*types.Intent, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/v1/payment_intents/" + intentID)

	raw, err := c.classify("RetrieveIntent", resp, err)
	if err != nil {
		return nil, err
	}

	return intentFromRaw(raw), nil
}

// CreateRefund 创建退款
func (c *Client) CreateRefund(ctx context.Context, req types.RefundRequest) (*types.Refund, error) {
	form := map[string]string{
		"charge": req.ChargeID,
		"amount": strconv.FormatInt(req.Amount, 10),
		"reason": "requested_by_customer",
	}
	for k, v := range req.Metadata {
		form[fmt.Sprintf("metadata[%s]", k)] = v
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", req.IdempotencyKey).
		SetFormData(form).
		Post("/v1/refunds")

	raw, err := c.classify("CreateRefund", resp, err)
	if err != nil {
		return nil, err
	}

	refund := &types.Refund{Raw: raw}
	refund.ID, _ = raw["id"].(string)
	refund.Status, _ = raw["status"].(string)
	return refund, nil
}

// classify 区分瞬时网络错误和网关拒绝，并解析响应体。
// 传输层错误和 5xx/429 视为瞬时可重试；其余 4xx 为网关拒绝，不应自动重试。
// 超时不代表网关侧失败，调用方只能凭幂等键重查，不能据此断定扣款未发生
func (c *Client) classify(op string, resp *resty.Response, err error) (map[string]interface{}, error) {
	if err != nil {
		logger.ErrorString("Stripe", op, fmt.Sprintf("传输层错误: %v", err))
		return nil, &types.GatewayError{
			Code:      "network_error",
			Message:   "gateway request failed",
			Transient: true,
			Err:       err,
		}
	}

	var raw map[string]interface{}
	if jsonErr := json.Unmarshal(resp.Body(), &raw); jsonErr != nil {
		return nil, &types.GatewayError{
			Code:      "invalid_response",
			Message:   fmt.Sprintf("cannot decode gateway response (status %d)", resp.StatusCode()),
			Transient: resp.StatusCode() >= http.StatusInternalServerError,
			Err:       jsonErr,
		}
	}

	status := resp.StatusCode()
	if status >= http.StatusOK && status < http.StatusMultipleChoices {
		return raw, nil
	}

	code, message := parseAPIError(raw)
	transient := status >= http.StatusInternalServerError || status == http.StatusTooManyRequests

	logger.ErrorString("Stripe", op, fmt.Sprintf(
		"网关返回错误 status:%d code:%s message:%s", status, code, message))

	return nil, &types.GatewayError{
		Code:      code,
		Message:   message,
		Transient: transient,
	}
}

// parseAPIError 解析网关错误体 {"error": {"code": ..., "message": ...}}
func parseAPIError(raw map[string]interface{}) (code, message string) {
	code, message = "gateway_rejected", "gateway rejected the request"
	errObj, ok := raw["error"].(map[string]interface{})
	if !ok {
		return code, message
	}
	if v, ok := errObj["code"].(string); ok && v != "" {
		code = v
	}
	if v, ok := errObj["message"].(string); ok && v != "" {
		message = v
	}
	return code, message
}

// intentFromRaw 从原始响应构建 Intent
func intentFromRaw(raw map[string]interface{}) *types.Intent {
	intent := &types.Intent{Raw: raw}
	intent.ID, _ = raw["id"].(string)
	intent.ClientSecret, _ = raw["client_secret"].(string)
	intent.Status, _ = raw["status"].(string)
	// latest_charge 可能是字符串 id，也可能是展开后的对象
	switch v := raw["latest_charge"].(type) {
	case string:
		intent.LatestCharge = v
	case map[string]interface{}:
		intent.LatestCharge, _ = v["id"].(string)
	}
	return intent
}
