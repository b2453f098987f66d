package types

import (
	"errors"
	"fmt"
	"net/http"
)

// Error 支付域错误，携带结构化错误码和建议的 HTTP 状态
type Error struct {
	Code       string
	Message    string
	HTTPStatus int
}

// Error 实现 error 接口
func (e *Error) Error() string {
	return e.Message
}

// 支付域错误分类
var (
	// ErrPaymentNotFound 本地台账中找不到对应的支付记录
	ErrPaymentNotFound = &Error{
		Code:       "payment_not_found",
		Message:    "payment not found",
		HTTPStatus: http.StatusNotFound,
	}

	// ErrDuplicatePendingPayment 同一媒体已存在 pending 支付记录。
	// 调用侧通过返回已有意图解决，不作为硬错误暴露给用户
	ErrDuplicatePendingPayment = &Error{
		Code:       "duplicate_pending_payment",
		Message:    "a pending payment already exists for this media",
		HTTPStatus: http.StatusConflict,
	}

	// ErrIllegalTransition 非法状态迁移，属于编程/乱序缺陷或回放异常，高等级记录
	ErrIllegalTransition = &Error{
		Code:       "illegal_transition",
		Message:    "illegal payment status transition",
		HTTPStatus: http.StatusConflict,
	}

	// ErrPaymentNotSettled 网关侧意图尚未结算，不能确认成功
	ErrPaymentNotSettled = &Error{
		Code:       "payment_not_settled",
		Message:    "payment intent not settled on gateway",
		HTTPStatus: http.StatusConflict,
	}

	// ErrMissingCharge 退款前置条件失败：没有已知的 charge id
	ErrMissingCharge = &Error{
		Code:       "missing_charge",
		Message:    "no charge id found for refund",
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	// ErrRefundExceedsOriginal 请求退款金额超过原支付金额
	ErrRefundExceedsOriginal = &Error{
		Code:       "refund_exceeds_original",
		Message:    "refund amount cannot exceed the original payment amount",
		HTTPStatus: http.StatusUnprocessableEntity,
	}
)

// GatewayError 网关调用错误。
// Transient 为 true 表示网络/超时类瞬时错误，调用方可重试；
// 为 false 表示网关拒绝（如金额非法），不应自动重试
type GatewayError struct {
	Code      string
	Message   string
	Transient bool
	Err       error
}

// Error 实现 error 接口
func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment gateway error [%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("payment gateway error [%s]: %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Is / errors.As
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsTransient 判断错误是否为可重试的瞬时网关错误
func IsTransient(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Transient
	}
	return false
}
