// Package notify 支付结果的推送通知：队列分发器与 FCM 发送端
package notify

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"zivo/pkg/logger"
)

// Sender 推送发送端接口
type Sender interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// FCMSender 基于 Firebase Cloud Messaging 的推送发送端
type FCMSender struct {
	client *messaging.Client
}

// NewFCMSender 创建 FCM 发送端。
// 未配置凭证文件时返回 nil，调用方按未启用处理
func NewFCMSender(credentialsFile string) *FCMSender {
	if credentialsFile == "" {
		return nil
	}

	ctx := context.Background()
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		logger.ErrorString("通知", "FCM 初始化", err.Error())
		return nil
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		logger.ErrorString("通知", "FCM 初始化", err.Error())
		return nil
	}
	return &FCMSender{client: client}
}

// Send 向指定设备 token 发送推送。
// 发送端未启用或 token 为空时静默跳过
func (s *FCMSender) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	if s == nil || token == "" {
		return nil
	}

	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}

	if _, err := s.client.Send(ctx, msg); err != nil {
		logger.ErrorString("通知", "FCM 发送", err.Error())
		return err
	}
	return nil
}
