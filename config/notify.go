package config

import (
	"zivo/pkg/config"
)

func init() {
	config.Add("notify", func() map[string]interface{} {
		return map[string]interface{}{
			// Firebase 服务账号凭证文件，为空时不启用推送
			"fcm_credentials_file": config.Env("FCM_CREDENTIALS_FILE", ""),
		}
	})
}
