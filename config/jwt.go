package config

import (
	"zivo/pkg/config"
)

func init() {
	config.Add("jwt", func() map[string]interface{} {
		return map[string]interface{}{
			"secret": config.Env("JWT_SECRET", ""),

			// token 有效期（秒）
			"expire_time": config.Env("JWT_EXPIRE_TIME", 7200),
		}
	})
}
