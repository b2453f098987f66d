package config

import (
	"zivo/pkg/config"
)

func init() {
	config.Add("log", func() map[string]interface{} {
		return map[string]interface{}{

			// 日志级别，debug / info / warn / error
			"level": config.Env("LOG_LEVEL", "info"),

			// 日志类型：single 独立文件，daily 按日期切割
			"type": config.Env("LOG_TYPE", "single"),

			// 日志文件路径
			"filename": config.Env("LOG_NAME", "storage/logs/app.log"),

			// 每个日志文件保存的最大尺寸，单位 MB
			"max_size": config.Env("LOG_MAX_SIZE", 64),

			// 最多保存的日志文件数
			"max_backup": config.Env("LOG_MAX_BACKUP", 5),

			// 最多保存天数
			"max_age": config.Env("LOG_MAX_AGE", 30),

			// 是否压缩归档的日志
			"compress": config.Env("LOG_COMPRESS", false),
		}
	})
}
