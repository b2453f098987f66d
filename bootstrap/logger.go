// Package bootstrap 处理应用初始化逻辑
package bootstrap

import (
	"zivo/pkg/config"
	"zivo/pkg/logger"
)

// SetupLogger 初始化 Logger
func SetupLogger() {
	logger.InitLogger(
		config.GetString("log.filename"), // 日志文件路径
		config.GetInt("log.max_size"),    // 日志文件大小
		config.GetInt("log.max_backup"),  // 最多保存备份数
		config.GetInt("log.max_age"),     // 日志文件保存天数
		config.GetBool("log.compress"),   // 是否压缩
		config.GetString("log.type"),     // 日志记录类型
		config.GetString("log.level"),    // 日志级别
	)
}
