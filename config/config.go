package config

// Initialize 触发本包所有配置文件的 init 加载。
// main 以匿名导入本包即可完成注册，这里显式提供入口便于阅读
func Initialize() {
	// 各配置项通过 init() 注册
}
