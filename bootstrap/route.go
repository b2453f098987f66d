package bootstrap

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"zivo/app/http/middlewares"
	"zivo/routes"
)

// SetupRoute 路由初始化
func SetupRoute(router *gin.Engine, ctrl routes.Controllers) {
	// 注册全局中间件
	registerGlobalMiddleWare(router)

	// 注册 API 路由
	routes.RegisterAPIRoutes(router, ctrl)

	// 配置 404 路由处理器
	setup404Handler(router)
}

// registerGlobalMiddleWare 注册全局中间件
func registerGlobalMiddleWare(router *gin.Engine) {
	router.Use(
		middlewares.Logger(),   // 记录请求日志
		middlewares.Recovery(), // 在发生 panic 时恢复
	)
}

// setup404Handler 配置 404 请求处理器
func setup404Handler(router *gin.Engine) {
	router.NoRoute(func(c *gin.Context) {
		acceptString := c.Request.Header.Get("Accept")

		if strings.Contains(acceptString, "text/html") {
			c.String(http.StatusNotFound, "页面返回 404")
		} else {
			c.JSON(http.StatusNotFound, gin.H{
				"error_code":    404,
				"error_message": "路由未定义，请确认 url 和请求方法是否正确。",
			})
		}
	})
}
