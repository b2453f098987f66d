package middlewares

import (
	"github.com/gin-gonic/gin"

	"zivo/pkg/jwt"
	"zivo/pkg/response"
)

// AuthJWT 认证中间件。
// 校验 Authorization 头中的 Bearer token，
// 通过后把 current_user_id 写入上下文供后续处理使用
func AuthJWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := jwt.NewJWT().ParserToken(c)
		if err != nil {
			response.Abort401(c, err.Error())
			return
		}

		c.Set("current_user_id", claims.UserID)
		c.Next()
	}
}

// CurrentUserID 读取上下文中已认证的用户 ID
func CurrentUserID(c *gin.Context) string {
	return c.GetString("current_user_id")
}
