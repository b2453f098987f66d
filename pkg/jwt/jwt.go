// Package jwt 处理 JWT 认证
package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwtpkg "github.com/golang-jwt/jwt/v5"

	"zivo/pkg/config"
)

var (
	// ErrTokenExpired token 已过期
	ErrTokenExpired = errors.New("token 已过期")
	// ErrTokenMalformed 请求令牌格式有误
	ErrTokenMalformed = errors.New("请求令牌格式有误")
	// ErrTokenInvalid 请求令牌无效
	ErrTokenInvalid = errors.New("请求令牌无效")
	// ErrHeaderEmpty 需要认证才能访问
	ErrHeaderEmpty = errors.New("需要认证才能访问")
	// ErrHeaderMalformed 请求头中 Authorization 格式有误
	ErrHeaderMalformed = errors.New("请求头中 Authorization 格式有误")
)

// CustomClaims 自定义载荷
type CustomClaims struct {
	UserID string `json:"user_id"`
	jwtpkg.RegisteredClaims
}

// JWT 对象
type JWT struct {
	SignKey    []byte
	ExpireTime time.Duration
}

// NewJWT 创建 JWT 实例
func NewJWT() *JWT {
	return &JWT{
		SignKey:    []byte(config.GetString("jwt.secret")),
		ExpireTime: time.Duration(config.GetInt64("jwt.expire_time", 7200)) * time.Second,
	}
}

// IssueToken 签发新 token
func (j *JWT) IssueToken(userID string) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		UserID: userID,
		RegisteredClaims: jwtpkg.RegisteredClaims{
			Issuer:    config.GetString("app.name"),
			IssuedAt:  jwtpkg.NewNumericDate(now),
			ExpiresAt: jwtpkg.NewNumericDate(now.Add(j.ExpireTime)),
		},
	}

	token := jwtpkg.NewWithClaims(jwtpkg.SigningMethodHS256, claims)
	return token.SignedString(j.SignKey)
}

// ParserToken 解析 token，中间件中调用
func (j *JWT) ParserToken(c *gin.Context) (*CustomClaims, error) {
	tokenString, err := j.getTokenFromHeader(c)
	if err != nil {
		return nil, err
	}

	token, err := jwtpkg.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwtpkg.Token) (interface{}, error) {
		return j.SignKey, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwtpkg.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwtpkg.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		default:
			return nil, ErrTokenInvalid
		}
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrTokenInvalid
}

// getTokenFromHeader 从请求头中获取 token
// 格式: Authorization: Bearer xxxxx
func (j *JWT) getTokenFromHeader(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", ErrHeaderEmpty
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", ErrHeaderMalformed
	}
	return parts[1], nil
}
