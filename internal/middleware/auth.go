package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// UserIDKey gin 上下文中已认证用户ID的键
const UserIDKey = "userID"

// RequireAuth 校验 Bearer JWT（HS256），将 sub 作为用户ID写入上下文。
// secret 每次请求时读取，配置热更新后立即生效。
func RequireAuth(secret func() string, logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := secret()
		if key == "" {
			logger.Error("未配置 auth.jwtSecret，拒绝所有需要认证的请求")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
			return
		}

		authHeader := c.GetHeader("Authorization")
		scheme, raw, found := strings.Cut(authHeader, " ")
		if !found || scheme != "Bearer" || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return []byte(key), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid || claims.Subject == "" {
			logger.Debugf("无效的会话令牌: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "会话无效或已过期"})
			return
		}

		c.Set(UserIDKey, claims.Subject)
		c.Next()
	}
}

// UserID 返回已认证的用户ID
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
