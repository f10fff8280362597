package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"careerResume/internal/auth"
)

// 上下文键，由 AuthMiddleware 写入。
const (
	UserIDKey             = "userID"
	MustChangePasswordKey = "mustChangePassword"
)

// AuthMiddleware 校验 Bearer 访问令牌，把用户写入上下文与请求日志。
func AuthMiddleware(tokens *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, token, found := strings.Cut(strings.TrimSpace(c.GetHeader("Authorization")), " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		claims, err := tokens.ValidateTokenOfType(strings.TrimSpace(token), auth.TokenTypeAccess)
		if err != nil {
			LoggerFromContext(c).Info("access token rejected", slog.Any("error", err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(MustChangePasswordKey, claims.MustChangePassword)
		c.Set(slogLoggerKey, LoggerFromContext(c).With(slog.Uint64("user_id", uint64(claims.UserID))))
		c.Next()
	}
}
