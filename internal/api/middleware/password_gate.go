package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ChangePasswordPath 是仍需改密的账号唯一可用的业务入口。
const ChangePasswordPath = "/v1/auth/change-password"

// RequirePasswordChangeCompleted 拦截管理员开通、尚未改密的账号。
// 判断依据是访问令牌中的声明，改密后重新签发的令牌即可放行。
func RequirePasswordChangeCompleted() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(MustChangePasswordKey) {
			c.Next()
			return
		}
		LoggerFromContext(c).Info("request blocked until password change",
			slog.Uint64("user_id", uint64(c.GetUint(UserIDKey))),
			slog.String("path", c.FullPath()),
		)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":       "password change required",
			"change_path": ChangePasswordPath,
		})
	}
}
