package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ContextUserKey は、ハンドラー間でログイン済みユーザーIDを共有するためのキーです。
const ContextUserKey = "auth.user_id"

// RequireLogin はセッションを検証するミドルウェアを返します。
// 未ログインの場合は 403 ではなく 404 を返し、リソースの存在自体を明かしません。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := m.sessions.Resolve(c)
		if !ok {
			respondNotFound(c)
			return
		}
		c.Set(ContextUserKey, userID)
		c.Next()
	}
}

// CurrentUserID は RequireLogin が設定したユーザーIDを返します。
func CurrentUserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

func respondNotFound(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
		"code":    "NOT_FOUND",
		"message": "リソースが見つかりません",
	})
}
