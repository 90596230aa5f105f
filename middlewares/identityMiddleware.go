package middlewares

import (
	"net/http"

	"duelserver/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const identityKey = "identity"

// IdentityMiddleware は Authorization ヘッダーの識別トークンを検証し、プレイヤーをコンテキストにセットします。
// トークンが無い・無効な場合は新しい識別子を発行し、更新したトークンはレスポンスヘッダーで返します。
func IdentityMiddleware(issuer *auth.Issuer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, refreshed, err := issuer.Resolve(c.GetHeader("Authorization"), "")
		if err != nil {
			logger.Error("識別トークンの発行に失敗", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
			return
		}
		if refreshed {
			c.Header("Authorization", id.Token)
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// IdentityFromContext は IdentityMiddleware がセットしたプレイヤーを返します。
func IdentityFromContext(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}
