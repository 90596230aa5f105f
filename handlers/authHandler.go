package handlers

import (
	"errors"
	"io"
	"net/http"

	"duelserver/auth"
	"duelserver/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IdentityHandler は識別トークンを発行または更新します。
// 有効なトークンが送られれば同じプレイヤーIDのまま返します。
func IdentityHandler(c *gin.Context, issuer *auth.Issuer, logger *zap.Logger) {
	var req models.IdentityRequest
	// ボディは省略可
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token := req.Token
	if token == "" {
		token = c.GetHeader("Authorization")
	}

	id, refreshed, err := issuer.Resolve(token, req.Name)
	if err != nil {
		logger.Error("Failed to issue identity token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	if refreshed {
		logger.Info("Identity token issued", zap.String("playerID", id.PlayerID))
	}

	c.JSON(http.StatusOK, gin.H{
		"playerId":  id.PlayerID,
		"name":      id.Name,
		"token":     id.Token,
		"refreshed": refreshed,
	})
}
