package handlers

import (
	"net/http"

	"duelserver/duel"
	"duelserver/middlewares"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RoomSource はルーム状態の取得元です。
type RoomSource interface {
	SnapshotFor(roomID, playerID string) (duel.Snapshot, bool)
}

// RoomStateHandler は参加しているルームの状態を返します。
// IdentityMiddleware の後ろで使います。再戦直後の旧ルームも後片付けまでは返します。
func RoomStateHandler(c *gin.Context, rooms RoomSource, logger *zap.Logger) {
	id, ok := middlewares.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	roomID := c.Param("roomID")
	snap, ok := rooms.SnapshotFor(roomID, id.PlayerID)
	if !ok {
		logger.Info("Room not found or not a member", zap.String("roomID", roomID), zap.String("playerID", id.PlayerID))
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND"})
		return
	}
	c.JSON(http.StatusOK, snap)
}
