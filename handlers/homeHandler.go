package handlers

import (
	"net/http"
	"os"
	"time"

	"duelserver/duel"

	"github.com/gin-gonic/gin"
)

// StatsSource は /health に載せる集計の取得元です。
type StatsSource interface {
	Stats() duel.Stats
}

// RootHandler は生存確認用のテキストを返します。
func RootHandler(c *gin.Context) {
	c.String(http.StatusOK, "duelserver alive")
}

// HealthHandler は稼働時間とルーム数、待機列の長さを返します。
func HealthHandler(c *gin.Context, stats StatsSource, startedAt time.Time) {
	st := stats.Stats()
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"uptime":      time.Since(startedAt).Seconds(),
		"env":         env,
		"rooms":       st.Rooms,
		"activeRooms": st.ActiveRooms,
		"connections": st.Connections,
		"queues":      st.Queues,
		"timestamp":   time.Now().UnixMilli(),
	})
}
