package handlers

import (
	"net/http"

	"duelserver/questions"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// QuestionsHandler は ?pool=club|national で絞った問題一覧を返します。指定が無ければ全問。
func QuestionsHandler(c *gin.Context, bank *questions.Bank, logger *zap.Logger) {
	pool := c.Query("pool")
	list := bank.Pool(pool)
	logger.Debug("Questions served", zap.String("pool", pool), zap.Int("count", len(list)))
	c.JSON(http.StatusOK, list)
}
