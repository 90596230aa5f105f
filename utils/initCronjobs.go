package utils

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// QuitPruner は古い退出記録を削除します。
type QuitPruner interface {
	Prune() int
}

// RoomSweeper は終了後しばらく経ったルームを削除します。
type RoomSweeper interface {
	SweepFinished(retention time.Duration) int
}

// CronCleaner はメモリ上の記録を定期的に片付けるジョブを登録して開始します。
// 返した *cron.Cron はシャットダウン時に Stop してください。
func CronCleaner(quits QuitPruner, rooms RoomSweeper, retention time.Duration, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New()

	// 2時間より古い退出履歴を削除するジョブ（毎分）
	if _, err := c.AddFunc("* * * * *", func() {
		if n := quits.Prune(); n > 0 {
			logger.Info("退出履歴を削除しました", zap.Int("records_pruned", n))
		}
	}); err != nil {
		return nil, err
	}

	// 終了したルームを削除するジョブ（5分ごと）
	if _, err := c.AddFunc("*/5 * * * *", func() {
		n := rooms.SweepFinished(retention)
		logger.Info("終了済みルームの掃除完了", zap.Int("rooms_deleted", n))
	}); err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}
