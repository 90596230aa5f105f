package database

import (
	"context"
	"fmt"

	"duelserver/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ResultRecorder は終了した対戦を PostgreSQL に書き込みます。
type ResultRecorder struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewResultRecorder(db *gorm.DB, logger *zap.Logger) *ResultRecorder {
	return &ResultRecorder{db: db, logger: logger}
}

// RecordMatch は対戦結果と参加者ごとの得点を1トランザクションで保存します。
// 同じルームIDの結果が既にあれば何もしません。
func (r *ResultRecorder) RecordMatch(ctx context.Context, outcome models.MatchOutcome) error {
	result := toMatchResult(outcome)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.MatchResult{}).Where("room_id = ?", result.RoomID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			r.logger.Info("Match result already recorded", zap.String("roomID", result.RoomID))
			return nil
		}
		// Players は関連として同時に作成される
		if err := tx.Create(&result).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record match %s: %w", outcome.RoomID, err)
	}

	r.logger.Info("Match result recorded",
		zap.String("roomID", result.RoomID),
		zap.String("status", result.Status),
		zap.String("winnerID", result.WinnerID),
	)
	return nil
}

func toMatchResult(o models.MatchOutcome) models.MatchResult {
	result := models.MatchResult{
		RoomID:     o.RoomID,
		RoomType:   string(o.RoomType),
		Mode:       string(o.Mode),
		Status:     string(o.Status),
		Reason:     o.Reason,
		Rounds:     o.Rounds,
		WinnerID:   o.WinnerID,
		LoserID:    o.LoserID,
		IsTie:      o.WinnerID == "" && o.Status == models.StatusGameEnd,
		FinishedAt: o.FinishedAt,
	}
	for _, line := range o.Scoreboard {
		result.Players = append(result.Players, models.MatchResultPlayer{
			PlayerID: line.PlayerID,
			Name:     line.Name,
			Points:   line.Points,
			Won:      line.PlayerID != "" && line.PlayerID == o.WinnerID,
		})
	}
	return result
}
