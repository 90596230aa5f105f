package migrations

import (
	"fmt"

	"duelserver/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate は対戦結果テーブルを作成または更新します。
func AutoMigrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(&models.MatchResult{}, &models.MatchResultPlayer{}); err != nil {
		return fmt.Errorf("Error migrating tables: %w", err)
	}
	logger.Info("MatchResult and MatchResultPlayer tables migrated")
	return nil
}
