package models

import (
	"time"

	"gorm.io/gorm"
)

// MatchResult は終了した対戦1件の記録です。リーダーボード集計の元データになります。
type MatchResult struct {
	gorm.Model
	RoomID     string              `gorm:"uniqueIndex;not null"`
	RoomType   string              `gorm:"not null"`
	Mode       string              `gorm:"not null"`
	Status     string              `gorm:"not null"` // GAME_END または ABANDONED
	Reason     string              `gorm:"not null"` // GAME_END, FORFEIT, FORFEIT_TIMEOUT
	Rounds     int                 `gorm:"not null;default:0"`
	WinnerID   string              `gorm:"index"` // 引き分けなら空
	LoserID    string              `gorm:"index"`
	IsTie      bool                `gorm:"default:false"`
	FinishedAt time.Time           `gorm:"not null"`
	Players    []MatchResultPlayer `gorm:"foreignKey:MatchResultID"`
}

// MatchResultPlayer は対戦参加者ごとの最終得点です。
type MatchResultPlayer struct {
	gorm.Model
	MatchResultID uint   `gorm:"index"`
	PlayerID      string `gorm:"index;not null"`
	Name          string
	Points        int  `gorm:"not null;default:0"`
	Won           bool `gorm:"default:false"`
}

// MatchOutcome は対戦エンジンから永続化層へ渡す終了結果です。
type MatchOutcome struct {
	RoomID     string
	RoomType   RoomType
	Mode       Mode
	Status     Status
	Reason     string
	Rounds     int
	WinnerID   string
	LoserID    string
	FinishedAt time.Time
	Scoreboard []ScoreLine
}

// ScoreLine は最終スコアボードの1行です。
type ScoreLine struct {
	PlayerID string `json:"id"`
	Name     string `json:"name"`
	Points   int    `json:"points"`
}
