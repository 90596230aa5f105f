package duel

import (
	"strings"
	"time"

	"duelserver/models"
)

// ScoringRule は採点方式です。
type ScoringRule string

const (
	ScoringThreeTier ScoringRule = "THREE_TIER" // 10 / 5 / 0
	ScoringFourTier  ScoringRule = "FOUR_TIER"  // 10 / 5 / 2 / 0
)

// Config は対戦進行の定数です。
type Config struct {
	MaxRounds      int
	RoundDuration  time.Duration
	RoundSlack     time.Duration // タイムアウト判定の猶予
	ReadyLead      time.Duration // 全員READY後のカウントダウン
	NextRoundLead  time.Duration
	ResultDisplay  time.Duration
	Grace          time.Duration // 切断からの不戦敗までの猶予
	RematchCleanup time.Duration
	Scoring        map[models.Mode]ScoringRule
}

func DefaultConfig() Config {
	return Config{
		MaxRounds:      3,
		RoundDuration:  30 * time.Second,
		RoundSlack:     300 * time.Millisecond,
		ReadyLead:      3 * time.Second,
		NextRoundLead:  3 * time.Second,
		ResultDisplay:  1500 * time.Millisecond,
		Grace:          10 * time.Second,
		RematchCleanup: 30 * time.Second,
		Scoring:        map[models.Mode]ScoringRule{},
	}
}

// ConfigFromModel は config.json の game セクションを Config に変換します。0 の項目はデフォルトのまま。
// ラウンド数は 3 で固定。
func ConfigFromModel(g models.GameConfig) Config {
	cfg := DefaultConfig()
	setMs(&cfg.RoundDuration, g.RoundDurationMs)
	setMs(&cfg.RoundSlack, g.RoundSlackMs)
	setMs(&cfg.ReadyLead, g.ReadyLeadMs)
	setMs(&cfg.NextRoundLead, g.NextRoundLeadMs)
	setMs(&cfg.ResultDisplay, g.ResultDisplayMs)
	setMs(&cfg.Grace, g.GraceMs)
	setMs(&cfg.RematchCleanup, g.RematchCleanupMs)
	for mode, rule := range g.Scoring {
		if ScoringRule(strings.ToUpper(rule)) == ScoringFourTier {
			cfg.Scoring[models.NormalizeMode(mode)] = ScoringFourTier
		}
	}
	return cfg
}

func setMs(dst *time.Duration, ms int64) {
	if ms > 0 {
		*dst = time.Duration(ms) * time.Millisecond
	}
}

// scorer はモードに対応する採点関数を返します。指定が無ければ3段階。
func (c Config) scorer(mode models.Mode) func(Answer, models.CorrectAnswer) int {
	if c.Scoring[mode] == ScoringFourTier {
		return ScoreFourTier
	}
	return ScoreThreeTier
}
