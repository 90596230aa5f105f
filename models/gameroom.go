package models

import "strings"

// Mode は出題プールの種別です。マッチングの希望（preference）も同じ値を使います。
type Mode string

const (
	ModeAll           Mode = "ALL"
	ModeClub          Mode = "CLUB"
	ModeInternational Mode = "INTERNATIONAL"
)

// NormalizeMode は未知の値を ALL に丸めます。大文字小文字と前後の空白は無視します。
func NormalizeMode(v string) Mode {
	switch Mode(strings.ToUpper(strings.TrimSpace(v))) {
	case ModeClub:
		return ModeClub
	case ModeInternational:
		return ModeInternational
	default:
		return ModeAll
	}
}

// RoomType はルームの作られ方です。QUICK はマッチング、PRIVATE は招待コード。
type RoomType string

const (
	RoomQuick   RoomType = "QUICK"
	RoomPrivate RoomType = "PRIVATE"
)

// Phase は大まかなライフサイクル段階です。Status から導出されます。
type Phase string

const (
	PhaseWaiting  Phase = "WAITING"
	PhaseReady    Phase = "READY"
	PhaseInGame   Phase = "IN_GAME"
	PhaseFinished Phase = "FINISHED"
)

// Status はラウンド単位の詳細な状態です。ルーム状態の正はこちら。
type Status string

const (
	StatusWaiting     Status = "WAITING"
	StatusMatched     Status = "MATCHED"
	StatusInRound     Status = "IN_ROUND"
	StatusRoundResult Status = "ROUND_RESULT"
	StatusGameEnd     Status = "GAME_END"
	StatusAbandoned   Status = "ABANDONED"
)

// Phase は Status に対応する Phase を返します。
func (s Status) Phase() Phase {
	switch s {
	case StatusMatched:
		return PhaseReady
	case StatusInRound, StatusRoundResult:
		return PhaseInGame
	case StatusGameEnd, StatusAbandoned:
		return PhaseFinished
	default:
		return PhaseWaiting
	}
}

// Terminal は GAME_END と ABANDONED で true を返します。
func (s Status) Terminal() bool {
	return s.Phase() == PhaseFinished
}
