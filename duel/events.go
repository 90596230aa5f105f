package duel

import "duelserver/models"

// クライアントへ送るイベント名
const (
	EventMeta                 = "meta"
	EventQueueJoined          = "queue_joined"
	EventQueueLeft            = "queue_left"
	EventMatchFound           = "match_found"
	EventRoomCreated          = "room_created"
	EventRoomJoinFailed       = "room_join_failed"
	EventRoomState            = "room_state"
	EventRoomStateFailed      = "room_state_failed"
	EventRoundStart           = "round_start"
	EventOpponentSubmitted    = "opponent_submitted"
	EventRoundResult          = "round_result"
	EventGameEnd              = "game_end"
	EventOpponentDisconnected = "opponent_disconnected"
	EventOpponentRejoined     = "opponent_rejoined"
	EventOpponentLeft         = "opponent_left"
	EventMatchFinished        = "match_finished"
	EventRematchStarted       = "rematch_started"
	EventQuickMatchBlocked    = "quick_match_blocked"
)

// 終了理由
const (
	ReasonGameEnd        = "GAME_END"
	ReasonForfeit        = "FORFEIT"
	ReasonForfeitTimeout = "FORFEIT_TIMEOUT"
	ReasonTimeout        = "TIMEOUT"
	ReasonBothSubmitted  = "BOTH_SUBMITTED"
	ReasonDisconnect     = "DISCONNECT"
	ReasonMenu           = "MENU"
	ReasonLeftAfterEnd   = "LEFT_AFTER_FINISH"
	ReasonTooManyQuits   = "TOO_MANY_QUITS"

	NoteWinByForfeit = "WIN_BY_FORFEIT"
	NoteLossByLeave  = "LOSS_BY_LEAVE"
)

// room_join_failed の理由
const (
	JoinNotFound      = "NOT_FOUND"
	JoinFull          = "FULL"
	JoinClosed        = "CLOSED"
	JoinAlreadyInRoom = "ALREADY_IN_ROOM"
	JoinInMatch       = "IN_MATCH"
)

type MetaPayload struct {
	Teams []string `json:"teams"`
}

type QueueJoinedPayload struct {
	Preference models.Mode `json:"preference"`
}

type RosterEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type MatchFoundPayload struct {
	RoomID  string          `json:"roomId"`
	Mode    models.Mode     `json:"mode"`
	Type    models.RoomType `json:"type"`
	Players []RosterEntry   `json:"players"`
}

type RoomCreatedPayload struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

type RoomJoinFailedPayload struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type RoomStateFailedPayload struct {
	RoomID string `json:"roomId"`
	Error  string `json:"error"`
}

type RoundStartPayload struct {
	RoomID       string       `json:"roomId"`
	ServerNow    int64        `json:"serverNow"`
	CountdownMs  int64        `json:"countdownMs"`
	CurrentRound int          `json:"currentRound"`
	MaxRounds    int          `json:"maxRounds"`
	Round        RoundSummary `json:"round"`
}

type RoomRef struct {
	RoomID string `json:"roomId"`
}

type RoundResultLine struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Answer *Answer `json:"answer"`
	Gained int     `json:"gained"`
	Total  int     `json:"total"`
}

type RoundResultPayload struct {
	RoomID  string               `json:"roomId"`
	Reason  string               `json:"reason"`
	Correct models.CorrectAnswer `json:"correct"`
	Results []RoundResultLine    `json:"results"`
}

type GameEndPayload struct {
	RoomID     string             `json:"roomId"`
	Scoreboard []models.ScoreLine `json:"scoreboard"`
}

type OpponentDisconnectedPayload struct {
	RoomID          string `json:"roomId"`
	DeadlineSeconds int    `json:"deadlineSeconds"`
	Deadline        int64  `json:"deadline"`
}

type OpponentLeftPayload struct {
	RoomID     string          `json:"roomId"`
	Reason     string          `json:"reason"`
	Phase      string          `json:"phase"`
	RoomType   models.RoomType `json:"roomType"`
	Disconnect bool            `json:"disconnect"`
}

type MatchFinishedPayload struct {
	RoomID     string       `json:"roomId"`
	Phase      models.Phase `json:"phase"`
	FinishedAt int64        `json:"finishedAt"`
	Result     *Result      `json:"result"`
	WinnerID   string       `json:"winnerId"`
	LoserID    string       `json:"loserId"`
	Reason     string       `json:"reason"`
	Note       string       `json:"note,omitempty"`
}

type RematchStartedPayload struct {
	NewRoomID string          `json:"newRoomId"`
	OldRoomID string          `json:"oldRoomId"`
	Mode      models.Mode     `json:"mode"`
	Type      models.RoomType `json:"type"`
}

type QuickMatchBlockedPayload struct {
	CooldownUntil int64  `json:"cooldownUntil"`
	Reason        string `json:"reason"`
}
