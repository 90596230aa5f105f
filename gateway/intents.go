package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"duelserver/duel"
	"duelserver/models"

	"github.com/gin-gonic/gin/binding"
)

// クライアントから受け付けるメッセージ種別
const (
	IntentHello          = "hello"
	IntentGetMeta        = "get_meta"
	IntentJoinQueue      = "join_queue"
	IntentCancelQueue    = "cancel_queue"
	IntentCreateRoom     = "create_room"
	IntentJoinRoom       = "join_room"
	IntentSignalReady    = "signal_ready"
	IntentSubmitAnswer   = "submit_answer"
	IntentLeaveRoom      = "leave_room"
	IntentRejoin         = "rejoin"
	IntentGetRoomState   = "get_room_state"
	IntentRequestRematch = "request_rematch"
)

const EventHelloAck = "hello_ack"

var ErrUnknownIntent = errors.New("unknown intent")

type HelloIntent struct {
	Name  string `json:"name" binding:"max=64"`
	Token string `json:"token" binding:"max=2048"`
}

type GetMetaIntent struct{}

type JoinQueueIntent struct {
	Preference     string `json:"preference" binding:"max=32"`
	PreferenceMode string `json:"preferenceMode" binding:"max=32"`
	Mode           string `json:"mode" binding:"max=32"`
}

// preference は preference, preferenceMode, mode の順に最初の値を使います。
func (in *JoinQueueIntent) preference() string {
	for _, v := range []string{in.Preference, in.PreferenceMode, in.Mode} {
		if v != "" {
			return v
		}
	}
	return string(models.ModeAll)
}

type CancelQueueIntent struct{}

type CreateRoomIntent struct {
	Mode string `json:"mode" binding:"max=32"`
}

type JoinRoomIntent struct {
	Code string `json:"code" binding:"required,max=16"`
}

type ReadyIntent struct {
	RoomID string `json:"roomId" binding:"required,max=64"`
}

type RoomStateIntent struct {
	RoomID string `json:"roomId" binding:"required,max=64"`
}

type LeaveRoomIntent struct {
	RoomID string `json:"roomId" binding:"max=64"`
}

type AnswerData struct {
	TeamA string `json:"teamA" binding:"max=64"`
	TeamB string `json:"teamB" binding:"max=64"`
	Score string `json:"score" binding:"max=16"`
}

type SubmitAnswerIntent struct {
	RoomID string     `json:"roomId" binding:"required,max=64"`
	Answer AnswerData `json:"answer"`
}

func (in *SubmitAnswerIntent) answer() duel.Answer {
	return duel.Answer{TeamA: in.Answer.TeamA, TeamB: in.Answer.TeamB, Score: in.Answer.Score}
}

type RejoinIntent struct {
	RoomID string `json:"roomId" binding:"required,max=64"`
	Token  string `json:"token" binding:"max=2048"`
}

type RematchIntent struct {
	RoomID    string `json:"roomId" binding:"required_without=OldRoomID,max=64"`
	OldRoomID string `json:"oldRoomId" binding:"max=64"`
}

func (in *RematchIntent) roomID() string {
	if in.RoomID != "" {
		return in.RoomID
	}
	return in.OldRoomID
}

var intentFactories = map[string]func() interface{}{
	IntentHello:          func() interface{} { return &HelloIntent{} },
	IntentGetMeta:        func() interface{} { return &GetMetaIntent{} },
	IntentJoinQueue:      func() interface{} { return &JoinQueueIntent{} },
	IntentCancelQueue:    func() interface{} { return &CancelQueueIntent{} },
	IntentCreateRoom:     func() interface{} { return &CreateRoomIntent{} },
	IntentJoinRoom:       func() interface{} { return &JoinRoomIntent{} },
	IntentSignalReady:    func() interface{} { return &ReadyIntent{} },
	IntentSubmitAnswer:   func() interface{} { return &SubmitAnswerIntent{} },
	IntentLeaveRoom:      func() interface{} { return &LeaveRoomIntent{} },
	IntentRejoin:         func() interface{} { return &RejoinIntent{} },
	IntentGetRoomState:   func() interface{} { return &RoomStateIntent{} },
	IntentRequestRematch: func() interface{} { return &RematchIntent{} },
}

// decodeIntent は種別に対応する構造体へデコードし、binding タグで検証します。
func decodeIntent(env models.Envelope) (interface{}, error) {
	factory, ok := intentFactories[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, env.Type)
	}
	in := factory()
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, in); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
	}
	if err := binding.Validator.ValidateStruct(in); err != nil {
		return nil, fmt.Errorf("validate %s: %w", env.Type, err)
	}
	return in, nil
}
