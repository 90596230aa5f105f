package duel

import (
	"strings"

	"duelserver/models"

	"go.uber.org/zap"
)

const (
	codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	codeLength   = 6
)

func (e *Engine) makeRoomCode() string {
	for {
		b := make([]byte, codeLength)
		for i := range b {
			b[i] = codeAlphabet[e.rng.Intn(len(codeAlphabet))]
		}
		code := string(b)
		if _, taken := e.codes[code]; !taken {
			return code
		}
	}
}

// CreateRoom は招待コード付きのプライベートルームを作り、作成者を入れます。
func (e *Engine) CreateRoom(conn ConnID, mode string) (string, string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.sessions[conn]; !ok {
		return "", "", false
	}
	if !e.ensureFree(conn) {
		return "", "", false
	}
	e.queues.remove(conn)

	room := e.newRoom(models.RoomPrivate, models.NormalizeMode(mode), models.StatusWaiting)
	room.Code = e.makeRoomCode()
	e.addPlayer(room, conn)
	e.rooms[room.ID] = room
	e.codes[room.Code] = room.ID

	e.logger.Info("Private room created",
		zap.String("roomID", room.ID),
		zap.String("code", room.Code),
		zap.String("mode", string(room.Mode)),
	)
	e.notifier.Send(conn, EventRoomCreated, RoomCreatedPayload{RoomID: room.ID, Code: room.Code})
	e.broadcastState(room)
	return room.ID, room.Code, true
}

// JoinRoom は招待コードでプライベートルームに参加します。大文字小文字は区別しません。
func (e *Engine) JoinRoom(conn ConnID, code string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[conn]
	if !ok {
		return
	}
	key := strings.ToUpper(strings.TrimSpace(code))
	fail := func(reason string) {
		e.notifier.Send(conn, EventRoomJoinFailed, RoomJoinFailedPayload{Code: key, Reason: reason})
		e.logger.Info("Join room rejected", zap.String("code", key), zap.String("reason", reason))
	}

	room, ok := e.rooms[e.codes[key]]
	if !ok {
		fail(JoinNotFound)
		return
	}
	switch {
	case room.finished():
		fail(JoinClosed)
		return
	case room.playerByConn(conn) != nil || room.playerByID(s.playerID) != nil:
		fail(JoinAlreadyInRoom)
		return
	case len(room.Players) >= 2:
		fail(JoinFull)
		return
	}
	if !e.ensureFree(conn) {
		fail(JoinInMatch)
		return
	}
	e.queues.remove(conn)

	e.addPlayer(room, conn)
	room.Status = models.StatusMatched
	room.HadTwoPlayers = true

	e.logger.Info("Private room joined", zap.String("roomID", room.ID), zap.String("playerID", s.playerID))
	e.broadcast(room, EventMatchFound, MatchFoundPayload{RoomID: room.ID, Mode: room.Mode, Type: room.Type, Players: room.roster()})
	e.broadcastState(room)
}

// SignalReady は READY を記録し、全員揃えばカウントダウン付きで1ラウンド目を始めます。
func (e *Engine) SignalReady(conn ConnID, roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	room, ok := e.rooms[roomID]
	if !ok || room.Status != models.StatusMatched {
		return
	}
	p := room.playerByConn(conn)
	if p == nil {
		return
	}
	room.Ready[p.ID] = true
	e.logger.Info("Player ready", zap.String("roomID", roomID), zap.String("playerID", p.ID), zap.Int("ready", len(room.Ready)))

	if room.allReady() {
		e.startRound(room, e.cfg.ReadyLead)
		return
	}
	e.broadcastState(room)
}
