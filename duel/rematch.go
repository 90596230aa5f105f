package duel

import (
	"duelserver/models"

	"go.uber.org/zap"
)

// RequestRematch は終了したルームでの再戦希望を記録します。同じ人の2回目以降は変化しません。
// 全員が希望したら新しいルームを作り、接続を移して1ラウンド目をすぐ始めます。
func (e *Engine) RequestRematch(conn ConnID, roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	room, ok := e.rooms[roomID]
	if !ok || room.Closed || room.Phase() != models.PhaseFinished {
		return
	}
	p := room.playerByConn(conn)
	if p == nil {
		return
	}
	room.RematchVotes[p.ID] = true
	e.logger.Info("Rematch requested", zap.String("roomID", roomID), zap.String("playerID", p.ID), zap.Int("votes", len(room.RematchVotes)))
	e.broadcastState(room)

	if len(room.Players) < 2 {
		return
	}
	for _, member := range room.Players {
		if !room.RematchVotes[member.ID] {
			return
		}
	}
	e.startRematch(room)
}

func (e *Engine) startRematch(old *Room) {
	next := e.newRoom(old.Type, old.Mode, models.StatusMatched)
	next.HadTwoPlayers = true
	next.PrevRoomID = old.ID
	for _, p := range old.Players {
		next.Players = append(next.Players, &Player{Conn: p.Conn, ID: p.ID, Name: p.Name, Disconnected: p.Disconnected})
		if !p.Disconnected {
			e.connRoom[p.Conn] = next.ID
		}
	}
	e.rooms[next.ID] = next
	e.closeRoom(old)

	e.logger.Info("Rematch started", zap.String("oldRoomID", old.ID), zap.String("roomID", next.ID))
	e.broadcast(next, EventRematchStarted, RematchStartedPayload{
		NewRoomID: next.ID,
		OldRoomID: old.ID,
		Mode:      next.Mode,
		Type:      next.Type,
	})
	e.broadcastState(next)
	e.startRound(next, 0)

	// 遅れて届く状態問い合わせのために旧ルームはしばらく残す
	e.schedule(old, slotCleanup, e.cfg.RematchCleanup, func(r *Room) {
		e.removeRoom(r)
	})
}
