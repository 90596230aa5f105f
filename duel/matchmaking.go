package duel

import (
	"duelserver/models"

	"go.uber.org/zap"
)

// pairingRules は待機列の組み合わせ規則です。上から順に優先します。
var pairingRules = []struct {
	first, second, mode models.Mode
}{
	{models.ModeInternational, models.ModeInternational, models.ModeInternational},
	{models.ModeClub, models.ModeClub, models.ModeClub},
	{models.ModeAll, models.ModeInternational, models.ModeInternational},
	{models.ModeAll, models.ModeClub, models.ModeClub},
	{models.ModeAll, models.ModeAll, models.ModeAll},
}

// JoinQueue は conn を希望モードの待機列に入れ、組めるだけ対戦を組みます。
// 不明なモードは ALL として扱います。クールダウン中なら quick_match_blocked を返します。
func (e *Engine) JoinQueue(conn ConnID, preference string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[conn]
	if !ok {
		return
	}
	if until, blocked := e.throttle.CheckCooldown(s.playerID); blocked {
		e.notifier.Send(conn, EventQuickMatchBlocked, QuickMatchBlockedPayload{
			CooldownUntil: until.UnixMilli(),
			Reason:        ReasonTooManyQuits,
		})
		e.logger.Info("Quick match blocked", zap.String("playerID", s.playerID), zap.Time("cooldownUntil", until))
		return
	}
	if !e.ensureFree(conn) {
		return
	}

	pref := models.NormalizeMode(preference)
	if cur, queued := e.queues.preferenceOf(conn); !queued || cur != pref {
		e.queues.remove(conn)
		// 同じプレイヤーの別接続は並ばせない
		e.queues.removeWhere(func(c ConnID) bool {
			other, ok := e.sessions[c]
			return c != conn && ok && other.playerID == s.playerID
		})
		e.queues.add(pref, conn)
	}
	e.notifier.Send(conn, EventQueueJoined, QueueJoinedPayload{Preference: pref})
	e.logger.Info("Queue joined", zap.String("conn", string(conn)), zap.String("preference", string(pref)))

	e.drainQueues()
}

// CancelQueue は conn を全ての待機列から外します。
func (e *Engine) CancelQueue(conn ConnID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queues.remove(conn)
	e.notifier.Send(conn, EventQueueLeft, nil)
}

// drainQueues は規則が1つも当てはまらなくなるまで対戦を組みます。
func (e *Engine) drainQueues() {
	for e.pairOnce() {
	}
}

func (e *Engine) pairOnce() bool {
	for _, rule := range pairingRules {
		if !e.queues.canPair(rule.first, rule.second) {
			continue
		}
		c1 := e.queues.pop(rule.first)
		c2 := e.queues.pop(rule.second)
		_, live1 := e.sessions[c1]
		_, live2 := e.sessions[c2]
		if !live1 || !live2 {
			// 切れた接続だけ捨てて、生きている方は先頭に戻す
			if live2 {
				e.queues.pushFront(rule.second, c2)
			}
			if live1 {
				e.queues.pushFront(rule.first, c1)
			}
			e.logger.Info("Discarded stale queue entry", zap.String("mode", string(rule.mode)))
			return true
		}
		e.createQuickMatch(c1, c2, rule.mode)
		return true
	}
	return false
}

func (e *Engine) createQuickMatch(c1, c2 ConnID, mode models.Mode) {
	room := e.newRoom(models.RoomQuick, mode, models.StatusMatched)
	room.HadTwoPlayers = true
	e.addPlayer(room, c1)
	e.addPlayer(room, c2)
	e.rooms[room.ID] = room

	e.logger.Info("Match found",
		zap.String("roomID", room.ID),
		zap.String("mode", string(mode)),
		zap.String("conn1", string(c1)),
		zap.String("conn2", string(c2)),
	)
	e.broadcast(room, EventMatchFound, MatchFoundPayload{RoomID: room.ID, Mode: room.Mode, Type: room.Type, Players: room.roster()})
	e.broadcastState(room)
}

// ensureFree は conn を新しいルームに入れられる状態にします。
// 終了済みのルームや相手待ちのルームからは抜けさせ、試合中なら false を返します。
func (e *Engine) ensureFree(conn ConnID) bool {
	rid, ok := e.connRoom[conn]
	if !ok {
		return true
	}
	room, ok := e.rooms[rid]
	if !ok || room.playerByConn(conn) == nil {
		delete(e.connRoom, conn)
		return true
	}
	if room.finished() || room.Status == models.StatusWaiting {
		e.leave(conn, rid, false)
		return true
	}
	return false
}
