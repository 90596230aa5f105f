package duel

import (
	"math"

	"duelserver/models"

	"go.uber.org/zap"
)

// LeaveRoom はメニューに戻るなどの明示的な退出です。
func (e *Engine) LeaveRoom(conn ConnID, roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.leave(conn, roomID, false)
}

// leave は退出・切断の共通処理です。hint のルームに居なければ接続の索引から探します。
func (e *Engine) leave(conn ConnID, hint string, disconnect bool) {
	if room, ok := e.rooms[hint]; ok {
		if p := room.playerByConn(conn); p != nil {
			e.leaveRoom(room, p, disconnect)
			return
		}
	}
	rid, ok := e.connRoom[conn]
	if !ok {
		return
	}
	room, ok := e.rooms[rid]
	var p *Player
	if ok {
		p = room.playerByConn(conn)
	}
	if p == nil {
		// 古い索引は消しておく
		delete(e.connRoom, conn)
		return
	}
	e.leaveRoom(room, p, disconnect)
}

func (e *Engine) leaveRoom(room *Room, p *Player, disconnect bool) {
	explicit := !disconnect
	log := e.logger.With(zap.String("roomID", room.ID), zap.String("playerID", p.ID), zap.Bool("disconnect", disconnect))

	// 終了後の退出は後片付けだけ。得点や勝敗には触らない
	if room.finished() {
		if room.pendingForfeit != nil {
			e.cancelTask(room, slotForfeit)
			room.pendingForfeit = nil
		}
		for _, other := range room.others(p.ID) {
			// 閉じたルームの相手は既に再戦ルームへ移っている
			if !other.Disconnected && !room.Closed {
				e.notifier.Send(other.Conn, EventOpponentLeft, OpponentLeftPayload{
					RoomID:     room.ID,
					Reason:     ReasonLeftAfterEnd,
					Phase:      string(models.PhaseFinished),
					RoomType:   room.Type,
					Disconnect: disconnect,
				})
			}
		}
		e.detach(room, p)
		log.Info("Left finished room")
		if room.Closed {
			// 再戦で閉じたルームは後片付けタスクに任せる
			return
		}
		if len(room.Players) == 0 {
			e.removeRoom(room)
			return
		}
		e.broadcastState(room)
		return
	}

	progressed := room.Progressed || room.Status == models.StatusInRound

	if disconnect && progressed {
		e.markDisconnected(room, p)
		log.Info("Player disconnected in game, grace started")
		return
	}

	if progressed {
		// 試合開始後の明示的な退出
		if room.Type == models.RoomQuick {
			e.throttle.RecordQuit(p.ID)
			e.finalizeForfeit(room, p.ID, ReasonForfeit)
			e.detach(room, p)
			e.broadcastState(room)
			log.Info("Quick match forfeited by leave")
			return
		}
		e.abandonPrivate(room, p)
		log.Info("Private match abandoned")
		return
	}

	e.detach(room, p)
	if len(room.Players) == 0 {
		e.removeRoom(room)
		log.Info("Empty room removed")
		return
	}

	if !room.HadTwoPlayers {
		// まだ相手が来ていないルームはそのまま待つ
		e.broadcastState(room)
		return
	}

	reason := ReasonMenu
	if disconnect {
		reason = ReasonDisconnect
	}

	// 一度ペアになったルームは開始前でも終了。ペナルティはなし
	e.cancelAll(room)
	room.Status = models.StatusAbandoned
	room.Round = nil
	room.FinishedAt = e.clock.Now()
	for _, other := range room.Players {
		e.notifier.Send(other.Conn, EventOpponentLeft, OpponentLeftPayload{
			RoomID:     room.ID,
			Reason:     reason,
			Phase:      string(room.Phase()),
			RoomType:   room.Type,
			Disconnect: disconnect,
		})
	}
	e.broadcastState(room)
	log.Info("Room abandoned before start", zap.Bool("explicit", explicit))
}

// detach はプレイヤーをルームから外し、接続の索引も消します。
func (e *Engine) detach(room *Room, p *Player) {
	room.removePlayer(p.ID)
	if e.connRoom[p.Conn] == room.ID {
		delete(e.connRoom, p.Conn)
	}
}

// markDisconnected は猶予タイマーを張り、残った相手に期限を知らせます。
// 保留中の不戦敗は1つだけで、先に切断したプレイヤーのものを優先します。
func (e *Engine) markDisconnected(room *Room, p *Player) {
	p.Disconnected = true
	if e.connRoom[p.Conn] == room.ID {
		delete(e.connRoom, p.Conn)
	}
	if room.pendingForfeit == nil {
		e.armGrace(room, p)
	}
	e.broadcastState(room)
}

func (e *Engine) armGrace(room *Room, p *Player) {
	deadline := e.clock.Now().Add(e.cfg.Grace)
	playerID := p.ID
	room.pendingForfeit = &pendingForfeit{playerID: playerID, deadline: deadline, reason: ReasonDisconnect}
	e.schedule(room, slotForfeit, e.cfg.Grace, func(r *Room) {
		if r.pendingForfeit == nil || r.pendingForfeit.playerID != playerID {
			return
		}
		e.logger.Info("Grace expired, forfeiting", zap.String("roomID", r.ID), zap.String("playerID", playerID))
		e.finalizeForfeit(r, playerID, ReasonForfeitTimeout)
	})

	payload := OpponentDisconnectedPayload{
		RoomID:          room.ID,
		DeadlineSeconds: int(math.Ceil(e.cfg.Grace.Seconds())),
		Deadline:        deadline.UnixMilli(),
	}
	for _, other := range room.others(playerID) {
		if !other.Disconnected {
			e.notifier.Send(other.Conn, EventOpponentDisconnected, payload)
		}
	}
}

// Rejoin は識別子で元のプレイヤー枠に接続を付け替えます。
// 猶予中の不戦敗があれば取り消して両者に再開を知らせます。
func (e *Engine) Rejoin(conn ConnID, roomID, playerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[conn]
	if !ok {
		return
	}
	room, ok := e.rooms[roomID]
	if !ok || room.Closed {
		return
	}
	if playerID == "" {
		playerID = s.playerID
	}
	p := room.playerByID(playerID)
	if p == nil {
		return
	}
	if prev, ok := e.connRoom[conn]; ok && prev != room.ID && !e.ensureFree(conn) {
		return
	}
	if old := p.Conn; old != conn && e.connRoom[old] == room.ID {
		delete(e.connRoom, old)
	}
	e.queues.remove(conn)
	p.Conn = conn
	p.Disconnected = false
	e.connRoom[conn] = room.ID

	if pf := room.pendingForfeit; pf != nil && pf.playerID == playerID {
		e.cancelTask(room, slotForfeit)
		room.pendingForfeit = nil
		e.broadcast(room, EventOpponentRejoined, RoomRef{RoomID: room.ID})
		e.logger.Info("Player rejoined within grace", zap.String("roomID", room.ID), zap.String("playerID", playerID))

		// まだ切断中の相手がいれば、その人の猶予を始める
		if !room.finished() {
			for _, other := range room.others(playerID) {
				if other.Disconnected {
					e.armGrace(room, other)
					break
				}
			}
		}
	}
	e.broadcastState(room)
}

// finalizeForfeit は leaverID の不戦敗で試合を終わらせます。終了済みなら何もしません。
func (e *Engine) finalizeForfeit(room *Room, leaverID, reason string) {
	if room.finished() {
		return
	}
	e.cancelAll(room)
	room.pendingForfeit = nil

	now := e.clock.Now()
	room.Status = models.StatusGameEnd
	room.FinishedAt = now
	room.Round = nil

	result := &Result{
		LoserID:    leaverID,
		Reason:     reason,
		Note:       NoteWinByForfeit,
		FinishedAt: now.UnixMilli(),
		Scoreboard: room.scoreboard(),
	}
	for _, other := range room.others(leaverID) {
		result.WinnerID = other.ID
		break
	}
	room.Result = result

	e.logger.Info("Forfeit applied",
		zap.String("roomID", room.ID),
		zap.String("loserID", leaverID),
		zap.String("winnerID", result.WinnerID),
		zap.String("reason", reason),
	)
	e.broadcastState(room)

	finished := MatchFinishedPayload{
		RoomID:     room.ID,
		Phase:      room.Phase(),
		FinishedAt: result.FinishedAt,
		Result:     result,
		WinnerID:   result.WinnerID,
		LoserID:    leaverID,
		Reason:     reason,
		Note:       NoteWinByForfeit,
	}
	for _, p := range room.Players {
		if p.Disconnected {
			continue
		}
		payload := finished
		if p.ID == leaverID {
			payload.Note = NoteLossByLeave
		}
		e.notifier.Send(p.Conn, EventMatchFinished, payload)
	}
	e.record(room)
}

// abandonPrivate はプライベート対戦を中断扱いにします。退出回数には数えません。
func (e *Engine) abandonPrivate(room *Room, leaver *Player) {
	e.cancelAll(room)
	room.pendingForfeit = nil

	now := e.clock.Now()
	room.Status = models.StatusAbandoned
	room.FinishedAt = now
	room.Round = nil
	room.Result = &Result{
		LoserID:    leaver.ID,
		Reason:     ReasonForfeit,
		Note:       NoteWinByForfeit,
		FinishedAt: now.UnixMilli(),
		Scoreboard: room.scoreboard(),
	}
	for _, other := range room.others(leaver.ID) {
		room.Result.WinnerID = other.ID
		break
	}
	e.detach(room, leaver)

	e.broadcastState(room)
	for _, other := range room.Players {
		if other.Disconnected {
			continue
		}
		e.notifier.Send(other.Conn, EventOpponentLeft, OpponentLeftPayload{
			RoomID:   room.ID,
			Reason:   ReasonMenu,
			Phase:    string(models.StatusAbandoned),
			RoomType: room.Type,
		})
	}
	e.record(room)
}
