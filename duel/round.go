package duel

import (
	"time"

	"duelserver/models"

	"go.uber.org/zap"
)

// startRound は次のラウンドを lead 後に開始する形で作ります。
// 終了済み・閉じたルームや最終ラウンド済みなら何もしません。
func (e *Engine) startRound(room *Room, lead time.Duration) {
	if room.finished() || room.CurrentRound >= room.MaxRounds {
		return
	}
	q, ok := e.drawQuestion(room)
	if !ok {
		e.logger.Error("No question available", zap.String("roomID", room.ID), zap.String("mode", string(room.Mode)))
		return
	}
	if lead < 0 {
		lead = 0
	}

	now := e.clock.Now()
	room.CurrentRound++
	room.Status = models.StatusInRound
	room.Progressed = true
	room.Round = &Round{
		ID:        e.newID(),
		ImageURL:  q.ImageURL,
		Correct:   q.Correct,
		StartedAt: now.Add(lead),
		Duration:  e.cfg.RoundDuration,
		Answers:   make(map[string]Submission),
	}

	e.cancelTask(room, slotAdvance)
	e.schedule(room, slotRoundTimeout, lead+e.cfg.RoundDuration+e.cfg.RoundSlack, func(r *Room) {
		e.finishRound(r, ReasonTimeout)
	})

	e.logger.Info("Round started",
		zap.String("roomID", room.ID),
		zap.Int("round", room.CurrentRound),
		zap.Duration("lead", lead),
	)
	e.broadcast(room, EventRoundStart, RoundStartPayload{
		RoomID:       room.ID,
		ServerNow:    now.UnixMilli(),
		CountdownMs:  lead.Milliseconds(),
		CurrentRound: room.CurrentRound,
		MaxRounds:    room.MaxRounds,
		Round:        room.Round.summary(),
	})
	e.broadcastState(room)
}

// SubmitAnswer は回答を受け付けます。条件を満たさない提出は黙って捨てます。
// 全員が提出したらタイムアウトを待たずにラウンドを締めます。
func (e *Engine) SubmitAnswer(conn ConnID, roomID string, answer Answer) {
	e.mu.Lock()
	defer e.mu.Unlock()

	room, ok := e.rooms[roomID]
	if !ok || room.Status != models.StatusInRound {
		return
	}
	p := room.playerByConn(conn)
	if p == nil || room.Round == nil {
		return
	}
	now := e.clock.Now()
	if now.Before(room.Round.StartedAt) {
		return
	}
	if _, dup := room.Round.Answers[p.ID]; dup {
		return
	}
	room.Round.Answers[p.ID] = Submission{Answer: answer, SubmittedAt: now}
	e.logger.Info("Answer submitted",
		zap.String("roomID", roomID),
		zap.String("playerID", p.ID),
		zap.Int("answers", len(room.Round.Answers)),
	)

	for _, other := range room.others(p.ID) {
		if !other.Disconnected {
			e.notifier.Send(other.Conn, EventOpponentSubmitted, RoomRef{RoomID: roomID})
		}
	}
	e.broadcastState(room)

	if room.allSubmitted() {
		e.finishRound(room, ReasonBothSubmitted)
	}
}

// finishRound は IN_ROUND のときだけ採点し、表示時間の後に次ラウンドか試合終了へ進めます。
func (e *Engine) finishRound(room *Room, reason string) {
	if room.Status != models.StatusInRound || room.Round == nil {
		return
	}
	room.Status = models.StatusRoundResult
	e.cancelTask(room, slotRoundTimeout)

	score := e.cfg.scorer(room.Mode)
	results := make([]RoundResultLine, 0, len(room.Players))
	for _, p := range room.Players {
		line := RoundResultLine{ID: p.ID, Name: p.Name}
		if sub, ok := room.Round.Answers[p.ID]; ok {
			a := sub.Answer
			line.Answer = &a
			line.Gained = score(a, room.Round.Correct)
		}
		p.Points += line.Gained
		line.Total = p.Points
		results = append(results, line)
	}

	e.logger.Info("Round finished",
		zap.String("roomID", room.ID),
		zap.Int("round", room.CurrentRound),
		zap.String("reason", reason),
	)
	e.broadcast(room, EventRoundResult, RoundResultPayload{
		RoomID:  room.ID,
		Reason:  reason,
		Correct: room.Round.Correct,
		Results: results,
	})
	e.broadcastState(room)

	e.schedule(room, slotAdvance, e.cfg.ResultDisplay, func(r *Room) {
		if r.CurrentRound < r.MaxRounds {
			e.startRound(r, e.cfg.NextRoundLead)
			return
		}
		e.endGame(r)
	})
}

// endGame は得点順に並べて勝敗を決めます。最高点が並べば引き分けです。
func (e *Engine) endGame(room *Room) {
	if room.finished() {
		return
	}
	e.cancelAll(room)
	room.pendingForfeit = nil

	now := e.clock.Now()
	room.Status = models.StatusGameEnd
	room.FinishedAt = now
	room.Round = nil

	board := room.scoreboard()
	result := &Result{Reason: ReasonGameEnd, FinishedAt: now.UnixMilli(), Scoreboard: board}
	if len(board) > 0 && (len(board) < 2 || board[0].Points != board[1].Points) {
		result.WinnerID = board[0].PlayerID
		if len(board) > 1 {
			result.LoserID = board[1].PlayerID
		}
	}
	room.Result = result

	e.logger.Info("Game ended",
		zap.String("roomID", room.ID),
		zap.String("winnerID", result.WinnerID),
		zap.Bool("tie", result.WinnerID == ""),
	)
	e.broadcast(room, EventGameEnd, GameEndPayload{RoomID: room.ID, Scoreboard: board})
	e.broadcast(room, EventMatchFinished, MatchFinishedPayload{
		RoomID:     room.ID,
		Phase:      room.Phase(),
		FinishedAt: result.FinishedAt,
		Result:     result,
		WinnerID:   result.WinnerID,
		LoserID:    result.LoserID,
		Reason:     ReasonGameEnd,
	})
	e.broadcastState(room)
	e.record(room)
}
