package duel

import (
	"duelserver/models"

	"go.uber.org/zap"
)

// drawQuestion はルームの山札から1問引きます。山札が空ならモードで絞った問題をシャッフルして作り直します。
func (e *Engine) drawQuestion(room *Room) (models.Question, bool) {
	if len(room.Deck) == 0 {
		deck := e.bank.Indexes(room.Mode)
		e.rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
		room.Deck = deck
		e.logger.Debug("Deck built", zap.String("roomID", room.ID), zap.String("mode", string(room.Mode)), zap.Int("size", len(deck)))
	}
	if len(room.Deck) == 0 {
		return models.Question{}, false
	}
	last := len(room.Deck) - 1
	idx := room.Deck[last]
	room.Deck = room.Deck[:last]
	return e.bank.Question(idx)
}
