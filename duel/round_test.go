package duel

import (
	"testing"
	"time"

	"duelserver/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var teamsOnly = Answer{TeamA: "Beta", TeamB: "Alpha", Score: "0-0"}

// playOut は3ラウンドとも c1 が満点、c2 がチームのみ正解で進めます。
func playOut(t *testing.T, h *harness, room *Room, c1, c2 ConnID, a1, a2 Answer) {
	t.Helper()
	cfg := h.engine.cfg
	for i := 0; i < cfg.MaxRounds; i++ {
		require.Equal(t, models.StatusInRound, h.status(room), "round %d", i+1)
		h.engine.SubmitAnswer(c1, room.ID, a1)
		h.engine.SubmitAnswer(c2, room.ID, a2)
		h.clock.Advance(cfg.ResultDisplay)
		if i < cfg.MaxRounds-1 {
			h.clock.Advance(cfg.NextRoundLead)
		}
	}
}

func TestBothSubmittedFinishesRoundImmediately(t *testing.T) {
	h := newHarness(t)
	room := h.startedMatch("c1", "c2")

	h.engine.SubmitAnswer("c1", room.ID, perfect)
	assert.Equal(t, models.StatusInRound, room.Status)
	assert.Equal(t, 1, h.notifier.count("c2", EventOpponentSubmitted))
	assert.Zero(t, h.notifier.count("c1", EventOpponentSubmitted))

	h.engine.SubmitAnswer("c2", room.ID, teamsOnly)
	assert.Equal(t, models.StatusRoundResult, room.Status)
	assert.Equal(t, models.PhaseInGame, room.Phase())

	payload, ok := h.notifier.last("c1", EventRoundResult)
	require.True(t, ok)
	result := payload.(RoundResultPayload)
	assert.Equal(t, ReasonBothSubmitted, result.Reason)
	assert.Equal(t, testCorrect, result.Correct)
	require.Len(t, result.Results, 2)
	assert.Equal(t, 10, result.Results[0].Gained)
	assert.Equal(t, 5, result.Results[1].Gained)
	assert.Equal(t, 10, h.points(room, "p-c1"))
	assert.Equal(t, 5, h.points(room, "p-c2"))

	// 表示時間の後、カウントダウン付きで次のラウンド
	h.clock.Advance(h.engine.cfg.ResultDisplay)
	assert.Equal(t, models.StatusInRound, room.Status)
	assert.Equal(t, 2, room.CurrentRound)
	start, ok := h.notifier.last("c1", EventRoundStart)
	require.True(t, ok)
	assert.Equal(t, int64(3000), start.(RoundStartPayload).CountdownMs)
}

func TestSubmissionValidation(t *testing.T) {
	h := newHarness(t)
	room := h.startedMatch("c1", "c2")
	h.connect("outsider", "p-out")

	h.engine.SubmitAnswer("outsider", room.ID, perfect)
	h.engine.SubmitAnswer("c1", "no-such-room", perfect)
	assert.Empty(t, room.Round.Answers)

	h.engine.SubmitAnswer("c1", room.ID, Answer{TeamA: "X"})
	h.engine.SubmitAnswer("c1", room.ID, perfect)
	require.Len(t, room.Round.Answers, 1)
	assert.Equal(t, "X", room.Round.Answers["p-c1"].TeamA, "answers are write-once")
	assert.Equal(t, 1, h.notifier.count("c2", EventOpponentSubmitted))
}

func TestRoundTimeout(t *testing.T) {
	h := newHarness(t)
	room := h.startedMatch("c1", "c2")
	h.engine.SubmitAnswer("c1", room.ID, perfect)

	h.clock.Advance(h.engine.cfg.RoundDuration)
	assert.Equal(t, models.StatusInRound, room.Status, "slack not yet elapsed")

	h.clock.Advance(h.engine.cfg.RoundSlack)
	assert.Equal(t, models.StatusRoundResult, room.Status)
	payload, ok := h.notifier.last("c2", EventRoundResult)
	require.True(t, ok)
	result := payload.(RoundResultPayload)
	assert.Equal(t, ReasonTimeout, result.Reason)
	assert.Nil(t, result.Results[1].Answer)
	assert.Equal(t, 0, result.Results[1].Gained)
	assert.Equal(t, 10, result.Results[0].Total)
}

func TestFinishRoundTwiceAppliesOnce(t *testing.T) {
	h := newHarness(t)
	room := h.startedMatch("c1", "c2")
	h.engine.SubmitAnswer("c1", room.ID, perfect)

	h.engine.mu.Lock()
	h.engine.finishRound(room, ReasonTimeout)
	h.engine.finishRound(room, ReasonTimeout)
	h.engine.mu.Unlock()

	assert.Equal(t, 10, h.points(room, "p-c1"))
	assert.Equal(t, 1, h.notifier.count("c1", EventRoundResult))

	// 取り消されたタイムアウトも何もしない
	h.clock.Advance(time.Minute)
	assert.Equal(t, 10, h.points(room, "p-c1"))
}

func TestFullGameEndsAfterThreeRounds(t *testing.T) {
	h := newHarness(t)
	room := h.startedMatch("c1", "c2")

	playOut(t, h, room, "c1", "c2", perfect, teamsOnly)

	assert.Equal(t, models.StatusGameEnd, room.Status)
	assert.Equal(t, models.PhaseFinished, room.Phase())
	assert.Equal(t, 3, room.CurrentRound)
	assert.Nil(t, room.Round)
	require.NotNil(t, room.Result)
	assert.Equal(t, "p-c1", room.Result.WinnerID)
	assert.Equal(t, "p-c2", room.Result.LoserID)
	assert.Equal(t, ReasonGameEnd, room.Result.Reason)

	payload, ok := h.notifier.last("c2", EventGameEnd)
	require.True(t, ok)
	board := payload.(GameEndPayload).Scoreboard
	require.Len(t, board, 2)
	assert.Equal(t, models.ScoreLine{PlayerID: "p-c1", Name: "name-p-c1", Points: 30}, board[0])
	assert.Equal(t, 15, board[1].Points)
	assert.Equal(t, 1, h.notifier.count("c1", EventMatchFinished))

	// 最終ラウンドの後にラウンドは増えない
	h.engine.mu.Lock()
	h.engine.startRound(room, 0)
	h.engine.mu.Unlock()
	h.clock.Advance(time.Hour)
	assert.Equal(t, 3, room.CurrentRound)

	assert.Eventually(t, func() bool { return h.recorder.count() == 1 }, time.Second, 10*time.Millisecond)
	h.recorder.mu.Lock()
	outcome := h.recorder.outcomes[0]
	h.recorder.mu.Unlock()
	assert.Equal(t, room.ID, outcome.RoomID)
	assert.Equal(t, "p-c1", outcome.WinnerID)
	assert.Equal(t, 3, outcome.Rounds)
}

func TestCurrentRoundNeverExceedsMax(t *testing.T) {
	h := newHarness(t)
	room := h.startedMatch("c1", "c2")
	for i := 0; i < 10; i++ {
		h.clock.Advance(time.Minute)
		assert.LessOrEqual(t, room.CurrentRound, room.MaxRounds)
	}
	assert.Equal(t, models.StatusGameEnd, room.Status)
	assert.Equal(t, 3, room.CurrentRound)
}

func TestTieHasNoWinner(t *testing.T) {
	h := newHarness(t)
	room := h.startedMatch("c1", "c2")

	playOut(t, h, room, "c1", "c2", perfect, perfect)

	require.NotNil(t, room.Result)
	assert.Empty(t, room.Result.WinnerID)
	assert.Empty(t, room.Result.LoserID)
	payload, ok := h.notifier.last("c1", EventMatchFinished)
	require.True(t, ok)
	assert.Empty(t, payload.(MatchFinishedPayload).WinnerID)
}

func TestFourTierScoringPerMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scoring[models.ModeInternational] = ScoringFourTier
	h := newHarness(t, WithConfig(cfg))
	room := h.startedMatch("c1", "c2")

	h.engine.SubmitAnswer("c1", room.ID, Answer{TeamA: "Alpha", TeamB: "Nope"})
	h.engine.SubmitAnswer("c2", room.ID, Answer{TeamA: "Nope", TeamB: "Nada"})

	assert.Equal(t, 2, h.points(room, "p-c1"))
	assert.Equal(t, 0, h.points(room, "p-c2"))
}

func TestDeckDrawsFromModePool(t *testing.T) {
	h := newHarness(t)
	h.engine.mu.Lock()
	defer h.engine.mu.Unlock()

	room := h.engine.newRoom(models.RoomQuick, models.ModeClub, models.StatusMatched)
	seen := map[string]bool{}
	for i := 0; i < 8; i++ {
		q, ok := h.engine.drawQuestion(room)
		require.True(t, ok)
		assert.Equal(t, "CLUB", q.Meta.MatchType)
		seen[q.ID] = true
	}
	// CLUB は4問。2周目で山札が作り直される
	assert.Len(t, seen, 4)
}
