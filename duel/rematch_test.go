package duel

import (
	"testing"
	"time"

	"duelserver/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// finishedMatch は回答なしで3ラウンドを流し、0対0で終わったルームを返します。
func finishedMatch(t *testing.T, h *harness) *Room {
	t.Helper()
	room := h.startedMatch("c1", "c2")
	h.clock.Advance(10 * time.Minute)
	require.Equal(t, models.StatusGameEnd, h.status(room))
	return room
}

func TestRematchNeedsEveryVote(t *testing.T) {
	h := newHarness(t)
	room := finishedMatch(t, h)

	h.engine.RequestRematch("c1", room.ID)
	h.engine.RequestRematch("c1", room.ID)
	assert.Zero(t, h.notifier.count("c1", EventRematchStarted))
	assert.Equal(t, room, h.roomOf("c1"))

	snap, ok := h.engine.SnapshotFor(room.ID, "p-c2")
	require.True(t, ok)
	require.Len(t, snap.Players, 2)
	assert.True(t, snap.Players[0].WantsRematch)
	assert.False(t, snap.Players[1].WantsRematch)
}

func TestRematchIgnoredBeforeFinish(t *testing.T) {
	h := newHarness(t)
	room := h.startedMatch("c1", "c2")
	h.engine.RequestRematch("c1", room.ID)
	h.engine.RequestRematch("c2", room.ID)

	assert.Empty(t, room.RematchVotes)
	assert.Zero(t, h.notifier.count("c1", EventRematchStarted))
}

func TestRematchStartsNewRoom(t *testing.T) {
	h := newHarness(t)
	old := finishedMatch(t, h)

	h.engine.RequestRematch("c1", old.ID)
	h.engine.RequestRematch("c2", old.ID)

	next := h.roomOf("c1")
	require.NotNil(t, next)
	require.NotEqual(t, old.ID, next.ID)
	assert.Equal(t, next, h.roomOf("c2"))
	assert.True(t, old.Closed)
	assert.Equal(t, old.ID, next.PrevRoomID)

	assert.Equal(t, models.StatusInRound, h.status(next))
	assert.Equal(t, 1, next.CurrentRound)
	assert.Equal(t, h.clock.Now(), next.Round.StartedAt, "first round starts without countdown")
	assert.Equal(t, 0, h.points(next, "p-c1"))
	assert.Equal(t, old.Mode, next.Mode)
	assert.Equal(t, old.Type, next.Type)

	payload, ok := h.notifier.last("c2", EventRematchStarted)
	require.True(t, ok)
	assert.Equal(t, RematchStartedPayload{NewRoomID: next.ID, OldRoomID: old.ID, Mode: old.Mode, Type: old.Type}, payload)

	// 閉じたルームへの再投票で2つ目のルームは作られない
	h.engine.RequestRematch("c1", old.ID)
	h.engine.RequestRematch("c2", old.ID)
	assert.Equal(t, 1, h.notifier.count("c1", EventRematchStarted))
	assert.Equal(t, next, h.roomOf("c1"))

	// 後片付けまでは旧ルームの状態を問い合わせられる
	h.notifier.reset()
	h.engine.RoomState("c1", old.ID)
	state, ok := h.notifier.last("c1", EventRoomState)
	require.True(t, ok)
	assert.True(t, state.(Snapshot).Closed)

	h.clock.Advance(h.engine.cfg.RematchCleanup)
	assert.Nil(t, h.room(old.ID))
	assert.Equal(t, next, h.room(next.ID))
	assert.Equal(t, next, h.roomOf("c1"))
	assert.Equal(t, models.StatusInRound, h.status(next))

	h.engine.RoomState("c1", old.ID)
	_, ok = h.notifier.last("c1", EventRoomStateFailed)
	assert.True(t, ok)
}

func TestLeavingClosedRoomDoesNotTouchRematch(t *testing.T) {
	h := newHarness(t)
	old := finishedMatch(t, h)
	h.engine.RequestRematch("c1", old.ID)
	h.engine.RequestRematch("c2", old.ID)
	next := h.roomOf("c1")
	require.NotNil(t, next)
	h.notifier.reset()

	h.engine.LeaveRoom("c1", old.ID)

	assert.Zero(t, h.notifier.count("c2", EventOpponentLeft))
	assert.Equal(t, next, h.roomOf("c1"), "index for the new room is kept")
	assert.Equal(t, models.StatusInRound, h.status(next))
}

func TestPrivateRematchCode(t *testing.T) {
	h := newHarness(t)
	h.connect("host", "p-host")
	h.connect("guest", "p-guest")
	h.connect("late", "p-late")
	roomID, code, ok := h.engine.CreateRoom("host", "CLUB")
	require.True(t, ok)
	h.engine.JoinRoom("guest", code)
	h.engine.SignalReady("host", roomID)
	h.engine.SignalReady("guest", roomID)
	h.clock.Advance(10 * time.Minute)
	require.Equal(t, models.StatusGameEnd, h.status(h.room(roomID)))

	h.engine.RequestRematch("host", roomID)
	h.engine.RequestRematch("guest", roomID)
	next := h.roomOf("host")
	require.NotNil(t, next)
	assert.Equal(t, models.RoomPrivate, next.Type)
	assert.Empty(t, next.Code)

	h.engine.JoinRoom("late", code)
	payload, ok := h.notifier.last("late", EventRoomJoinFailed)
	require.True(t, ok)
	assert.Equal(t, JoinClosed, payload.(RoomJoinFailedPayload).Reason)

	h.clock.Advance(h.engine.cfg.RematchCleanup)
	h.engine.JoinRoom("late", code)
	payload, ok = h.notifier.last("late", EventRoomJoinFailed)
	require.True(t, ok)
	assert.Equal(t, JoinNotFound, payload.(RoomJoinFailedPayload).Reason)
}
