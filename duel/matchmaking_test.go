package duel

import (
	"testing"
	"time"

	"duelserver/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwoInternationalWaitersPairIntoOneRoom(t *testing.T) {
	h := newHarness(t)
	room := h.quickMatch("c1", "c2")

	assert.Equal(t, models.ModeInternational, room.Mode)
	assert.Equal(t, models.RoomQuick, room.Type)
	assert.Equal(t, models.StatusMatched, room.Status)
	assert.Equal(t, models.PhaseReady, room.Phase())
	require.Len(t, room.Players, 2)
	assert.Same(t, room, h.roomOf("c2"))

	for _, c := range []ConnID{"c1", "c2"} {
		assert.Equal(t, 1, h.notifier.count(c, EventQueueJoined))
		payload, ok := h.notifier.last(c, EventMatchFound)
		require.True(t, ok)
		found := payload.(MatchFoundPayload)
		assert.Equal(t, room.ID, found.RoomID)
		assert.Len(t, found.Players, 2)
	}
	assert.Equal(t, 0, h.engine.Stats().Queues["INTERNATIONAL"])
}

func TestPairingPriority(t *testing.T) {
	tests := []struct {
		name      string
		joins     []string // c1, c2, c3... の希望
		wantMode  models.Mode
		wantPair  [2]ConnID
		leftAlone ConnID
	}{
		{"club pair", []string{"CLUB", "CLUB"}, models.ModeClub, [2]ConnID{"c1", "c2"}, ""},
		{"all with international", []string{"ALL", "INTERNATIONAL"}, models.ModeInternational, [2]ConnID{"c1", "c2"}, ""},
		{"all with club", []string{"CLUB", "ALL"}, models.ModeClub, [2]ConnID{"c2", "c1"}, ""},
		{"all pair", []string{"ALL", "ALL"}, models.ModeAll, [2]ConnID{"c1", "c2"}, ""},
		{"unknown preference is all", []string{"whatever", ""}, models.ModeAll, [2]ConnID{"c1", "c2"}, ""},
		{"international preferred over club for all", []string{"CLUB", "INTERNATIONAL", "ALL"}, models.ModeInternational, [2]ConnID{"c3", "c2"}, "c1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			for i, pref := range tt.joins {
				conn := ConnID([]string{"c1", "c2", "c3"}[i])
				h.connect(conn, "p-"+string(conn))
				h.engine.JoinQueue(conn, pref)
			}
			room := h.roomOf(tt.wantPair[0])
			require.NotNil(t, room)
			assert.Equal(t, tt.wantMode, room.Mode)
			assert.Equal(t, tt.wantPair[0], room.Players[0].Conn)
			assert.Equal(t, tt.wantPair[1], room.Players[1].Conn)
			if tt.leftAlone != "" {
				assert.Nil(t, h.roomOf(tt.leftAlone))
			}
		})
	}
}

func TestClubAndInternationalDoNotPair(t *testing.T) {
	h := newHarness(t)
	h.connect("c1", "p1")
	h.connect("c2", "p2")
	h.engine.JoinQueue("c1", "CLUB")
	h.engine.JoinQueue("c2", "INTERNATIONAL")

	assert.Nil(t, h.roomOf("c1"))
	st := h.engine.Stats()
	assert.Equal(t, 1, st.Queues["CLUB"])
	assert.Equal(t, 1, st.Queues["INTERNATIONAL"])
}

func TestJoinQueueIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.connect("c1", "p1")
	h.engine.JoinQueue("c1", "INTERNATIONAL")
	h.engine.JoinQueue("c1", "INTERNATIONAL")

	assert.Nil(t, h.roomOf("c1"), "never matched with itself")
	assert.Equal(t, 1, h.engine.Stats().Queues["INTERNATIONAL"])

	// 希望を変えると前の列からは抜ける
	h.engine.JoinQueue("c1", "CLUB")
	st := h.engine.Stats()
	assert.Equal(t, 0, st.Queues["INTERNATIONAL"])
	assert.Equal(t, 1, st.Queues["CLUB"])
}

func TestSameIdentityOnTwoConnectionsDoesNotPair(t *testing.T) {
	h := newHarness(t)
	h.connect("tab1", "same")
	h.connect("tab2", "same")
	h.engine.JoinQueue("tab1", "ALL")
	h.engine.JoinQueue("tab2", "ALL")

	assert.Nil(t, h.roomOf("tab2"))
	assert.Equal(t, 1, h.engine.Stats().Queues["ALL"])
}

func TestCancelledWaiterIsNeverMatched(t *testing.T) {
	h := newHarness(t)
	h.connect("c1", "p1")
	h.connect("c2", "p2")
	h.connect("c3", "p3")

	h.engine.JoinQueue("c1", "INTERNATIONAL")
	h.engine.CancelQueue("c1")
	assert.Equal(t, 1, h.notifier.count("c1", EventQueueLeft))

	h.engine.JoinQueue("c2", "INTERNATIONAL")
	assert.Nil(t, h.roomOf("c2"))

	h.engine.JoinQueue("c3", "INTERNATIONAL")
	room := h.roomOf("c3")
	require.NotNil(t, room)
	assert.Nil(t, room.playerByConn("c1"))
	assert.Zero(t, h.notifier.count("c1", EventMatchFound))
}

func TestDisconnectRemovesFromQueues(t *testing.T) {
	h := newHarness(t)
	h.connect("c1", "p1")
	h.connect("c2", "p2")
	h.engine.JoinQueue("c1", "CLUB")
	h.engine.Disconnect("c1")
	h.engine.JoinQueue("c2", "CLUB")

	assert.Nil(t, h.roomOf("c2"))
	assert.Equal(t, 1, h.engine.Stats().Queues["CLUB"])
	assert.Equal(t, 1, h.engine.Stats().Connections)
}

func TestStaleQueueEntryIsDiscarded(t *testing.T) {
	h := newHarness(t)
	h.engine.mu.Lock()
	h.engine.queues.add(models.ModeInternational, "ghost")
	h.engine.mu.Unlock()

	h.connect("c1", "p1")
	h.engine.JoinQueue("c1", "INTERNATIONAL")
	assert.Nil(t, h.roomOf("c1"))
	assert.Equal(t, 1, h.engine.Stats().Queues["INTERNATIONAL"])

	h.connect("c2", "p2")
	h.engine.JoinQueue("c2", "INTERNATIONAL")
	room := h.roomOf("c1")
	require.NotNil(t, room)
	assert.Same(t, room, h.roomOf("c2"))
}

func TestJoinQueueWhileInGameIsIgnored(t *testing.T) {
	h := newHarness(t)
	room := h.startedMatch("c1", "c2")

	h.engine.JoinQueue("c1", "ALL")
	assert.Equal(t, 0, h.engine.Stats().Queues["ALL"])
	assert.Same(t, room, h.roomOf("c1"))
}

func TestJoinQueueDuringCooldownIsBlocked(t *testing.T) {
	h := newHarness(t)
	h.connect("c1", "quitter")
	h.throttle.RecordQuit("quitter")
	h.throttle.RecordQuit("quitter")

	h.engine.JoinQueue("c1", "ALL")

	payload, ok := h.notifier.last("c1", EventQuickMatchBlocked)
	require.True(t, ok)
	blocked := payload.(QuickMatchBlockedPayload)
	assert.Equal(t, h.clock.Now().Add(5*time.Minute).UnixMilli(), blocked.CooldownUntil)
	assert.Equal(t, ReasonTooManyQuits, blocked.Reason)
	assert.Zero(t, h.notifier.count("c1", EventQueueJoined))
	assert.Equal(t, 0, h.engine.Stats().Queues["ALL"])

	h.clock.Advance(5 * time.Minute)
	h.engine.JoinQueue("c1", "ALL")
	assert.Equal(t, 1, h.notifier.count("c1", EventQueueJoined))
}
