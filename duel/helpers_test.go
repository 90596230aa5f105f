package duel

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"duelserver/models"
	"duelserver/questions"
	"duelserver/throttle"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClock は Advance されたときだけタイマーを発火させる時計です。
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance は d だけ時間を進め、その間に期限が来たタイマーを時刻順に発火させます。
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		if next.at.After(c.now) {
			c.now = next.at
		}
		next.fired = true
		c.mu.Unlock()
		next.f()
	}
}

// lastTimer は最後に予約されたタイマーです。
func (c *fakeClock) lastTimer() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[len(c.timers)-1]
}

type sentEvent struct {
	conn    ConnID
	event   string
	payload interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *recordingNotifier) Send(conn ConnID, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{conn: conn, event: event, payload: payload})
}

func (n *recordingNotifier) count(conn ConnID, event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, ev := range n.events {
		if ev.conn == conn && ev.event == event {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) last(conn ConnID, event string) (interface{}, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i].conn == conn && n.events[i].event == event {
			return n.events[i].payload, true
		}
	}
	return nil, false
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

type memoryRecorder struct {
	mu       sync.Mutex
	outcomes []models.MatchOutcome
}

func (r *memoryRecorder) RecordMatch(_ context.Context, o models.MatchOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return nil
}

func (r *memoryRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outcomes)
}

var testCorrect = models.CorrectAnswer{TeamA: "Alpha", TeamB: "Beta", Score: "2-1"}

func testBank() *questions.Bank {
	qs := make([]models.Question, 0, 8)
	for i := 0; i < 8; i++ {
		mt := "INTERNATIONAL"
		if i%2 == 0 {
			mt = "CLUB"
		}
		qs = append(qs, models.Question{
			ID:       fmt.Sprintf("q_%d", i),
			ImageURL: fmt.Sprintf("/img/%d.png", i),
			Correct:  testCorrect,
			Meta:     models.QuestionMeta{MatchType: mt, Difficulty: 2},
		})
	}
	return questions.New(qs)
}

type harness struct {
	t        *testing.T
	engine   *Engine
	clock    *fakeClock
	notifier *recordingNotifier
	throttle *throttle.Throttle
	recorder *memoryRecorder
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		clock:    newFakeClock(),
		notifier: &recordingNotifier{},
		recorder: &memoryRecorder{},
	}
	h.throttle = throttle.New(zap.NewNop(), throttle.WithClock(h.clock.Now))
	ids := 0
	base := []Option{
		WithClock(h.clock),
		WithThrottle(h.throttle),
		WithRecorder(h.recorder),
		WithRand(rand.New(rand.NewSource(1))),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		}),
	}
	h.engine = New(testBank(), h.notifier, zap.NewNop(), append(base, opts...)...)
	return h
}

// connect は conn をプレイヤー pid として登録します。
func (h *harness) connect(conn ConnID, pid string) {
	h.engine.Connect(conn, pid, "name-"+pid)
}

func (h *harness) room(id string) *Room {
	h.engine.mu.Lock()
	defer h.engine.mu.Unlock()
	return h.engine.rooms[id]
}

func (h *harness) roomOf(conn ConnID) *Room {
	h.engine.mu.Lock()
	defer h.engine.mu.Unlock()
	return h.engine.rooms[h.engine.connRoom[conn]]
}

// quickMatch は c1 と c2 を INTERNATIONAL でマッチさせ、そのルームを返します。
func (h *harness) quickMatch(c1, c2 ConnID) *Room {
	h.t.Helper()
	h.connect(c1, "p-"+string(c1))
	h.connect(c2, "p-"+string(c2))
	h.engine.JoinQueue(c1, "INTERNATIONAL")
	h.engine.JoinQueue(c2, "INTERNATIONAL")
	room := h.roomOf(c1)
	require.NotNil(h.t, room)
	return room
}

// startedMatch は READY まで済ませて1ラウンド目の回答受付が始まった状態にします。
func (h *harness) startedMatch(c1, c2 ConnID) *Room {
	h.t.Helper()
	room := h.quickMatch(c1, c2)
	h.engine.SignalReady(c1, room.ID)
	h.engine.SignalReady(c2, room.ID)
	h.clock.Advance(h.engine.cfg.ReadyLead)
	return room
}

func (h *harness) status(room *Room) models.Status {
	h.engine.mu.Lock()
	defer h.engine.mu.Unlock()
	return room.Status
}

func (h *harness) points(room *Room, pid string) int {
	h.engine.mu.Lock()
	defer h.engine.mu.Unlock()
	p := room.playerByID(pid)
	require.NotNil(h.t, p)
	return p.Points
}

var perfect = Answer{TeamA: "Alpha", TeamB: "Beta", Score: "2-1"}
