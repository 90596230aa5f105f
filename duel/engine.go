// Package duel は2人対戦クイズのマッチング、ルーム進行、切断処理、再戦を扱います。
//
// 全ての共有テーブルは Engine が持ち、1つのミューテックスで直列化します。
// タイマーはルームに紐づくタスクとして予約し、世代番号で古いタスクを無効にします。
package duel

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"duelserver/models"
	"duelserver/throttle"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const recordTimeout = 10 * time.Second

// ConnID はトランスポート層の接続ハンドルです。再接続のたびに変わります。
type ConnID string

// Notifier は接続へイベントを届けます。エンジンのロック中に呼ばれるのでブロックしてはいけません。
type Notifier interface {
	Send(conn ConnID, event string, payload interface{})
}

// QuestionBank は出題元です。
type QuestionBank interface {
	Question(i int) (models.Question, bool)
	Indexes(mode models.Mode) []int
	TeamOptions(mode models.Mode) []string
}

// QuitThrottle は途中退出の記録とクールダウン判定です。
type QuitThrottle interface {
	RecordQuit(key string) throttle.Record
	CheckCooldown(key string) (time.Time, bool)
}

// ResultRecorder は終了した試合の保存先です。
type ResultRecorder interface {
	RecordMatch(ctx context.Context, outcome models.MatchOutcome) error
}

type session struct {
	playerID string
	name     string
}

// Engine はマッチング待機列、ルーム表、接続とルームの対応表を持ちます。
type Engine struct {
	mu sync.Mutex

	cfg      Config
	clock    Clock
	rng      *rand.Rand
	newID    func() string
	bank     QuestionBank
	notifier Notifier
	throttle QuitThrottle
	recorder ResultRecorder
	logger   *zap.Logger

	sessions map[ConnID]*session
	queues   *queues
	rooms    map[string]*Room
	codes    map[string]string // 招待コード -> roomID
	connRoom map[ConnID]string
}

// Option は Engine の生成オプションです。
type Option func(*Engine)

func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithThrottle(t QuitThrottle) Option {
	return func(e *Engine) { e.throttle = t }
}

func WithRecorder(r ResultRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithRand は出題順と招待コードの乱数源を固定します。
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

func WithIDGenerator(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

func New(bank QuestionBank, notifier Notifier, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:      DefaultConfig(),
		clock:    realClock{},
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		newID:    uuid.NewString,
		bank:     bank,
		notifier: notifier,
		logger:   logger,
		sessions: make(map[ConnID]*session),
		queues:   newQueues(),
		rooms:    make(map[string]*Room),
		codes:    make(map[string]string),
		connRoom: make(map[ConnID]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.throttle == nil {
		e.throttle = throttle.New(logger)
	}
	if e.cfg.Scoring == nil {
		e.cfg.Scoring = map[models.Mode]ScoringRule{}
	}
	return e
}

// Connect は新しい接続を登録します。
func (e *Engine) Connect(conn ConnID, playerID, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions[conn] = &session{playerID: playerID, name: name}
	e.logger.Info("Client connected", zap.String("conn", string(conn)), zap.String("playerID", playerID))
}

// Identify は HELLO で送られた表示名と識別子で接続情報を更新します。
func (e *Engine) Identify(conn ConnID, playerID, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[conn]
	if !ok {
		return
	}
	s.playerID = playerID
	s.name = name
}

// Disconnect は接続の切断を処理します。待機列から外し、ルームでは切断として扱います。
func (e *Engine) Disconnect(conn ConnID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queues.remove(conn)
	e.leave(conn, "", true)
	delete(e.sessions, conn)
	delete(e.connRoom, conn)
	e.logger.Info("Client disconnected", zap.String("conn", string(conn)))
}

// TeamOptions はモードの選択肢になるチーム名一覧です。
func (e *Engine) TeamOptions(mode models.Mode) []string {
	return e.bank.TeamOptions(mode)
}

// RoomState は conn にルーム状態を送ります。メンバーでなければ room_state_failed を返します。
func (e *Engine) RoomState(conn ConnID, roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	room, ok := e.rooms[roomID]
	if !ok || room.playerByConn(conn) == nil {
		e.notifier.Send(conn, EventRoomStateFailed, RoomStateFailedPayload{RoomID: roomID, Error: JoinNotFound})
		return
	}
	e.notifier.Send(conn, EventRoomState, room.snapshot(e.bank.TeamOptions(room.Mode)))
}

// SnapshotFor は playerID が参加しているルームの状態を返します。
func (e *Engine) SnapshotFor(roomID, playerID string) (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	room, ok := e.rooms[roomID]
	if !ok || room.playerByID(playerID) == nil {
		return Snapshot{}, false
	}
	return room.snapshot(e.bank.TeamOptions(room.Mode)), true
}

// Stats はヘルスチェック用の集計です。
type Stats struct {
	Rooms       int            `json:"rooms"`
	ActiveRooms int            `json:"activeRooms"`
	Connections int            `json:"connections"`
	Queues      map[string]int `json:"queues"`
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Stats{Rooms: len(e.rooms), Connections: len(e.sessions), Queues: e.queues.sizes()}
	for _, r := range e.rooms {
		if !r.finished() {
			st.ActiveRooms++
		}
	}
	return st
}

// SweepFinished は終了から retention 以上経ったルームを削除し、削除数を返します。
func (e *Engine) SweepFinished(retention time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock.Now()
	n := 0
	for _, room := range e.rooms {
		if !room.finished() {
			continue
		}
		at := room.FinishedAt
		if at.IsZero() {
			at = room.CreatedAt
		}
		if now.Sub(at) >= retention {
			e.removeRoom(room)
			n++
		}
	}
	if n > 0 {
		e.logger.Info("Swept finished rooms", zap.Int("rooms", n))
	}
	return n
}

// Shutdown は全ルームの予約タスクを止めます。
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, room := range e.rooms {
		e.cancelAll(room)
	}
}

func (e *Engine) newRoom(t models.RoomType, mode models.Mode, status models.Status) *Room {
	return &Room{
		ID:           e.newID(),
		Type:         t,
		Mode:         mode,
		Status:       status,
		MaxRounds:    e.cfg.MaxRounds,
		Ready:        make(map[string]bool),
		RematchVotes: make(map[string]bool),
		CreatedAt:    e.clock.Now(),
		tasks:        make(map[taskSlot]*task),
	}
}

func (e *Engine) addPlayer(room *Room, conn ConnID) *Player {
	s := e.sessions[conn]
	p := &Player{Conn: conn, ID: s.playerID, Name: s.name}
	room.Players = append(room.Players, p)
	e.connRoom[conn] = room.ID
	return p
}

// removeRoom はルームを表から消し、予約タスクと索引も片付けます。
func (e *Engine) removeRoom(room *Room) {
	e.cancelAll(room)
	if e.rooms[room.ID] == room {
		delete(e.rooms, room.ID)
	}
	if room.Code != "" && e.codes[room.Code] == room.ID {
		delete(e.codes, room.Code)
	}
	for conn, rid := range e.connRoom {
		if rid == room.ID {
			delete(e.connRoom, conn)
		}
	}
	e.logger.Info("Room removed", zap.String("roomID", room.ID))
}

// closeRoom は再戦で置き換えられたルームを閉じます。以後そのルームのタスクは何もしません。
func (e *Engine) closeRoom(room *Room) {
	room.Closed = true
	e.cancelAll(room)
}

// schedule は slot のタスクを予約し直します。発火時にロックを取り、
// 自分がまだ最新のタスクで、ルームが生きているときだけ fn を実行します。
// 後片付けのタスクだけは閉じたルームでも実行します。
func (e *Engine) schedule(room *Room, slot taskSlot, d time.Duration, fn func(*Room)) {
	e.cancelTask(room, slot)
	room.taskGen++
	t := &task{gen: room.taskGen}
	room.tasks[slot] = t
	t.timer = e.clock.AfterFunc(d, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		cur, ok := room.tasks[slot]
		if !ok || cur.gen != t.gen {
			return
		}
		delete(room.tasks, slot)
		if e.rooms[room.ID] != room {
			return
		}
		if room.Closed && slot != slotCleanup {
			return
		}
		fn(room)
	})
}

func (e *Engine) cancelTask(room *Room, slot taskSlot) {
	if t, ok := room.tasks[slot]; ok {
		if t.timer != nil {
			t.timer.Stop()
		}
		delete(room.tasks, slot)
	}
}

func (e *Engine) cancelAll(room *Room) {
	for slot := range room.tasks {
		e.cancelTask(room, slot)
	}
}

func (e *Engine) broadcast(room *Room, event string, payload interface{}) {
	for _, p := range room.Players {
		if p.Disconnected {
			continue
		}
		e.notifier.Send(p.Conn, event, payload)
	}
}

func (e *Engine) broadcastState(room *Room) {
	e.broadcast(room, EventRoomState, room.snapshot(e.bank.TeamOptions(room.Mode)))
}

// record は試合結果を非同期で保存します。保存の失敗はログだけ残します。
func (e *Engine) record(room *Room) {
	if e.recorder == nil {
		return
	}
	outcome := room.outcome()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := e.recorder.RecordMatch(ctx, outcome); err != nil {
			e.logger.Error("Failed to record match result", zap.String("roomID", outcome.RoomID), zap.Error(err))
		}
	}()
}
