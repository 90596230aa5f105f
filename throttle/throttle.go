// Package throttle はクイックマッチを途中で抜けるプレイヤーへのクールダウンを管理します。
//
// 記録はプロセス内のメモリが正で、Persister が設定されていれば非同期に書き出します。
package throttle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	lookBack      = 2 * time.Hour
	shortWindow   = 10 * time.Minute
	longWindow    = 60 * time.Minute
	shortLimit    = 2
	longLimit     = 5
	shortCooldown = 5 * time.Minute
	longCooldown  = 30 * time.Minute

	persistQueueSize = 256
)

// Record は1プレイヤー分の途中退出履歴です。
type Record struct {
	Timestamps    []time.Time `json:"timestamps"`    // 直近2時間の退出時刻
	Total         int         `json:"total"`         // 累計退出回数
	CooldownUntil time.Time   `json:"cooldownUntil"` // 延長のみ、短縮はしない
}

func (r Record) clone() Record {
	ts := make([]time.Time, len(r.Timestamps))
	copy(ts, r.Timestamps)
	r.Timestamps = ts
	return r
}

// Persister は退出履歴の保存先です。
type Persister interface {
	SaveQuitRecord(ctx context.Context, key string, rec Record) error
	LoadQuitRecords(ctx context.Context) (map[string]Record, error)
}

type persistJob struct {
	key string
	rec Record
}

// Throttle は識別子ごとの退出履歴テーブルです。
type Throttle struct {
	mu        sync.Mutex
	records   map[string]*Record
	now       func() time.Time
	persister Persister
	logger    *zap.Logger

	jobs   chan persistJob
	done   chan struct{}
	closed bool
}

// Option は Throttle の生成オプションです。
type Option func(*Throttle)

// WithClock は現在時刻の取得元を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(t *Throttle) { t.now = now }
}

// WithPersister は退出履歴の書き出し先を設定します。
func WithPersister(p Persister) Option {
	return func(t *Throttle) { t.persister = p }
}

// New は Throttle を作ります。Persister があれば書き出し用のゴルーチンを起動します。
func New(logger *zap.Logger, opts ...Option) *Throttle {
	t := &Throttle{
		records: make(map[string]*Record),
		now:     time.Now,
		logger:  logger,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.persister != nil {
		t.jobs = make(chan persistJob, persistQueueSize)
		go t.persistLoop()
	} else {
		close(t.done)
	}
	return t
}

// RecordQuit は key の退出を1回記録し、必要ならクールダウンを延長します。
// 記録後の履歴を返します。
func (t *Throttle) RecordQuit(key string) Record {
	if key == "" {
		return Record{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	rec, ok := t.records[key]
	if !ok {
		rec = &Record{}
		t.records[key] = rec
	}
	rec.Timestamps = trim(rec.Timestamps, now)
	rec.Timestamps = append(rec.Timestamps, now)
	rec.Total++

	var cooldown time.Duration
	if countSince(rec.Timestamps, now, longWindow) >= longLimit {
		cooldown = longCooldown
	} else if countSince(rec.Timestamps, now, shortWindow) >= shortLimit {
		cooldown = shortCooldown
	}
	if cooldown > 0 {
		if until := now.Add(cooldown); until.After(rec.CooldownUntil) {
			rec.CooldownUntil = until
		}
	}

	out := rec.clone()
	t.enqueue(key, out)
	t.logger.Info("Quit recorded",
		zap.String("playerID", key),
		zap.Int("total", rec.Total),
		zap.Time("cooldownUntil", rec.CooldownUntil),
	)
	return out
}

// CheckCooldown は key がクールダウン中かを返します。クールダウン中なら解除時刻も返します。
func (t *Throttle) CheckCooldown(key string) (time.Time, bool) {
	if key == "" {
		return time.Time{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[key]
	if !ok {
		return time.Time{}, false
	}
	if rec.CooldownUntil.After(t.now()) {
		return rec.CooldownUntil, true
	}
	return time.Time{}, false
}

// Lookup は key の履歴のコピーを返します。
func (t *Throttle) Lookup(key string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[key]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Prune は全レコードの2時間より古い退出時刻を削除し、削除した件数を返します。
// 累計回数とクールダウンは残します。
func (t *Throttle) Prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for _, rec := range t.records {
		before := len(rec.Timestamps)
		rec.Timestamps = trim(rec.Timestamps, now)
		removed += before - len(rec.Timestamps)
	}
	return removed
}

// Restore は Persister から履歴を読み込みます。メモリ上の既存レコードは上書きしません。
func (t *Throttle) Restore(ctx context.Context) (int, error) {
	if t.persister == nil {
		return 0, nil
	}
	loaded, err := t.persister.LoadQuitRecords(ctx)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	n := 0
	for key, rec := range loaded {
		if _, exists := t.records[key]; exists {
			continue
		}
		r := rec.clone()
		r.Timestamps = trim(r.Timestamps, now)
		t.records[key] = &r
		n++
	}
	return n, nil
}

// Close は書き出し用のゴルーチンを止め、残りのジョブを書き終えるまで待ちます。
func (t *Throttle) Close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		if t.jobs != nil {
			close(t.jobs)
		}
	}
	t.mu.Unlock()
	<-t.done
}

// enqueue は t.mu を保持した状態で呼びます。
func (t *Throttle) enqueue(key string, rec Record) {
	if t.jobs == nil || t.closed {
		return
	}
	select {
	case t.jobs <- persistJob{key: key, rec: rec}:
	default:
		t.logger.Warn("Quit record persist queue is full, dropping", zap.String("playerID", key))
	}
}

func (t *Throttle) persistLoop() {
	defer close(t.done)
	for job := range t.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := t.persister.SaveQuitRecord(ctx, job.key, job.rec); err != nil {
			t.logger.Error("Failed to persist quit record", zap.String("playerID", job.key), zap.Error(err))
		}
		cancel()
	}
}

func trim(ts []time.Time, now time.Time) []time.Time {
	out := ts[:0]
	for _, at := range ts {
		if now.Sub(at) <= lookBack {
			out = append(out, at)
		}
	}
	return out
}

func countSince(ts []time.Time, now time.Time, window time.Duration) int {
	n := 0
	for _, at := range ts {
		if now.Sub(at) <= window {
			n++
		}
	}
	return n
}
