package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"duelserver/throttle"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	quitKeyPrefix = "quit:"
	quitMinTTL    = 2 * time.Hour
)

// QuitStore は退出履歴を Redis に保存する throttle.Persister です。
// 1プレイヤー1キー、値は JSON。
type QuitStore struct {
	rdb    *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewQuitStore(rdb *redis.Client, logger *zap.Logger) *QuitStore {
	return &QuitStore{rdb: rdb, logger: logger, now: time.Now}
}

// SaveQuitRecord は履歴を上書き保存します。
// 有効期限はクールダウン残り時間と2時間の長い方です。
func (s *QuitStore) SaveQuitRecord(ctx context.Context, key string, rec throttle.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode quit record: %w", err)
	}
	ttl := quitMinTTL
	if remaining := rec.CooldownUntil.Sub(s.now()); remaining > ttl {
		ttl = remaining
	}
	if err := s.rdb.Set(ctx, quitKeyPrefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("store quit record: %w", err)
	}
	return nil
}

// LoadQuitRecords は保存済みの全履歴を読み込みます。壊れた値は読み飛ばします。
func (s *QuitStore) LoadQuitRecords(ctx context.Context) (map[string]throttle.Record, error) {
	out := make(map[string]throttle.Record)
	iter := s.rdb.Scan(ctx, 0, quitKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		redisKey := iter.Val()
		raw, err := s.rdb.Get(ctx, redisKey).Bytes()
		if err == redis.Nil {
			continue // SCAN 後に期限切れ
		}
		if err != nil {
			return nil, fmt.Errorf("load quit record %s: %w", redisKey, err)
		}
		var rec throttle.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.logger.Warn("Skipping malformed quit record", zap.String("key", redisKey), zap.Error(err))
			continue
		}
		out[strings.TrimPrefix(redisKey, quitKeyPrefix)] = rec
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan quit records: %w", err)
	}
	return out, nil
}
