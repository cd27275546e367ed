package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	userKeyPrefix = "audit:user:"

	// DefaultHistoryLimit はユーザーごとに保持するイベント数です。
	DefaultHistoryLimit = 20
	// DefaultHistoryTTL は最後の記録から履歴を保持する期間です。
	DefaultHistoryTTL = 30 * 24 * time.Hour
)

// Store はログイン履歴を Redis のリストに保存します（新しいものが先頭）。
type Store struct {
	rdb   *redis.Client
	limit int64
	ttl   time.Duration
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client, limit int, ttl time.Duration) *Store {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if ttl <= 0 {
		ttl = DefaultHistoryTTL
	}
	return &Store{
		rdb:   rdb,
		limit: int64(limit),
		ttl:   ttl,
	}
}

// Append はイベントをユーザーの履歴に追加します。UserID が無いイベントは保存しません。
func (s *Store) Append(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event is nil")
	}
	if event.UserID == 0 {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := userKey(event.UserID)
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, s.limit-1)
	pipe.Expire(ctx, key, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Recent はユーザーの直近 n 件のイベントを新しい順に返します。
func (s *Store) Recent(ctx context.Context, userID int64, n int) ([]Event, error) {
	if n <= 0 || int64(n) > s.limit {
		n = int(s.limit)
	}
	values, err := s.rdb.LRange(ctx, userKey(userID), 0, int64(n)-1).Result()
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(values))
	for _, v := range values {
		var event Event
		if err := json.Unmarshal([]byte(v), &event); err != nil {
			return nil, fmt.Errorf("failed to decode audit event: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}

func userKey(userID int64) string {
	return userKeyPrefix + strconv.FormatInt(userID, 10)
}
