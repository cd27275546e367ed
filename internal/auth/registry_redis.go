package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// RedisRegistry はセッションを Redis に保存します。TTL は Redis 側で管理します。
type RedisRegistry struct {
	rdb *redis.Client
}

// NewRedisRegistry は RedisRegistry を作成します。
func NewRedisRegistry(rdb *redis.Client) *RedisRegistry {
	return &RedisRegistry{rdb: rdb}
}

// Save はセッションを保存します。
func (r *RedisRegistry) Save(ctx context.Context, token string, record Record, ttl time.Duration) error {
	if token == "" {
		return fmt.Errorf("token is required")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, sessionKey(token), payload, ttl).Err()
}

// Get はセッションを取得します。
func (r *RedisRegistry) Get(ctx context.Context, token string) (*Record, error) {
	data, err := r.rdb.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode session record: %w", err)
	}
	return &record, nil
}

// Touch は最終アクセス時刻を更新します。既存の TTL は保持します。
func (r *RedisRegistry) Touch(ctx context.Context, token string, lastSeen time.Time) error {
	record, err := r.Get(ctx, token)
	if err != nil || record == nil {
		return err
	}
	record.LastSeen = lastSeen
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	// XX: ログアウト済みのトークンを復活させない
	err = r.rdb.SetArgs(ctx, sessionKey(token), payload, redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// Delete はセッションを削除します。
func (r *RedisRegistry) Delete(ctx context.Context, token string) error {
	return r.rdb.Del(ctx, sessionKey(token)).Err()
}

func sessionKey(token string) string {
	return sessionKeyPrefix + token
}
