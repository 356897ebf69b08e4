package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const dedupeKeyPrefix = "hostel:notify:sent:"

// DedupeStore 基于 Redis KV 的通知去重（SETNX + TTL）
type DedupeStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDedupeStore(client *redis.Client, ttl time.Duration) *DedupeStore {
	return &DedupeStore{client: client, ttl: ttl}
}

// Claim 首次出现返回 true；已处理过（或正在处理）返回 false
func (s *DedupeStore) Claim(ctx context.Context, notificationID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, dedupeKeyPrefix+notificationID, time.Now().Unix(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim notification %s: %w", notificationID, err)
	}
	return ok, nil
}

// Release 投递失败时释放占位，允许重试
func (s *DedupeStore) Release(ctx context.Context, notificationID string) error {
	if err := s.client.Del(ctx, dedupeKeyPrefix+notificationID).Err(); err != nil {
		return fmt.Errorf("release notification %s: %w", notificationID, err)
	}
	return nil
}
