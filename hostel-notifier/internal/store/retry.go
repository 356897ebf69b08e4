package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RetryQueue 延迟重试队列（ZSET，score 为到期时间毫秒）
type RetryQueue struct {
	client *redis.Client
	key    string
}

func NewRetryQueue(client *redis.Client, key string) *RetryQueue {
	return &RetryQueue{client: client, key: key}
}

// Schedule 在 due 之后可被 TakeDue 取出
func (q *RetryQueue) Schedule(ctx context.Context, payload string, due time.Time) error {
	err := q.client.ZAdd(ctx, q.key, &redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: payload,
	}).Err()
	if err != nil {
		return fmt.Errorf("schedule retry on %s: %w", q.key, err)
	}
	return nil
}

// TakeDue 取出已到期的条目；ZREM 成功者才拥有该条目，多个消费者并发时不会重复取出
func (q *RetryQueue) TakeDue(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	members, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read due retries from %s: %w", q.key, err)
	}
	due := make([]string, 0, len(members))
	for _, m := range members {
		removed, err := q.client.ZRem(ctx, q.key, m).Result()
		if err != nil {
			return due, fmt.Errorf("take retry from %s: %w", q.key, err)
		}
		if removed == 1 {
			due = append(due, m)
		}
	}
	return due, nil
}

// Len 待重试条数
func (q *RetryQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.key).Result()
}
