package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	rediscommon "github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-common/redis"
	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-notifier/internal/delivery"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Deliverer 按渠道投递
type Deliverer interface {
	Deliver(ctx context.Context, n *delivery.Notification) error
}

// Deduper 通知去重
type Deduper interface {
	Claim(ctx context.Context, notificationID string) (bool, error)
	Release(ctx context.Context, notificationID string) error
}

// RetryScheduler 延迟重试
type RetryScheduler interface {
	Schedule(ctx context.Context, payload string, due time.Time) error
	TakeDue(ctx context.Context, now time.Time, limit int64) ([]string, error)
}

// Options 消费参数
type Options struct {
	Stream           string
	ConsumerGroup    string
	ConsumerName     string
	BatchSize        int64
	Block            time.Duration // < 0 不阻塞
	MaxAttempts      int
	DeadLetterStream string
	RetryBackoff     time.Duration // 第一次重试的延迟，之后翻倍
	MaxRetryBackoff  time.Duration
}

// NotificationConsumer 从 Redis Streams 读取通知并投递
// - 失败时 attempt+1 放入延迟队列，到期后重新写回 Stream
// - 超过 MaxAttempts 或渠道无法路由进入死信
// - 重试无法入队时不 ACK，消息留在 pending 中，重启时重新处理
type NotificationConsumer struct {
	client    *redis.Client
	opts      Options
	deliverer Deliverer
	dedupe    Deduper
	retries   RetryScheduler
	logger    *zap.Logger
	now       func() time.Time
}

func NewNotificationConsumer(client *redis.Client, opts Options, deliverer Deliverer, dedupe Deduper, retries RetryScheduler, logger *zap.Logger) *NotificationConsumer {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.MaxRetryBackoff < opts.RetryBackoff {
		opts.MaxRetryBackoff = 5 * time.Minute
	}
	return &NotificationConsumer{
		client:    client,
		opts:      opts,
		deliverer: deliverer,
		dedupe:    dedupe,
		retries:   retries,
		logger:    logger,
		now:       time.Now,
	}
}

// Start 阻塞直到 ctx 结束
func (c *NotificationConsumer) Start(ctx context.Context) error {
	if err := rediscommon.CreateConsumerGroup(ctx, c.client, c.opts.Stream, c.opts.ConsumerGroup); err != nil {
		return err
	}
	c.logger.Info("Notification consumer started",
		zap.String("stream", c.opts.Stream),
		zap.String("consumer_group", c.opts.ConsumerGroup),
		zap.String("consumer_name", c.opts.ConsumerName),
	)

	if n, err := c.RecoverPending(ctx); err != nil {
		c.logger.Warn("Failed to recover pending notifications", zap.Error(err))
	} else if n > 0 {
		c.logger.Info("Recovered pending notifications", zap.Int("count", n))
	}

	backoff := time.Second
	maxBackoff := 30 * time.Second
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if _, err := c.ConsumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume notification stream",
				zap.Error(err),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
	}
}

// ConsumeOnce 先把到期的重试写回 Stream，再读取并处理一批消息，返回处理条数
func (c *NotificationConsumer) ConsumeOnce(ctx context.Context) (int, error) {
	if err := c.promoteDue(ctx); err != nil {
		c.logger.Warn("Failed to promote due retries", zap.Error(err))
	}
	messages, err := rediscommon.ReadFromStream(ctx, c.client, c.opts.Stream, c.opts.ConsumerGroup, c.opts.ConsumerName, c.opts.BatchSize, c.opts.Block)
	if err != nil {
		return 0, fmt.Errorf("failed to read from stream %s: %w", c.opts.Stream, err)
	}
	c.handleAll(ctx, messages)
	return len(messages), nil
}

// RecoverPending 重新处理本消费者未 ACK 的消息
func (c *NotificationConsumer) RecoverPending(ctx context.Context) (int, error) {
	messages, err := rediscommon.ReadPendingFromStream(ctx, c.client, c.opts.Stream, c.opts.ConsumerGroup, c.opts.ConsumerName, c.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to read pending from stream %s: %w", c.opts.Stream, err)
	}
	c.handleAll(ctx, messages)
	return len(messages), nil
}

func (c *NotificationConsumer) handleAll(ctx context.Context, messages []rediscommon.StreamMessage) {
	for _, msg := range messages {
		if c.handle(ctx, msg) {
			c.ack(ctx, msg.ID)
		}
	}
}

func (c *NotificationConsumer) promoteDue(ctx context.Context) error {
	if c.retries == nil {
		return nil
	}
	due, err := c.retries.TakeDue(ctx, c.now(), c.opts.BatchSize)
	for _, payload := range due {
		if _, pubErr := rediscommon.PublishToStream(ctx, c.client, c.opts.Stream, map[string]interface{}{"data": payload}); pubErr != nil {
			// 放回延迟队列，下一轮再试
			if schErr := c.retries.Schedule(ctx, payload, c.now()); schErr != nil {
				c.logger.Error("Retry lost", zap.String("payload", payload), zap.Error(schErr))
			}
			err = errors.Join(err, pubErr)
		}
	}
	return err
}

// handle 返回是否 ACK
func (c *NotificationConsumer) handle(ctx context.Context, msg rediscommon.StreamMessage) bool {
	n, err := parseNotification(msg.Values)
	if err != nil {
		c.logger.Warn("Malformed notification, dead-lettering",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		c.deadLetter(ctx, msg.Values, err)
		return true
	}

	claimed, err := c.dedupe.Claim(ctx, n.NotificationID)
	if err != nil {
		// 去重不可用时按失败处理，走重试
		return c.retry(ctx, n, err)
	}
	if !claimed {
		c.logger.Debug("Duplicate notification skipped", zap.String("notification_id", n.NotificationID))
		return true
	}

	if err := c.deliverer.Deliver(ctx, n); err != nil {
		if relErr := c.dedupe.Release(ctx, n.NotificationID); relErr != nil {
			c.logger.Warn("Failed to release dedupe claim", zap.String("notification_id", n.NotificationID), zap.Error(relErr))
		}
		return c.retry(ctx, n, err)
	}
	c.logger.Info("Notification delivered",
		zap.String("notification_id", n.NotificationID),
		zap.String("tenant_id", n.TenantID),
		zap.String("channel", n.Channel),
		zap.Int("attempt", n.Attempt),
	)
	return true
}

// retry attempt+1 延迟重试；达到上限进入死信。返回 false 表示原消息需保留
func (c *NotificationConsumer) retry(ctx context.Context, n *delivery.Notification, cause error) bool {
	next := *n
	next.Attempt = n.Attempt + 1
	if next.Attempt >= c.opts.MaxAttempts || errors.Is(cause, delivery.ErrNoRoute) || c.retries == nil {
		c.logger.Warn("Notification delivery abandoned",
			zap.String("notification_id", n.NotificationID),
			zap.String("channel", n.Channel),
			zap.Int("attempt", next.Attempt),
			zap.Error(cause),
		)
		c.deadLetter(ctx, map[string]interface{}{"data": mustJSON(&next)}, cause)
		return true
	}

	delay := c.retryDelay(next.Attempt)
	next.NotBefore = c.now().Add(delay).UTC()
	if err := c.retries.Schedule(ctx, mustJSON(&next), next.NotBefore); err != nil {
		c.logger.Error("Failed to schedule notification retry, leaving pending",
			zap.String("notification_id", n.NotificationID),
			zap.Error(err),
		)
		return false
	}
	c.logger.Warn("Notification delivery failed, retry scheduled",
		zap.String("notification_id", n.NotificationID),
		zap.String("channel", n.Channel),
		zap.Int("attempt", next.Attempt),
		zap.Duration("delay", delay),
		zap.Error(cause),
	)
	return true
}

func (c *NotificationConsumer) retryDelay(attempt int) time.Duration {
	delay := c.opts.RetryBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.opts.MaxRetryBackoff {
			return c.opts.MaxRetryBackoff
		}
	}
	return delay
}

func (c *NotificationConsumer) deadLetter(ctx context.Context, values map[string]interface{}, cause error) {
	if c.opts.DeadLetterStream == "" {
		return
	}
	out := make(map[string]interface{}, len(values)+1)
	for k, v := range values {
		out[k] = v
	}
	out["error"] = cause.Error()
	if _, err := rediscommon.PublishToStream(ctx, c.client, c.opts.DeadLetterStream, out); err != nil {
		c.logger.Error("Failed to dead-letter notification", zap.Error(err))
	}
}

func (c *NotificationConsumer) ack(ctx context.Context, id string) {
	if err := rediscommon.Ack(ctx, c.client, c.opts.Stream, c.opts.ConsumerGroup, id); err != nil {
		c.logger.Warn("Failed to ack message", zap.String("message_id", id), zap.Error(err))
	}
}

func parseNotification(values map[string]interface{}) (*delivery.Notification, error) {
	raw, ok := values["data"].(string)
	if !ok || raw == "" {
		return nil, errors.New("missing data field")
	}
	var n delivery.Notification
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return nil, fmt.Errorf("invalid notification payload: %w", err)
	}
	if n.NotificationID == "" {
		return nil, errors.New("missing notification_id")
	}
	return &n, nil
}

func mustJSON(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}
