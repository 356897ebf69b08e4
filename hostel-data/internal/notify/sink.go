package notify

import (
	"context"
	"fmt"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/domain"

	rediscommon "github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-common/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisStreamSink 把通知写入 Redis Streams，由 hostel-notifier 消费投递
type RedisStreamSink struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewRedisStreamSink 创建 Redis Streams 通知队列
func NewRedisStreamSink(client *redis.Client, stream string, logger *zap.Logger) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream, logger: logger}
}

// Enqueue payload 放在 data 字段（JSON）
func (s *RedisStreamSink) Enqueue(ctx context.Context, n *domain.Notification) error {
	if n == nil {
		return nil
	}
	id, err := rediscommon.PublishJSONToStream(ctx, s.client, s.stream, n)
	if err != nil {
		return fmt.Errorf("enqueue notification %s: %w", n.NotificationID, err)
	}
	s.logger.Debug("Notification enqueued",
		zap.String("stream", s.stream),
		zap.String("message_id", id),
		zap.String("notification_id", n.NotificationID),
		zap.String("channel", n.Channel),
	)
	return nil
}

// LogSink Redis 未启用时使用：只记日志
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Enqueue(_ context.Context, n *domain.Notification) error {
	if n == nil {
		return nil
	}
	s.logger.Info("Notification (not delivered, queue disabled)",
		zap.String("notification_id", n.NotificationID),
		zap.String("tenant_id", n.TenantID),
		zap.String("recipient_id", n.RecipientID),
		zap.String("channel", n.Channel),
		zap.String("message", n.Message),
	)
	return nil
}
