package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-common/logger"
	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-common/mqtt"
	rediscommon "github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-common/redis"
	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-notifier/internal/config"
	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-notifier/internal/consumer"
	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-notifier/internal/delivery"
	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-notifier/internal/store"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg := config.Load()

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "hostel-notifier")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. Redis
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	defer rediscommon.Close(redisClient)
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = rediscommon.Ping(pingCtx, redisClient)
	pingCancel()
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}

	// 4. 投递渠道
	router := delivery.NewRouter(log)
	mqttClient, err := mqtt.NewClient(&cfg.MQTT, log)
	if err != nil {
		log.Warn("MQTT unavailable, push channel disabled", zap.String("broker", cfg.MQTT.Broker), zap.Error(err))
	} else {
		defer mqttClient.Disconnect()
		router.Register("push", delivery.NewMQTTDeliverer(mqttClient, cfg.MQTT.QoS))
	}
	if cfg.Notify.WebhookURL != "" {
		router.Register("email", delivery.NewWebhookDeliverer(cfg.Notify.WebhookURL, cfg.Notify.WebhookToken))
	}

	// 5. 消费者
	c := consumer.NewNotificationConsumer(redisClient, consumer.Options{
		Stream:           cfg.Notify.Stream,
		ConsumerGroup:    cfg.Notify.ConsumerGroup,
		ConsumerName:     cfg.Notify.ConsumerName,
		BatchSize:        cfg.Notify.BatchSize,
		Block:            cfg.Notify.Block,
		MaxAttempts:      cfg.Notify.MaxAttempts,
		DeadLetterStream: cfg.Notify.DeadLetterStream,
		RetryBackoff:     cfg.Notify.RetryBackoff,
		MaxRetryBackoff:  cfg.Notify.MaxRetryBackoff,
	}, router,
		store.NewDedupeStore(redisClient, cfg.Notify.DedupeTTL),
		store.NewRetryQueue(redisClient, cfg.Notify.RetryKey),
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Start(ctx)
	}()

	// 6. 等待信号（优雅关闭）
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			log.Error("Notification consumer error", zap.Error(err))
		}
	}

	log.Info("hostel-notifier stopped")
}
