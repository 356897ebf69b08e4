package config

import (
	"os"
	"strconv"
	"time"

	commoncfg "github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-common/config"
)

// Config hostel-notifier 配置
type Config struct {
	Redis commoncfg.RedisConfig
	MQTT  commoncfg.MQTTConfig
	Log   struct {
		Level  string
		Format string
	}
	Notify NotifyConfig
}

// NotifyConfig 通知消费配置
type NotifyConfig struct {
	Stream           string
	ConsumerGroup    string
	ConsumerName     string
	BatchSize        int64
	Block            time.Duration
	MaxAttempts      int
	DeadLetterStream string
	RetryKey         string        // 延迟重试 ZSET
	RetryBackoff     time.Duration // 第一次重试延迟，之后翻倍
	MaxRetryBackoff  time.Duration
	DedupeTTL        time.Duration
	WebhookURL       string // email 渠道的外部投递网关，为空时不启用
	WebhookToken     string
}

func Load() *Config {
	cfg := &Config{}

	cfg.Redis = commoncfg.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = commoncfg.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "hostel-notifier",
		QoS:      1,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Notify.Stream = getEnv("NOTIFY_STREAM", "hostel:notifications")
	cfg.Notify.ConsumerGroup = getEnv("NOTIFY_CONSUMER_GROUP", "hostel-notifier")
	cfg.Notify.ConsumerName = getEnv("NOTIFY_CONSUMER_NAME", defaultConsumerName())
	cfg.Notify.BatchSize = int64(parseInt(getEnv("NOTIFY_BATCH_SIZE", "50"), 50))
	cfg.Notify.Block = parseDuration(getEnv("NOTIFY_BLOCK", "5s"), 5*time.Second)
	cfg.Notify.MaxAttempts = parseInt(getEnv("NOTIFY_MAX_ATTEMPTS", "5"), 5)
	cfg.Notify.DeadLetterStream = getEnv("NOTIFY_DEAD_LETTER_STREAM", "hostel:notifications:dead")
	cfg.Notify.RetryKey = getEnv("NOTIFY_RETRY_KEY", "hostel:notifications:retry")
	cfg.Notify.RetryBackoff = parseDuration(getEnv("NOTIFY_RETRY_BACKOFF", "1s"), time.Second)
	cfg.Notify.MaxRetryBackoff = parseDuration(getEnv("NOTIFY_RETRY_MAX_BACKOFF", "5m"), 5*time.Minute)
	cfg.Notify.DedupeTTL = parseDuration(getEnv("NOTIFY_DEDUPE_TTL", "24h"), 24*time.Hour)
	cfg.Notify.WebhookURL = os.Getenv("NOTIFY_WEBHOOK_URL")
	cfg.Notify.WebhookToken = os.Getenv("NOTIFY_WEBHOOK_TOKEN")

	return cfg
}

func defaultConsumerName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return "notifier-" + host
	}
	return "notifier-1"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil || i <= 0 {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
