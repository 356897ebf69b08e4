package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	commoncfg "github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-common/config"
)

// Config hostel-data（HTTP API + 分配引擎）配置
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled    bool
	Database     commoncfg.DatabaseConfig
	RedisEnabled bool
	Redis        commoncfg.RedisConfig
	Log          struct {
		Level  string
		Format string
	}
	Dispatch DispatchConfig
	Notify   NotifyConfig
}

// DispatchConfig 副作用分发配置
type DispatchConfig struct {
	Workers      int
	QueueSize    int
	AuditRetries int
	AuditBackoff time.Duration
	Timeout      time.Duration
}

// NotifyConfig 通知队列配置
type NotifyConfig struct {
	Stream   string   // Redis Stream 名称
	Channels []string // push / email
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	// DB 不可用时回退到内存存储（本地联调）
	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database = commoncfg.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "hostel",
		SSLMode:  "disable",
		MaxConns: 20,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.RedisEnabled = getEnv("REDIS_ENABLED", "true") == "true"
	cfg.Redis = commoncfg.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Dispatch.Workers = parseInt(getEnv("DISPATCH_WORKERS", "4"), 4)
	cfg.Dispatch.QueueSize = parseInt(getEnv("DISPATCH_QUEUE_SIZE", "1024"), 1024)
	cfg.Dispatch.AuditRetries = parseInt(getEnv("DISPATCH_AUDIT_RETRIES", "3"), 3)
	cfg.Dispatch.AuditBackoff = parseDuration(getEnv("DISPATCH_AUDIT_BACKOFF", "200ms"), 200*time.Millisecond)
	cfg.Dispatch.Timeout = parseDuration(getEnv("DISPATCH_TIMEOUT", "30s"), 30*time.Second)

	cfg.Notify.Stream = getEnv("NOTIFY_STREAM", "hostel:notifications")
	cfg.Notify.Channels = parseList(getEnv("NOTIFY_CHANNELS", "push"))

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
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

// parseList 逗号分隔，"none" 表示关闭
func parseList(s string) []string {
	if strings.EqualFold(strings.TrimSpace(s), "none") {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
