package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-common/database"
	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-common/logger"
	rediscommon "github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-common/redis"
	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/config"
	httpapi "github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/http"
	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/notify"
	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/repository"
	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/service"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// stores 同一套存储的不同视图
type stores struct {
	assets    repository.AssetsRepository
	residents repository.ResidentsRepository
	alloc     repository.AllocationStore
	audit     repository.AuditRepository
}

func main() {
	// 1. 加载配置
	cfg := config.Load()

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "hostel-data")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 存储：Postgres 不可用时回退到内存
	var db *sql.DB
	st := memoryStores()
	if cfg.DBEnabled {
		db, err = database.NewPostgresDB(&cfg.Database)
		if err != nil {
			log.Warn("Postgres unavailable, falling back to in-memory store", zap.Error(err))
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err = repository.EnsureSchema(ctx, db)
			cancel()
			if err != nil {
				log.Fatal("Failed to ensure schema", zap.Error(err))
			}
			st = postgresStores(db)
			log.Info("Using Postgres store", zap.String("host", cfg.Database.Host), zap.String("database", cfg.Database.Database))
		}
	}

	// 4. 通知队列：Redis Stream，不可用时只写日志
	var redisClient *redis.Client
	var sink service.NotificationSink = notify.NewLogSink(log)
	if cfg.RedisEnabled {
		redisClient = rediscommon.NewRedisClient(&cfg.Redis)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = rediscommon.Ping(ctx, redisClient)
		cancel()
		if err != nil {
			log.Warn("Redis unavailable, notifications will only be logged", zap.Error(err))
			_ = rediscommon.Close(redisClient)
			redisClient = nil
		} else {
			sink = notify.NewRedisStreamSink(redisClient, cfg.Notify.Stream, log)
		}
	}

	// 5. 指标
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := service.NewMetrics(reg)

	// 6. 服务
	dispatcher := service.NewSideEffectDispatcher(st.audit, sink, service.DispatcherConfig{
		Workers:      cfg.Dispatch.Workers,
		QueueSize:    cfg.Dispatch.QueueSize,
		AuditRetries: cfg.Dispatch.AuditRetries,
		AuditBackoff: cfg.Dispatch.AuditBackoff,
		Timeout:      cfg.Dispatch.Timeout,
		Channels:     cfg.Notify.Channels,
	}, metrics, log)
	dispatcher.Start()

	registry := service.NewAssetRegistry(st.assets, service.NewIdentityGenerator(), log)
	directory := service.NewResidentDirectory(st.residents, log)
	coordinator := service.NewAssignmentCoordinator(st.alloc, registry, dispatcher, metrics, log)

	// 7. HTTP
	router := httpapi.NewRouter(log)
	router.RegisterAssetRoutes(httpapi.NewAssetsHandler(registry, coordinator, log))
	router.RegisterResidentRoutes(httpapi.NewResidentsHandler(directory, coordinator, log))
	router.RegisterOpsRoutes(reg)

	srv := service.NewServer(cfg.HTTP.Addr, router, log)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 8. 等待信号（优雅关闭）
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("HTTP server error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Warn("HTTP server shutdown", zap.Error(err))
	}
	// 先停 HTTP 再排空副作用队列
	if err := dispatcher.Stop(ctx); err != nil {
		log.Warn("Side-effect dispatcher did not drain", zap.Error(err))
	}
	if redisClient != nil {
		_ = rediscommon.Close(redisClient)
	}
	if db != nil {
		_ = database.Close(db)
	}
	log.Info("hostel-data stopped")
}

func memoryStores() stores {
	mem := repository.NewMemoryAllocationStore()
	return stores{
		assets:    mem,
		residents: mem,
		alloc:     mem,
		audit:     repository.NewMemoryAuditRepository(),
	}
}

func postgresStores(db *sql.DB) stores {
	return stores{
		assets:    repository.NewPostgresAssetsRepository(db),
		residents: repository.NewPostgresResidentsRepository(db),
		alloc:     repository.NewPostgresAllocationStore(db),
		audit:     repository.NewPostgresAuditRepository(db),
	}
}
