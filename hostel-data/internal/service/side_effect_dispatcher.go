package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/domain"
	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationSink 通知入队（投递由 hostel-notifier 完成）
type NotificationSink interface {
	Enqueue(ctx context.Context, n *domain.Notification) error
}

// DispatcherConfig 副作用分发配置
type DispatcherConfig struct {
	Workers      int           // worker 数量
	QueueSize    int           // 队列容量
	AuditRetries int           // 审计写入失败后的重试次数
	AuditBackoff time.Duration // 首次重试间隔，之后翻倍
	Timeout      time.Duration // 单个变更的处理超时
	Channels     []string      // 通知渠道：push / email
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.AuditRetries < 0 {
		c.AuditRetries = 0
	}
	if c.AuditBackoff <= 0 {
		c.AuditBackoff = 200 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// SideEffectDispatcher 把已提交的 AllocationChange 转为审计记录和通知
// - Dispatch 从不阻塞，也从不返回错误：分配已经提交，副作用失败只记日志和指标
// - 队列满时在独立 goroutine 中处理，不丢弃审计
// - Stop 之后到达的变更由调用方同步处理
// - 处理使用独立的 context，不受原请求取消影响
type SideEffectDispatcher struct {
	audit   repository.AuditRepository
	sink    NotificationSink
	cfg     DispatcherConfig
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time

	queue    chan domain.AllocationChange
	workers  sync.WaitGroup
	detached sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewSideEffectDispatcher 创建分发器；sink 为 nil 时不发通知
func NewSideEffectDispatcher(audit repository.AuditRepository, sink NotificationSink, cfg DispatcherConfig, metrics *Metrics, logger *zap.Logger) *SideEffectDispatcher {
	cfg = cfg.withDefaults()
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &SideEffectDispatcher{
		audit:   audit,
		sink:    sink,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
		queue:   make(chan domain.AllocationChange, cfg.QueueSize),
	}
}

var _ ChangeDispatcher = (*SideEffectDispatcher)(nil)

// Start 启动 worker
func (d *SideEffectDispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	for i := 0; i < d.cfg.Workers; i++ {
		d.workers.Add(1)
		go d.worker()
	}
	d.logger.Info("Side-effect dispatcher started",
		zap.Int("workers", d.cfg.Workers),
		zap.Int("queue_size", d.cfg.QueueSize),
	)
}

// Dispatch 非阻塞；Stop 开始后在调用方同步处理
func (d *SideEffectDispatcher) Dispatch(change domain.AllocationChange) {
	d.mu.RLock()
	if d.stopped {
		d.mu.RUnlock()
		d.logger.Warn("Side-effect dispatcher stopped, processing change inline",
			zap.String("change_id", change.ChangeID),
		)
		d.process(change)
		return
	}

	if d.started {
		select {
		case d.queue <- change:
			d.metrics.QueueDepth.Set(float64(len(d.queue)))
			d.mu.RUnlock()
			return
		default:
			d.metrics.DispatchOverflow.Inc()
			d.logger.Warn("Side-effect queue full, processing change out of band",
				zap.String("change_id", change.ChangeID),
				zap.Int("queue_size", d.cfg.QueueSize),
			)
		}
	}

	// Add 必须在持有读锁时完成：Stop 拿到写锁后才会 Wait
	d.detached.Add(1)
	d.mu.RUnlock()
	go func() {
		defer d.detached.Done()
		d.process(change)
	}()
}

// Stop 停止接收并等待队列和游离的处理完成
func (d *SideEffectDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.workers.Wait()
		d.detached.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Side-effect dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.logger.Warn("Side-effect dispatcher stop timed out", zap.Int("pending", len(d.queue)))
		return ctx.Err()
	}
}

func (d *SideEffectDispatcher) worker() {
	defer d.workers.Done()
	for change := range d.queue {
		d.metrics.QueueDepth.Set(float64(len(d.queue)))
		d.process(change)
	}
}

func (d *SideEffectDispatcher) process(change domain.AllocationChange) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	d.appendAudit(ctx, change)
	d.enqueueNotifications(ctx, change)
}

func (d *SideEffectDispatcher) appendAudit(ctx context.Context, change domain.AllocationChange) {
	if d.audit == nil {
		return
	}
	// 重试使用同一条记录，change_id 唯一保证不会重复落库
	entry := domain.NewAuditEntry(uuid.NewString(), change, d.now().UTC())
	backoff := d.cfg.AuditBackoff

	var err error
	for attempt := 0; ; attempt++ {
		if err = d.audit.AppendAuditEntry(ctx, entry); err == nil {
			return
		}
		d.logger.Warn("Audit append failed",
			zap.String("change_id", change.ChangeID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if attempt >= d.cfg.AuditRetries || !sleepContext(ctx, backoff) {
			break
		}
		backoff *= 2
	}

	d.metrics.AuditFailures.Inc()
	d.logger.Error("Audit entry lost after retries",
		zap.String("change_id", change.ChangeID),
		zap.String("tenant_id", change.TenantID),
		zap.String("resident_id", change.ResidentID),
		zap.String("previous_asset_id", change.PreviousAssetID),
		zap.String("new_asset_id", change.NewAssetID),
		zap.String("reason", string(change.Reason)),
		zap.Error(err),
	)
}

func (d *SideEffectDispatcher) enqueueNotifications(ctx context.Context, change domain.AllocationChange) {
	if d.sink == nil || len(d.cfg.Channels) == 0 {
		return
	}
	message := notificationMessage(change)
	for _, channel := range d.cfg.Channels {
		n := &domain.Notification{
			NotificationID: uuid.NewString(),
			TenantID:       change.TenantID,
			RecipientID:    change.ResidentID,
			Message:        message,
			Category:       domain.NotificationCategoryAllocation,
			Channel:        channel,
			ChangeID:       change.ChangeID,
			CreatedAt:      d.now().UTC(),
		}
		if err := d.sink.Enqueue(ctx, n); err != nil {
			d.metrics.NotificationFailures.Inc()
			d.logger.Warn("Notification enqueue failed",
				zap.String("change_id", change.ChangeID),
				zap.String("channel", channel),
				zap.Error(err),
			)
		}
	}
}

// sleepContext 返回 false 表示 ctx 已结束
func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func notificationMessage(change domain.AllocationChange) string {
	prev := labelOrID(change.PreviousAssetLabel, change.PreviousAssetID)
	next := labelOrID(change.NewAssetLabel, change.NewAssetID)
	switch {
	case change.Reason == domain.ReasonCheckout:
		return fmt.Sprintf("You have checked out; %s has been released.", prev)
	case change.IsRelease():
		return fmt.Sprintf("Your allocation %s has been released.", prev)
	case change.PreviousAssetID == "":
		return fmt.Sprintf("You have been allocated %s.", next)
	case change.Reason == domain.ReasonSwap:
		return fmt.Sprintf("Your allocation was swapped from %s to %s.", prev, next)
	default:
		return fmt.Sprintf("You have been moved from %s to %s.", prev, next)
	}
}

func labelOrID(label, id string) string {
	if label != "" {
		return label
	}
	return id
}
