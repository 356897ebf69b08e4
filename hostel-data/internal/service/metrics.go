package service

import (
	"errors"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 分配与副作用分发指标
type Metrics struct {
	Operations           *prometheus.CounterVec
	AuditFailures        prometheus.Counter
	NotificationFailures prometheus.Counter
	DispatchOverflow     prometheus.Counter
	QueueDepth           prometheus.Gauge
}

// NewMetrics reg 为 nil 时只创建不注册（测试用）
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hostel",
			Name:      "allocation_operations_total",
			Help:      "Allocation operations by operation and result.",
		}, []string{"operation", "result"}),
		AuditFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hostel",
			Name:      "allocation_audit_failures_total",
			Help:      "Audit entries that could not be written after all retries.",
		}),
		NotificationFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hostel",
			Name:      "allocation_notification_failures_total",
			Help:      "Notifications that could not be enqueued.",
		}),
		DispatchOverflow: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hostel",
			Name:      "allocation_dispatch_overflow_total",
			Help:      "Changes dispatched outside the worker queue because it was full.",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "hostel",
			Name:      "allocation_dispatch_queue_depth",
			Help:      "Changes waiting in the side-effect queue.",
		}),
	}
}

func (m *Metrics) observeOperation(operation string, changed bool, err error) {
	m.Operations.WithLabelValues(operation, operationResult(changed, err)).Inc()
}

func operationResult(changed bool, err error) string {
	switch {
	case err == nil && changed:
		return "ok"
	case err == nil:
		return "noop"
	case errors.Is(err, domain.ErrAssetUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, domain.ErrStorage):
		return "storage"
	default:
		return "error"
	}
}
