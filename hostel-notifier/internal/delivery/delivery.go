package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrNoRoute 渠道未配置投递方式
var ErrNoRoute = errors.New("no deliverer for channel")

// Notification 与 hostel-data 写入 Stream 的 JSON 结构一致
type Notification struct {
	NotificationID string    `json:"notification_id"`
	TenantID       string    `json:"tenant_id"`
	RecipientID    string    `json:"recipient_id"`
	Message        string    `json:"message"`
	Category       string    `json:"category"`
	Channel        string    `json:"channel"`
	ChangeID       string    `json:"change_id,omitempty"`
	Delivered      bool      `json:"delivered"`
	Attempt        int       `json:"attempt"`
	NotBefore      time.Time `json:"not_before"` // 重试到期时间，首次投递为零值
	CreatedAt      time.Time `json:"created_at"`
}

// Deliverer 单个渠道的投递
type Deliverer interface {
	Deliver(ctx context.Context, n *Notification) error
}

// Router 按 channel 分发
type Router struct {
	routes map[string]Deliverer
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{routes: make(map[string]Deliverer), logger: logger}
}

// Register 注册渠道
func (r *Router) Register(channel string, d Deliverer) {
	r.routes[channel] = d
}

func (r *Router) Deliver(ctx context.Context, n *Notification) error {
	d, ok := r.routes[n.Channel]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRoute, n.Channel)
	}
	if err := d.Deliver(ctx, n); err != nil {
		return err
	}
	r.logger.Debug("Notification delivered",
		zap.String("notification_id", n.NotificationID),
		zap.String("channel", n.Channel),
		zap.String("recipient_id", n.RecipientID),
	)
	return nil
}
