package delivery

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher MQTT 发布（hostel-common/mqtt.Client 满足该接口）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTDeliverer push 渠道：发布到住户的通知 topic
type MQTTDeliverer struct {
	publisher Publisher
	qos       byte
}

func NewMQTTDeliverer(publisher Publisher, qos byte) *MQTTDeliverer {
	return &MQTTDeliverer{publisher: publisher, qos: qos}
}

// Topic hostel/{tenant_id}/notifications/{recipient_id}
func Topic(n *Notification) string {
	return fmt.Sprintf("hostel/%s/notifications/%s", n.TenantID, n.RecipientID)
}

func (d *MQTTDeliverer) Deliver(ctx context.Context, n *Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delivered := *n
	delivered.Delivered = true
	payload, err := json.Marshal(&delivered)
	if err != nil {
		return fmt.Errorf("marshal notification %s: %w", n.NotificationID, err)
	}
	return d.publisher.Publish(Topic(n), d.qos, false, payload)
}
