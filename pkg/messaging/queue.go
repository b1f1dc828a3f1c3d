package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/dewei/DocRadar/pkg/model"
)

// DefaultSubject 证件通知主题
const DefaultSubject = "notifications.document"

// Publisher 消息发布能力，由 NATSClient 实现
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}, opts ...jetstream.PublishOpt) error
}

// NotificationQueue 把通知写入 JetStream，以提醒ID作为消息ID去重
type NotificationQueue struct {
	pub     Publisher
	subject string
}

func NewNotificationQueue(pub Publisher, subject string) *NotificationQueue {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NotificationQueue{pub: pub, subject: subject}
}

// Enqueue 发布一条通知，JetStream 确认后才算成功
func (q *NotificationQueue) Enqueue(ctx context.Context, entry *model.NotificationQueueEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Status == "" {
		entry.Status = model.QueueStatusPending
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	msgID := entry.Payload.AlertID
	if msgID == "" {
		msgID = entry.ID
	}
	if err := q.pub.Publish(ctx, q.subject, entry, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("通知发布失败: %w", err)
	}
	return nil
}
