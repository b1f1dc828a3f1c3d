// pkg/model/notification.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Priority 通知优先级
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// CategoryDocument 证件到期类通知
const CategoryDocument = "document"

// QueueStatusPending 等待投递方处理
const QueueStatusPending = "pending"

// NotificationPayload 通知附带的结构化数据
type NotificationPayload struct {
	AlertID    string    `json:"alertId,omitempty"`
	DocumentID string    `json:"documentId"`
	BikeID     string    `json:"bikeId"`
	AlertType  AlertType `json:"alertType"`
}

// NotificationQueueEntry 通知队列条目，由投递方消费
type NotificationQueueEntry struct {
	ID        string              `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string              `gorm:"type:uuid;not null;index" json:"userId"`
	Title     string              `gorm:"not null" json:"title"`
	Body      string              `gorm:"type:text" json:"body"`
	Category  string              `gorm:"type:varchar(20);not null" json:"category"`
	Priority  Priority            `gorm:"type:varchar(20);not null" json:"priority"`
	Payload   NotificationPayload `gorm:"serializer:json" json:"payload"`
	Status    string              `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	CreatedAt time.Time           `json:"createdAt"`
}

func (n *NotificationQueueEntry) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}

func (NotificationQueueEntry) TableName() string {
	return "notification_queue"
}
