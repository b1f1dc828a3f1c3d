// pkg/model/alert.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AlertType 到期提醒档位，按严重程度从低到高排列
type AlertType string

const (
	AlertType30Day   AlertType = "30_day"
	AlertType7Day    AlertType = "7_day"
	AlertType1Day    AlertType = "1_day"
	AlertTypeExpired AlertType = "expired"
)

// AlertTypes 全部档位，顺序即严重程度
func AlertTypes() []AlertType {
	return []AlertType{AlertType30Day, AlertType7Day, AlertType1Day, AlertTypeExpired}
}

// Valid 是否为已知档位
func (t AlertType) Valid() bool {
	switch t {
	case AlertType30Day, AlertType7Day, AlertType1Day, AlertTypeExpired:
		return true
	}
	return false
}

// AlertStatus 提醒状态
type AlertStatus string

const (
	AlertStatusPending      AlertStatus = "pending"
	AlertStatusSent         AlertStatus = "sent"
	AlertStatusFailed       AlertStatus = "failed"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
)

// Terminal 处理器不会再推进的状态
func (s AlertStatus) Terminal() bool {
	return s == AlertStatusSent || s == AlertStatusFailed || s == AlertStatusAcknowledged
}

// AlertInstance 一条计划中的到期提醒
type AlertInstance struct {
	ID          string      `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID  string      `gorm:"type:uuid;not null;index" json:"documentId"`
	UserID      string      `gorm:"type:uuid;not null;index" json:"userId"`
	AlertType   AlertType   `gorm:"type:varchar(20);not null" json:"alertType"`
	ScheduledAt time.Time   `gorm:"not null;index:idx_alert_due,priority:2" json:"scheduledAt"`
	Status      AlertStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_alert_due,priority:1" json:"status"`
	RetryCount  int         `gorm:"not null;default:0" json:"retryCount"`
	LastError   *string     `gorm:"type:text" json:"lastError,omitempty"`
	SentAt      *time.Time  `json:"sentAt,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

func (a *AlertInstance) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

func (AlertInstance) TableName() string {
	return "alert_instances"
}

// AlertUpdate 条件更新时写入的字段
type AlertUpdate struct {
	Status      AlertStatus
	ScheduledAt time.Time
	RetryCount  int
	LastError   *string // nil 表示不修改
	SentAt      *time.Time
}

// Apply 把更新写到内存中的提醒上
func (u AlertUpdate) Apply(a *AlertInstance) {
	a.Status = u.Status
	a.ScheduledAt = u.ScheduledAt
	a.RetryCount = u.RetryCount
	if u.LastError != nil {
		msg := *u.LastError
		a.LastError = &msg
	}
	if u.SentAt != nil {
		at := *u.SentAt
		a.SentAt = &at
	}
}
