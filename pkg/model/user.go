// pkg/model/user.go
package model

import (
	"time"
)

// NotificationSettings 用户通知偏好，缺省时按全部开启、无免打扰处理
type NotificationSettings struct {
	UserID          string    `gorm:"type:uuid;primaryKey" json:"userId"`
	DocumentAlerts  bool      `gorm:"not null" json:"documentAlerts"`
	QuietHoursStart *string   `gorm:"type:varchar(5)" json:"quietHoursStart,omitempty"` // HH:MM
	QuietHoursEnd   *string   `gorm:"type:varchar(5)" json:"quietHoursEnd,omitempty"`   // HH:MM，可跨午夜
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (NotificationSettings) TableName() string {
	return "notification_settings"
}

// DefaultSettings 未配置用户的默认偏好
func DefaultSettings(userID string) NotificationSettings {
	return NotificationSettings{
		UserID:         userID,
		DocumentAlerts: true,
	}
}

// QuietHours 返回免打扰时段，两端都配置时才生效
func (s NotificationSettings) QuietHours() (start, end string, ok bool) {
	if s.QuietHoursStart == nil || s.QuietHoursEnd == nil {
		return "", "", false
	}
	if *s.QuietHoursStart == "" || *s.QuietHoursEnd == "" {
		return "", "", false
	}
	return *s.QuietHoursStart, *s.QuietHoursEnd, true
}
