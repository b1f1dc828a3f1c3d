package model

import (
	"time"
)

// Bike 摩托车，保养状态的数据来源
type Bike struct {
	ID                  string     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID              string     `gorm:"type:uuid;not null;index" json:"userId"`
	Name                string     `gorm:"not null" json:"name"`
	OdometerKm          float64    `gorm:"type:decimal(10,1);default:0" json:"odometerKm"`
	LastOilChangeKm     float64    `gorm:"type:decimal(10,1);default:0" json:"lastOilChangeKm"`
	OilChangeIntervalKm float64    `gorm:"type:decimal(10,1);default:2500" json:"oilChangeIntervalKm"`
	LastServiceAt       *time.Time `json:"lastServiceAt,omitempty"`
	ServiceIntervalDays int        `gorm:"default:0" json:"serviceIntervalDays"` // 0 表示不按日期保养
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func (Bike) TableName() string {
	return "bikes"
}

// DisplayName 通知里使用的车辆名称
func (b *Bike) DisplayName() string {
	if b == nil || b.Name == "" {
		return "你的爱车"
	}
	return b.Name
}
