// pkg/model/document.go
package model

import (
	"time"

	"gorm.io/gorm"
)

// Document 车辆证件（保险、年检、驾照等），由外部记录存储维护
type Document struct {
	ID         string         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     string         `gorm:"type:uuid;not null;index" json:"userId"`
	BikeID     string         `gorm:"type:uuid;index" json:"bikeId"`
	Title      string         `gorm:"not null" json:"title"`
	ExpiryDate *time.Time     `gorm:"type:date" json:"expiryDate,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Document) TableName() string {
	return "documents"
}

// Deleted 是否已软删除
func (d *Document) Deleted() bool {
	return d.DeletedAt.Valid
}
