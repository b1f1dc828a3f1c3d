package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/dewei/DocRadar/pkg/model"
)

// QueueDB 通知队列表，投递方从这里拉取待发送通知
type QueueDB struct {
	db *gorm.DB
}

func (d *DB) Queue() *QueueDB {
	return &QueueDB{db: d.db}
}

// Enqueue 写入一条待投递通知
func (q *QueueDB) Enqueue(ctx context.Context, entry *model.NotificationQueueEntry) error {
	if entry.Status == "" {
		entry.Status = model.QueueStatusPending
	}
	if err := q.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("通知入队失败: %w", err)
	}
	return nil
}
