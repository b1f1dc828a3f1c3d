// pkg/database/alert.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dewei/DocRadar/pkg/model"
)

type AlertDB struct {
	db *gorm.DB
}

func (d *DB) Alerts() *AlertDB {
	return &AlertDB{db: d.db}
}

// ReplacePending 在同一事务中作废证件的 pending 提醒并写入新提醒
func (a *AlertDB) ReplacePending(ctx context.Context, documentID string, alerts []model.AlertInstance) (int64, error) {
	var cancelled int64
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.AlertInstance{}).
			Where("document_id = ? AND status = ?", documentID, model.AlertStatusPending).
			Updates(map[string]any{
				"status":     model.AlertStatusAcknowledged,
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("作废旧提醒失败: %w", res.Error)
		}
		cancelled = res.RowsAffected

		if len(alerts) == 0 {
			return nil
		}
		for i := range alerts {
			alerts[i].ScheduledAt = alerts[i].ScheduledAt.UTC()
			if alerts[i].Status == "" {
				alerts[i].Status = model.AlertStatusPending
			}
		}
		if err := tx.Create(&alerts).Error; err != nil {
			return fmt.Errorf("保存提醒失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return cancelled, nil
}

// ListDueAlerts 查询到期的 pending 提醒
func (a *AlertDB) ListDueAlerts(ctx context.Context, now time.Time, limit int) ([]model.AlertInstance, error) {
	var alerts []model.AlertInstance
	query := a.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", model.AlertStatusPending, now.UTC()).
		Order("scheduled_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("查询到期提醒失败: %w", err)
	}
	return alerts, nil
}

// TransitionAlert 条件更新：只有提醒仍处于 from 状态时才写入
func (a *AlertDB) TransitionAlert(ctx context.Context, id string, from model.AlertStatus, upd model.AlertUpdate) error {
	updates := map[string]any{
		"status":       upd.Status,
		"scheduled_at": upd.ScheduledAt.UTC(),
		"retry_count":  upd.RetryCount,
		"updated_at":   time.Now().UTC(),
	}
	if upd.LastError != nil {
		updates["last_error"] = *upd.LastError
	}
	if upd.SentAt != nil {
		updates["sent_at"] = upd.SentAt.UTC()
	}

	res := a.db.WithContext(ctx).Model(&model.AlertInstance{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("更新提醒状态失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.ErrStaleAlert
	}
	return nil
}

// ClaimAlert 认领提醒：以读到的计划时间为条件把它推迟到 until，并发的认领只有一个成功
func (a *AlertDB) ClaimAlert(ctx context.Context, id string, scheduledAt, until time.Time) error {
	res := a.db.WithContext(ctx).Model(&model.AlertInstance{}).
		Where("id = ? AND status = ? AND scheduled_at = ?", id, model.AlertStatusPending, scheduledAt.UTC()).
		Updates(map[string]any{
			"scheduled_at": until.UTC(),
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("认领提醒失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.ErrStaleAlert
	}
	return nil
}

func (a *AlertDB) GetAlert(ctx context.Context, id string) (*model.AlertInstance, error) {
	var alert model.AlertInstance
	err := a.db.WithContext(ctx).First(&alert, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("获取提醒失败: %w", err)
	}
	return &alert, nil
}

func (a *AlertDB) ListAlertsByDocument(ctx context.Context, documentID string) ([]model.AlertInstance, error) {
	var alerts []model.AlertInstance
	err := a.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("scheduled_at ASC").
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("查询证件提醒失败: %w", err)
	}
	return alerts, nil
}

// CountByStatus 按状态统计提醒数量
func (a *AlertDB) CountByStatus(ctx context.Context) (map[model.AlertStatus]int64, error) {
	var rows []struct {
		Status model.AlertStatus
		Count  int64
	}
	err := a.db.WithContext(ctx).Model(&model.AlertInstance{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("统计提醒失败: %w", err)
	}

	stats := make(map[model.AlertStatus]int64, len(rows))
	for _, r := range rows {
		stats[r.Status] = r.Count
	}
	return stats, nil
}
