package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dewei/DocRadar/pkg/model"
)

// Repository 内存数据仓库，实现全部存储接口，用于本地运行和测试
type Repository struct {
	documents map[string]model.Document
	bikes     map[string]model.Bike
	settings  map[string]model.NotificationSettings
	alerts    map[string]*model.AlertInstance
	queue     []model.NotificationQueueEntry
	mutex     sync.RWMutex
}

// NewRepository 创建新的数据仓库
func NewRepository() *Repository {
	return &Repository{
		documents: make(map[string]model.Document),
		bikes:     make(map[string]model.Bike),
		settings:  make(map[string]model.NotificationSettings),
		alerts:    make(map[string]*model.AlertInstance),
	}
}

// PutDocument 写入或覆盖证件
func (r *Repository) PutDocument(doc model.Document) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	r.documents[doc.ID] = doc
}

// SoftDeleteDocument 软删除证件
func (r *Repository) SoftDeleteDocument(id string, at time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	doc, ok := r.documents[id]
	if !ok {
		return model.ErrNotFound
	}
	doc.DeletedAt.Time = at
	doc.DeletedAt.Valid = true
	r.documents[id] = doc
	return nil
}

// PutBike 写入或覆盖车辆
func (r *Repository) PutBike(bike model.Bike) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.bikes[bike.ID] = bike
}

// PutSettings 写入或覆盖用户通知偏好
func (r *Repository) PutSettings(s model.NotificationSettings) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.settings[s.UserID] = s
}

// GetDocument 按ID获取证件，已软删除的视为不存在
func (r *Repository) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	doc, ok := r.documents[id]
	if !ok || doc.Deleted() {
		return nil, model.ErrNotFound
	}
	return &doc, nil
}

// GetBike 按ID获取车辆
func (r *Repository) GetBike(ctx context.Context, id string) (*model.Bike, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	bike, ok := r.bikes[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &bike, nil
}

// GetSettings 获取用户通知偏好，没有记录时返回默认值
func (r *Repository) GetSettings(ctx context.Context, userID string) (model.NotificationSettings, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if s, ok := r.settings[userID]; ok {
		return s, nil
	}
	return model.DefaultSettings(userID), nil
}

// ReplacePending 作废证件的 pending 提醒并写入新提醒
func (r *Repository) ReplacePending(ctx context.Context, documentID string, alerts []model.AlertInstance) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := time.Now()
	var cancelled int64
	for _, a := range r.alerts {
		if a.DocumentID == documentID && a.Status == model.AlertStatusPending {
			a.Status = model.AlertStatusAcknowledged
			a.UpdatedAt = now
			cancelled++
		}
	}

	for i := range alerts {
		if alerts[i].ID == "" {
			alerts[i].ID = uuid.New().String()
		}
		if alerts[i].Status == "" {
			alerts[i].Status = model.AlertStatusPending
		}
		alerts[i].CreatedAt = now
		alerts[i].UpdatedAt = now
		stored := alerts[i]
		r.alerts[stored.ID] = &stored
	}

	return cancelled, nil
}

// ListDueAlerts 获取到期的 pending 提醒，按计划时间升序
func (r *Repository) ListDueAlerts(ctx context.Context, now time.Time, limit int) ([]model.AlertInstance, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var due []model.AlertInstance
	for _, a := range r.alerts {
		if a.Status == model.AlertStatusPending && !a.ScheduledAt.After(now) {
			due = append(due, *a)
		}
	}

	sortByScheduledAt(due)
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// TransitionAlert 仅当提醒仍处于 from 状态时更新
func (r *Repository) TransitionAlert(ctx context.Context, id string, from model.AlertStatus, upd model.AlertUpdate) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	a, ok := r.alerts[id]
	if !ok || a.Status != from {
		return model.ErrStaleAlert
	}
	upd.Apply(a)
	a.UpdatedAt = time.Now()
	return nil
}

// ClaimAlert 仅当提醒仍为 pending 且计划时间未被改动时推迟到 until
func (r *Repository) ClaimAlert(ctx context.Context, id string, scheduledAt, until time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	a, ok := r.alerts[id]
	if !ok || a.Status != model.AlertStatusPending || !a.ScheduledAt.Equal(scheduledAt) {
		return model.ErrStaleAlert
	}
	a.ScheduledAt = until
	a.UpdatedAt = time.Now()
	return nil
}

// GetAlert 按ID获取提醒
func (r *Repository) GetAlert(ctx context.Context, id string) (*model.AlertInstance, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	a, ok := r.alerts[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	alert := *a
	return &alert, nil
}

// ListAlertsByDocument 获取证件的全部提醒，按计划时间升序
func (r *Repository) ListAlertsByDocument(ctx context.Context, documentID string) ([]model.AlertInstance, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []model.AlertInstance
	for _, a := range r.alerts {
		if a.DocumentID == documentID {
			result = append(result, *a)
		}
	}
	sortByScheduledAt(result)
	return result, nil
}

// CountByStatus 按状态统计提醒数量
func (r *Repository) CountByStatus(ctx context.Context) (map[model.AlertStatus]int64, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[model.AlertStatus]int64)
	for _, a := range r.alerts {
		stats[a.Status]++
	}
	return stats, nil
}

// Enqueue 写入通知队列
func (r *Repository) Enqueue(ctx context.Context, entry *model.NotificationQueueEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	r.queue = append(r.queue, *entry)
	return nil
}

// QueuedNotifications 返回已入队的通知
func (r *Repository) QueuedNotifications() []model.NotificationQueueEntry {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]model.NotificationQueueEntry, len(r.queue))
	copy(out, r.queue)
	return out
}

func sortByScheduledAt(alerts []model.AlertInstance) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].ScheduledAt.Equal(alerts[j].ScheduledAt) {
			return alerts[i].ID < alerts[j].ID
		}
		return alerts[i].ScheduledAt.Before(alerts[j].ScheduledAt)
	})
}
