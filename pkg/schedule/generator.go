// Package schedule 根据证件到期日生成提醒计划
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dewei/DocRadar/pkg/metrics"
	"github.com/dewei/DocRadar/pkg/model"
)

// DefaultAlertHour 提醒触发的本地整点
const DefaultAlertHour = 9

// ErrNilDocument 生成计划时未传入证件
var ErrNilDocument = errors.New("证件为空")

// Rung 提醒阶梯的一档
type Rung struct {
	Type       model.AlertType
	DaysBefore int
}

// Ladder 提醒阶梯，按触发时间从早到晚排列
var Ladder = []Rung{
	{Type: model.AlertType30Day, DaysBefore: 30},
	{Type: model.AlertType7Day, DaysBefore: 7},
	{Type: model.AlertType1Day, DaysBefore: 1},
	{Type: model.AlertTypeExpired, DaysBefore: 0},
}

// Store 提醒计划的持久化接口
type Store interface {
	// ReplacePending 将证件所有 pending 提醒置为 acknowledged 后写入新的提醒，需原子完成
	ReplacePending(ctx context.Context, documentID string, alerts []model.AlertInstance) (int64, error)
}

// Generator 提醒计划生成器
type Generator struct {
	store Store
	loc   *time.Location
	hour  int
	now   func() time.Time
	log   *logrus.Entry

	metrics *metrics.Metrics
}

// Option 生成器选项
type Option func(*Generator)

// WithLocation 设置提醒时间所在时区
func WithLocation(loc *time.Location) Option {
	return func(g *Generator) {
		if loc != nil {
			g.loc = loc
		}
	}
}

// WithAlertHour 设置提醒触发的整点
func WithAlertHour(hour int) Option {
	return func(g *Generator) {
		g.hour = hour
	}
}

// WithClock 替换时钟，测试使用
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) {
		g.metrics = m
	}
}

// NewGenerator 创建提醒计划生成器
func NewGenerator(store Store, log *logrus.Entry, opts ...Option) *Generator {
	g := &Generator{
		store: store,
		loc:   time.Local,
		hour:  DefaultAlertHour,
		now:   time.Now,
		log:   log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FireTime 计算某一档的触发时间：到期日前 daysBefore 天的 hour 点
func FireTime(expiry time.Time, daysBefore, hour int, loc *time.Location) time.Time {
	y, m, d := expiry.Date()
	return time.Date(y, m, d-daysBefore, hour, 0, 0, 0, loc)
}

// Plan 计算证件在 now 时刻应有的提醒，不访问存储。触发时间不晚于 now 的档位不会生成
func (g *Generator) Plan(doc *model.Document, now time.Time) []model.AlertInstance {
	if doc == nil || doc.ExpiryDate == nil || doc.Deleted() {
		return nil
	}

	alerts := make([]model.AlertInstance, 0, len(Ladder))
	for _, rung := range Ladder {
		fireAt := FireTime(*doc.ExpiryDate, rung.DaysBefore, g.hour, g.loc)
		if !fireAt.After(now) {
			continue
		}
		alerts = append(alerts, model.AlertInstance{
			DocumentID:  doc.ID,
			UserID:      doc.UserID,
			AlertType:   rung.Type,
			ScheduledAt: fireAt,
			Status:      model.AlertStatusPending,
		})
	}
	return alerts
}

// Regenerate 证件创建或到期日变更时调用：作废旧计划并写入新计划
func (g *Generator) Regenerate(ctx context.Context, doc *model.Document) ([]model.AlertInstance, error) {
	if doc == nil {
		return nil, ErrNilDocument
	}

	alerts := g.Plan(doc, g.now())
	cancelled, err := g.store.ReplacePending(ctx, doc.ID, alerts)
	if err != nil {
		return nil, fmt.Errorf("重建提醒计划失败: %w", err)
	}

	types := make([]string, 0, len(alerts))
	for _, a := range alerts {
		types = append(types, string(a.AlertType))
	}
	g.metrics.ObserveSchedule(types, cancelled)

	g.log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"cancelled":   cancelled,
		"scheduled":   len(alerts),
	}).Info("提醒计划已重建")

	return alerts, nil
}

// Cancel 证件删除时调用：作废所有 pending 提醒，不再生成
func (g *Generator) Cancel(ctx context.Context, documentID string) (int64, error) {
	cancelled, err := g.store.ReplacePending(ctx, documentID, nil)
	if err != nil {
		return 0, fmt.Errorf("取消提醒计划失败: %w", err)
	}
	g.metrics.ObserveSchedule(nil, cancelled)

	g.log.WithFields(logrus.Fields{
		"document_id": documentID,
		"cancelled":   cancelled,
	}).Info("提醒计划已取消")

	return cancelled, nil
}
