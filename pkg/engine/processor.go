// Package engine 到期提醒处理引擎：扫描到期提醒，按用户偏好投递或顺延
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dewei/DocRadar/pkg/metrics"
	"github.com/dewei/DocRadar/pkg/model"
	"github.com/dewei/DocRadar/pkg/monitor"
	"github.com/dewei/DocRadar/pkg/notify"
)

// ComponentName 在健康监控中的组件名
const ComponentName = "alert_processor"

// AlertStore 提醒的读取和条件更新
type AlertStore interface {
	ListDueAlerts(ctx context.Context, now time.Time, limit int) ([]model.AlertInstance, error)
	// ClaimAlert 仅当提醒仍为 pending 且计划时间仍为 scheduledAt 时，把计划时间推到 until
	ClaimAlert(ctx context.Context, id string, scheduledAt, until time.Time) error
	TransitionAlert(ctx context.Context, id string, from model.AlertStatus, upd model.AlertUpdate) error
}

// DocumentReader 证件和车辆读取
type DocumentReader interface {
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	GetBike(ctx context.Context, id string) (*model.Bike, error)
}

// SettingsReader 用户通知偏好读取，没有记录时返回默认偏好
type SettingsReader interface {
	GetSettings(ctx context.Context, userID string) (model.NotificationSettings, error)
}

// Store 处理器依赖的全部存储能力
type Store interface {
	AlertStore
	DocumentReader
	SettingsReader
}

// Config 处理器参数
type Config struct {
	BatchSize          int
	Workers            int
	EnqueueTimeout     time.Duration
	MaxRetries         int
	BackoffBaseMinutes int
	// ClaimLease 认领后其他 tick 看不到该提醒的时长，零值为两倍入队超时
	ClaimLease time.Duration
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		BatchSize:          100,
		Workers:            4,
		EnqueueTimeout:     5 * time.Second,
		MaxRetries:         3,
		BackoffBaseMinutes: 5,
	}
}

// Result 一次 tick 的统计
type Result struct {
	Due        int `json:"due"`
	Sent       int `json:"sent"`
	Retried    int `json:"retried"`
	Failed     int `json:"failed"`
	Deferred   int `json:"deferred"`
	Suppressed int `json:"suppressed"`
	Cancelled  int `json:"cancelled"`
	Stale      int `json:"stale"`
	Skipped    int `json:"skipped"`
}

func (r *Result) add(outcome string) {
	switch outcome {
	case metrics.OutcomeSent:
		r.Sent++
	case metrics.OutcomeRetried:
		r.Retried++
	case metrics.OutcomeFailed:
		r.Failed++
	case metrics.OutcomeDeferred:
		r.Deferred++
	case metrics.OutcomeSuppressed:
		r.Suppressed++
	case metrics.OutcomeCancelled:
		r.Cancelled++
	case metrics.OutcomeStale:
		r.Stale++
	default:
		r.Skipped++
	}
}

// AlertProcessor 到期提醒处理器
type AlertProcessor struct {
	alerts   AlertStore
	docs     DocumentReader
	settings SettingsReader
	queue    notify.Queue
	cfg      Config
	loc      *time.Location
	now      func() time.Time
	log      *logrus.Entry
	metrics  *metrics.Metrics
	monitor  *monitor.Monitor
}

// Option 处理器选项
type Option func(*AlertProcessor)

// WithLocation 免打扰时段所在时区
func WithLocation(loc *time.Location) Option {
	return func(p *AlertProcessor) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// WithClock 替换时钟，测试使用
func WithClock(now func() time.Time) Option {
	return func(p *AlertProcessor) {
		p.now = now
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *AlertProcessor) {
		p.metrics = m
	}
}

func WithMonitor(m *monitor.Monitor) Option {
	return func(p *AlertProcessor) {
		p.monitor = m
	}
}

// NewAlertProcessor 创建处理器，cfg 中的零值使用默认参数
func NewAlertProcessor(store Store, queue notify.Queue, cfg Config, log *logrus.Entry, opts ...Option) *AlertProcessor {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = def.EnqueueTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BackoffBaseMinutes <= 0 {
		cfg.BackoffBaseMinutes = def.BackoffBaseMinutes
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 2 * cfg.EnqueueTimeout
	}

	p := &AlertProcessor{
		alerts:   store,
		docs:     store,
		settings: store,
		queue:    queue,
		cfg:      cfg,
		loc:      time.Local,
		now:      time.Now,
		log:      log.WithField("component", ComponentName),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.monitor != nil {
		p.monitor.RegisterComponent(ComponentName)
	}
	return p
}

// Backoff 第 attempt 次失败后的重试间隔：base^attempt 分钟
func Backoff(baseMinutes, attempt int) time.Duration {
	minutes := 1
	for i := 0; i < attempt; i++ {
		minutes *= baseMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// Tick 处理一批到期提醒。只有批量查询失败时返回错误，单条提醒的错误记录在行上或日志里
func (p *AlertProcessor) Tick(ctx context.Context) (Result, error) {
	started := time.Now()
	now := p.now()

	due, err := p.alerts.ListDueAlerts(ctx, now, p.cfg.BatchSize)
	if err != nil {
		err = fmt.Errorf("查询到期提醒失败: %w", err)
		p.metrics.ObserveTick(time.Since(started), err)
		p.monitor.Report(ComponentName, err)
		return Result{}, err
	}

	res := Result{Due: len(due)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for i := range due {
		if ctx.Err() != nil {
			// 未处理的提醒保持 pending，下次 tick 继续
			break
		}
		alert := due[i]
		g.Go(func() error {
			outcome := p.process(ctx, alert, now)
			p.metrics.ObserveAlert(outcome, string(alert.AlertType))

			mu.Lock()
			res.add(outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	p.metrics.ObserveTick(time.Since(started), nil)
	p.monitor.Report(ComponentName, nil)

	entry := p.log.WithFields(logrus.Fields{
		"due":        res.Due,
		"sent":       res.Sent,
		"retried":    res.Retried,
		"failed":     res.Failed,
		"deferred":   res.Deferred,
		"suppressed": res.Suppressed,
		"duration":   time.Since(started).String(),
	})
	if res.Due > 0 {
		entry.Info("到期提醒处理完成")
	} else {
		entry.Debug("没有到期提醒")
	}

	return res, nil
}

// process 处理单条提醒，返回处理结果
func (p *AlertProcessor) process(ctx context.Context, alert model.AlertInstance, now time.Time) string {
	log := p.log.WithFields(logrus.Fields{
		"alert_id":    alert.ID,
		"document_id": alert.DocumentID,
		"alert_type":  alert.AlertType,
	})

	if alert.Status.Terminal() {
		log.WithField("status", alert.Status).Debug("提醒已结束，跳过")
		return metrics.OutcomeStale
	}

	// 先认领再投递，并发的 tick 认领失败即跳过
	if err := p.alerts.ClaimAlert(ctx, alert.ID, alert.ScheduledAt, now.Add(p.cfg.ClaimLease)); err != nil {
		if errors.Is(err, model.ErrStaleAlert) {
			log.Debug("提醒已被其他流程认领，跳过")
			return metrics.OutcomeStale
		}
		log.WithError(err).Error("认领提醒失败")
		return metrics.OutcomeSkipped
	}

	if !alert.AlertType.Valid() {
		return p.fail(ctx, log, alert, now, fmt.Errorf("%w: %q", model.ErrUnknownAlertType, string(alert.AlertType)))
	}

	doc, err := p.docs.GetDocument(ctx, alert.DocumentID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			// 证件已删除，残留的提醒直接作废
			return p.transition(ctx, log, alert, keep(alert, model.AlertStatusAcknowledged), metrics.OutcomeCancelled)
		}
		return p.fail(ctx, log, alert, now, fmt.Errorf("读取证件失败: %w", err))
	}
	if doc.ExpiryDate == nil {
		return p.fail(ctx, log, alert, now, model.ErrNoExpiry)
	}

	settings, err := p.settings.GetSettings(ctx, alert.UserID)
	if err != nil {
		return p.fail(ctx, log, alert, now, fmt.Errorf("读取通知偏好失败: %w", err))
	}

	if !settings.DocumentAlerts {
		return p.transition(ctx, log, alert, keep(alert, model.AlertStatusAcknowledged), metrics.OutcomeSuppressed)
	}

	if start, end, ok := settings.QuietHours(); ok {
		quiet, err := ParseQuietHours(start, end)
		if err != nil {
			log.WithError(err).Warn("免打扰时段格式错误，按未设置处理")
		} else if local := now.In(p.loc); quiet.Contains(local) {
			upd := keep(alert, model.AlertStatusPending)
			upd.ScheduledAt = quiet.DeferUntil(local)
			return p.transition(ctx, log, alert, upd, metrics.OutcomeDeferred)
		}
	}

	var bike *model.Bike
	if doc.BikeID != "" {
		bike, err = p.docs.GetBike(ctx, doc.BikeID)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			log.WithError(err).Warn("读取车辆失败，使用默认名称")
		}
	}

	entry, err := notify.Build(&alert, doc, bike.DisplayName())
	if err != nil {
		return p.fail(ctx, log, alert, now, err)
	}

	if err := p.enqueue(ctx, entry); err != nil {
		return p.fail(ctx, log, alert, now, err)
	}

	sentAt := now
	upd := keep(alert, model.AlertStatusSent)
	upd.SentAt = &sentAt
	// 通知已入队，状态必须落库，不受 tick 取消影响
	return p.transition(context.WithoutCancel(ctx), log, alert, upd, metrics.OutcomeSent)
}

// fail 处理失败：未达上限时按指数退避重排，否则标记为 failed
func (p *AlertProcessor) fail(ctx context.Context, log *logrus.Entry, alert model.AlertInstance, now time.Time, cause error) string {
	msg := cause.Error()
	log = log.WithError(cause)

	if alert.RetryCount >= p.cfg.MaxRetries {
		upd := keep(alert, model.AlertStatusFailed)
		upd.LastError = &msg
		log.WithField("retry_count", alert.RetryCount).Error("提醒处理失败，已达重试上限")
		return p.transition(context.WithoutCancel(ctx), log, alert, upd, metrics.OutcomeFailed)
	}

	attempt := alert.RetryCount + 1
	upd := model.AlertUpdate{
		Status:      model.AlertStatusPending,
		ScheduledAt: now.Add(Backoff(p.cfg.BackoffBaseMinutes, attempt)),
		RetryCount:  attempt,
		LastError:   &msg,
	}
	log.WithFields(logrus.Fields{
		"retry_count": attempt,
		"retry_at":    upd.ScheduledAt,
	}).Warn("提醒处理失败，稍后重试")
	return p.transition(context.WithoutCancel(ctx), log, alert, upd, metrics.OutcomeRetried)
}

// enqueue 带超时投递，超时视为失败
func (p *AlertProcessor) enqueue(ctx context.Context, entry *model.NotificationQueueEntry) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.EnqueueTimeout)
	defer cancel()

	started := time.Now()
	defer func() { p.metrics.ObserveEnqueue(time.Since(started)) }()

	done := make(chan error, 1)
	go func() {
		done <- p.queue.Enqueue(ctx, entry)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("通知入队超时: %w", ctx.Err())
	}
}

// transition 只在提醒仍为 pending 时写入
func (p *AlertProcessor) transition(ctx context.Context, log *logrus.Entry, alert model.AlertInstance, upd model.AlertUpdate, outcome string) string {
	err := p.alerts.TransitionAlert(ctx, alert.ID, model.AlertStatusPending, upd)
	if err != nil {
		if errors.Is(err, model.ErrStaleAlert) {
			log.Debug("提醒已被其他流程处理，跳过")
			return metrics.OutcomeStale
		}
		log.WithError(err).Error("更新提醒状态失败")
		return metrics.OutcomeSkipped
	}

	log.WithFields(logrus.Fields{
		"status":       upd.Status,
		"scheduled_at": upd.ScheduledAt,
	}).Debug("提醒状态已更新")
	return outcome
}

// keep 只改状态，其余字段保持原值
func keep(alert model.AlertInstance, status model.AlertStatus) model.AlertUpdate {
	return model.AlertUpdate{
		Status:      status,
		ScheduledAt: alert.ScheduledAt,
		RetryCount:  alert.RetryCount,
	}
}
