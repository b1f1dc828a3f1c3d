// Package app 按配置组装存储、投递、生成器和处理器，供各个命令共用
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dewei/DocRadar/pkg/api"
	"github.com/dewei/DocRadar/pkg/config"
	"github.com/dewei/DocRadar/pkg/database"
	"github.com/dewei/DocRadar/pkg/engine"
	"github.com/dewei/DocRadar/pkg/messaging"
	"github.com/dewei/DocRadar/pkg/metrics"
	"github.com/dewei/DocRadar/pkg/monitor"
	"github.com/dewei/DocRadar/pkg/notify"
	"github.com/dewei/DocRadar/pkg/repository"
	"github.com/dewei/DocRadar/pkg/schedule"
)

// HealthCheckInterval 依赖组件的检查周期
const HealthCheckInterval = 30 * time.Second

// Store 各组件所需存储能力的并集
type Store interface {
	engine.Store
	schedule.Store
	api.Store
	api.AlertCounter
}

// App 进程内的全部组件
type App struct {
	Config    *config.Config
	Log       *logrus.Entry
	Location  *time.Location
	Store     Store
	Queue     notify.Queue
	Generator *schedule.Generator
	Processor *engine.AlertProcessor
	Metrics   *metrics.Metrics
	Monitor   *monitor.Monitor

	db   *database.DB
	nats *messaging.NATSClient
}

// LoadConfig 读取 CONFIG_PATH 或默认路径；未显式指定且默认文件不存在时使用默认配置
func LoadConfig() (*config.Config, error) {
	path := os.Getenv("CONFIG_PATH")
	explicit := path != ""
	if !explicit {
		path = config.GetDefaultConfigPath()
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// New 打开存储和消息连接并组装组件，ctx 控制健康检查协程的生命周期
func New(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Log:      log,
		Location: loc,
		Metrics:  metrics.New(),
		Monitor: monitor.NewMonitor(func(component, status, message string) {
			log.WithFields(logrus.Fields{
				"component": component,
				"status":    status,
			}).Warn("组件状态异常: " + message)
		}),
	}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if err := a.openQueue(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Generator = schedule.NewGenerator(a.Store, log,
		schedule.WithLocation(loc),
		schedule.WithAlertHour(cfg.Processor.AlertHour),
		schedule.WithMetrics(a.Metrics),
	)
	a.Processor = engine.NewAlertProcessor(a.Store, a.Queue, engine.Config{
		BatchSize:          cfg.Processor.BatchSize,
		Workers:            cfg.Processor.Workers,
		EnqueueTimeout:     cfg.Processor.EnqueueTimeout,
		MaxRetries:         cfg.Processor.MaxRetries,
		BackoffBaseMinutes: cfg.Processor.BackoffBaseMinutes,
	}, log,
		engine.WithLocation(loc),
		engine.WithMetrics(a.Metrics),
		engine.WithMonitor(a.Monitor),
	)

	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	if a.Config.Database.Driver == "memory" {
		repo := repository.NewRepository()
		a.Store = repo
		a.Queue = repo
		a.Log.Warn("使用内存存储，进程退出后数据丢失")
		return nil
	}

	db, err := database.Open(a.Config, a.Log)
	if err != nil {
		return err
	}
	a.db = db
	store := db.Store()
	a.Store = store
	a.Queue = store.QueueDB
	a.Monitor.StartChecking(ctx, "database", db.Ping, HealthCheckInterval)
	return nil
}

func (a *App) openQueue(ctx context.Context) error {
	if !a.Config.NATS.Enabled {
		return nil
	}

	client, err := messaging.NewNATSClient(a.Config.NATS.URL, a.Log)
	if err != nil {
		return err
	}
	a.nats = client

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.EnsureStream(setupCtx, messaging.NotificationStreamConfig(a.Config.NATS.Stream, a.Config.NATS.Subject)); err != nil {
		return err
	}

	a.Queue = messaging.NewNotificationQueue(client, a.Config.NATS.Subject)
	a.Monitor.StartChecking(ctx, "nats", client.Check, HealthCheckInterval)
	return nil
}

// NATS 已连接的 NATS 客户端，未启用时为 nil
func (a *App) NATS() *messaging.NATSClient {
	return a.nats
}

// Ready 就绪检查
func (a *App) Ready(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.Ping(ctx); err != nil {
			return fmt.Errorf("数据库不可用: %w", err)
		}
	}
	if a.nats != nil {
		if err := a.nats.Check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close 关闭连接，等待健康检查协程退出需先取消 New 传入的 ctx
func (a *App) Close() error {
	var errs []error
	if a.nats != nil {
		errs = append(errs, a.nats.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
