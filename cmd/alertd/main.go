package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dewei/DocRadar/pkg/api"
	"github.com/dewei/DocRadar/pkg/app"
	"github.com/dewei/DocRadar/pkg/config"
	"github.com/dewei/DocRadar/pkg/logger"
	"github.com/dewei/DocRadar/pkg/scheduler"
)

func main() {
	// 加载配置
	cfg, err := app.LoadConfig()
	if err != nil {
		logger.New("docradar", "").WithError(err).Fatal("加载配置失败")
	}

	log := logger.New(cfg.App.Name, cfg.App.LogLevel)
	log.WithField("env", cfg.App.Env).Info("启动到期提醒服务...")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("服务异常退出")
	}
	log.Info("到期提醒服务已关闭")
}

func run(cfg *config.Config, log *logrus.Entry) error {
	// 等待中断信号
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// 定时处理到期提醒
	sched := scheduler.NewScheduler(a.Processor, cfg.Processor.Schedule, a.Location, log)
	if err := sched.Start(); err != nil {
		return err
	}

	opts := []api.HandlerOption{api.WithReadiness(a.Ready), api.WithAlertStats(a.Store)}
	if cfg.Metrics.Enabled {
		opts = append(opts, api.WithMetrics(cfg.Metrics.Path, a.Metrics.Handler()))
	}
	server := api.NewServer(cfg.API.Port, cfg.API.ReadTimeout, cfg.API.WriteTimeout, log)
	server.SetupRoutes(api.NewHandlers(a.Store, a.Generator, a.Monitor, opts...))

	serveErr := server.Run(ctx)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("调度器未能按时停止")
	}
	a.Monitor.Wait()

	return serveErr
}
