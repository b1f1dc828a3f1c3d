package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/dewei/DocRadar/pkg/engine"
)

// DefaultSpec 默认每5分钟处理一次到期提醒
const DefaultSpec = "@every 5m"

// Processor 定时触发的提醒处理器
type Processor interface {
	Tick(ctx context.Context) (engine.Result, error)
}

// Scheduler 任务调度器
type Scheduler struct {
	cron      *cron.Cron
	processor Processor
	spec      string
	log       *logrus.Entry
	job       cron.Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler 创建任务调度器，loc 为 cron 表达式的时区
func NewScheduler(processor Processor, spec string, loc *time.Location, log *logrus.Entry) *Scheduler {
	if spec == "" {
		spec = DefaultSpec
	}
	if loc == nil {
		loc = time.Local
	}
	log = log.WithField("component", "scheduler")

	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		processor: processor,
		spec:      spec,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
	// 启动时的立即执行和定时触发共用同一个 job，上一轮未结束时跳过本轮
	s.job = cron.NewChain(
		cron.Recover(cron.PrintfLogger(log)),
		cron.SkipIfStillRunning(cron.PrintfLogger(log)),
	).Then(cron.FuncJob(s.processDueAlerts))
	return s
}

// Start 注册定时任务并立即执行一次
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddJob(s.spec, s.job); err != nil {
		return fmt.Errorf("注册定时任务失败 %q: %w", s.spec, err)
	}
	s.cron.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.job.Run()
	}()

	s.log.WithField("spec", s.spec).Info("调度器已启动")
	return nil
}

// Stop 停止调度器，等待正在执行的任务退出
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("调度器已停止")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("等待调度任务退出超时: %w", ctx.Err())
	}
}

// processDueAlerts 处理到期提醒，失败只记录日志，等待下次调度
func (s *Scheduler) processDueAlerts() {
	if s.ctx.Err() != nil {
		return
	}
	if _, err := s.processor.Tick(s.ctx); err != nil {
		s.log.WithError(err).Error("处理到期提醒失败")
	}
}
