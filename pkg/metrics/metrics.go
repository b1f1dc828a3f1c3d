// Package metrics 提醒处理器的 Prometheus 指标
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 单条提醒的处理结果
const (
	OutcomeSent       = "sent"
	OutcomeRetried    = "retried"
	OutcomeFailed     = "failed"
	OutcomeDeferred   = "deferred"
	OutcomeSuppressed = "suppressed"
	OutcomeCancelled  = "cancelled"
	OutcomeStale      = "stale"
	OutcomeSkipped    = "skipped"
)

// Metrics 每个实例持有独立的 registry
type Metrics struct {
	registry *prometheus.Registry

	ticksTotal       *prometheus.CounterVec
	tickDuration     prometheus.Histogram
	alertsProcessed  *prometheus.CounterVec
	alertsScheduled  *prometheus.CounterVec
	alertsCancelled  prometheus.Counter
	enqueueDuration  prometheus.Histogram
	lastTickUnixTime prometheus.Gauge
}

// New 创建指标集合，并注册 Go 运行时和进程指标
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ticksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docradar_ticks_total",
			Help: "Number of processor ticks by result",
		}, []string{"result"}), // result: ok, error
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docradar_tick_duration_seconds",
			Help:    "Time taken by one processor tick",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		alertsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docradar_alerts_processed_total",
			Help: "Due alerts handled by the processor by outcome and alert type",
		}, []string{"outcome", "alert_type"}),
		alertsScheduled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docradar_alerts_scheduled_total",
			Help: "Alert instances created by the schedule generator",
		}, []string{"alert_type"}),
		alertsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "docradar_alerts_cancelled_total",
			Help: "Pending alert instances cancelled by regeneration or deletion",
		}),
		enqueueDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docradar_enqueue_duration_seconds",
			Help:    "Latency of notification enqueue calls",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}),
		lastTickUnixTime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "docradar_last_tick_timestamp_seconds",
			Help: "Unix time of the last finished tick",
		}),
	}
}

// ObserveTick 记录一次 tick
func (m *Metrics) ObserveTick(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ticksTotal.WithLabelValues(result).Inc()
	m.tickDuration.Observe(d.Seconds())
	m.lastTickUnixTime.SetToCurrentTime()
}

// ObserveAlert 记录单条提醒的处理结果
func (m *Metrics) ObserveAlert(outcome, alertType string) {
	if m == nil {
		return
	}
	m.alertsProcessed.WithLabelValues(outcome, alertType).Inc()
}

// ObserveEnqueue 记录一次投递耗时
func (m *Metrics) ObserveEnqueue(d time.Duration) {
	if m == nil {
		return
	}
	m.enqueueDuration.Observe(d.Seconds())
}

// ObserveSchedule 记录计划重建结果
func (m *Metrics) ObserveSchedule(alertTypes []string, cancelled int64) {
	if m == nil {
		return
	}
	for _, t := range alertTypes {
		m.alertsScheduled.WithLabelValues(t).Inc()
	}
	m.alertsCancelled.Add(float64(cancelled))
}

// Registry 底层 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler /metrics 的 HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
