package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dewei/DocRadar/pkg/model"
	"github.com/dewei/DocRadar/pkg/monitor"
	"github.com/dewei/DocRadar/pkg/urgency"
)

// Store API 依赖的读取接口
type Store interface {
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	GetBike(ctx context.Context, id string) (*model.Bike, error)
	ListAlertsByDocument(ctx context.Context, documentID string) ([]model.AlertInstance, error)
}

// Scheduler 证件提醒计划的重建和取消
type Scheduler interface {
	Regenerate(ctx context.Context, doc *model.Document) ([]model.AlertInstance, error)
	Cancel(ctx context.Context, documentID string) (int64, error)
}

// AlertCounter 按状态统计提醒
type AlertCounter interface {
	CountByStatus(ctx context.Context) (map[model.AlertStatus]int64, error)
}

// Handlers API处理程序
type Handlers struct {
	store       Store
	scheduler   Scheduler
	monitor     *monitor.Monitor
	ready       func(ctx context.Context) error
	counter     AlertCounter
	metrics     http.Handler
	metricsPath string
	now         func() time.Time
}

// HandlerOption 处理程序选项
type HandlerOption func(*Handlers)

// WithReadiness 就绪检查，通常是数据库 Ping
func WithReadiness(check func(ctx context.Context) error) HandlerOption {
	return func(h *Handlers) {
		h.ready = check
	}
}

// WithMetrics 暴露 Prometheus 指标
func WithMetrics(path string, handler http.Handler) HandlerOption {
	return func(h *Handlers) {
		h.metricsPath = path
		h.metrics = handler
	}
}

// WithAlertStats 在 /status 中附带各状态的提醒数量
func WithAlertStats(counter AlertCounter) HandlerOption {
	return func(h *Handlers) {
		h.counter = counter
	}
}

func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handlers) {
		h.now = now
	}
}

// NewHandlers 创建新的API处理程序
func NewHandlers(store Store, scheduler Scheduler, mon *monitor.Monitor, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		store:       store,
		scheduler:   scheduler,
		monitor:     mon,
		metricsPath: "/metrics",
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthCheck 健康检查处理程序
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// ReadinessCheck 就绪检查处理程序
func (h *Handlers) ReadinessCheck(c *gin.Context) {
	if h.ready != nil {
		if err := h.ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

// Status 各组件健康状态
func (h *Handlers) Status(c *gin.Context) {
	resp := gin.H{"status": monitor.StatusUnknown, "components": []monitor.HealthStatus{}}
	code := http.StatusOK
	if h.monitor != nil {
		resp["status"] = monitor.StatusHealthy
		resp["components"] = h.monitor.GetAllStatus()
		if !h.monitor.Healthy() {
			resp["status"] = monitor.StatusUnhealthy
			code = http.StatusServiceUnavailable
		}
	}

	if h.counter != nil {
		counts, err := h.counter.CountByStatus(c.Request.Context())
		if err != nil {
			resp["alerts_error"] = err.Error()
		} else {
			resp["alerts"] = counts
		}
	}
	c.JSON(code, resp)
}

// RegenerateAlerts 证件创建或到期日变更后重建提醒计划
func (h *Handlers) RegenerateAlerts(c *gin.Context) {
	id := c.Param("id")
	doc, err := h.store.GetDocument(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "证件不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取证件失败: " + err.Error()})
		return
	}

	alerts, err := h.scheduler.Regenerate(c.Request.Context(), doc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": alerts,
	})
}

// CancelAlerts 证件删除后取消提醒计划
func (h *Handlers) CancelAlerts(c *gin.Context) {
	cancelled, err := h.scheduler.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cancelled": cancelled,
	})
}

// ListAlerts 证件的全部提醒
func (h *Handlers) ListAlerts(c *gin.Context) {
	alerts, err := h.store.ListAlertsByDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取提醒失败: " + err.Error()})
		return
	}
	if alerts == nil {
		alerts = []model.AlertInstance{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": alerts,
	})
}

// DocumentUrgency 证件距离到期的天数和紧急程度
func (h *Handlers) DocumentUrgency(c *gin.Context) {
	doc, err := h.store.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "证件不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取证件失败: " + err.Error()})
		return
	}
	if doc.ExpiryDate == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": model.ErrNoExpiry.Error()})
		return
	}

	days := urgency.DaysUntilExpiry(*doc.ExpiryDate, h.now())
	c.JSON(http.StatusOK, gin.H{
		"documentId":      doc.ID,
		"expiryDate":      doc.ExpiryDate.Format("2006-01-02"),
		"daysUntilExpiry": days,
		"status":          urgency.ExpiryUrgency(days),
	})
}

// BikeMaintenance 车辆保养状态
func (h *Handlers) BikeMaintenance(c *gin.Context) {
	bike, err := h.store.GetBike(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "车辆不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取车辆失败: " + err.Error()})
		return
	}
	if bike.OilChangeIntervalKm <= 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "换油间隔必须为正数"})
		return
	}

	oil := urgency.OilChangeStatus(bike.OdometerKm, bike.LastOilChangeKm, bike.OilChangeIntervalKm)
	var service *urgency.Service
	if bike.LastServiceAt != nil && bike.ServiceIntervalDays > 0 {
		s := urgency.ServiceStatus(*bike.LastServiceAt, bike.ServiceIntervalDays, h.now())
		service = &s
	}

	c.JSON(http.StatusOK, gin.H{
		"bikeId": bike.ID,
		"name":   bike.DisplayName(),
		"data":   urgency.MaintenanceStatus(oil, service),
	})
}
