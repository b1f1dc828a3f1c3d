package monitor

import (
	"context"
	"sort"
	"sync"
	"time"
)

// 组件状态
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus 健康状态
type HealthStatus struct {
	Component   string    `json:"component"`
	Status      string    `json:"status"`
	LastChecked time.Time `json:"last_checked"`
	Message     string    `json:"message,omitempty"`
}

// CheckFunc 组件健康检查，返回 nil 表示健康
type CheckFunc func(ctx context.Context) error

// Monitor 监控系统
type Monitor struct {
	components map[string]*HealthStatus
	mutex      sync.RWMutex
	alertFunc  func(component, status, message string)
	wg         sync.WaitGroup
}

// NewMonitor 创建新的监控系统
func NewMonitor(alertFunc func(component, status, message string)) *Monitor {
	return &Monitor{
		components: make(map[string]*HealthStatus),
		alertFunc:  alertFunc,
	}
}

// RegisterComponent 注册组件
func (m *Monitor) RegisterComponent(component string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.components[component]; exists {
		return
	}
	m.components[component] = &HealthStatus{
		Component:   component,
		Status:      StatusUnknown,
		LastChecked: time.Now(),
	}
}

// UpdateStatus 更新组件状态
func (m *Monitor) UpdateStatus(component, status, message string) {
	m.mutex.Lock()
	if _, exists := m.components[component]; !exists {
		m.components[component] = &HealthStatus{
			Component: component,
		}
	}

	oldStatus := m.components[component].Status
	m.components[component].Status = status
	m.components[component].LastChecked = time.Now()
	m.components[component].Message = message
	m.mutex.Unlock()

	// 如果状态变为不健康，触发告警
	if oldStatus != status && status != StatusHealthy && m.alertFunc != nil {
		m.alertFunc(component, status, message)
	}
}

// Report 按错误更新组件状态
func (m *Monitor) Report(component string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.UpdateStatus(component, StatusUnhealthy, err.Error())
		return
	}
	m.UpdateStatus(component, StatusHealthy, "")
}

// GetStatus 获取组件状态副本
func (m *Monitor) GetStatus(component string) *HealthStatus {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if status, exists := m.components[component]; exists {
		s := *status
		return &s
	}

	return nil
}

// GetAllStatus 获取所有组件状态，按组件名排序
func (m *Monitor) GetAllStatus() []HealthStatus {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	statuses := make([]HealthStatus, 0, len(m.components))
	for _, status := range m.components {
		statuses = append(statuses, *status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Component < statuses[j].Component
	})

	return statuses
}

// Healthy 所有已检查过的组件都健康
func (m *Monitor) Healthy() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, status := range m.components {
		if status.Status == StatusUnhealthy || status.Status == StatusDegraded {
			return false
		}
	}
	return true
}

// StartChecking 开始定期检查，ctx 取消后停止
func (m *Monitor) StartChecking(ctx context.Context, component string, check CheckFunc, interval time.Duration) {
	m.RegisterComponent(component)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		m.runCheck(ctx, component, check, interval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.runCheck(ctx, component, check, interval)
			}
		}
	}()
}

// Wait 等待所有检查协程退出
func (m *Monitor) Wait() {
	m.wg.Wait()
}

func (m *Monitor) runCheck(ctx context.Context, component string, check CheckFunc, timeout time.Duration) {
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if ctx.Err() != nil {
		return
	}
	m.Report(component, check(checkCtx))
}
