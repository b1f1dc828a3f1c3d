// Package urgency 计算证件到期天数和车辆保养状态，纯函数，无副作用
package urgency

import (
	"math"
	"time"
)

// Status 紧急程度
type Status string

const (
	StatusOK      Status = "ok"
	StatusDueSoon Status = "due_soon"
	StatusOverdue Status = "overdue"
)

const (
	// OilDueSoonKm 剩余里程不超过该值时提示即将保养
	OilDueSoonKm = 250.0
	// ServiceDueSoonDays 距保养日不超过该天数时提示即将保养
	ServiceDueSoonDays = 14
	// ExpiryDueSoonDays 距到期不超过该天数时提示即将到期
	ExpiryDueSoonDays = 30
)

// rank 用于比较两个状态谁更紧急
func (s Status) rank() int {
	switch s {
	case StatusOverdue:
		return 2
	case StatusDueSoon:
		return 1
	}
	return 0
}

// DaysUntilExpiry 距到期的整天数（向上取整），已过期时为负数
func DaysUntilExpiry(expiry, now time.Time) int {
	days := expiry.Sub(now).Hours() / 24
	return int(math.Ceil(days))
}

// ExpiryUrgency 把到期天数映射到统一的紧急程度
func ExpiryUrgency(days int) Status {
	switch {
	case days <= 0:
		return StatusOverdue
	case days <= ExpiryDueSoonDays:
		return StatusDueSoon
	}
	return StatusOK
}

// OilChange 机油更换状态
type OilChange struct {
	Status         Status  `json:"status"`
	KmRemaining    float64 `json:"kmRemaining"`
	PercentageUsed float64 `json:"percentageUsed"`
}

// OilChangeStatus 根据里程计算换油状态，intervalKm 必须为正数，由配置阶段保证
func OilChangeStatus(currentOdometerKm, lastChangeKm, intervalKm float64) OilChange {
	kmSinceChange := currentOdometerKm - lastChangeKm
	remaining := math.Max(0, intervalKm-kmSinceChange)
	used := math.Min(100, math.Max(0, kmSinceChange/intervalKm*100))

	status := StatusOK
	switch {
	case remaining <= 0:
		status = StatusOverdue
	case remaining <= OilDueSoonKm:
		status = StatusDueSoon
	}

	return OilChange{
		Status:         status,
		KmRemaining:    remaining,
		PercentageUsed: used,
	}
}

// Service 按日期的保养状态
type Service struct {
	Status        Status    `json:"status"`
	DueAt         time.Time `json:"dueAt"`
	DaysRemaining int       `json:"daysRemaining"`
}

// ServiceStatus 根据上次保养日期和保养周期计算保养状态
func ServiceStatus(lastService time.Time, intervalDays int, now time.Time) Service {
	due := lastService.AddDate(0, 0, intervalDays)
	days := DaysUntilExpiry(due, now)

	status := StatusOK
	switch {
	case days <= 0:
		status = StatusOverdue
	case days <= ServiceDueSoonDays:
		status = StatusDueSoon
	}

	return Service{
		Status:        status,
		DueAt:         due,
		DaysRemaining: days,
	}
}

// Maintenance 综合保养状态
type Maintenance struct {
	Status  Status    `json:"status"`
	Oil     OilChange `json:"oil"`
	Service *Service  `json:"service,omitempty"`
}

// MaintenanceStatus 合并里程和日期两种保养状态，取更紧急的一个
func MaintenanceStatus(oil OilChange, service *Service) Maintenance {
	m := Maintenance{
		Status:  oil.Status,
		Oil:     oil,
		Service: service,
	}
	if service != nil && service.Status.rank() > m.Status.rank() {
		m.Status = service.Status
	}
	return m
}
