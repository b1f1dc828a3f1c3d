package engine

import (
	"fmt"
	"time"
)

// QuietHours 免打扰时段，按当天分钟数表示，Start > End 表示跨午夜
type QuietHours struct {
	Start int
	End   int
}

// ParseClock 解析 HH:MM
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("时间格式错误 %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ParseQuietHours 解析免打扰时段
func ParseQuietHours(start, end string) (QuietHours, error) {
	s, err := ParseClock(start)
	if err != nil {
		return QuietHours{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return QuietHours{}, err
	}
	return QuietHours{Start: s, End: e}, nil
}

// Contains t 的本地时刻是否落在时段内，左闭右开；起止相同视为空时段
func (q QuietHours) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	switch {
	case q.Start == q.End:
		return false
	case q.Start < q.End:
		return m >= q.Start && m < q.End
	default:
		return m >= q.Start || m < q.End
	}
}

// DeferUntil 时段结束后一分钟；当天的这个时刻已过则顺延到第二天
func (q QuietHours) DeferUntil(now time.Time) time.Time {
	y, mo, d := now.Date()
	next := time.Date(y, mo, d, q.End/60, q.End%60+1, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(y, mo, d+1, q.End/60, q.End%60+1, 0, 0, now.Location())
	}
	return next
}
