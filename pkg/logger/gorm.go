package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger 将 gorm 日志转发到 logrus
type GormLogger struct {
	entry         *logrus.Entry
	slowThreshold time.Duration
}

// NewGormLogger 创建 gorm 日志适配器，slowThreshold 为 0 时不记录慢查询
func NewGormLogger(entry *logrus.Entry, slowThreshold time.Duration) *GormLogger {
	return &GormLogger{
		entry:         entry.WithField("component", "gorm"),
		slowThreshold: slowThreshold,
	}
}

// LogMode 级别由 logrus 控制
func (l *GormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface {
	return l
}

func (l *GormLogger) Info(_ context.Context, msg string, data ...any) {
	l.entry.Debug(fmt.Sprintf(msg, data...))
}

func (l *GormLogger) Warn(_ context.Context, msg string, data ...any) {
	l.entry.Warn(fmt.Sprintf(msg, data...))
}

func (l *GormLogger) Error(_ context.Context, msg string, data ...any) {
	l.entry.Error(fmt.Sprintf(msg, data...))
}

// Trace SQL 语句记录为 debug，错误和慢查询记录为 warn
func (l *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := logrus.Fields{
		"sql":         sql,
		"rows":        rows,
		"duration_ms": elapsed.Milliseconds(),
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		l.entry.WithFields(fields).WithError(err).Warn("SQL执行失败")
	case l.slowThreshold > 0 && elapsed > l.slowThreshold:
		l.entry.WithFields(fields).Warn("慢查询")
	default:
		l.entry.WithFields(fields).Debug("SQL")
	}
}
