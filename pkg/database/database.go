package database

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dewei/DocRadar/pkg/config"
	"github.com/dewei/DocRadar/pkg/logger"
	"github.com/dewei/DocRadar/pkg/model"
)

// DB 数据库连接，进程启动时打开、退出时关闭
type DB struct {
	db *gorm.DB
}

// Open 按配置打开数据库连接
func Open(cfg *config.Config, log *logrus.Entry) (*DB, error) {
	gormCfg := &gorm.Config{
		Logger:                 logger.NewGormLogger(log, cfg.Database.SlowThreshold),
		SkipDefaultTransaction: true,
	}

	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.PostgresDSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.Database.SQLite.Path)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Database.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库连接池失败: %w", err)
	}

	// 设置连接池参数
	if cfg.Database.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1) // SQLite 只允许单写
	} else {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	// 测试连接
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("测试数据库连接失败: %w", err)
	}

	d := New(db)
	if cfg.Database.AutoMigrate || cfg.Database.Driver == "sqlite" {
		if err := d.AutoMigrate(); err != nil {
			sqlDB.Close()
			return nil, err
		}
	}

	return d, nil
}

// New 包装已有的 gorm 连接
func New(db *gorm.DB) *DB {
	return &DB{db: db}
}

// AutoMigrate 创建或更新表结构
func (d *DB) AutoMigrate() error {
	err := d.db.AutoMigrate(
		&model.Document{},
		&model.Bike{},
		&model.NotificationSettings{},
		&model.AlertInstance{},
		&model.NotificationQueueEntry{},
	)
	if err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	return nil
}

// Ping 检查数据库连接
func (d *DB) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("获取数据库连接池失败: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("获取数据库连接池失败: %w", err)
	}
	return sqlDB.Close()
}

// Store 聚合各表访问，供生成器、处理器和 API 使用
type Store struct {
	*AlertDB
	*DocumentDB
	*UserDB
	*QueueDB
}

func (d *DB) Store() *Store {
	return &Store{
		AlertDB:    d.Alerts(),
		DocumentDB: d.Documents(),
		UserDB:     d.Users(),
		QueueDB:    d.Queue(),
	}
}
