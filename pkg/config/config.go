package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	App struct {
		Name     string `yaml:"name"`
		Env      string `yaml:"env"`
		Timezone string `yaml:"timezone"` // 提醒时间和免打扰时段所在时区
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Database struct {
		Driver   string `yaml:"driver"` // postgres, sqlite, memory
		Postgres struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
			DBName   string `yaml:"dbname"`
			SSLMode  string `yaml:"sslmode"`
		} `yaml:"postgres"`
		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
		MaxOpenConns    int           `yaml:"max_open_conns"`
		MaxIdleConns    int           `yaml:"max_idle_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		SlowThreshold   time.Duration `yaml:"slow_threshold"`
		AutoMigrate     bool          `yaml:"auto_migrate"`
	} `yaml:"database"`

	NATS struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
		Stream  string `yaml:"stream"`
		Subject string `yaml:"subject"`
	} `yaml:"nats"`

	Processor struct {
		Schedule           string        `yaml:"schedule"` // cron 表达式
		BatchSize          int           `yaml:"batch_size"`
		Workers            int           `yaml:"workers"`
		EnqueueTimeout     time.Duration `yaml:"enqueue_timeout"`
		MaxRetries         int           `yaml:"max_retries"`
		BackoffBaseMinutes int           `yaml:"backoff_base_minutes"`
		AlertHour          int           `yaml:"alert_hour"`
	} `yaml:"processor"`

	API struct {
		Port         string        `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"api"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

// LoadConfig 从文件加载配置
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	return Parse(data)
}

// Parse 解析YAML配置，依次应用环境变量覆盖、默认值和校验
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	overrideFromEnv(&config)
	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default 不读取文件的默认配置
func Default() *Config {
	var config Config
	overrideFromEnv(&config)
	applyDefaults(&config)
	return &config
}

// overrideFromEnv 使用环境变量覆盖配置
func overrideFromEnv(config *Config) {
	setString(&config.App.Name, "APP_NAME")
	setString(&config.App.Env, "APP_ENV")
	setString(&config.App.Timezone, "APP_TIMEZONE")
	setString(&config.App.LogLevel, "LOG_LEVEL")

	// 数据库配置
	setString(&config.Database.Driver, "DB_DRIVER")
	setString(&config.Database.Postgres.Host, "DB_HOST")
	setInt(&config.Database.Postgres.Port, "DB_PORT")
	setString(&config.Database.Postgres.User, "DB_USER")
	setString(&config.Database.Postgres.Password, "DB_PASSWORD")
	setString(&config.Database.Postgres.DBName, "DB_NAME")
	setString(&config.Database.SQLite.Path, "SQLITE_PATH")

	// NATS配置
	if env := os.Getenv("NATS_URL"); env != "" {
		config.NATS.URL = env
		config.NATS.Enabled = true
	}

	// 处理器配置
	setString(&config.Processor.Schedule, "PROCESSOR_SCHEDULE")
	setInt(&config.Processor.BatchSize, "PROCESSOR_BATCH_SIZE")
	setInt(&config.Processor.Workers, "PROCESSOR_WORKERS")

	// API配置
	setString(&config.API.Port, "API_PORT")
}

func setString(dst *string, key string) {
	if env := os.Getenv(key); env != "" {
		*dst = env
	}
}

func setInt(dst *int, key string) {
	if env := os.Getenv(key); env != "" {
		if v, err := strconv.Atoi(env); err == nil && v > 0 {
			*dst = v
		}
	}
}

// applyDefaults 为未配置的项填充默认值
func applyDefaults(config *Config) {
	if config.App.Name == "" {
		config.App.Name = "docradar"
	}
	if config.App.Env == "" {
		config.App.Env = "dev"
	}
	if config.App.Timezone == "" {
		config.App.Timezone = "Local"
	}

	if config.Database.Driver == "" {
		config.Database.Driver = "sqlite"
	}
	if config.Database.Postgres.Port == 0 {
		config.Database.Postgres.Port = 5432
	}
	if config.Database.Postgres.SSLMode == "" {
		config.Database.Postgres.SSLMode = "disable"
	}
	if config.Database.SQLite.Path == "" {
		config.Database.SQLite.Path = "docradar.db"
	}
	if config.Database.MaxOpenConns == 0 {
		config.Database.MaxOpenConns = 25
	}
	if config.Database.MaxIdleConns == 0 {
		config.Database.MaxIdleConns = 5
	}
	if config.Database.ConnMaxLifetime == 0 {
		config.Database.ConnMaxLifetime = 5 * time.Minute
	}

	if config.NATS.Stream == "" {
		config.NATS.Stream = "NOTIFICATIONS"
	}
	if config.NATS.Subject == "" {
		config.NATS.Subject = "notifications.document"
	}

	if config.Processor.Schedule == "" {
		config.Processor.Schedule = "@every 5m"
	}
	if config.Processor.BatchSize == 0 {
		config.Processor.BatchSize = 100
	}
	if config.Processor.Workers == 0 {
		config.Processor.Workers = 4
	}
	if config.Processor.EnqueueTimeout == 0 {
		config.Processor.EnqueueTimeout = 5 * time.Second
	}
	if config.Processor.MaxRetries == 0 {
		config.Processor.MaxRetries = 3
	}
	if config.Processor.BackoffBaseMinutes == 0 {
		config.Processor.BackoffBaseMinutes = 5
	}
	if config.Processor.AlertHour == 0 {
		config.Processor.AlertHour = 9
	}

	if config.API.Port == "" {
		config.API.Port = "8080"
	}
	if config.API.ReadTimeout == 0 {
		config.API.ReadTimeout = 10 * time.Second
	}
	if config.API.WriteTimeout == 0 {
		config.API.WriteTimeout = 10 * time.Second
	}

	if config.Metrics.Path == "" {
		config.Metrics.Path = "/metrics"
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "postgres", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver))
	}
	if c.Processor.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("processor.batch_size 必须为正数: %d", c.Processor.BatchSize))
	}
	if c.Processor.Workers < 0 {
		errs = append(errs, fmt.Errorf("processor.workers 必须为正数: %d", c.Processor.Workers))
	}
	if c.Processor.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("processor.max_retries 不能为负数: %d", c.Processor.MaxRetries))
	}
	if c.Processor.AlertHour < 0 || c.Processor.AlertHour > 23 {
		errs = append(errs, fmt.Errorf("processor.alert_hour 超出范围: %d", c.Processor.AlertHour))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置校验失败: %w", errors.Join(errs...))
	}
	return nil
}

// Location 解析配置的时区
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("无效的时区 %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}

// PostgresDSN 构建 Postgres 连接字符串
func (c *Config) PostgresDSN() string {
	pg := c.Database.Postgres
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, pg.SSLMode,
	)
}

// GetDefaultConfigPath 获取默认配置文件路径
func GetDefaultConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev" // 默认开发环境
	}

	return fmt.Sprintf("configs/%s/app.yaml", strings.ToLower(env))
}
