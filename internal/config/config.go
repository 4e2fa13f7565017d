package config

import (
	"fmt"
	"strings"

	"github.com/eonpro/eonpro-sub008/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Admin     AdminConfig     `mapstructure:"admin"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// BillingConfig 计费处理方配置
type BillingConfig struct {
	APIBaseURL            string `mapstructure:"api_base_url"`
	APIKey                string `mapstructure:"api_key"`
	WebhookSecret         string `mapstructure:"webhook_secret"`
	WebhookToleranceS     int    `mapstructure:"webhook_tolerance_seconds"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	ProcessTimeoutSeconds int    `mapstructure:"process_timeout_seconds"`
}

// ReputationConfig 第三方 IP 信誉服务配置
type ReputationConfig struct {
	APIBaseURL            string `mapstructure:"api_base_url"`
	APIKey                string `mapstructure:"api_key"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	CacheTTLHours         int    `mapstructure:"cache_ttl_hours"`
	RiskScoreFloor        int    `mapstructure:"risk_score_floor"`
}

// RiskConfig 风控配置
type RiskConfig struct {
	Reputation ReputationConfig `mapstructure:"reputation"`

	DuplicateIPThreshold   int     `mapstructure:"duplicate_ip_threshold"`    // 30 天窗口内同 IP 转化上限
	VelocityHourlyCeiling  int     `mapstructure:"velocity_hourly_ceiling"`   // 单小时转化上限
	VelocityDailyCeiling   int     `mapstructure:"velocity_daily_ceiling"`    // 单日转化上限
	VelocityAverageFactor  float64 `mapstructure:"velocity_average_factor"`   // 超过 30 天日均的倍数
	RefundRateThresholdPct float64 `mapstructure:"refund_rate_threshold_pct"` // 90 天退款率阈值（百分比）
	RefundRateMinSample    int     `mapstructure:"refund_rate_min_sample"`    // 退款率最小样本量
	ScoreTimeoutSeconds    int     `mapstructure:"score_timeout_seconds"`
}

// ReconcileConfig 对账任务配置
type ReconcileConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	WindowHours     int    `mapstructure:"window_hours"`
	IntervalMinutes int    `mapstructure:"interval_minutes"`
	TriggerSecret   string `mapstructure:"trigger_secret"`
	PageSize        int    `mapstructure:"page_size"`
}

// AdminConfig 管理端接口配置
type AdminConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// Load 载入配置（config.yaml + EONPRO_ 环境变量覆盖）
func Load() *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("EONPRO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Errorf("read config failed: %w", err))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("parse config failed: %w", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("log.compress", true)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "eonpro.db")
	v.SetDefault("database.pool.max_open_conns", 25)
	v.SetDefault("database.pool.max_idle_conns", 5)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 1800)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.prefix", "eonpro")

	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.concurrency", 10)

	v.SetDefault("billing.webhook_tolerance_seconds", 300)
	v.SetDefault("billing.request_timeout_seconds", 12)
	v.SetDefault("billing.process_timeout_seconds", 20)

	v.SetDefault("risk.reputation.request_timeout_seconds", 5)
	v.SetDefault("risk.reputation.cache_ttl_hours", 24)
	v.SetDefault("risk.reputation.risk_score_floor", 75)
	v.SetDefault("risk.duplicate_ip_threshold", 3)
	v.SetDefault("risk.velocity_hourly_ceiling", 8)
	v.SetDefault("risk.velocity_daily_ceiling", 40)
	v.SetDefault("risk.velocity_average_factor", 3.0)
	v.SetDefault("risk.refund_rate_threshold_pct", 15.0)
	v.SetDefault("risk.refund_rate_min_sample", 10)
	v.SetDefault("risk.score_timeout_seconds", 8)

	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("reconcile.window_hours", 48)
	v.SetDefault("reconcile.interval_minutes", 60)
	v.SetDefault("reconcile.page_size", 100)
}
