// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Trigger    TriggerConfig    `mapstructure:"trigger"`
	Pricing    map[string]int64 `mapstructure:"pricing" validate:"dive,gt=0"`
	Channel    ChannelConfig    `mapstructure:"channel"`
	Events     EventsConfig     `mapstructure:"events"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
}

type ServerConfig struct {
	Port            string `mapstructure:"port" validate:"required"`
	ReadTimeout     int    `mapstructure:"read_timeout" validate:"min=1"`
	WriteTimeout    int    `mapstructure:"write_timeout" validate:"min=1"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" validate:"min=1"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host" validate:"required"`
	Port           int    `mapstructure:"port" validate:"min=1,max=65535"`
	User           string `mapstructure:"user" validate:"required"`
	Password       string `mapstructure:"password"`
	DBName         string `mapstructure:"dbname" validate:"required"`
	SSLMode        string `mapstructure:"sslmode" validate:"oneof=disable require verify-ca verify-full"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"min=1,max=65535"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
}

type GatewayConfig struct {
	BaseURL        string               `mapstructure:"base_url" validate:"required,url"`
	APIKey         string               `mapstructure:"api_key"`
	Timeout        int                  `mapstructure:"timeout" validate:"min=1"`
	RetryCount     int                  `mapstructure:"retry_count" validate:"min=0,max=5"`
	Timezone       string               `mapstructure:"timezone" validate:"required"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"`
	Timeout          int     `mapstructure:"timeout"`
	FailureRatio     float64 `mapstructure:"failure_ratio" validate:"gte=0,lte=1"`
	ConsecutiveFails uint32  `mapstructure:"consecutive_fails"`
}

type DispatchConfig struct {
	BatchSize int `mapstructure:"batch_size" validate:"min=1,max=1000"`
	Workers   int `mapstructure:"workers" validate:"min=1,max=64"`
	// Seconds.
	CycleLockTTL int `mapstructure:"cycle_lock_ttl" validate:"min=1"`
	SentCacheTTL int `mapstructure:"sent_cache_ttl" validate:"min=1"`
	ClaimTTL     int `mapstructure:"claim_ttl" validate:"min=1"`
}

type SchedulerConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalMinutes int  `mapstructure:"interval_minutes" validate:"min=1"`
}

// TriggerConfig guards the dispatch trigger. An empty secret disables the
// bearer check entirely.
type TriggerConfig struct {
	Secret string `mapstructure:"secret"`
}

type ChannelConfig struct {
	Classifier   string `mapstructure:"classifier" validate:"oneof=length bytes"`
	SMSMaxLength int    `mapstructure:"sms_max_length" validate:"min=1"`
}

type EventsConfig struct {
	AMQPURL  string `mapstructure:"amqp_url" validate:"omitempty,url"`
	Exchange string `mapstructure:"exchange" validate:"required_with=AMQPURL"`
}

type MiddlewareConfig struct {
	RateLimit      int      `mapstructure:"rate_limit"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
	EnableCORS     bool     `mapstructure:"enable_cors"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	RequestTimeout int      `mapstructure:"request_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 60)
	v.SetDefault("server.shutdown_timeout", 30)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "dispatcher")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("database.migrations_path", "./migrations")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("gateway.base_url", "http://localhost:9090")
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.timeout", 10)
	v.SetDefault("gateway.retry_count", 0)
	v.SetDefault("gateway.timezone", "Asia/Seoul")
	v.SetDefault("gateway.circuit_breaker.max_requests", 3)
	v.SetDefault("gateway.circuit_breaker.interval", 60)
	v.SetDefault("gateway.circuit_breaker.timeout", 60)
	v.SetDefault("gateway.circuit_breaker.failure_ratio", 0.6)
	v.SetDefault("gateway.circuit_breaker.consecutive_fails", 5)
	v.SetDefault("dispatch.batch_size", 100)
	v.SetDefault("dispatch.workers", 1)
	v.SetDefault("dispatch.cycle_lock_ttl", 300)
	v.SetDefault("dispatch.sent_cache_ttl", 86400)
	v.SetDefault("dispatch.claim_ttl", 3600)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval_minutes", 1)
	v.SetDefault("trigger.secret", "")
	v.SetDefault("channel.classifier", "length")
	v.SetDefault("channel.sms_max_length", 90)
	v.SetDefault("events.amqp_url", "")
	v.SetDefault("events.exchange", "dispatch.events")
	v.SetDefault("middleware.rate_limit", 100)
	v.SetDefault("middleware.rate_limit_burst", 1000)
	v.SetDefault("middleware.enable_cors", true)
	v.SetDefault("middleware.allowed_origins", []string{"*"})
	v.SetDefault("middleware.request_timeout", 60)
}

// LoadConfig reads configPath, applies environment overrides such as
// DISPATCH_BATCH_SIZE and validates the result. An empty path uses
// defaults and environment only.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if _, err := time.LoadLocation(config.Gateway.Timezone); err != nil {
		return nil, fmt.Errorf("invalid gateway timezone %q: %w", config.Gateway.Timezone, err)
	}

	return &config, nil
}

// GetDSN returns PostgreSQL connection string.
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// GetURL returns the DSN in URL form, as golang-migrate expects.
func (d *DatabaseConfig) GetURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (g *GatewayConfig) RequestTimeout() time.Duration {
	return time.Duration(g.Timeout) * time.Second
}

// Location returns the gateway wall-clock zone. LoadConfig has already
// rejected unknown names, so failure here falls back to UTC.
func (g *GatewayConfig) Location() *time.Location {
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (d *DispatchConfig) LockTTL() time.Duration {
	return time.Duration(d.CycleLockTTL) * time.Second
}

func (d *DispatchConfig) CacheTTL() time.Duration {
	return time.Duration(d.SentCacheTTL) * time.Second
}

func (d *DispatchConfig) ClaimDuration() time.Duration {
	return time.Duration(d.ClaimTTL) * time.Second
}
