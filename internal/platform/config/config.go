package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// Config holds all configuration for the task runner service. Values
// are read from ./configs/config.yaml if present, then overridden by
// environment variables, mirroring the teacher's layered Load.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Task      TaskConfig      `mapstructure:"task"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Version   string          `mapstructure:"version"`
}

// ServiceConfig holds service identity fields.
type ServiceConfig struct {
	Name        string `mapstructure:"name" envconfig:"SERVICE_NAME"`
	Environment string `mapstructure:"environment" envconfig:"ENVIRONMENT" default:"development"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port         int           `mapstructure:"port" envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" envconfig:"HTTP_IDLE_TIMEOUT" default:"120s"`
}

// TaskConfig holds the Task Manager / Job Runner tunables named in
// spec.md §6.
type TaskConfig struct {
	MinTimeSeconds          int    `mapstructure:"min_time" envconfig:"TASK_MIN_TIME" default:"5"`
	MaxTimeSeconds          int    `mapstructure:"max_time" envconfig:"TASK_MAX_TIME" default:"30"`
	Concurrency             int    `mapstructure:"concurrency" envconfig:"CONCURRENCY" default:"4"`
	MaxQueueSize            int    `mapstructure:"max_queue_size" envconfig:"MAX_TASKS_QUEUE" default:"100"`
	CleanupIntervalSeconds  int    `mapstructure:"cleanup_interval" envconfig:"CLEANUP_INTERVAL" default:"600"`
	QueueBackend            string `mapstructure:"queue_backend" envconfig:"QUEUE_BACKEND" default:"memory"`
}

// RateLimitConfig holds the Rate Limiter tunables named in spec.md §6.
type RateLimitConfig struct {
	MaxRequestsPerIP        int    `mapstructure:"max_requests_per_ip" envconfig:"MAX_REQUESTS_PER_TIME_PER_IP" default:"10"`
	PeriodSeconds           int    `mapstructure:"period_seconds" envconfig:"RATE_LIMIT_PERIOD" default:"60"`
	CleanupIntervalSeconds  int    `mapstructure:"cleanup_interval" envconfig:"RATE_LIMIT_CLEANUP_INTERVAL" default:"300"`
	Backend                 string `mapstructure:"backend" envconfig:"RATE_LIMIT_BACKEND" default:"memory"`
}

// RedisConfig holds connection settings for the optional Redis-backed
// queue and rate-limit window store.
type RedisConfig struct {
	Host      string `mapstructure:"host" envconfig:"REDIS_HOST" default:"localhost"`
	Port      int    `mapstructure:"port" envconfig:"REDIS_PORT" default:"6379"`
	Password  string `mapstructure:"password" envconfig:"REDIS_PASSWORD"`
	DB        int    `mapstructure:"db" envconfig:"REDIS_DB" default:"0"`
	KeyPrefix string `mapstructure:"key_prefix" envconfig:"REDIS_KEY_PREFIX" default:"taskrunner"`
}

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	Level      string `mapstructure:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format     string `mapstructure:"format" envconfig:"LOG_FORMAT" default:"json"`
	OutputPath string `mapstructure:"output_path" envconfig:"LOG_OUTPUT_PATH" default:"stdout"`
}

// Load reads configuration from ./configs/config.yaml (if present),
// then overrides it with environment variables.
func Load(serviceName string) (*Config, error) {
	var cfg Config
	cfg.Service.Name = serviceName

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}

	if version := os.Getenv("VERSION"); version != "" {
		cfg.Version = version
	} else {
		cfg.Version = "dev"
	}

	return &cfg, nil
}

// Addr returns the Redis address in host:port form.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MinDuration converts MinTimeSeconds to a time.Duration.
func (c *TaskConfig) MinDuration() time.Duration {
	return time.Duration(c.MinTimeSeconds) * time.Second
}

// MaxDuration converts MaxTimeSeconds to a time.Duration.
func (c *TaskConfig) MaxDuration() time.Duration {
	return time.Duration(c.MaxTimeSeconds) * time.Second
}
