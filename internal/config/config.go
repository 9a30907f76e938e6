package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // SCHEDULER_TIMEZONE must resolve in images without zoneinfo

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// CronParser accepts the six-field (with seconds) specs the scheduler runs
var CronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Config holds all configuration for our application. Groups are squashed so
// every key is read straight from a flat environment variable.
type Config struct {
	Server    ServerConfig    `mapstructure:",squash"`
	Database  DatabaseConfig  `mapstructure:",squash"`
	Redis     RedisConfig     `mapstructure:",squash"`
	Scheduler SchedulerConfig `mapstructure:",squash"`
	Logging   LoggingConfig   `mapstructure:",squash"`
	Ledger    LedgerConfig    `mapstructure:",squash"`
	Kafka     KafkaConfig     `mapstructure:",squash"`
	Health    HealthConfig    `mapstructure:",squash"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"SERVER_PORT"`
	Host            string        `mapstructure:"SERVER_HOST"`
	Env             string        `mapstructure:"ENV"`
	ReadTimeout     time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"SERVER_SHUTDOWN_TIMEOUT"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"DATABASE_URL"`
	MaxOpenConns    int           `mapstructure:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `mapstructure:"DATABASE_CONN_MAX_LIFETIME"`
}

type RedisConfig struct {
	URL      string `mapstructure:"REDIS_URL"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
}

type SchedulerConfig struct {
	Spec     string        `mapstructure:"SCHEDULER_SPEC"`
	Timezone string        `mapstructure:"SCHEDULER_TIMEZONE"`
	Workers  int           `mapstructure:"SCHEDULER_WORKERS"`
	LockTTL  time.Duration `mapstructure:"SCHEDULER_LOCK_TTL"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
}

type LedgerConfig struct {
	MaxRetries   int           `mapstructure:"LEDGER_MAX_RETRIES"`
	RetryBackoff time.Duration `mapstructure:"LEDGER_RETRY_BACKOFF"`
	CacheTTL     time.Duration `mapstructure:"LEDGER_CACHE_TTL"`
}

type KafkaConfig struct {
	Brokers     string `mapstructure:"KAFKA_BROKERS"`
	EventsTopic string `mapstructure:"LEDGER_EVENTS_TOPIC"`
}

type HealthConfig struct {
	Timeout time.Duration `mapstructure:"HEALTH_CHECK_TIMEOUT"`
}

var defaults = map[string]interface{}{
	"SERVER_PORT":                "8080",
	"SERVER_HOST":                "0.0.0.0",
	"ENV":                        "development",
	"SERVER_READ_TIMEOUT":        "15s",
	"SERVER_WRITE_TIMEOUT":       "15s",
	"SERVER_SHUTDOWN_TIMEOUT":    "30s",
	"DATABASE_URL":               "",
	"DATABASE_MAX_OPEN_CONNS":    25,
	"DATABASE_MAX_IDLE_CONNS":    5,
	"DATABASE_CONN_MAX_LIFETIME": "5m",
	"REDIS_URL":                  "",
	"REDIS_PASSWORD":             "",
	"REDIS_DB":                   0,
	"SCHEDULER_SPEC":             "0 0 * * * *",
	"SCHEDULER_TIMEZONE":         "Asia/Jakarta",
	"SCHEDULER_WORKERS":          8,
	"SCHEDULER_LOCK_TTL":         "10m",
	"LOG_LEVEL":                  "info",
	"LOG_FORMAT":                 "json",
	"LEDGER_MAX_RETRIES":         5,
	"LEDGER_RETRY_BACKOFF":       "20ms",
	"LEDGER_CACHE_TTL":           "1m",
	"KAFKA_BROKERS":              "",
	"LEDGER_EVENTS_TOPIC":        "ledger-events",
	"HEALTH_CHECK_TIMEOUT":       "5s",
}

// Load reads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	// Don't fail if .env file doesn't exist; real env vars win over it
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Ledger.MaxRetries <= 0 {
		return fmt.Errorf("LEDGER_MAX_RETRIES must be greater than 0")
	}

	if c.Ledger.RetryBackoff < 0 {
		return fmt.Errorf("LEDGER_RETRY_BACKOFF must not be negative")
	}

	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("SCHEDULER_WORKERS must be greater than 0")
	}

	if c.Scheduler.LockTTL <= 0 {
		return fmt.Errorf("SCHEDULER_LOCK_TTL must be greater than 0")
	}

	if _, err := CronParser.Parse(c.Scheduler.Spec); err != nil {
		return fmt.Errorf("SCHEDULER_SPEC is not a valid cron spec: %w", err)
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid IANA zone: %w", err)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Logging.Format)
	}

	if c.Health.Timeout <= 0 {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be greater than 0")
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// Address returns the listen address of the HTTP server
func (c *Config) Address() string {
	return c.Server.Host + ":" + c.Server.Port
}

// GetKafkaBrokers splits KAFKA_BROKERS; empty means events are not published
func (c *Config) GetKafkaBrokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.Kafka.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// GetSchedulerLocation returns the zone the cron spec is evaluated in
func (c *Config) GetSchedulerLocation() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
