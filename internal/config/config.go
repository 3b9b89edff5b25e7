// Package config loads dagsched settings from a YAML file and DAGSCHED_*
// environment variables
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/scheduler"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. DAGSCHED_STORE_DRIVER
const EnvPrefix = "DAGSCHED"

type Config struct {
	Log         Logger         `mapstructure:"logger"`
	Store       Store          `mapstructure:"store"`
	DB          storage.Config `mapstructure:"database"`
	Scheduler   Scheduler      `mapstructure:"scheduler"`
	Redis       Redis          `mapstructure:"redis"`
	NATS        NATS           `mapstructure:"nats"`
	Events      Events         `mapstructure:"events"`
	API         API            `mapstructure:"api"`
	Definitions string         `mapstructure:"definitions"`
}

type Logger struct {
	Level    string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Encoding string `mapstructure:"encoding" validate:"oneof=json console"`
}

// Store selects the record store. postgres uses the database section;
// mysql and sqlite use DSN
type Store struct {
	Driver         string `mapstructure:"driver" validate:"oneof=postgres mysql sqlite memory"`
	DSN            string `mapstructure:"dsn"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

type Scheduler struct {
	PollSpec         string        `mapstructure:"poll_spec" validate:"required"`
	Timezone         string        `mapstructure:"timezone"`
	ExclusiveTrigger bool          `mapstructure:"exclusive_trigger"`
	LockTTL          time.Duration `mapstructure:"lock_ttl"`
	MaxRunning       int           `mapstructure:"max_running" validate:"min=0"`
	DispatchTimeout  time.Duration `mapstructure:"dispatch_timeout"`
	// Retry and circuit breaker settings for the NATS dispatcher
	DispatchRetries int           `mapstructure:"dispatch_retries" validate:"min=0"`
	DispatchBackoff time.Duration `mapstructure:"dispatch_backoff"`
	BreakerFailures int           `mapstructure:"breaker_failures" validate:"min=0"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// Redis is optional; an empty Addr disables the trigger lock and event fan-out
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATS is optional; an empty URL dispatches to the log only
type NATS struct {
	URL string `mapstructure:"url"`
}

type Events struct {
	// RecordHistory writes every status change to dag_status_history (postgres only)
	RecordHistory bool `mapstructure:"record_history"`
	// PublishRedis publishes status changes on the Redis channel
	PublishRedis bool `mapstructure:"publish_redis"`
}

type API struct {
	Enabled   bool    `mapstructure:"enabled"`
	Port      int     `mapstructure:"port" validate:"min=1,max=65535"`
	Mode      string  `mapstructure:"mode" validate:"oneof=debug release test"`
	JWTSecret string  `mapstructure:"jwt_secret"`
	RateLimit float64 `mapstructure:"rate_limit" validate:"min=0"`
	RateBurst int     `mapstructure:"rate_burst" validate:"min=0"`
}

func setDefaults(v *viper.Viper) {
	db := storage.DefaultConfig()
	poll := scheduler.DefaultConfig()

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.migrations_path", "migrations")

	v.SetDefault("database.host", db.Host)
	v.SetDefault("database.port", db.Port)
	v.SetDefault("database.user", db.User)
	v.SetDefault("database.password", db.Password)
	v.SetDefault("database.name", db.DBName)
	v.SetDefault("database.ssl_mode", db.SSLMode)
	v.SetDefault("database.max_conns", db.MaxConns)
	v.SetDefault("database.min_conns", db.MinConns)
	v.SetDefault("database.max_idle_time", db.MaxIdleTime)
	v.SetDefault("database.max_lifetime", db.MaxLifetime)
	v.SetDefault("database.log_level", db.LogLevel)

	v.SetDefault("scheduler.poll_spec", poll.PollSpec)
	v.SetDefault("scheduler.timezone", poll.Timezone)
	v.SetDefault("scheduler.exclusive_trigger", true)
	v.SetDefault("scheduler.lock_ttl", 30*time.Second)
	v.SetDefault("scheduler.max_running", poll.MaxRunning)
	v.SetDefault("scheduler.dispatch_timeout", poll.DispatchTimeout)
	v.SetDefault("scheduler.dispatch_retries", 2)
	v.SetDefault("scheduler.dispatch_backoff", 200*time.Millisecond)
	v.SetDefault("scheduler.breaker_failures", 5)
	v.SetDefault("scheduler.breaker_cooldown", 30*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("nats.url", "")

	v.SetDefault("events.record_history", false)
	v.SetDefault("events.publish_redis", false)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.mode", "release")
	v.SetDefault("api.jwt_secret", "")
	v.SetDefault("api.rate_limit", 10.0)
	v.SetDefault("api.rate_burst", 20)

	v.SetDefault("definitions", "")
}

// Load reads path, or ./dagsched.yaml when path is empty, then applies
// environment overrides. A missing default file is not an error
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("dagsched")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and cross-field requirements
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := scheduler.ValidateSpec(c.Scheduler.PollSpec); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Store.Driver {
	case "mysql", "sqlite":
		if c.Store.DSN == "" {
			return fmt.Errorf("invalid config: store.dsn is required for driver %s", c.Store.Driver)
		}
	}
	if c.Events.RecordHistory && c.Store.Driver != "postgres" {
		return fmt.Errorf("invalid config: events.record_history requires the postgres store")
	}
	if c.Events.PublishRedis && c.Redis.Addr == "" {
		return fmt.Errorf("invalid config: events.publish_redis requires redis.addr")
	}
	return nil
}

// PollerConfig converts the scheduler section
func (c *Config) PollerConfig() *scheduler.Config {
	return &scheduler.Config{
		PollSpec:        c.Scheduler.PollSpec,
		Timezone:        c.Scheduler.Timezone,
		MaxRunning:      c.Scheduler.MaxRunning,
		DispatchTimeout: c.Scheduler.DispatchTimeout,
	}
}

// ResilienceConfig converts the dispatcher retry and breaker settings
func (c *Config) ResilienceConfig() scheduler.ResilienceConfig {
	return scheduler.ResilienceConfig{
		Retries:         c.Scheduler.DispatchRetries,
		Backoff:         c.Scheduler.DispatchBackoff,
		BreakerFailures: c.Scheduler.BreakerFailures,
		BreakerCooldown: c.Scheduler.BreakerCooldown,
	}
}
