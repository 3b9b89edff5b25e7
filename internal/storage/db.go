package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds postgres configuration for the gorm-backed store
type Config struct {
	Host        string        `mapstructure:"host"`
	Port        string        `mapstructure:"port"`
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	DBName      string        `mapstructure:"name"`
	SSLMode     string        `mapstructure:"ssl_mode"`
	MaxConns    int           `mapstructure:"max_conns"`
	MinConns    int           `mapstructure:"min_conns"`
	MaxIdleTime time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
	LogLevel    string        `mapstructure:"log_level"`
}

// DefaultConfig returns a default database configuration
func DefaultConfig() *Config {
	return &Config{
		Host:        "localhost",
		Port:        "5432",
		User:        "dagsched",
		Password:    "dagsched_dev_password",
		DBName:      "dagsched",
		SSLMode:     "disable",
		MaxConns:    25,
		MinConns:    5,
		MaxIdleTime: 5 * time.Minute,
		MaxLifetime: 30 * time.Minute,
		LogLevel:    "warn",
	}
}

// DSN returns the libpq connection string for the configuration
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	}
	return logger.Warn
}

// DB wraps the gorm.DB instance
type DB struct {
	*gorm.DB
}

// NewDB creates a new database connection with connection pooling
func NewDB(cfg *Config) (*DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:      logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
		PrepareStmt: true,
		// Timestamps are stored as local wall-clock values, the same as the text boundary format
		NowFunc: func() time.Time {
			return time.Now().Truncate(time.Second)
		},
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxConns)
	sqlDB.SetMaxIdleConns(cfg.MinConns)
	sqlDB.SetConnMaxIdleTime(cfg.MaxIdleTime)
	sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health returns the health status of the database
func (db *DB) Health(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	stats := sqlDB.Stats()
	if stats.OpenConnections == 0 {
		return fmt.Errorf("no open database connections")
	}

	return nil
}
