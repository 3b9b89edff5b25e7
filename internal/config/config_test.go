package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dagsched.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Driver != "postgres" {
		t.Errorf("Store.Driver = %s, want postgres", cfg.Store.Driver)
	}
	if cfg.Scheduler.PollSpec != "@every 10s" || !cfg.Scheduler.ExclusiveTrigger {
		t.Errorf("Scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.LockTTL != 30*time.Second {
		t.Errorf("Scheduler.LockTTL = %v, want 30s", cfg.Scheduler.LockTTL)
	}
	if r := cfg.ResilienceConfig(); r.Retries != 2 || r.BreakerFailures != 5 || r.BreakerCooldown != 30*time.Second {
		t.Errorf("ResilienceConfig() = %+v", r)
	}
	if cfg.DB.Host != "localhost" || cfg.DB.DBName != "dagsched" {
		t.Errorf("DB = %+v", cfg.DB)
	}
	if cfg.API.Port != 8080 || cfg.Log.Level != "info" {
		t.Errorf("API.Port = %d, Log.Level = %s", cfg.API.Port, cfg.Log.Level)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
logger:
  level: debug
  encoding: console
store:
  driver: sqlite
  dsn: file:dagsched.db
scheduler:
  poll_spec: "*/30 * * * * *"
  lock_ttl: 1m
  max_running: 5
api:
  port: 9090
`)
	t.Setenv("DAGSCHED_API_PORT", "9191")
	t.Setenv("DAGSCHED_SCHEDULER_EXCLUSIVE_TRIGGER", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Driver != "sqlite" || cfg.Store.DSN != "file:dagsched.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Scheduler.LockTTL != time.Minute || cfg.Scheduler.MaxRunning != 5 {
		t.Errorf("Scheduler = %+v", cfg.Scheduler)
	}
	if cfg.API.Port != 9191 {
		t.Errorf("API.Port = %d, want env override 9191", cfg.API.Port)
	}
	if cfg.Scheduler.ExclusiveTrigger {
		t.Error("env override should disable exclusive_trigger")
	}

	poller := cfg.PollerConfig()
	if poller.PollSpec != "*/30 * * * * *" || poller.MaxRunning != 5 {
		t.Errorf("PollerConfig() = %+v", poller)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown driver", "store:\n  driver: oracle\n"},
		{"sqlite without dsn", "store:\n  driver: sqlite\n"},
		{"bad poll spec", "scheduler:\n  poll_spec: sometimes\n"},
		{"bad log level", "logger:\n  level: loud\n"},
		{"history without postgres", "store:\n  driver: memory\nevents:\n  record_history: true\n"},
		{"redis events without redis", "events:\n  publish_redis: true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("Load() expected error")
			}
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() should fail for a missing explicit file")
	}
}
