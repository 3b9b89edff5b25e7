package storage

import (
	"fmt"
	"os"
	"testing"
)

// SetupTestDB connects to the postgres database used by integration tests.
// The test is skipped when no database is reachable
func SetupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Host = envOr("DB_HOST", cfg.Host)
	cfg.Port = envOr("DB_PORT", cfg.Port)
	cfg.User = envOr("DB_USER", cfg.User)
	cfg.Password = envOr("DB_PASSWORD", cfg.Password)
	cfg.DBName = envOr("DB_NAME", cfg.DBName)
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.LogLevel = "silent"

	db, err := NewDB(cfg)
	if err != nil {
		t.Skipf("Failed to connect to test database: %v. Set DB_HOST, DB_PORT, etc. to run integration tests", err)
	}

	if err := RunMigrations(cfg, "../../migrations"); err != nil {
		t.Logf("Warning: Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Exec("TRUNCATE TABLE dag_status_history")
		db.Exec("TRUNCATE TABLE dag_info RESTART IDENTITY")
		db.Close()
	}

	return db, cleanup
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// PrintTestDatabaseInfo prints information about connecting to the test database
func PrintTestDatabaseInfo() {
	fmt.Println("Integration tests require a PostgreSQL database.")
	fmt.Println("Set the following environment variables to configure:")
	fmt.Println("  DB_HOST (default: localhost)")
	fmt.Println("  DB_PORT (default: 5432)")
	fmt.Println("  DB_USER (default: dagsched)")
	fmt.Println("  DB_PASSWORD (default: dagsched_dev_password)")
	fmt.Println("  DB_NAME (default: dagsched)")
}
