package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/dagsched/pkg/models"
)

// Dialect hides the SQL differences between the databases a store can target
type Dialect interface {
	// Name returns the database/sql driver name ("mysql", "sqlite3")
	Name() string

	// Placeholder returns the bind placeholder for the 1-based argument index
	Placeholder(index int) string

	// Quote quotes a column identifier
	Quote(ident string) string

	// BindValue converts a Go value into the form the column comparison expects
	BindValue(v interface{}) interface{}

	// CreateTableSQL returns the DDL for the dag_info table
	CreateTableSQL() string
}

// DialectFor returns the dialect registered under a driver name
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "mysql":
		return MySQLDialect{}, nil
	case "sqlite3", "sqlite":
		return SQLiteDialect{}, nil
	}
	return nil, fmt.Errorf("%w: unsupported sql driver %q", ErrInvalidInput, driver)
}

// bindText stores timestamps as TimeLayout text and booleans as 0/1,
// matching the DATETIME/TINYINT columns of the text-timestamp dialects
func bindText(v interface{}) interface{} {
	switch x := v.(type) {
	case time.Time:
		return models.FormatTime(x)
	case bool:
		return boolInt(x)
	}
	return v
}

// MySQLDialect targets MySQL through go-sql-driver/mysql
type MySQLDialect struct{}

func (MySQLDialect) Name() string                        { return "mysql" }
func (MySQLDialect) Placeholder(int) string              { return "?" }
func (MySQLDialect) Quote(ident string) string           { return "`" + ident + "`" }
func (MySQLDialect) BindValue(v interface{}) interface{} { return bindText(v) }

func (MySQLDialect) CreateTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS dag_info (
	id BIGINT PRIMARY KEY AUTO_INCREMENT,
	dag_id VARCHAR(255) NOT NULL,
	dag_name VARCHAR(255) NOT NULL DEFAULT '',
	valid TINYINT(1) NOT NULL DEFAULT 1,
	expire_time DATETIME NOT NULL,
	dag_status VARCHAR(32) NOT NULL DEFAULT 'idle',
	next_start_time DATETIME NOT NULL,
	scheduler_interval INT NOT NULL DEFAULT 60,
	skip_failed TINYINT(1) NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	INDEX idx_dag_info_dag_id (dag_id),
	INDEX idx_dag_info_due (valid, dag_status, next_start_time)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
}

// SQLiteDialect targets SQLite through mattn/go-sqlite3.
// Timestamps are TEXT so the driver hands back the stored layout untouched
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string                        { return "sqlite3" }
func (SQLiteDialect) Placeholder(int) string              { return "?" }
func (SQLiteDialect) Quote(ident string) string           { return `"` + ident + `"` }
func (SQLiteDialect) BindValue(v interface{}) interface{} { return bindText(v) }

func (SQLiteDialect) CreateTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS dag_info (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	dag_id TEXT NOT NULL,
	dag_name TEXT NOT NULL DEFAULT '',
	valid INTEGER NOT NULL DEFAULT 1,
	expire_time TEXT NOT NULL,
	dag_status TEXT NOT NULL DEFAULT 'idle',
	next_start_time TEXT NOT NULL,
	scheduler_interval INTEGER NOT NULL DEFAULT 60,
	skip_failed INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dag_info_dag_id ON dag_info (dag_id);
CREATE INDEX IF NOT EXISTS idx_dag_info_due ON dag_info (valid, dag_status, next_start_time)`
}

// gormDialect renders clauses for gorm, which rebinds "?" per driver and
// passes time.Time through to TIMESTAMP columns
type gormDialect struct{}

func (gormDialect) Name() string              { return "gorm" }
func (gormDialect) Placeholder(int) string    { return "?" }
func (gormDialect) Quote(ident string) string { return ident }
func (gormDialect) CreateTableSQL() string    { return "" }

func (gormDialect) BindValue(v interface{}) interface{} {
	if t, ok := v.(time.Time); ok {
		return models.TruncateTime(t)
	}
	return v
}

// splitStatements splits multi-statement DDL for drivers that execute one statement per call
func splitStatements(ddl string) []string {
	var out []string
	for _, stmt := range strings.Split(ddl, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}
