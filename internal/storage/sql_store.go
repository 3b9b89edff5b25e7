package storage

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/models"
)

// textTime scans timestamps stored as TimeLayout text. DATETIME columns may
// also arrive as time.Time depending on driver options, which is accepted too
type textTime struct {
	time.Time
}

func (t *textTime) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.In(time.Local)
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	}
	return fmt.Errorf("unsupported timestamp type %T", value)
}

func (t *textTime) parse(s string) error {
	// Some drivers append fractional seconds or a zone
	if len(s) > len(models.TimeLayout) {
		s = s[:len(models.TimeLayout)]
	}
	parsed, err := models.ParseTime(strings.Replace(s, "T", " ", 1))
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t textTime) Value() (driver.Value, error) {
	return models.FormatTime(t.Time), nil
}

// dagInfoRow is the sqlx scan target for the dag_info table
type dagInfoRow struct {
	ID                int64    `db:"id"`
	DagID             string   `db:"dag_id"`
	DagName           string   `db:"dag_name"`
	Valid             bool     `db:"valid"`
	ExpireTime        textTime `db:"expire_time"`
	DagStatus         string   `db:"dag_status"`
	NextStartTime     textTime `db:"next_start_time"`
	SchedulerInterval int      `db:"scheduler_interval"`
	SkipFailed        bool     `db:"skip_failed"`
	CreatedAt         textTime `db:"created_at"`
	UpdatedAt         textTime `db:"updated_at"`
}

func (r *dagInfoRow) toDagInfo() *models.DagInfo {
	return &models.DagInfo{
		ID:                r.ID,
		DagID:             r.DagID,
		DagName:           r.DagName,
		Valid:             r.Valid,
		ExpireTime:        r.ExpireTime.Time,
		DagStatus:         models.DagStatus(r.DagStatus).Normalize(),
		NextStartTime:     r.NextStartTime.Time,
		SchedulerInterval: r.SchedulerInterval,
		SkipFailed:        r.SkipFailed,
		CreatedAt:         r.CreatedAt.Time,
		UpdatedAt:         r.UpdatedAt.Time,
	}
}

// SQLStore is a DagInfoStore over database/sql through sqlx
type SQLStore struct {
	db      *sqlx.DB
	dialect Dialect
	now     func() time.Time
}

// OpenSQLStore opens a database with the given driver ("mysql" or "sqlite3")
// and makes sure the dag_info table exists
func OpenSQLStore(ctx context.Context, driverName, dsn string) (*SQLStore, error) {
	dialect, err := DialectFor(driverName)
	if err != nil {
		return nil, err
	}

	if _, ok := dialect.(MySQLDialect); ok {
		if dsn, err = mysqlDSN(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open(dialect.Name(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, ok := dialect.(SQLiteDialect); ok {
		// SQLite serializes writers, and each ":memory:" connection is a separate database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := NewSQLStore(db, dialect)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// mysqlDSN makes MySQL report matched rather than changed rows, so
// an update writing identical values still counts its row
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("%w: mysql dsn: %v", ErrInvalidInput, err)
	}
	cfg.ClientFoundRows = true
	cfg.ParseTime = false
	return cfg.FormatDSN(), nil
}

// NewSQLStore wraps an open sqlx handle
func NewSQLStore(db *sqlx.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

// EnsureSchema creates the dag_info table when missing
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range splitStatements(s.dialect.CreateTableSQL()) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create dag_info schema: %w", err)
		}
	}
	return nil
}

// Ping checks the database is reachable
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) SelectAll(ctx context.Context) ([]*models.DagInfo, error) {
	return s.SelectWhere(ctx, True{})
}

func (s *SQLStore) SelectByEquality(ctx context.Context, cond Values, fields ...string) ([]*models.DagInfo, error) {
	return s.SelectWhere(ctx, Match(cond), fields...)
}

func (s *SQLStore) SelectWhere(ctx context.Context, cond Expr, fields ...string) ([]*models.DagInfo, error) {
	if err := CheckColumns(fields...); err != nil {
		return nil, err
	}
	clause, args, err := Render(cond, s.dialect)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		s.columnList(fields), TableName, clause, s.dialect.Quote(ColID))

	var rows []dagInfoRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select dag info: %w", err)
	}

	out := make([]*models.DagInfo, len(rows))
	for i := range rows {
		out[i] = rows[i].toDagInfo()
	}
	return out, nil
}

func (s *SQLStore) Insert(ctx context.Context, rec *models.DagInfo) error {
	now := models.TruncateTime(s.now())
	values := Values{
		ColDagID:             rec.DagID,
		ColDagName:           rec.DagName,
		ColValid:             rec.Valid,
		ColExpireTime:        rec.ExpireTime,
		ColDagStatus:         rec.DagStatus.Normalize(),
		ColNextStartTime:     rec.NextStartTime,
		ColSchedulerInterval: rec.SchedulerInterval,
		ColSkipFailed:        rec.SkipFailed,
		ColCreatedAt:         now,
		ColUpdatedAt:         now,
	}
	if rec.ID != 0 {
		values[ColID] = rec.ID
	}

	names := values.Keys()
	cols := make([]string, len(names))
	placeholders := make([]string, len(names))
	args := make([]interface{}, len(names))
	for i, name := range names {
		cols[i] = s.dialect.Quote(name)
		placeholders[i] = s.dialect.Placeholder(i + 1)
		args[i] = s.dialect.BindValue(normalizeValue(values[name]))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		TableName, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert dag info: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted id: %w", err)
	}

	rec.ID = id
	rec.DagStatus = rec.DagStatus.Normalize()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

func (s *SQLStore) Update(ctx context.Context, newValues, match Values) (int64, error) {
	if err := checkMatch(match); err != nil {
		return 0, err
	}
	return s.UpdateWhere(ctx, newValues, Match(match))
}

func (s *SQLStore) UpdateWhere(ctx context.Context, newValues Values, cond Expr) (int64, error) {
	if err := checkUpdate(newValues, cond); err != nil {
		return 0, err
	}

	values := Values{ColUpdatedAt: models.TruncateTime(s.now())}
	for name, v := range newValues {
		values[name] = v
	}

	names := values.Keys()
	sets := make([]string, len(names))
	args := make([]interface{}, 0, len(names))
	for i, name := range names {
		args = append(args, s.dialect.BindValue(normalizeValue(values[name])))
		sets[i] = fmt.Sprintf("%s = %s", s.dialect.Quote(name), s.dialect.Placeholder(len(args)))
	}

	clause, condArgs, err := Render(cond, offsetDialect{Dialect: s.dialect, offset: len(args)})
	if err != nil {
		return 0, err
	}
	args = append(args, condArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", TableName, strings.Join(sets, ", "), clause)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update dag info: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLStore) Delete(ctx context.Context, match Values) (int64, error) {
	if err := checkMatch(match); err != nil {
		return 0, err
	}
	clause, args, err := Render(Match(match), s.dialect)
	if err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", TableName, clause), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete dag info: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLStore) columnList(fields []string) string {
	if len(fields) == 0 {
		fields = AllColumns
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = s.dialect.Quote(f)
	}
	return strings.Join(quoted, ", ")
}

// offsetDialect shifts placeholder numbering for clauses rendered after other arguments
type offsetDialect struct {
	Dialect
	offset int
}

func (d offsetDialect) Placeholder(index int) string {
	return d.Dialect.Placeholder(index + d.offset)
}
