package storage

import (
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/dagsched/pkg/models"
)

// TableName is the durable table holding DAG info records
const TableName = "dag_info"

// Column names of the dag_info table
const (
	ColID                = "id"
	ColDagID             = "dag_id"
	ColDagName           = "dag_name"
	ColValid             = "valid"
	ColExpireTime        = "expire_time"
	ColDagStatus         = "dag_status"
	ColNextStartTime     = "next_start_time"
	ColSchedulerInterval = "scheduler_interval"
	ColSkipFailed        = "skip_failed"
	ColCreatedAt         = "created_at"
	ColUpdatedAt         = "updated_at"
)

// Values maps column names to values for equality matches and updates
type Values map[string]interface{}

type column struct {
	get func(d *models.DagInfo) interface{}
	set func(d *models.DagInfo, v interface{}) error
}

// AllColumns lists the columns in table order
var AllColumns = []string{
	ColID, ColDagID, ColDagName, ColValid, ColExpireTime, ColDagStatus,
	ColNextStartTime, ColSchedulerInterval, ColSkipFailed, ColCreatedAt, ColUpdatedAt,
}

var columns = map[string]column{
	ColID: {
		get: func(d *models.DagInfo) interface{} { return d.ID },
		set: func(d *models.DagInfo, v interface{}) (err error) { d.ID, err = toInt64(v); return },
	},
	ColDagID: {
		get: func(d *models.DagInfo) interface{} { return d.DagID },
		set: func(d *models.DagInfo, v interface{}) (err error) { d.DagID, err = toString(v); return },
	},
	ColDagName: {
		get: func(d *models.DagInfo) interface{} { return d.DagName },
		set: func(d *models.DagInfo, v interface{}) (err error) { d.DagName, err = toString(v); return },
	},
	ColValid: {
		get: func(d *models.DagInfo) interface{} { return d.Valid },
		set: func(d *models.DagInfo, v interface{}) (err error) { d.Valid, err = toBool(v); return },
	},
	ColExpireTime: {
		get: func(d *models.DagInfo) interface{} { return d.ExpireTime },
		set: func(d *models.DagInfo, v interface{}) (err error) { d.ExpireTime, err = toTime(v); return },
	},
	ColDagStatus: {
		get: func(d *models.DagInfo) interface{} { return d.DagStatus.Normalize() },
		set: func(d *models.DagInfo, v interface{}) error {
			s, err := toString(v)
			d.DagStatus = models.DagStatus(s)
			return err
		},
	},
	ColNextStartTime: {
		get: func(d *models.DagInfo) interface{} { return d.NextStartTime },
		set: func(d *models.DagInfo, v interface{}) (err error) { d.NextStartTime, err = toTime(v); return },
	},
	ColSchedulerInterval: {
		get: func(d *models.DagInfo) interface{} { return int64(d.SchedulerInterval) },
		set: func(d *models.DagInfo, v interface{}) error {
			n, err := toInt64(v)
			d.SchedulerInterval = int(n)
			return err
		},
	},
	ColSkipFailed: {
		get: func(d *models.DagInfo) interface{} { return d.SkipFailed },
		set: func(d *models.DagInfo, v interface{}) (err error) { d.SkipFailed, err = toBool(v); return },
	},
	ColCreatedAt: {
		get: func(d *models.DagInfo) interface{} { return d.CreatedAt },
		set: func(d *models.DagInfo, v interface{}) (err error) { d.CreatedAt, err = toTime(v); return },
	},
	ColUpdatedAt: {
		get: func(d *models.DagInfo) interface{} { return d.UpdatedAt },
		set: func(d *models.DagInfo, v interface{}) (err error) { d.UpdatedAt, err = toTime(v); return },
	},
}

// IsColumn reports whether name is a dag_info column
func IsColumn(name string) bool {
	_, ok := columns[name]
	return ok
}

// CheckColumns returns ErrUnknownField for the first name that is not a column
func CheckColumns(names ...string) error {
	for _, name := range names {
		if !IsColumn(name) {
			return fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
	}
	return nil
}

// Validate checks every key of v is a column
func (v Values) Validate() error {
	for name := range v {
		if err := CheckColumns(name); err != nil {
			return err
		}
	}
	return nil
}

// Keys returns the column names of v in table order
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for _, name := range AllColumns {
		if _, ok := v[name]; ok {
			keys = append(keys, name)
		}
	}
	return keys
}

// ValueOf returns the value of a column on a record
func ValueOf(d *models.DagInfo, name string) (interface{}, error) {
	col, ok := columns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return col.get(d), nil
}

// Apply sets every column in v on the record
func (v Values) Apply(d *models.DagInfo) error {
	if err := v.Validate(); err != nil {
		return err
	}
	for _, name := range v.Keys() {
		if err := columns[name].set(d, v[name]); err != nil {
			return fmt.Errorf("column %s: %w", name, err)
		}
	}
	return nil
}

// Project returns a copy of the record holding only the named columns.
// No names means every column
func Project(d *models.DagInfo, fields []string) *models.DagInfo {
	if len(fields) == 0 {
		return d.Clone()
	}
	out := &models.DagInfo{}
	for _, name := range fields {
		if col, ok := columns[name]; ok {
			_ = col.set(out, col.get(d))
		}
	}
	return out
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	}
	return 0, fmt.Errorf("%w: expected integer, got %T", ErrInvalidInput, v)
}

func toString(v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case models.DagStatus:
		return string(s), nil
	case []byte:
		return string(s), nil
	}
	return "", fmt.Errorf("%w: expected string, got %T", ErrInvalidInput, v)
}

func toBool(v interface{}) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case int, int32, int64, uint, uint32, uint64, float64:
		n, _ := toInt64(v)
		return n != 0, nil
	}
	return false, fmt.Errorf("%w: expected bool, got %T", ErrInvalidInput, v)
}

func toTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return models.ParseTime(t)
	}
	return time.Time{}, fmt.Errorf("%w: expected time, got %T", ErrInvalidInput, v)
}
