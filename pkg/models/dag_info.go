package models

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// TimeLayout is the text form timestamps take when they cross the store boundary.
// Lexical order of this layout matches chronological order
const TimeLayout = "2006-01-02 15:04:05"

// DagStatus is the lifecycle status of a scheduled DAG definition
type DagStatus string

const (
	DagStatusIdle       DagStatus = "idle"
	DagStatusRunning    DagStatus = "running"
	DagStatusFailed     DagStatus = "failed"
	DagStatusTerminated DagStatus = "terminated"
)

// Normalize maps the empty placeholder status to idle
func (s DagStatus) Normalize() DagStatus {
	if s == "" {
		return DagStatusIdle
	}
	return s
}

// IsKnown reports whether s is one of the lifecycle statuses, counting the empty placeholder as idle
func (s DagStatus) IsKnown() bool {
	switch s.Normalize() {
	case DagStatusIdle, DagStatusRunning, DagStatusFailed, DagStatusTerminated:
		return true
	}
	return false
}

// IsSchedulable reports whether a DAG in this status may ever be picked up by a poll.
// Failed DAGs are schedulable only with skip_failed set, which is decided by the caller
func (s DagStatus) IsSchedulable() bool {
	switch s.Normalize() {
	case DagStatusRunning, DagStatusTerminated:
		return false
	}
	return true
}

// IsTerminal returns true if no further transition leaves this status
func (s DagStatus) IsTerminal() bool {
	return s == DagStatusTerminated
}

// DagInfo is the scheduling metadata of one DAG definition
type DagInfo struct {
	ID                int64     `json:"id"`
	DagID             string    `json:"dag_id" validate:"required,max=255"`
	DagName           string    `json:"dag_name" validate:"max=255"`
	Valid             bool      `json:"valid"`
	ExpireTime        time.Time `json:"expire_time" validate:"required"`
	DagStatus         DagStatus `json:"dag_status" validate:"omitempty,oneof=idle running failed terminated"`
	NextStartTime     time.Time `json:"next_start_time"`
	SchedulerInterval int       `json:"scheduler_interval" validate:"min=1"`
	SkipFailed        bool      `json:"skip_failed"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Interval returns the scheduler interval as a duration
func (d *DagInfo) Interval() time.Duration {
	return time.Duration(d.SchedulerInterval) * time.Second
}

// IsExpired reports whether the hard scheduling deadline has passed at now
func (d *DagInfo) IsExpired(now time.Time) bool {
	return !d.ExpireTime.After(now)
}

// Clone returns a copy of the record
func (d *DagInfo) Clone() *DagInfo {
	c := *d
	return &c
}

// String renders the record the way the diagnostic dump prints it
func (d *DagInfo) String() string {
	return fmt.Sprintf(
		"id=%d dag_id=%s dag_name=%s valid=%t expire_time=%s dag_status=%s next_start_time=%s scheduler_interval=%d skip_failed=%t",
		d.ID, d.DagID, d.DagName, d.Valid, FormatTime(d.ExpireTime), d.DagStatus.Normalize(),
		FormatTime(d.NextStartTime), d.SchedulerInterval, d.SkipFailed,
	)
}

var validate = validator.New()

// Validate checks the record's field constraints
func (d *DagInfo) Validate() error {
	return validate.Struct(d)
}

// FormatTime formats t in local time using TimeLayout. The zero time formats as ""
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(time.Local).Format(TimeLayout)
}

// ParseTime parses a TimeLayout string in local time. An empty string parses to the zero time
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(TimeLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// TruncateTime drops sub-second precision, which the store boundary cannot carry
func TruncateTime(t time.Time) time.Time {
	return t.Truncate(time.Second)
}
