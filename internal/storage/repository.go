package storage

import (
	"context"
	"fmt"

	"github.com/therealutkarshpriyadarshi/dagsched/pkg/models"
)

// DagInfoStore defines field-level persistence of DAG info records
//
// Selects return an empty slice, never ErrNotFound, when nothing matches.
// The fields arguments restrict which columns are loaded; none loads every column.
// Implementations perform no retries
type DagInfoStore interface {
	SelectAll(ctx context.Context) ([]*models.DagInfo, error)
	SelectByEquality(ctx context.Context, cond Values, fields ...string) ([]*models.DagInfo, error)
	SelectWhere(ctx context.Context, cond Expr, fields ...string) ([]*models.DagInfo, error)
	Insert(ctx context.Context, rec *models.DagInfo) error
	// Update sets newValues on every record matching match and returns the rows affected
	Update(ctx context.Context, newValues, match Values) (int64, error)
	// UpdateWhere is Update with an arbitrary predicate, applied atomically per statement
	UpdateWhere(ctx context.Context, newValues Values, cond Expr) (int64, error)
	Delete(ctx context.Context, match Values) (int64, error)
}

// checkUpdate validates the arguments shared by every Update implementation
func checkUpdate(newValues Values, cond Expr) error {
	if len(newValues) == 0 {
		return ErrInvalidInput
	}
	if _, ok := newValues[ColID]; ok {
		return ErrInvalidInput
	}
	if err := newValues.Validate(); err != nil {
		return err
	}
	if err := checkWritable(newValues); err != nil {
		return err
	}
	return Validate(cond)
}

// checkWritable rejects values the scheduler could select but never trigger:
// an unknown status, or an interval that would not move next_start_time forward
func checkWritable(newValues Values) error {
	var scratch models.DagInfo
	if err := newValues.Apply(&scratch); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, ok := newValues[ColDagStatus]; ok && !scratch.DagStatus.IsKnown() {
		return fmt.Errorf("%w: unknown dag_status %q", ErrInvalidInput, scratch.DagStatus)
	}
	if _, ok := newValues[ColSchedulerInterval]; ok && scratch.SchedulerInterval < 1 {
		return fmt.Errorf("%w: scheduler_interval must be at least 1, got %d", ErrInvalidInput, scratch.SchedulerInterval)
	}
	return nil
}

// checkMatch rejects empty match maps, which would otherwise address the whole table
func checkMatch(match Values) error {
	if len(match) == 0 {
		return ErrInvalidInput
	}
	return match.Validate()
}
