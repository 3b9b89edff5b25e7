package dto

import (
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/dagsched/internal/daginfo"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/storage"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/models"
)

// CreateDagInfoRequest represents the request to register a scheduled DAG.
// Timestamps use the "2006-01-02 15:04:05" local format
type CreateDagInfoRequest struct {
	DagID             string `json:"dag_id" validate:"required,max=255"`
	DagName           string `json:"dag_name" validate:"max=255"`
	Valid             *bool  `json:"valid,omitempty"`
	ExpireTime        string `json:"expire_time" validate:"required,timestamp"`
	NextStartTime     string `json:"next_start_time,omitempty" validate:"omitempty,timestamp"`
	SchedulerInterval int    `json:"scheduler_interval" validate:"required,min=1"`
	SkipFailed        bool   `json:"skip_failed"`
}

// UpdateDagInfoRequest represents a partial update. Status changes go
// through the lifecycle routes instead
type UpdateDagInfoRequest struct {
	DagName           *string `json:"dag_name,omitempty" validate:"omitempty,max=255"`
	Valid             *bool   `json:"valid,omitempty"`
	ExpireTime        *string `json:"expire_time,omitempty" validate:"omitempty,timestamp"`
	NextStartTime     *string `json:"next_start_time,omitempty" validate:"omitempty,timestamp"`
	SchedulerInterval *int    `json:"scheduler_interval,omitempty" validate:"omitempty,min=1"`
	SkipFailed        *bool   `json:"skip_failed,omitempty"`
}

// DagInfoResponse represents the response for a DAG info record
type DagInfoResponse struct {
	ID                int64  `json:"id"`
	DagID             string `json:"dag_id"`
	DagName           string `json:"dag_name"`
	Valid             bool   `json:"valid"`
	ExpireTime        string `json:"expire_time"`
	DagStatus         string `json:"dag_status"`
	NextStartTime     string `json:"next_start_time"`
	SchedulerInterval int    `json:"scheduler_interval"`
	SkipFailed        bool   `json:"skip_failed"`
	Due               bool   `json:"due"`
	CreatedAt         string `json:"created_at,omitempty"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

// DagInfoListResponse represents a paginated list of DAG info records
type DagInfoListResponse struct {
	DagInfos   []DagInfoResponse `json:"dag_infos"`
	Pagination PaginationMeta    `json:"pagination"`
}

// TriggerResponse is returned when a DAG run is started
type TriggerResponse struct {
	RunID         string          `json:"run_id"`
	DagInfo       DagInfoResponse `json:"dag_info"`
	TriggeredAt   string          `json:"triggered_at"`
	NextStartTime string          `json:"next_start_time"`
}

// ToDagInfo converts the request to a model. next_start_time defaults to now
func (r CreateDagInfoRequest) ToDagInfo(now time.Time) (*models.DagInfo, error) {
	expire, err := models.ParseTime(r.ExpireTime)
	if err != nil {
		return nil, fmt.Errorf("%w: expire_time: %v", storage.ErrInvalidInput, err)
	}

	next := models.TruncateTime(now)
	if r.NextStartTime != "" {
		if next, err = models.ParseTime(r.NextStartTime); err != nil {
			return nil, fmt.Errorf("%w: next_start_time: %v", storage.ErrInvalidInput, err)
		}
	}

	valid := true
	if r.Valid != nil {
		valid = *r.Valid
	}
	name := r.DagName
	if name == "" {
		name = r.DagID
	}

	return &models.DagInfo{
		DagID:             r.DagID,
		DagName:           name,
		Valid:             valid,
		ExpireTime:        expire,
		DagStatus:         models.DagStatusIdle,
		NextStartTime:     next,
		SchedulerInterval: r.SchedulerInterval,
		SkipFailed:        r.SkipFailed,
	}, nil
}

// ToValues converts the set fields to store column values
func (r UpdateDagInfoRequest) ToValues() (storage.Values, error) {
	values := storage.Values{}
	if r.DagName != nil {
		values[storage.ColDagName] = *r.DagName
	}
	if r.Valid != nil {
		values[storage.ColValid] = *r.Valid
	}
	if r.ExpireTime != nil {
		t, err := models.ParseTime(*r.ExpireTime)
		if err != nil {
			return nil, fmt.Errorf("%w: expire_time: %v", storage.ErrInvalidInput, err)
		}
		values[storage.ColExpireTime] = t
	}
	if r.NextStartTime != nil {
		t, err := models.ParseTime(*r.NextStartTime)
		if err != nil {
			return nil, fmt.Errorf("%w: next_start_time: %v", storage.ErrInvalidInput, err)
		}
		values[storage.ColNextStartTime] = t
	}
	if r.SchedulerInterval != nil {
		values[storage.ColSchedulerInterval] = *r.SchedulerInterval
	}
	if r.SkipFailed != nil {
		values[storage.ColSkipFailed] = *r.SkipFailed
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", storage.ErrInvalidInput)
	}
	return values, nil
}

// ToDagInfoResponse converts a model, evaluating whether it is due at now
func ToDagInfoResponse(d *models.DagInfo, now time.Time) DagInfoResponse {
	return DagInfoResponse{
		ID:                d.ID,
		DagID:             d.DagID,
		DagName:           d.DagName,
		Valid:             d.Valid,
		ExpireTime:        models.FormatTime(d.ExpireTime),
		DagStatus:         string(d.DagStatus.Normalize()),
		NextStartTime:     models.FormatTime(d.NextStartTime),
		SchedulerInterval: d.SchedulerInterval,
		SkipFailed:        d.SkipFailed,
		Due:               daginfo.IsDue(d, now),
		CreatedAt:         models.FormatTime(d.CreatedAt),
		UpdatedAt:         models.FormatTime(d.UpdatedAt),
	}
}

// ToTriggerResponse converts a trigger
func ToTriggerResponse(t *daginfo.Trigger, now time.Time) TriggerResponse {
	return TriggerResponse{
		RunID:         t.RunID,
		DagInfo:       ToDagInfoResponse(t.DagInfo, now),
		TriggeredAt:   models.FormatTime(t.TriggeredAt),
		NextStartTime: models.FormatTime(t.NextStartTime),
	}
}
