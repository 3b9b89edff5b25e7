package storage

import (
	"time"

	"github.com/therealutkarshpriyadarshi/dagsched/pkg/models"
)

// DagInfoModel represents the database model for a DAG info record
type DagInfoModel struct {
	ID                int64     `gorm:"primaryKey;autoIncrement"`
	DagID             string    `gorm:"type:varchar(255);not null;index:idx_dag_info_dag_id"`
	DagName           string    `gorm:"type:varchar(255);not null;default:''"`
	Valid             bool      `gorm:"not null;default:true;index:idx_dag_info_due,priority:1"`
	ExpireTime        time.Time `gorm:"type:timestamp;not null"`
	DagStatus         string    `gorm:"type:varchar(32);not null;default:'idle';index:idx_dag_info_due,priority:2"`
	NextStartTime     time.Time `gorm:"type:timestamp;not null;index:idx_dag_info_due,priority:3"`
	SchedulerInterval int       `gorm:"not null;default:60"`
	SkipFailed        bool      `gorm:"not null;default:false"`
	CreatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for DagInfoModel
func (DagInfoModel) TableName() string {
	return TableName
}

// ToDagInfo converts a DagInfoModel to a models.DagInfo
func (m *DagInfoModel) ToDagInfo() *models.DagInfo {
	return &models.DagInfo{
		ID:                m.ID,
		DagID:             m.DagID,
		DagName:           m.DagName,
		Valid:             m.Valid,
		ExpireTime:        inLocal(m.ExpireTime),
		DagStatus:         models.DagStatus(m.DagStatus).Normalize(),
		NextStartTime:     inLocal(m.NextStartTime),
		SchedulerInterval: m.SchedulerInterval,
		SkipFailed:        m.SkipFailed,
		CreatedAt:         inLocal(m.CreatedAt),
		UpdatedAt:         inLocal(m.UpdatedAt),
	}
}

// FromDagInfo converts a models.DagInfo to a DagInfoModel
func FromDagInfo(d *models.DagInfo) *DagInfoModel {
	return &DagInfoModel{
		ID:                d.ID,
		DagID:             d.DagID,
		DagName:           d.DagName,
		Valid:             d.Valid,
		ExpireTime:        models.TruncateTime(d.ExpireTime),
		DagStatus:         string(d.DagStatus.Normalize()),
		NextStartTime:     models.TruncateTime(d.NextStartTime),
		SchedulerInterval: d.SchedulerInterval,
		SkipFailed:        d.SkipFailed,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

// inLocal reinterprets a TIMESTAMP (without time zone) value, which the driver
// returns in UTC, as the local wall-clock time it was written with
func inLocal(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.Local)
}
