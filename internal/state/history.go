package state

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/models"
	"gorm.io/gorm"
)

// HistoryEntry is one recorded status change of a DAG info record.
// Trigger entries carry the run id handed to the dispatcher
type HistoryEntry struct {
	ID        uuid.UUID              `gorm:"type:uuid;primary_key" json:"id"`
	DagInfoID int64                  `gorm:"not null;index:idx_dag_status_history_dag_info_id" json:"dag_info_id"`
	RunID     string                 `gorm:"type:varchar(64);not null;default:''" json:"run_id"`
	OldStatus *string                `gorm:"type:varchar(32)" json:"old_status"`
	NewStatus string                 `gorm:"type:varchar(32);not null" json:"new_status"`
	ChangedAt time.Time              `gorm:"not null;index:idx_dag_status_history_changed_at" json:"changed_at"`
	Metadata  map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"metadata"`
}

// TableName specifies the table name for HistoryEntry
func (HistoryEntry) TableName() string {
	return "dag_status_history"
}

// HistoryTracker records status changes to a database. It is an EventPublisher
type HistoryTracker struct {
	db *gorm.DB
}

// NewHistoryTracker creates a new history tracker
func NewHistoryTracker(db *gorm.DB) *HistoryTracker {
	return &HistoryTracker{db: db}
}

// Publish records the event as a history entry
func (h *HistoryTracker) Publish(ctx context.Context, event TransitionEvent) error {
	var oldStatus *string
	if event.OldStatus != "" {
		s := string(event.OldStatus.Normalize())
		oldStatus = &s
	}

	changedAt := event.ChangedAt
	if changedAt.IsZero() {
		changedAt = time.Now()
	}

	entry := HistoryEntry{
		ID:        uuid.New(),
		DagInfoID: event.DagInfoID,
		RunID:     event.RunID,
		OldStatus: oldStatus,
		NewStatus: string(event.NewStatus.Normalize()),
		ChangedAt: models.TruncateTime(changedAt),
		Metadata:  event.Metadata,
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]interface{}{}
	}

	if err := h.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to record status history: %w", err)
	}
	return nil
}

// GetHistory retrieves the newest status changes of one record
func (h *HistoryTracker) GetHistory(ctx context.Context, dagInfoID int64, limit int) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	query := h.db.WithContext(ctx).
		Where("dag_info_id = ?", dagInfoID).
		Order("changed_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to get status history: %w", err)
	}
	return entries, nil
}
