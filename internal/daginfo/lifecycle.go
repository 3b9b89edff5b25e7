package daginfo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/state"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/storage"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/logger"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/models"
)

// Trigger describes one DAG run handed off by MarkTriggered
type Trigger struct {
	RunID         string           `json:"run_id"`
	DagInfo       *models.DagInfo  `json:"dag_info"`
	PrevStatus    models.DagStatus `json:"prev_status"`
	TriggeredAt   time.Time        `json:"triggered_at"`
	NextStartTime time.Time        `json:"next_start_time"`
}

// MarkTriggered records that rec has been started: its status becomes
// running and its next start time becomes now plus its interval. rec is
// updated in place on success
//
// In exclusive mode the update only applies while the stored status is
// neither running nor terminated, and ErrAlreadyTriggered is returned when
// it matched nothing
func (s *Service) MarkTriggered(ctx context.Context, rec *models.DagInfo) (*Trigger, error) {
	if rec == nil || rec.ID == 0 {
		return nil, fmt.Errorf("%w: dag info without id", storage.ErrInvalidInput)
	}
	if rec.SchedulerInterval <= 0 {
		return nil, fmt.Errorf("%w: scheduler interval %d is not positive", storage.ErrInvalidInput, rec.SchedulerInterval)
	}

	prev := rec.DagStatus.Normalize()
	if err := s.states.ValidateTransition(prev, models.DagStatusRunning); err != nil {
		return nil, err
	}

	now := models.TruncateTime(s.now())
	next := now.Add(rec.Interval())
	values := storage.Values{
		storage.ColDagStatus:     models.DagStatusRunning,
		storage.ColNextStartTime: next,
	}

	var (
		n   int64
		err error
	)
	if s.exclusive {
		n, err = s.store.UpdateWhere(ctx, values, storage.And{
			storage.Eq(storage.ColID, rec.ID),
			storage.Ne(storage.ColDagStatus, models.DagStatusRunning),
			storage.Ne(storage.ColDagStatus, models.DagStatusTerminated),
		})
	} else {
		n, err = s.store.Update(ctx, values, storage.Values{storage.ColID: rec.ID})
	}
	if err != nil {
		s.log.ErrorContext(ctx, "Update dag status and start time failed",
			logger.Int64Field("id", rec.ID), logger.ErrorField(err))
		return nil, err
	}
	if n == 0 {
		if s.exclusive {
			return nil, fmt.Errorf("%w: dag info %d", ErrAlreadyTriggered, rec.ID)
		}
		return nil, fmt.Errorf("%w: dag info %d", storage.ErrNotFound, rec.ID)
	}

	rec.DagStatus = models.DagStatusRunning
	rec.NextStartTime = next

	trigger := &Trigger{
		RunID:         uuid.NewString(),
		DagInfo:       rec.Clone(),
		PrevStatus:    prev,
		TriggeredAt:   now,
		NextStartTime: next,
	}

	s.log.InfoContext(ctx, "Dag triggered",
		logger.Int64Field("id", rec.ID),
		logger.StringField("dag_id", rec.DagID),
		logger.StringField("run_id", trigger.RunID),
		logger.StringField("next_start_time", models.FormatTime(next)),
	)
	s.notify(ctx, state.TransitionEvent{
		DagInfoID: rec.ID,
		DagID:     rec.DagID,
		RunID:     trigger.RunID,
		OldStatus: prev,
		NewStatus: models.DagStatusRunning,
		ChangedAt: now,
		Metadata:  map[string]interface{}{"next_start_time": models.FormatTime(next)},
	})
	return trigger, nil
}

// MarkTerminated sets the record's status to terminated regardless of its
// current status. Terminating twice succeeds. A missing record yields
// storage.ErrNotFound
func (s *Service) MarkTerminated(ctx context.Context, id int64) error {
	n, err := s.store.Update(ctx,
		storage.Values{storage.ColDagStatus: models.DagStatusTerminated},
		storage.Values{storage.ColID: id},
	)
	if err != nil {
		s.log.ErrorContext(ctx, "Update dag status failed", logger.Int64Field("id", id), logger.ErrorField(err))
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: dag info %d", storage.ErrNotFound, id)
	}

	s.log.InfoContext(ctx, "Dag terminated", logger.Int64Field("id", id))
	s.notify(ctx, state.TransitionEvent{
		DagInfoID: id,
		NewStatus: models.DagStatusTerminated,
		ChangedAt: models.TruncateTime(s.now()),
	})
	return nil
}

// MarkSucceeded reports a finished run: running becomes idle
func (s *Service) MarkSucceeded(ctx context.Context, id int64) error {
	return s.transition(ctx, id, models.DagStatusIdle, models.DagStatusRunning)
}

// MarkFailed reports a failed run: running becomes failed
func (s *Service) MarkFailed(ctx context.Context, id int64) error {
	return s.transition(ctx, id, models.DagStatusFailed, models.DagStatusRunning)
}

// ResetFailed clears a failure so the DAG is scheduled again: failed becomes idle
func (s *Service) ResetFailed(ctx context.Context, id int64) error {
	return s.transition(ctx, id, models.DagStatusIdle, models.DagStatusFailed)
}

// transition moves a record from one of the from statuses to to in a single
// conditional update. ErrStatusConflict is returned when the record exists
// but is in some other status
func (s *Service) transition(ctx context.Context, id int64, to models.DagStatus, from ...models.DagStatus) error {
	anyOf := make(storage.Or, 0, len(from))
	for _, f := range from {
		if err := s.states.ValidateTransition(f, to); err != nil {
			return err
		}
		anyOf = append(anyOf, storage.Eq(storage.ColDagStatus, f))
	}

	n, err := s.store.UpdateWhere(ctx,
		storage.Values{storage.ColDagStatus: to},
		storage.And{storage.Eq(storage.ColID, id), anyOf},
	)
	if err != nil {
		s.log.ErrorContext(ctx, "Update dag status failed", logger.Int64Field("id", id), logger.ErrorField(err))
		return err
	}
	if n == 0 {
		current, err := s.GetDagInfo(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: dag info %d is %s, want one of %v", ErrStatusConflict, id, current.DagStatus, from)
	}

	var old models.DagStatus
	if len(from) == 1 {
		old = from[0]
	}
	s.log.InfoContext(ctx, "Dag status changed",
		logger.Int64Field("id", id),
		logger.StringField("new_status", string(to)),
	)
	s.notify(ctx, state.TransitionEvent{
		DagInfoID: id,
		OldStatus: old,
		NewStatus: to,
		ChangedAt: models.TruncateTime(s.now()),
	})
	return nil
}

// notify publishes a persisted transition. A publishing failure is logged
// and never undoes the transition
func (s *Service) notify(ctx context.Context, event state.TransitionEvent) {
	if err := s.states.Notify(ctx, event); err != nil {
		s.log.WarnContext(ctx, "Publish status change failed",
			logger.Int64Field("id", event.DagInfoID), logger.ErrorField(err))
	}
}
