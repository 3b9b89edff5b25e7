package daginfo

import (
	"context"
	"time"

	"github.com/therealutkarshpriyadarshi/dagsched/internal/storage"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/logger"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/models"
)

// NeedStartCondition returns the predicate matching records due to start at now
//
// A record is due when it is valid, not expired, its next start time has been
// reached, and either its status is none of running/failed/terminated, or it
// failed and has skip_failed set. Running DAGs never overlap; failed DAGs stay
// parked unless they opted in to automatic re-triggering
func NeedStartCondition(now time.Time) storage.Expr {
	now = models.TruncateTime(now)

	schedulable := storage.And{
		storage.Eq(storage.ColValid, true),
		storage.Gt(storage.ColExpireTime, now),
		storage.Ne(storage.ColDagStatus, models.DagStatusRunning),
		storage.Ne(storage.ColDagStatus, models.DagStatusFailed),
		storage.Ne(storage.ColDagStatus, models.DagStatusTerminated),
		storage.Le(storage.ColNextStartTime, now),
	}
	failedSkippable := storage.And{
		storage.Eq(storage.ColValid, true),
		storage.Gt(storage.ColExpireTime, now),
		storage.Eq(storage.ColDagStatus, models.DagStatusFailed),
		storage.Eq(storage.ColSkipFailed, true),
		storage.Le(storage.ColNextStartTime, now),
	}
	return storage.Or{schedulable, failedSkippable}
}

// IsDue evaluates NeedStartCondition against a single record
func IsDue(rec *models.DagInfo, now time.Time) bool {
	ok, err := storage.Eval(NeedStartCondition(now), rec)
	return err == nil && ok
}

// SelectNeedStartDag returns every record due to start at now, in one store query
func (s *Service) SelectNeedStartDag(ctx context.Context, now time.Time) ([]*models.DagInfo, error) {
	rows, err := s.store.SelectWhere(ctx, NeedStartCondition(now))
	if err != nil {
		s.log.ErrorContext(ctx, "Select need start dag failed", logger.ErrorField(err))
		return nil, err
	}

	if len(rows) == 0 {
		s.log.WarnContext(ctx, "Select need start dag got empty rows",
			logger.StringField("current_time", models.FormatTime(now)))
		return rows, nil
	}
	s.log.DebugContext(ctx, "Selected need start dag",
		logger.IntField("count", len(rows)),
		logger.StringField("current_time", models.FormatTime(now)),
	)
	return rows, nil
}
