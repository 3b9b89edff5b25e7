package daginfo

import (
	"context"
	"fmt"

	"github.com/therealutkarshpriyadarshi/dagsched/internal/storage"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/logger"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/models"
)

// SelectAllDagInfo returns every record
func (s *Service) SelectAllDagInfo(ctx context.Context) ([]*models.DagInfo, error) {
	rows, err := s.store.SelectAll(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "Select all dag info failed", logger.ErrorField(err))
		return nil, err
	}
	if len(rows) == 0 {
		s.log.WarnContext(ctx, "Select all dag info got empty rows")
	}
	return rows, nil
}

// SelectDagInfo returns the records equal to every entry of cond
func (s *Service) SelectDagInfo(ctx context.Context, cond storage.Values, fields ...string) ([]*models.DagInfo, error) {
	rows, err := s.store.SelectByEquality(ctx, cond, fields...)
	if err != nil {
		s.log.ErrorContext(ctx, "Select dag info failed", logger.ErrorField(err))
		return nil, err
	}
	if len(rows) == 0 {
		s.log.WarnContext(ctx, "Select dag info got empty rows", logger.Field("cond", cond))
	}
	return rows, nil
}

// SelectDagInfoWhere returns the records matching an arbitrary predicate
func (s *Service) SelectDagInfoWhere(ctx context.Context, cond storage.Expr, fields ...string) ([]*models.DagInfo, error) {
	rows, err := s.store.SelectWhere(ctx, cond, fields...)
	if err != nil {
		s.log.ErrorContext(ctx, "Select dag info with condition failed", logger.ErrorField(err))
		return nil, err
	}
	if len(rows) == 0 {
		s.log.WarnContext(ctx, "Select dag info with condition got empty rows")
	}
	return rows, nil
}

// GetDagInfo returns one record by id, or storage.ErrNotFound
func (s *Service) GetDagInfo(ctx context.Context, id int64) (*models.DagInfo, error) {
	rows, err := s.store.SelectByEquality(ctx, storage.Values{storage.ColID: id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: dag info %d", storage.ErrNotFound, id)
	}
	return rows[0], nil
}

// AddDagInfo inserts rec unless a record matching match already exists, in
// which case rec.ID is set to the existing record's id and nil is returned.
// An empty match defaults to the record's dag_id
func (s *Service) AddDagInfo(ctx context.Context, rec *models.DagInfo, match storage.Values) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	if len(match) == 0 {
		match = storage.Values{storage.ColDagID: rec.DagID}
	}

	existing, err := s.store.SelectByEquality(ctx, match, storage.ColID)
	if err != nil {
		s.log.ErrorContext(ctx, "Add dag info failed", logger.ErrorField(err))
		return err
	}
	if len(existing) != 0 {
		s.log.WarnContext(ctx, "Dag info already exists",
			logger.StringField("dag_id", rec.DagID),
			logger.Int64Field("id", existing[0].ID),
		)
		rec.ID = existing[0].ID
		return nil
	}

	if err := s.store.Insert(ctx, rec); err != nil {
		s.log.ErrorContext(ctx, "Add dag info failed", logger.ErrorField(err), logger.StringField("dag_id", rec.DagID))
		return err
	}

	s.log.InfoContext(ctx, "Dag info added", logger.Int64Field("id", rec.ID), logger.StringField("dag_id", rec.DagID))
	return nil
}

// UpdateDagInfo sets newValues on every record matching match
func (s *Service) UpdateDagInfo(ctx context.Context, newValues, match storage.Values) (int64, error) {
	n, err := s.store.Update(ctx, newValues, match)
	if err != nil {
		s.log.ErrorContext(ctx, "Update dag info failed", logger.ErrorField(err), logger.Field("match", match))
		return 0, err
	}
	return n, nil
}

// DeleteDagInfo deletes every record matching match
func (s *Service) DeleteDagInfo(ctx context.Context, match storage.Values) (int64, error) {
	n, err := s.store.Delete(ctx, match)
	if err != nil {
		s.log.ErrorContext(ctx, "Delete dag info failed", logger.ErrorField(err), logger.Field("match", match))
		return 0, err
	}
	return n, nil
}
