package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/therealutkarshpriyadarshi/dagsched/pkg/models"
	"gorm.io/gorm"
)

type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a DagInfoStore backed by gorm
func NewGormStore(db *gorm.DB) DagInfoStore {
	return &gormStore{db: db}
}

func (s *gormStore) SelectAll(ctx context.Context) ([]*models.DagInfo, error) {
	return s.SelectWhere(ctx, True{})
}

func (s *gormStore) SelectByEquality(ctx context.Context, cond Values, fields ...string) ([]*models.DagInfo, error) {
	return s.SelectWhere(ctx, Match(cond), fields...)
}

func (s *gormStore) SelectWhere(ctx context.Context, cond Expr, fields ...string) ([]*models.DagInfo, error) {
	clause, args, err := Render(cond, gormDialect{})
	if err != nil {
		return nil, err
	}
	if err := CheckColumns(fields...); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&DagInfoModel{}).Where(clause, args...).Order(ColID)
	if len(fields) > 0 {
		query = query.Select(fields)
	}

	var rows []DagInfoModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to select dag info: %w", err)
	}

	out := make([]*models.DagInfo, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDagInfo()
	}
	return out, nil
}

func (s *gormStore) Insert(ctx context.Context, rec *models.DagInfo) error {
	model := FromDagInfo(rec)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
		}
		return fmt.Errorf("failed to insert dag info: %w", err)
	}

	rec.ID = model.ID
	rec.DagStatus = models.DagStatus(model.DagStatus)
	rec.CreatedAt = model.CreatedAt
	rec.UpdatedAt = model.UpdatedAt
	return nil
}

func (s *gormStore) Update(ctx context.Context, newValues, match Values) (int64, error) {
	if err := checkMatch(match); err != nil {
		return 0, err
	}
	return s.UpdateWhere(ctx, newValues, Match(match))
}

func (s *gormStore) UpdateWhere(ctx context.Context, newValues Values, cond Expr) (int64, error) {
	if err := checkUpdate(newValues, cond); err != nil {
		return 0, err
	}
	clause, args, err := Render(cond, gormDialect{})
	if err != nil {
		return 0, err
	}

	updates := make(map[string]interface{}, len(newValues))
	for name, v := range newValues {
		updates[name] = gormDialect{}.BindValue(normalizeValue(v))
	}

	result := s.db.WithContext(ctx).Model(&DagInfoModel{}).Where(clause, args...).Updates(updates)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to update dag info: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *gormStore) Delete(ctx context.Context, match Values) (int64, error) {
	if err := checkMatch(match); err != nil {
		return 0, err
	}
	clause, args, err := Render(Match(match), gormDialect{})
	if err != nil {
		return 0, err
	}

	result := s.db.WithContext(ctx).Where(clause, args...).Delete(&DagInfoModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete dag info: %w", result.Error)
	}
	return result.RowsAffected, nil
}
