package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/dagsched/pkg/models"
)

// MemoryStore keeps DAG info records in process memory.
// Every operation holds the store lock, so each call is atomic
type MemoryStore struct {
	mu     sync.RWMutex
	rows   map[int64]*models.DagInfo
	nextID int64
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:   make(map[int64]*models.DagInfo),
		nextID: 1,
		now:    time.Now,
	}
}

func (s *MemoryStore) SelectAll(ctx context.Context) ([]*models.DagInfo, error) {
	return s.SelectWhere(ctx, True{})
}

func (s *MemoryStore) SelectByEquality(ctx context.Context, cond Values, fields ...string) ([]*models.DagInfo, error) {
	return s.SelectWhere(ctx, Match(cond), fields...)
}

func (s *MemoryStore) SelectWhere(ctx context.Context, cond Expr, fields ...string) ([]*models.DagInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := Validate(cond); err != nil {
		return nil, err
	}
	if err := CheckColumns(fields...); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.DagInfo{}
	for _, id := range s.sortedIDs() {
		row := s.rows[id]
		ok, err := Eval(cond, row)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, Project(row, fields))
		}
	}
	return out, nil
}

func (s *MemoryStore) Insert(ctx context.Context, rec *models.DagInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID != 0 {
		if _, exists := s.rows[rec.ID]; exists {
			return fmt.Errorf("%w: id %d", ErrAlreadyExists, rec.ID)
		}
	} else {
		rec.ID = s.nextID
	}
	if rec.ID >= s.nextID {
		s.nextID = rec.ID + 1
	}

	now := models.TruncateTime(s.now())
	rec.DagStatus = rec.DagStatus.Normalize()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.rows[rec.ID] = rec.Clone()
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, newValues, match Values) (int64, error) {
	if err := checkMatch(match); err != nil {
		return 0, err
	}
	return s.UpdateWhere(ctx, newValues, Match(match))
}

func (s *MemoryStore) UpdateWhere(ctx context.Context, newValues Values, cond Expr) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := checkUpdate(newValues, cond); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*models.DagInfo
	for _, id := range s.sortedIDs() {
		ok, err := Eval(cond, s.rows[id])
		if err != nil {
			return 0, err
		}
		if ok {
			matched = append(matched, s.rows[id])
		}
	}

	// Apply to copies first so a bad value leaves no row half-updated
	updated := make([]*models.DagInfo, len(matched))
	for i, row := range matched {
		c := row.Clone()
		if err := newValues.Apply(c); err != nil {
			return 0, err
		}
		c.UpdatedAt = models.TruncateTime(s.now())
		updated[i] = c
	}
	for _, c := range updated {
		s.rows[c.ID] = c
	}
	return int64(len(updated)), nil
}

func (s *MemoryStore) Delete(ctx context.Context, match Values) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := checkMatch(match); err != nil {
		return 0, err
	}
	cond := Match(match)

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, id := range s.sortedIDs() {
		ok, err := Eval(cond, s.rows[id])
		if err != nil {
			return n, err
		}
		if ok {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *MemoryStore) sortedIDs() []int64 {
	ids := make([]int64, 0, len(s.rows))
	for id := range s.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
