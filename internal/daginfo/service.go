// Package daginfo decides which scheduled DAGs are due to run and moves
// their status through the idle, running, failed and terminated lifecycle
//
// Every operation is synchronous and performs a bounded number of store
// calls. Nothing is retried; callers re-poll on their next tick
package daginfo

import (
	"errors"
	"time"

	"github.com/therealutkarshpriyadarshi/dagsched/internal/state"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/storage"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/logger"
)

var (
	// ErrAlreadyTriggered is returned by an exclusive trigger that lost the race
	// to another poller, or found the DAG no longer triggerable
	ErrAlreadyTriggered = errors.New("dag already triggered")

	// ErrStatusConflict is returned when a reported outcome does not match the current status
	ErrStatusConflict = errors.New("dag status conflict")
)

// Service is the scheduling core over a DagInfoStore
type Service struct {
	store     storage.DagInfoStore
	log       *logger.Logger
	states    *state.Manager
	now       func() time.Time
	exclusive bool
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock sets the time source used for trigger times
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithStateManager sets the manager that validates transitions and publishes events
func WithStateManager(m *state.Manager) Option {
	return func(s *Service) { s.states = m }
}

// WithExclusiveTrigger makes MarkTriggered a conditional update that only
// succeeds while the record is not already running or terminated. Without it
// two pollers selecting the same record both trigger it (last write wins)
func WithExclusiveTrigger(enabled bool) Option {
	return func(s *Service) { s.exclusive = enabled }
}

// New creates a Service over store
func New(store storage.DagInfoStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		log:    logger.NewNop(),
		states: state.NewManager(nil),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying store
func (s *Service) Store() storage.DagInfoStore {
	return s.store
}
