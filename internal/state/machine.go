package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/dagsched/pkg/models"
)

var (
	// ErrInvalidTransition is returned when an invalid status transition is attempted
	ErrInvalidTransition = errors.New("invalid status transition")
)

// StateMachine manages status transitions of DAG info records
type StateMachine struct {
	validTransitions map[models.DagStatus][]models.DagStatus
}

// NewStateMachine creates a new state machine
func NewStateMachine() *StateMachine {
	return &StateMachine{
		validTransitions: map[models.DagStatus][]models.DagStatus{
			models.DagStatusIdle: {
				models.DagStatusRunning,
				models.DagStatusTerminated,
			},
			models.DagStatusRunning: {
				models.DagStatusIdle,   // run reported successful
				models.DagStatusFailed, // run reported failed
				models.DagStatusTerminated,
			},
			models.DagStatusFailed: {
				models.DagStatusRunning, // re-triggered with skip_failed
				models.DagStatusIdle,    // reset by an operator
				models.DagStatusTerminated,
			},
			models.DagStatusTerminated: {},
		},
	}
}

// CanTransition checks if a status transition is valid
func (sm *StateMachine) CanTransition(from, to models.DagStatus) bool {
	from, to = from.Normalize(), to.Normalize()

	// Allow transition to same status (idempotent)
	if from == to {
		return true
	}

	for _, status := range sm.validTransitions[from] {
		if status == to {
			return true
		}
	}
	return false
}

// ValidateTransition validates a status transition and returns an error if invalid
func (sm *StateMachine) ValidateTransition(from, to models.DagStatus) error {
	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s (allowed: %v)",
			ErrInvalidTransition, from.Normalize(), to.Normalize(), sm.GetNextStates(from))
	}
	return nil
}

// GetNextStates returns all valid next statuses from the current status
func (sm *StateMachine) GetNextStates(current models.DagStatus) []models.DagStatus {
	states, exists := sm.validTransitions[current.Normalize()]
	if !exists {
		return []models.DagStatus{}
	}
	return states
}

// TransitionEvent represents a status change of a DAG info record
type TransitionEvent struct {
	DagInfoID int64                  `json:"dag_info_id"`
	DagID     string                 `json:"dag_id,omitempty"`
	RunID     string                 `json:"run_id,omitempty"`
	OldStatus models.DagStatus       `json:"old_status,omitempty"` // empty when unknown
	NewStatus models.DagStatus       `json:"new_status"`
	ChangedAt time.Time              `json:"changed_at"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// EventPublisher is an interface for publishing status change events
type EventPublisher interface {
	Publish(ctx context.Context, event TransitionEvent) error
}

// NoOpPublisher is a no-op event publisher
type NoOpPublisher struct{}

// Publish does nothing
func (p *NoOpPublisher) Publish(ctx context.Context, event TransitionEvent) error {
	return nil
}

// Manager validates status transitions and publishes the resulting events
type Manager struct {
	machine   *StateMachine
	publisher EventPublisher
}

// NewManager creates a new state manager
func NewManager(publisher EventPublisher) *Manager {
	if publisher == nil {
		publisher = &NoOpPublisher{}
	}
	return &Manager{
		machine:   NewStateMachine(),
		publisher: publisher,
	}
}

// ValidateTransition delegates to the state machine
func (m *Manager) ValidateTransition(from, to models.DagStatus) error {
	return m.machine.ValidateTransition(from, to)
}

// CanTransition delegates to the state machine
func (m *Manager) CanTransition(from, to models.DagStatus) bool {
	return m.machine.CanTransition(from, to)
}

// Notify publishes a transition that has already been persisted
func (m *Manager) Notify(ctx context.Context, event TransitionEvent) error {
	if event.ChangedAt.IsZero() {
		event.ChangedAt = time.Now()
	}
	if err := m.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("failed to publish status transition event: %w", err)
	}
	return nil
}
