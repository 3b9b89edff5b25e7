// Package circuitbreaker stops calling a dependency after repeated failures
// and probes it again once a cooldown has passed
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned without calling the operation while the breaker is open
var ErrOpen = errors.New("circuit breaker is open")

// State represents the current state of the circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds configuration for the circuit breaker
type Config struct {
	// MaxFailures is the number of consecutive failures that opens the breaker
	MaxFailures int
	// Cooldown is how long the breaker stays open before one probe is let through
	Cooldown time.Duration
	// IsFailure decides which errors count against the breaker. Nil counts every error
	IsFailure func(err error) bool
	// OnStateChange is called with the breaker's lock held
	OnStateChange func(from, to State)
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() Config {
	return Config{MaxFailures: 5, Cooldown: 30 * time.Second}
}

// Breaker implements the circuit breaker pattern
type Breaker struct {
	config Config
	now    func() time.Time

	mu         sync.Mutex
	state      State
	failures   int
	openedAt   time.Time
	probing    bool
	lastChange time.Time
}

// New creates a new circuit breaker
func New(config Config) *Breaker {
	if config.MaxFailures < 1 {
		config.MaxFailures = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}
	b := &Breaker{config: config, now: time.Now}
	b.lastChange = b.now()
	return b
}

// Execute runs fn unless the breaker is open. While half-open only one
// probe runs at a time; concurrent callers get ErrOpen
func (b *Breaker) Execute(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(b.config.IsFailure(err))
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			return ErrOpen
		}
		b.setState(StateHalfOpen)
		b.probing = true
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) after(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.probing = false
		if failed {
			b.open()
			return
		}
		b.failures = 0
		b.setState(StateClosed)
		return
	}

	if !failed {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.config.MaxFailures {
		b.open()
	}
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.setState(StateOpen)
}

func (b *Breaker) setState(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.lastChange = b.now()
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
}

// State returns the current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the breaker and clears the failure count
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probing = false
	b.setState(StateClosed)
}
