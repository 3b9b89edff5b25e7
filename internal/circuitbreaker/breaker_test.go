package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errDown = errors.New("down")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	b := New(Config{MaxFailures: maxFailures, Cooldown: time.Minute})
	b.now = clock.now
	return b, clock
}

func fail() error    { return errDown }
func succeed() error { return nil }

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(3)

	_ = b.Execute(fail)
	_ = b.Execute(fail)
	_ = b.Execute(succeed)
	_ = b.Execute(fail)
	_ = b.Execute(fail)
	if b.State() != StateClosed {
		t.Fatalf("a success should reset the count, state = %v", b.State())
	}

	_ = b.Execute(fail)
	if b.State() != StateOpen {
		t.Fatalf("State() = %v, want open", b.State())
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) || called {
		t.Errorf("open breaker should reject without calling, err = %v called = %v", err, called)
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	tests := []struct {
		name  string
		probe func() error
		want  State
	}{
		{"successful probe closes", succeed, StateClosed},
		{"failed probe reopens", fail, StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, clock := newTestBreaker(1)
			_ = b.Execute(fail)

			clock.advance(30 * time.Second)
			if err := b.Execute(succeed); !errors.Is(err, ErrOpen) {
				t.Fatalf("before cooldown err = %v, want ErrOpen", err)
			}

			clock.advance(31 * time.Second)
			_ = b.Execute(tt.probe)
			if b.State() != tt.want {
				t.Errorf("State() = %v, want %v", b.State(), tt.want)
			}
		})
	}
}

func TestBreaker_SingleProbe(t *testing.T) {
	b, clock := newTestBreaker(1)
	_ = b.Execute(fail)
	clock.advance(time.Minute)

	var inner error
	_ = b.Execute(func() error {
		inner = b.Execute(succeed)
		return nil
	})
	if !errors.Is(inner, ErrOpen) {
		t.Errorf("concurrent probe err = %v, want ErrOpen", inner)
	}
	if b.State() != StateClosed {
		t.Errorf("State() = %v, want closed", b.State())
	}
}

func TestBreaker_IsFailureAndCallbacks(t *testing.T) {
	var changes []string
	b := New(Config{
		MaxFailures: 1,
		Cooldown:    time.Minute,
		IsFailure:   func(err error) bool { return errors.Is(err, errDown) },
		OnStateChange: func(from, to State) {
			changes = append(changes, from.String()+"->"+to.String())
		},
	})

	_ = b.Execute(func() error { return errors.New("rejected by peer") })
	if b.State() != StateClosed {
		t.Fatalf("ignored error opened the breaker")
	}

	_ = b.Execute(fail)
	b.Reset()

	if len(changes) != 2 || changes[0] != "closed->open" || changes[1] != "open->closed" {
		t.Errorf("state changes = %v", changes)
	}
}
