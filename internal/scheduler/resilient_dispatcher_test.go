package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/dagsched/internal/circuitbreaker"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/daginfo"
)

func TestResilientDispatcher_RetriesTransientFailures(t *testing.T) {
	calls := 0
	inner := DispatcherFunc(func(ctx context.Context, trigger *daginfo.Trigger) error {
		calls++
		if calls < 3 {
			return errors.New("nats: timeout")
		}
		return nil
	})
	d := NewResilientDispatcher(inner, ResilienceConfig{Retries: 3, Backoff: time.Millisecond}, nil)

	if err := d.Dispatch(context.Background(), &daginfo.Trigger{RunID: "r1"}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("inner called %d times, want 3", calls)
	}
}

func TestResilientDispatcher_OpensBreaker(t *testing.T) {
	calls := 0
	inner := DispatcherFunc(func(ctx context.Context, trigger *daginfo.Trigger) error {
		calls++
		return errors.New("nats: no responders")
	})
	d := NewResilientDispatcher(inner, ResilienceConfig{
		Retries:         1,
		Backoff:         time.Millisecond,
		BreakerFailures: 2,
		BreakerCooldown: time.Hour,
	}, nil)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := d.Dispatch(ctx, &daginfo.Trigger{RunID: "r"}); err == nil {
			t.Fatal("Dispatch() should fail")
		}
	}
	if d.State() != circuitbreaker.StateOpen {
		t.Fatalf("State() = %v, want open", d.State())
	}
	if calls != 4 {
		t.Errorf("inner called %d times, want 4", calls)
	}

	err := d.Dispatch(ctx, &daginfo.Trigger{RunID: "r"})
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Errorf("Dispatch() error = %v, want ErrOpen", err)
	}
	if calls != 4 {
		t.Errorf("open breaker still called inner")
	}
}

func TestResilientDispatcher_NoRetryOnDeadline(t *testing.T) {
	calls := 0
	inner := DispatcherFunc(func(ctx context.Context, trigger *daginfo.Trigger) error {
		calls++
		return context.DeadlineExceeded
	})
	d := NewResilientDispatcher(inner, ResilienceConfig{Retries: 5, Backoff: time.Millisecond}, nil)

	_ = d.Dispatch(context.Background(), &daginfo.Trigger{RunID: "r"})
	if calls != 1 {
		t.Errorf("inner called %d times, want 1", calls)
	}
}
