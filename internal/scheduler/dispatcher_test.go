package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/therealutkarshpriyadarshi/dagsched/internal/daginfo"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/logger"
)

type recordingResults struct {
	succeeded []int64
	failed    []int64
	err       error
}

func (r *recordingResults) MarkSucceeded(ctx context.Context, id int64) error {
	r.succeeded = append(r.succeeded, id)
	return r.err
}

func (r *recordingResults) MarkFailed(ctx context.Context, id int64) error {
	r.failed = append(r.failed, id)
	return r.err
}

func TestApplyResult(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		tracked       string
		handlerErr    error
		result        ResultMessage
		want          ackKind
		wantSucceeded int
		wantFailed    int
	}{
		{
			name:          "current run succeeded",
			tracked:       "run-2",
			result:        ResultMessage{RunID: "run-2", DagInfoID: 1, Success: true},
			want:          ackDone,
			wantSucceeded: 1,
		},
		{
			name:       "current run failed",
			tracked:    "run-2",
			result:     ResultMessage{RunID: "run-2", DagInfoID: 1},
			want:       ackDone,
			wantFailed: 1,
		},
		{
			name:    "late result of a superseded run",
			tracked: "run-2",
			result:  ResultMessage{RunID: "run-1", DagInfoID: 1, Success: true},
			want:    ackDrop,
		},
		{
			name:          "run published by another scheduler",
			result:        ResultMessage{RunID: "run-9", DagInfoID: 1, Success: true},
			want:          ackDone,
			wantSucceeded: 1,
		},
		{
			name:          "status changed while running",
			tracked:       "run-2",
			handlerErr:    daginfo.ErrStatusConflict,
			result:        ResultMessage{RunID: "run-2", DagInfoID: 1, Success: true},
			want:          ackDone,
			wantSucceeded: 1,
		},
		{
			name:          "store failure is redelivered",
			tracked:       "run-2",
			handlerErr:    errors.New("connection reset"),
			result:        ResultMessage{RunID: "run-2", DagInfoID: 1, Success: true},
			want:          ackRetry,
			wantSucceeded: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &NATSDispatcher{log: logger.NewNop()}
			if tt.tracked != "" {
				d.trackRun(tt.result.DagInfoID, tt.tracked)
			}
			h := &recordingResults{err: tt.handlerErr}

			if got := d.applyResult(ctx, h, tt.result); got != tt.want {
				t.Errorf("applyResult() = %v, want %v", got, tt.want)
			}
			if len(h.succeeded) != tt.wantSucceeded || len(h.failed) != tt.wantFailed {
				t.Errorf("applied succeeded=%v failed=%v", h.succeeded, h.failed)
			}
		})
	}
}

func TestApplyResult_SettlesOnce(t *testing.T) {
	ctx := context.Background()
	d := &NATSDispatcher{log: logger.NewNop()}
	d.trackRun(1, "run-1")
	h := &recordingResults{}

	if got := d.applyResult(ctx, h, ResultMessage{RunID: "run-1", DagInfoID: 1, Success: true}); got != ackDone {
		t.Fatalf("first applyResult() = %v, want ackDone", got)
	}

	// a newer run replaces the settled one
	d.trackRun(1, "run-2")
	if got := d.applyResult(ctx, h, ResultMessage{RunID: "run-1", DagInfoID: 1}); got != ackDrop {
		t.Errorf("redelivered applyResult() = %v, want ackDrop", got)
	}
	if len(h.failed) != 0 {
		t.Errorf("stale result was applied: %v", h.failed)
	}
}
