package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		encoding string
		wantErr  bool
	}{
		{"json info", "info", "json", false},
		{"console debug", "debug", "console", false},
		{"bad level", "loud", "json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.level, tt.encoding)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && l == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := NewNop()
	scoped := &Logger{zap.New(core)}

	ctx := NewContext(context.Background(), scoped)
	base.InfoContext(ctx, "from context", Int64Field("id", 4))

	if logs.Len() != 1 {
		t.Fatalf("expected 1 entry on the context logger, got %d", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Message != "from context" || entry.ContextMap()["id"] != int64(4) {
		t.Errorf("unexpected entry: %+v", entry)
	}

	if base.FromContext(context.Background()) != base {
		t.Error("FromContext without a stored logger should return the receiver")
	}
}
