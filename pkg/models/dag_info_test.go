package models

import (
	"testing"
	"time"
)

func TestDagStatus_Normalize(t *testing.T) {
	tests := []struct {
		in   DagStatus
		want DagStatus
	}{
		{"", DagStatusIdle},
		{DagStatusIdle, DagStatusIdle},
		{DagStatusRunning, DagStatusRunning},
		{DagStatusFailed, DagStatusFailed},
		{DagStatusTerminated, DagStatusTerminated},
	}

	for _, tt := range tests {
		if got := tt.in.Normalize(); got != tt.want {
			t.Errorf("DagStatus(%q).Normalize() = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDagStatus_IsSchedulable(t *testing.T) {
	tests := []struct {
		status DagStatus
		want   bool
	}{
		{"", true},
		{DagStatusIdle, true},
		{DagStatusFailed, true},
		{DagStatusRunning, false},
		{DagStatusTerminated, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsSchedulable(); got != tt.want {
				t.Errorf("IsSchedulable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDagStatus_IsKnown(t *testing.T) {
	tests := []struct {
		status DagStatus
		want   bool
	}{
		{"", true},
		{DagStatusIdle, true},
		{DagStatusRunning, true},
		{DagStatusFailed, true},
		{DagStatusTerminated, true},
		{"paused", false},
		{"RUNNING", false},
	}

	for _, tt := range tests {
		if got := tt.status.IsKnown(); got != tt.want {
			t.Errorf("DagStatus(%q).IsKnown() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestFormatAndParseTime(t *testing.T) {
	ts := time.Date(2024, 3, 9, 7, 5, 1, 0, time.Local)

	s := FormatTime(ts)
	if s != "2024-03-09 07:05:01" {
		t.Fatalf("FormatTime() = %q", s)
	}

	parsed, err := ParseTime(s)
	if err != nil {
		t.Fatalf("ParseTime() error = %v", err)
	}
	if !parsed.Equal(ts) {
		t.Errorf("ParseTime() = %v, want %v", parsed, ts)
	}

	if FormatTime(time.Time{}) != "" {
		t.Error("zero time should format as empty string")
	}
	if zero, err := ParseTime(""); err != nil || !zero.IsZero() {
		t.Errorf("ParseTime(\"\") = %v, %v", zero, err)
	}
	if _, err := ParseTime("2024/03/09"); err == nil {
		t.Error("expected error for malformed timestamp")
	}
}

func TestFormatTime_LexicalOrderMatchesChronological(t *testing.T) {
	earlier := time.Date(2024, 1, 9, 23, 59, 59, 0, time.Local)
	later := time.Date(2024, 1, 10, 0, 0, 0, 0, time.Local)

	if !(FormatTime(earlier) < FormatTime(later)) {
		t.Errorf("%q should sort before %q", FormatTime(earlier), FormatTime(later))
	}
}

func TestDagInfo_Validate(t *testing.T) {
	base := DagInfo{
		DagID:             "etl_daily",
		ExpireTime:        time.Now().Add(time.Hour),
		SchedulerInterval: 60,
	}

	tests := []struct {
		name    string
		mutate  func(d *DagInfo)
		wantErr bool
	}{
		{"valid", func(d *DagInfo) {}, false},
		{"missing dag id", func(d *DagInfo) { d.DagID = "" }, true},
		{"zero interval", func(d *DagInfo) { d.SchedulerInterval = 0 }, true},
		{"unknown status", func(d *DagInfo) { d.DagStatus = "paused" }, true},
		{"known status", func(d *DagInfo) { d.DagStatus = DagStatusFailed }, false},
		{"missing expire time", func(d *DagInfo) { d.ExpireTime = time.Time{} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base
			tt.mutate(&d)
			err := d.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDagInfo_IntervalAndExpiry(t *testing.T) {
	now := time.Now()
	d := &DagInfo{SchedulerInterval: 90, ExpireTime: now}

	if d.Interval() != 90*time.Second {
		t.Errorf("Interval() = %v, want 90s", d.Interval())
	}
	if !d.IsExpired(now) {
		t.Error("record should be expired when expire_time == now")
	}
	d.ExpireTime = now.Add(time.Second)
	if d.IsExpired(now) {
		t.Error("record should not be expired before expire_time")
	}
}
