package models

import (
	"testing"
	"time"
)

func TestItemStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to ItemStatus
		want     bool
	}{
		{StatusPending, StatusAcquiring, true},
		{StatusPending, StatusUploading, true},
		{StatusPending, StatusDone, false},
		{StatusPending, StatusStaged, false},
		{StatusAcquiring, StatusAcquiring, true},
		{StatusAcquiring, StatusStaged, true},
		{StatusAcquiring, StatusUploading, false},
		{StatusStaged, StatusUploading, true},
		{StatusStaged, StatusPending, false},
		{StatusUploading, StatusDone, true},
		{StatusUploading, StatusUploading, true},
		{StatusUploading, StatusStaged, true},
		{StatusFailed, StatusPending, true},
		{StatusFailed, StatusUploading, false},
		{StatusDone, StatusPending, false},
		{StatusDone, StatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseItemStatus(t *testing.T) {
	for _, s := range ItemStatuses() {
		got, err := ParseItemStatus(string(s))
		if err != nil || got != s {
			t.Errorf("ParseItemStatus(%q) = %q, %v", s, got, err)
		}
	}

	if _, err := ParseItemStatus("archived"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestItemValidate(t *testing.T) {
	tests := []struct {
		name    string
		item    Item
		wantErr bool
	}{
		{name: "valid", item: Item{ItemID: "a", SourceRef: "https://youtu.be/a", Status: StatusPending}},
		{name: "missing id", item: Item{SourceRef: "x"}, wantErr: true},
		{name: "missing source", item: Item{ItemID: "a"}, wantErr: true},
		{name: "bad status", item: Item{ItemID: "a", SourceRef: "x", Status: "lost"}, wantErr: true},
		{name: "uploaded not downloaded", item: Item{ItemID: "a", SourceRef: "x", Uploaded: true, DestinationRef: "9"}, wantErr: true},
		{name: "uploaded without ref", item: Item{ItemID: "a", SourceRef: "x", Uploaded: true, Downloaded: true}, wantErr: true},
		{name: "done", item: Item{ItemID: "a", SourceRef: "x", Uploaded: true, Downloaded: true, DestinationRef: "9", Status: StatusDone}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestItemPending(t *testing.T) {
	if !(&Item{Status: StatusStaged}).Pending() {
		t.Error("staged item should be pending")
	}
	if (&Item{Status: StatusFailed}).Pending() {
		t.Error("failed item should not be pending")
	}
	if (&Item{Status: StatusDone, Uploaded: true}).Pending() {
		t.Error("uploaded item should not be pending")
	}
}

func TestRun(t *testing.T) {
	t.Run("Validate", func(t *testing.T) {
		r := &Run{ID: "r1", Status: RunRunning}
		if err := r.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		r.Status = "paused"
		if err := r.Validate(); err == nil {
			t.Error("expected error for unknown run status")
		}
	})

	t.Run("Duration", func(t *testing.T) {
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		end := start.Add(90 * time.Second)
		r := &Run{StartedAt: start, CompletedAt: &end}
		if r.Duration() != 90*time.Second {
			t.Errorf("expected 90s, got %s", r.Duration())
		}
	})
}
