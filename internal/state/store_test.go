package state

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/five82/lookout/internal/nessie"
)

func TestStore_UpdateAndSnapshotClone(t *testing.T) {
	var s Store

	schedule := []nessie.ScheduledJob{{ID: "refresh_lrs"}, {ID: "sync_canvas"}}
	statuses := []nessie.JobStatus{{ID: "RefreshLrs_1", Status: "started"}}

	before := time.Now()
	s.Update(schedule, statuses, nil)

	snap := s.Snapshot()
	if !snap.HasData {
		t.Fatalf("HasData = false, want true")
	}
	if len(snap.Schedule) != 2 || snap.Schedule[0].ID != "refresh_lrs" {
		t.Fatalf("snapshot schedule = %#v, want 2 jobs", snap.Schedule)
	}
	if len(snap.JobStatuses) != 1 {
		t.Fatalf("snapshot statuses = %#v, want 1 row", snap.JobStatuses)
	}
	if snap.LastUpdated.Before(before) {
		t.Fatalf("LastUpdated = %v, want >= %v", snap.LastUpdated, before)
	}
	if snap.LastError != nil {
		t.Fatalf("LastError = %v, want nil", snap.LastError)
	}

	// Returned snapshot should be independent of the stored one.
	snap.Schedule[0].ID = "mutated"
	snap2 := s.Snapshot()
	if snap2.Schedule[0].ID != "refresh_lrs" {
		t.Fatalf("Snapshot should clone schedule; got id %q", snap2.Schedule[0].ID)
	}
}

func TestStore_UpdateErrorKeepsPreviousData(t *testing.T) {
	var s Store

	s.Update([]nessie.ScheduledJob{{ID: "a"}}, nil, nil)
	prev := s.Snapshot()

	before := time.Now()
	origErr := errors.New("boom")
	s.Update(nil, nil, origErr)

	snap := s.Snapshot()
	if len(snap.Schedule) != 1 || snap.Schedule[0].ID != prev.Schedule[0].ID {
		t.Fatalf("schedule changed on error: got %#v want %#v", snap.Schedule, prev.Schedule)
	}
	if snap.LastUpdated.Before(before) {
		t.Fatalf("LastUpdated = %v, want >= %v", snap.LastUpdated, before)
	}
	if snap.LastError == nil || snap.LastError.Error() != "boom" {
		t.Fatalf("LastError = %v, want boom", snap.LastError)
	}
	if reflect.ValueOf(snap.LastError).Pointer() == reflect.ValueOf(origErr).Pointer() {
		t.Fatalf("Snapshot should clone error instance")
	}
}

func TestStore_ConsecutiveFailures(t *testing.T) {
	var s Store

	if s.Snapshot().IsOffline() {
		t.Fatal("IsOffline() = true, want false with 0 failures")
	}

	s.Update(nil, nil, errors.New("fail 1"))
	if snap := s.Snapshot(); snap.ConsecutiveFailures != 1 || snap.IsOffline() {
		t.Fatalf("after one failure: failures=%d offline=%v", snap.ConsecutiveFailures, snap.IsOffline())
	}

	s.Update(nil, nil, errors.New("fail 2"))
	if snap := s.Snapshot(); snap.ConsecutiveFailures != 2 || !snap.IsOffline() {
		t.Fatalf("after two failures: failures=%d offline=%v", snap.ConsecutiveFailures, snap.IsOffline())
	}

	// Success resets counter
	s.Update(nil, nil, nil)
	if snap := s.Snapshot(); snap.ConsecutiveFailures != 0 || snap.IsOffline() {
		t.Fatalf("after success: failures=%d offline=%v", snap.ConsecutiveFailures, snap.IsOffline())
	}
}

func TestStore_ResetDropsData(t *testing.T) {
	var s Store
	s.Update([]nessie.ScheduledJob{{ID: "a"}}, nil, nil)
	s.Update(nil, nil, errors.New("fail"))

	s.Reset()

	snap := s.Snapshot()
	if snap.HasData || len(snap.Schedule) != 0 || snap.LastError != nil || snap.ConsecutiveFailures != 0 {
		t.Fatalf("snapshot after Reset = %#v, want zero value", snap)
	}
}

func TestSnapshot_Running(t *testing.T) {
	snap := Snapshot{JobStatuses: []nessie.JobStatus{
		{ID: "a", Started: "2026-10-15T08:00:00Z"},
		{ID: "b", Started: "2026-10-15T07:00:00Z", Finished: "2026-10-15T07:05:00Z"},
	}}
	running := snap.Running()
	if len(running) != 1 || running[0].ID != "a" {
		t.Fatalf("Running = %#v, want only a", running)
	}
}
