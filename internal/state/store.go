package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/five82/lookout/internal/nessie"
)

// Snapshot represents the latest polled data available to the UI.
type Snapshot struct {
	Schedule            []nessie.ScheduledJob
	JobStatuses         []nessie.JobStatus
	HasData             bool
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive poll failures
}

// IsOffline returns true when the API has been unreachable for multiple polls.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Running returns the job status rows that have not finished.
func (s Snapshot) Running() []nessie.JobStatus {
	var out []nessie.JobStatus
	for _, row := range s.JobStatuses {
		if row.Finished == "" {
			out = append(out, row)
		}
	}
	return out
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// Update replaces the stored snapshot. When err is non-nil the previous data is
// kept but the error is recorded for visibility.
func (s *Store) Update(schedule []nessie.ScheduledJob, statuses []nessie.JobStatus, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.snapshot.LastError = err
		s.snapshot.LastUpdated = time.Now()
		s.snapshot.ConsecutiveFailures++
		return
	}

	s.snapshot.Schedule = cloneSlice(schedule)
	s.snapshot.JobStatuses = cloneSlice(statuses)
	s.snapshot.HasData = true
	s.snapshot.LastError = nil
	s.snapshot.LastUpdated = time.Now()
	s.snapshot.ConsecutiveFailures = 0
}

// Reset drops all polled data. Used on logout so one user's schedule is never
// shown to the next.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = Snapshot{}
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Schedule = cloneSlice(s.snapshot.Schedule)
	snap.JobStatuses = cloneSlice(s.snapshot.JobStatuses)
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func cloneSlice[T any](items []T) []T {
	if len(items) == 0 {
		return nil
	}
	dup := make([]T, len(items))
	copy(dup, items)
	return dup
}
