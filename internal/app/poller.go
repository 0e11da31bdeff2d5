package app

import (
	"context"
	"errors"
	"time"

	slogcontext "github.com/veqryn/slog-context"

	"github.com/five82/lookout/internal/nessie"
	"github.com/five82/lookout/internal/state"
)

const (
	defaultPollInterval = 10 * time.Second
	maxBackoff          = 30 * time.Second
)

// Fetcher is what the poller reads from the Nessie API.
type Fetcher interface {
	FetchSchedule(ctx context.Context) ([]nessie.ScheduledJob, error)
	FetchJobStatus(ctx context.Context, date time.Time) ([]nessie.JobStatus, error)
}

// StartPoller launches a background goroutine that refreshes the store at
// interval, backing off while polls fail. authenticated gates every poll:
// protected endpoints are not called without a session. It returns
// immediately.
func StartPoller(ctx context.Context, store *state.Store, client Fetcher, interval time.Duration, authenticated func() bool) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	go func() {
		for {
			if authenticated == nil || authenticated() {
				refresh(ctx, store, client)
			}
			wait := calculateBackoff(store.Snapshot().ConsecutiveFailures, interval)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}()
}

// calculateBackoff doubles the interval for each consecutive failure, capped
// at maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	wait := base
	for i := 0; i < failures; i++ {
		wait *= 2
		if wait >= maxBackoff {
			return maxBackoff
		}
	}
	return wait
}

func refresh(ctx context.Context, store *state.Store, client Fetcher) error {
	logger := slogcontext.FromCtx(ctx)

	schedule, err := client.FetchSchedule(ctx)
	if err != nil {
		store.Update(nil, nil, err)
		logger.WarnContext(ctx, "schedule poll failed", "error", err)
		return err
	}
	statuses, err := client.FetchJobStatus(ctx, time.Time{})
	if err != nil {
		store.Update(nil, nil, err)
		logger.WarnContext(ctx, "job status poll failed", "error", err)
		return err
	}
	store.Update(schedule, statuses, nil)
	return nil
}

// errNotAuthenticated is reported by RefreshNow when there is no session.
var errNotAuthenticated = errors.New("not authenticated")
