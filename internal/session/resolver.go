// Package session resolves and holds the identity of the current user along
// with the job list scoped to that identity.
package session

import (
	"context"
	"sync"

	slogcontext "github.com/veqryn/slog-context"

	"github.com/five82/lookout/internal/nessie"
)

// Identity is the resolved user. A nil *Identity means unauthenticated.
type Identity = nessie.Profile

// ProfileFetcher is the subset of the gateway the resolver needs.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context) (*nessie.Profile, error)
	FetchRunnableJobs(ctx context.Context) ([]nessie.RunnableJob, error)
}

// State is a consistent view of the session. RunnableJobs always belongs to
// Identity: both are read under the same lock.
type State struct {
	Identity     *Identity
	RunnableJobs []nessie.RunnableJob
	// JobsLoaded is false until the job list for Generation has arrived.
	JobsLoaded bool
	// Generation increases every time an identity is registered or cleared.
	Generation uint64
}

// Authenticated reports whether an identity is registered.
func (s State) Authenticated() bool { return s.Identity != nil }

// Resolver owns the session. It is the only writer of identity and jobs.
type Resolver struct {
	fetcher ProfileFetcher

	mu         sync.RWMutex
	identity   *Identity
	jobs       []nessie.RunnableJob
	jobsLoaded bool
	generation uint64

	refreshes sync.WaitGroup
	onChange  func(State)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithOnChange registers fn to observe every state change. It runs outside
// the resolver's lock.
func WithOnChange(fn func(State)) Option {
	return func(r *Resolver) { r.onChange = fn }
}

// NewResolver returns a Resolver with no identity.
func NewResolver(fetcher ProfileFetcher, opts ...Option) *Resolver {
	r := &Resolver{fetcher: fetcher}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Current returns the registered identity or nil.
func (r *Resolver) Current() *Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.identity == nil {
		return nil
	}
	id := *r.identity
	return &id
}

// Snapshot returns identity and jobs together.
func (r *Resolver) Snapshot() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Resolver) snapshotLocked() State {
	st := State{Generation: r.generation, JobsLoaded: r.jobsLoaded}
	if r.identity != nil {
		id := *r.identity
		st.Identity = &id
	}
	if len(r.jobs) > 0 {
		st.RunnableJobs = append([]nessie.RunnableJob(nil), r.jobs...)
	}
	return st
}

// Resolve asks the server who the session belongs to. Both an anonymous
// answer and a failed request yield nil and clear any registered identity;
// callers cannot tell the two apart. A non-nil identity is registered and a
// refresh of its runnable jobs starts in the background; Resolve does not
// wait for it.
func (r *Resolver) Resolve(ctx context.Context) *Identity {
	logger := slogcontext.FromCtx(ctx).With("component", "session")

	profile, err := r.fetcher.FetchProfile(ctx)
	if err != nil {
		logger.WarnContext(ctx, "profile lookup failed", "error", err)
		profile = nil
	}
	if profile == nil {
		r.clear()
		logger.DebugContext(ctx, "no authenticated user")
		return nil
	}

	gen := r.register(profile)
	logger.InfoContext(ctx, "session resolved", "uid", profile.UID, "generation", gen)

	r.refreshes.Add(1)
	go func() {
		defer r.refreshes.Done()
		r.refreshJobs(context.WithoutCancel(ctx), gen)
	}()

	id := *profile
	return &id
}

// RefreshJobs reloads the runnable job list for the current identity in the
// background. It is a no-op while unauthenticated.
func (r *Resolver) RefreshJobs(ctx context.Context) {
	r.mu.RLock()
	gen, ok := r.generation, r.identity != nil
	r.mu.RUnlock()
	if !ok {
		return
	}
	r.refreshes.Add(1)
	go func() {
		defer r.refreshes.Done()
		r.refreshJobs(context.WithoutCancel(ctx), gen)
	}()
}

// Logout clears identity and jobs in one step.
func (r *Resolver) Logout() {
	r.clear()
}

// Wait blocks until background job refreshes started so far have finished.
func (r *Resolver) Wait() {
	r.refreshes.Wait()
}

func (r *Resolver) register(p *nessie.Profile) uint64 {
	id := *p
	r.mu.Lock()
	r.identity = &id
	r.jobs = nil
	r.jobsLoaded = false
	r.generation++
	gen := r.generation
	st := r.snapshotLocked()
	r.mu.Unlock()

	r.changed(st)
	return gen
}

func (r *Resolver) clear() {
	r.mu.Lock()
	if r.identity == nil && len(r.jobs) == 0 {
		r.mu.Unlock()
		return
	}
	r.identity = nil
	r.jobs = nil
	r.jobsLoaded = false
	r.generation++
	st := r.snapshotLocked()
	r.mu.Unlock()

	r.changed(st)
}

// refreshJobs stores the fetched list only if the session generation it was
// started for is still current.
func (r *Resolver) refreshJobs(ctx context.Context, gen uint64) {
	logger := slogcontext.FromCtx(ctx).With("component", "session", "generation", gen)

	jobs, err := r.fetcher.FetchRunnableJobs(ctx)
	if err != nil {
		logger.WarnContext(ctx, "runnable jobs refresh failed", "error", err)
		return
	}

	r.mu.Lock()
	if r.generation != gen || r.identity == nil {
		r.mu.Unlock()
		logger.DebugContext(ctx, "discarding runnable jobs for stale session")
		return
	}
	r.jobs = append([]nessie.RunnableJob(nil), jobs...)
	r.jobsLoaded = true
	st := r.snapshotLocked()
	r.mu.Unlock()

	logger.DebugContext(ctx, "runnable jobs cached", "count", len(jobs))
	r.changed(st)
}

func (r *Resolver) changed(st State) {
	if r.onChange != nil {
		r.onChange(st)
	}
}
