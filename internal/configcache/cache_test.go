package configcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/lookout/internal/nessie"
)

// stubFetcher records call order and can block until released.
type stubFetcher struct {
	mu      sync.Mutex
	calls   []string
	pings   atomic.Int32
	release chan struct{}
	failing atomic.Bool
}

func (s *stubFetcher) record(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
}

func (s *stubFetcher) order() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubFetcher) FetchPing(ctx context.Context) (*nessie.Ping, error) {
	s.pings.Add(1)
	s.record("ping")
	if s.release != nil {
		<-s.release
	}
	if s.failing.Load() {
		return nil, errors.New("connection refused")
	}
	return &nessie.Ping{App: true, RDS: true, Redshift: true}, nil
}

func (s *stubFetcher) FetchVersion(context.Context) (*nessie.Version, error) {
	s.record("version")
	return &nessie.Version{Version: "4.2.0"}, nil
}

func (s *stubFetcher) FetchConfig(context.Context) (*nessie.AppConfig, error) {
	s.record("config")
	return &nessie.AppConfig{NessieEnv: "test", CurrentEnrollmentTermID: 2268}, nil
}

func TestEnsure_FetchesOnceAndReturnsSameValue(t *testing.T) {
	f := &stubFetcher{}
	c, err := New(f)
	require.NoError(t, err)

	first, err := c.Ensure(context.Background())
	require.NoError(t, err)
	second, err := c.Ensure(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), f.pings.Load())
	assert.Equal(t, []string{"ping", "version", "config"}, f.order())
}

func TestEnsure_CoalescesConcurrentCallers(t *testing.T) {
	f := &stubFetcher{release: make(chan struct{})}
	c, err := New(f)
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Bundle, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Ensure(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return f.pings.Load() == 1 }, time.Second, 5*time.Millisecond)
	// Give the other callers time to join the in-flight load.
	time.Sleep(20 * time.Millisecond)
	close(f.release)
	wg.Wait()

	assert.Equal(t, int32(1), f.pings.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
}

func TestEnsure_FailureIsNotCached(t *testing.T) {
	f := &stubFetcher{}
	f.failing.Store(true)
	c, err := New(f)
	require.NoError(t, err)

	_, err = c.Ensure(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch ping")
	_, cached := c.Cached()
	assert.False(t, cached)

	f.failing.Store(false)
	b, err := c.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", b.Config.NessieEnv)
	assert.Equal(t, int32(2), f.pings.Load())
}

func TestEnsure_CallerCancellationDoesNotAbortLoad(t *testing.T) {
	f := &stubFetcher{release: make(chan struct{})}
	c, err := New(f)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Ensure(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return f.pings.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(f.release)
	require.Eventually(t, func() bool {
		_, ok := c.Cached()
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	_, err = New(&stubFetcher{}, WithMinServerVersion("not-a-version"))
	require.Error(t, err)

	c, err := New(&stubFetcher{}, WithMinServerVersion("5.0.0"))
	require.NoError(t, err)
	_, err = c.Ensure(context.Background())
	require.NoError(t, err, "an old server is a warning, not a failure")
}
