// Package configcache loads the server's process-lifetime configuration once
// and shares it between every caller.
package configcache

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/singleflight"

	"github.com/five82/lookout/internal/nessie"
)

// Fetcher is the subset of the gateway the cache needs.
type Fetcher interface {
	FetchPing(ctx context.Context) (*nessie.Ping, error)
	FetchVersion(ctx context.Context) (*nessie.Version, error)
	FetchConfig(ctx context.Context) (*nessie.AppConfig, error)
}

// Bundle is the cached configuration. It is immutable once loaded.
type Bundle struct {
	Ping    nessie.Ping
	Version nessie.Version
	Config  nessie.AppConfig
}

const flightKey = "bundle"

// Cache coalesces concurrent loads and remembers the first success.
type Cache struct {
	fetcher    Fetcher
	minVersion *semver.Version

	group singleflight.Group

	mu     sync.RWMutex
	bundle *Bundle
}

// Option configures a Cache.
type Option func(*Cache) error

// WithMinServerVersion logs a warning when the server reports a version
// older than v. Blank v disables the check.
func WithMinServerVersion(v string) Option {
	return func(c *Cache) error {
		if strings.TrimSpace(v) == "" {
			return nil
		}
		parsed, err := semver.NewVersion(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse min server version %q: %w", v, err)
		}
		c.minVersion = parsed
		return nil
	}
}

// New returns an empty Cache backed by fetcher.
func New(fetcher Fetcher, opts ...Option) (*Cache, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("config cache requires a fetcher")
	}
	c := &Cache{fetcher: fetcher}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Cached returns the bundle without loading it.
func (c *Cache) Cached() (Bundle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.bundle == nil {
		return Bundle{}, false
	}
	return *c.bundle, true
}

// Ensure returns the cached bundle, loading it first if needed. Concurrent
// callers share one in-flight load. The load outlives the cancellation of
// whichever caller started it; a caller whose ctx ends stops waiting and gets
// ctx.Err(). Failures are not cached.
func (c *Cache) Ensure(ctx context.Context) (Bundle, error) {
	if b, ok := c.Cached(); ok {
		return b, nil
	}

	ch := c.group.DoChan(flightKey, func() (any, error) {
		if b, ok := c.Cached(); ok {
			return b, nil
		}
		return c.load(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return Bundle{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Bundle{}, res.Err
		}
		return res.Val.(Bundle), nil
	}
}

// load runs ping, version, then config in order; config consumers may depend
// on the version having been observed.
func (c *Cache) load(ctx context.Context) (Bundle, error) {
	logger := slogcontext.FromCtx(ctx).With("component", "configcache")

	ping, err := c.fetcher.FetchPing(ctx)
	if err != nil {
		return Bundle{}, fmt.Errorf("fetch ping: %w", err)
	}
	version, err := c.fetcher.FetchVersion(ctx)
	if err != nil {
		return Bundle{}, fmt.Errorf("fetch version: %w", err)
	}
	c.checkVersion(ctx, *version)

	cfg, err := c.fetcher.FetchConfig(ctx)
	if err != nil {
		return Bundle{}, fmt.Errorf("fetch config: %w", err)
	}

	b := Bundle{Ping: *ping, Version: *version, Config: *cfg}
	c.mu.Lock()
	c.bundle = &b
	c.mu.Unlock()

	logger.InfoContext(ctx, "server config loaded",
		"version", version.Version,
		"env", cfg.NessieEnv,
		"healthy", ping.Healthy())
	return b, nil
}

func (c *Cache) checkVersion(ctx context.Context, v nessie.Version) {
	if c.minVersion == nil {
		return
	}
	logger := slogcontext.FromCtx(ctx)
	got, err := v.Semver()
	if err != nil {
		logger.WarnContext(ctx, "server version unparseable", "version", v.Version, "error", err)
		return
	}
	if got.LessThan(c.minVersion) {
		logger.WarnContext(ctx, "server older than supported",
			"version", got.String(),
			"min_version", c.minVersion.String())
	}
}
