// Package appctx holds the shared application state: the config cache, the
// session resolver and the error queue. One AppContext is built at startup
// and passed to everything that needs it.
package appctx

import (
	"context"
	"fmt"

	"github.com/five82/lookout/internal/configcache"
	"github.com/five82/lookout/internal/errqueue"
	"github.com/five82/lookout/internal/nessie"
	"github.com/five82/lookout/internal/session"
)

// Gateway is what AppContext needs from the remote API.
type Gateway interface {
	configcache.Fetcher
	session.ProfileFetcher
	OnFailure(fn func(error))
}

// Options configure an AppContext.
type Options struct {
	MinServerVersion string
	// OnErrorsChanged runs after every error queue mutation.
	OnErrorsChanged func()
	// OnSessionChanged runs after every session change.
	OnSessionChanged func(session.State)
}

// AppContext is the explicit replacement for a process-wide store. Fields
// are owned by their component; read them only through the accessors.
type AppContext struct {
	config  *configcache.Cache
	session *session.Resolver
	errors  *errqueue.Queue
}

// New builds the AppContext and routes every gateway failure into the error
// queue.
func New(gw Gateway, opts Options) (*AppContext, error) {
	if gw == nil {
		return nil, fmt.Errorf("app context requires a gateway")
	}
	cache, err := configcache.New(gw, configcache.WithMinServerVersion(opts.MinServerVersion))
	if err != nil {
		return nil, fmt.Errorf("init config cache: %w", err)
	}

	var sessionOpts []session.Option
	if opts.OnSessionChanged != nil {
		sessionOpts = append(sessionOpts, session.WithOnChange(opts.OnSessionChanged))
	}
	var queueOpts []errqueue.Option
	if opts.OnErrorsChanged != nil {
		queueOpts = append(queueOpts, errqueue.WithNotify(opts.OnErrorsChanged))
	}

	ac := &AppContext{
		config:  cache,
		session: session.NewResolver(gw, sessionOpts...),
		errors:  errqueue.New(queueOpts...),
	}
	gw.OnFailure(ac.errors.ReportError)
	return ac, nil
}

// Config returns the config cache.
func (a *AppContext) Config() *configcache.Cache { return a.config }

// Session returns the session resolver.
func (a *AppContext) Session() *session.Resolver { return a.session }

// Errors returns the error queue.
func (a *AppContext) Errors() *errqueue.Queue { return a.errors }

// Bundle loads (once) and returns the server configuration.
func (a *AppContext) Bundle(ctx context.Context) (configcache.Bundle, error) {
	return a.config.Ensure(ctx)
}

// Identity returns the registered identity or nil.
func (a *AppContext) Identity() *nessie.Profile {
	return a.session.Current()
}

// Reset is the logout path: identity and jobs are cleared together and
// stale errors are dropped. Config stays cached; it does not depend on who is
// logged in.
func (a *AppContext) Reset() {
	a.session.Logout()
	a.errors.Clear()
}

// Close waits for background session work to finish.
func (a *AppContext) Close() {
	a.session.Wait()
}
