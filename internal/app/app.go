package app

import (
	"context"
	"fmt"
	"log/slog"

	slogcontext "github.com/veqryn/slog-context"

	"github.com/five82/lookout/internal/appctx"
	"github.com/five82/lookout/internal/config"
	"github.com/five82/lookout/internal/guard"
	"github.com/five82/lookout/internal/nessie"
	"github.com/five82/lookout/internal/prefs"
	"github.com/five82/lookout/internal/session"
	"github.com/five82/lookout/internal/state"
	"github.com/five82/lookout/internal/ui"
)

// Runtime is everything a Lookout front end needs, wired once.
type Runtime struct {
	Config    config.Config
	Client    *nessie.Client
	App       *appctx.AppContext
	Routes    *guard.Table
	Navigator *guard.Navigator
	Store     *state.Store
}

// Build wires the client, app context, route guard and store from cfg.
func Build(cfg config.Config, clientOpts ...nessie.Option) (*Runtime, error) {
	opts := []nessie.Option{nessie.WithTimeout(cfg.RequestTimeout)}
	if cfg.SessionCookie != "" {
		opts = append(opts, nessie.WithSessionCookie(cfg.SessionCookie))
	}
	client, err := nessie.NewClient(cfg.BaseURL, append(opts, clientOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("init nessie client: %w", err)
	}

	store := &state.Store{}
	ac, err := appctx.New(client, appctx.Options{
		MinServerVersion: cfg.MinServerVersion,
		OnSessionChanged: func(st session.State) {
			if !st.Authenticated() {
				store.Reset()
			}
		},
	})
	if err != nil {
		return nil, err
	}

	routes, err := guard.NewTable(guard.DefaultRoutes(), cfg.LandingRoute, cfg.DefaultRoute)
	if err != nil {
		return nil, fmt.Errorf("build route table: %w", err)
	}

	return &Runtime{
		Config:    cfg,
		Client:    client,
		App:       ac,
		Routes:    routes,
		Navigator: guard.NewNavigator(guard.New(ac, routes)),
		Store:     store,
	}, nil
}

// Authenticated reports whether a session is registered.
func (r *Runtime) Authenticated() bool {
	return r.App.Identity() != nil
}

// RefreshNow polls once outside the background cadence.
func (r *Runtime) RefreshNow(ctx context.Context) error {
	if !r.Authenticated() {
		return errNotAuthenticated
	}
	return refresh(ctx, r.Store, r.Client)
}

// Logout asks the server for the CAS logout URL and ends the local session.
// The local session and the session cookie are dropped even when the server
// call fails; that failure is queued after the reset so it stays visible.
func (r *Runtime) Logout(ctx context.Context) (string, error) {
	logoutURL, err := r.Client.FetchCASLogoutURL(ctx)
	r.Client.ForgetSession()
	r.App.Reset()
	if err != nil {
		r.App.Errors().ReportError(err)
		return "", fmt.Errorf("fetch logout url: %w", err)
	}
	slogcontext.FromCtx(ctx).InfoContext(ctx, "logged out")
	return logoutURL, nil
}

// Close waits for background session work.
func (r *Runtime) Close() {
	r.App.Close()
}

// Options configure the Lookout TUI.
type Options struct {
	Config    config.Config
	PrefsPath string // empty uses default ~/.config/lookout/prefs.toml
	Route     string // first route; empty uses the saved route, then "/"
	Logger    *slog.Logger
}

// Run boots the Lookout TUI until the context is cancelled or the user quits.
func Run(ctx context.Context, opts Options) error {
	if opts.Logger != nil {
		ctx = slogcontext.NewCtx(ctx, opts.Logger)
	}

	rt, err := Build(opts.Config)
	if err != nil {
		return err
	}
	defer rt.Close()

	userPrefs := prefs.Load(opts.PrefsPath)
	first := opts.Route
	if first == "" {
		first = userPrefs.LastRoute
	}
	if first == "" {
		first = guard.PathRoot
	}

	StartPoller(ctx, rt.Store, rt.Client, rt.Config.PollInterval(), rt.Authenticated)

	return ui.Run(ui.Options{
		Context:    ctx,
		Navigator:  rt.Navigator,
		App:        rt.App,
		Client:     rt.Client,
		Store:      rt.Store,
		BaseURL:    rt.Client.BaseURL(),
		Refresh:    rt.RefreshNow,
		Logout:     rt.Logout,
		FirstRoute: first,
		PollTick:   rt.Config.PollInterval(),
		ThemeName:  userPrefs.Theme,
		PrefsPath:  opts.PrefsPath,
		LogPath:    rt.Config.LogFile,
	})
}
