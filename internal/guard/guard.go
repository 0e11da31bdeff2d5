package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/five82/lookout/internal/appctx"
	"github.com/five82/lookout/internal/configcache"
	"github.com/five82/lookout/internal/nessie"
)

// State is a step of a single navigation attempt.
type State int

const (
	StateIdle State = iota
	StateResolvingConfig
	StateResolvingSession
	StateDeciding
	StateAllowed
	StateRedirected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolvingConfig:
		return "resolving-config"
	case StateResolvingSession:
		return "resolving-session"
	case StateDeciding:
		return "deciding"
	case StateAllowed:
		return "allowed"
	case StateRedirected:
		return "redirected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s ends a navigation attempt.
func (s State) Terminal() bool {
	return s == StateAllowed || s == StateRedirected
}

// Reason explains a decision.
type Reason string

const (
	ReasonAllowed              Reason = "allowed"
	ReasonAuthRequired         Reason = "auth-required"
	ReasonAlreadyAuthenticated Reason = "already-authenticated"
	ReasonUnmatched            Reason = "unmatched"
	ReasonAlias                Reason = "alias"
)

// Intent is the navigation attempt as matched against the route table.
type Intent struct {
	Target  string
	Matched bool
	Route   Route
}

// Decision is the terminal result of one navigation attempt. Target is where
// the user ends up: the requested path when allowed, the redirect destination
// otherwise. Next carries the originally requested path when the user was
// sent to the landing route to log in. ConfigErr records a failed config load;
// the attempt still completes.
type Decision struct {
	ID        string
	Intent    Intent
	State     State
	Reason    Reason
	Target    string
	Next      string
	Identity  *nessie.Profile
	ConfigErr error
	Trace     []State
}

// Allowed reports whether navigation may proceed to the requested path.
func (d Decision) Allowed() bool { return d.State == StateAllowed }

// ConfigLoader loads the shared server configuration.
type ConfigLoader interface {
	Ensure(ctx context.Context) (configcache.Bundle, error)
}

// SessionResolver provides and resolves the current identity.
type SessionResolver interface {
	Current() *nessie.Profile
	Resolve(ctx context.Context) *nessie.Profile
}

// ErrorClearer empties the error queue at the start of a navigation.
type ErrorClearer interface {
	Clear()
}

// Deps are the collaborators of a Guard.
type Deps struct {
	Config  ConfigLoader
	Session SessionResolver
	Errors  ErrorClearer
}

// Guard decides every navigation attempt. It holds no per-attempt state, so
// overlapping attempts are independent.
type Guard struct {
	deps     Deps
	table    *Table
	observer func(id string, s State)
}

// Option configures a Guard.
type Option func(*Guard)

// WithObserver registers fn to see every state transition.
func WithObserver(fn func(id string, s State)) Option {
	return func(g *Guard) { g.observer = fn }
}

// New returns a Guard over the components of app.
func New(app *appctx.AppContext, table *Table, opts ...Option) *Guard {
	return NewWithDeps(Deps{
		Config:  app.Config(),
		Session: sessionAdapter{app},
		Errors:  app.Errors(),
	}, table, opts...)
}

// NewWithDeps returns a Guard over explicit collaborators.
func NewWithDeps(deps Deps, table *Table, opts ...Option) *Guard {
	g := &Guard{deps: deps, table: table}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Table returns the route table.
func (g *Guard) Table() *Table { return g.table }

type sessionAdapter struct{ app *appctx.AppContext }

func (s sessionAdapter) Current() *nessie.Profile { return s.app.Session().Current() }

func (s sessionAdapter) Resolve(ctx context.Context) *nessie.Profile {
	return s.app.Session().Resolve(ctx)
}

// attempt is one run of the state machine.
type attempt struct {
	g     *Guard
	id    string
	state State
	trace []State
}

func (a *attempt) enter(ctx context.Context, s State) {
	a.state = s
	a.trace = append(a.trace, s)
	slogcontext.FromCtx(ctx).DebugContext(ctx, "navigation state", "state", s.String())
	if a.g.observer != nil {
		a.g.observer(a.id, s)
	}
}

// Evaluate runs one navigation attempt for target to a terminal state.
func (g *Guard) Evaluate(ctx context.Context, target string) Decision {
	a := &attempt{g: g, id: uuid.NewString()}
	target = Normalize(target)
	ctx = slogcontext.With(ctx, "nav", a.id, "target", target)
	logger := slogcontext.FromCtx(ctx)

	a.enter(ctx, StateIdle)

	a.enter(ctx, StateResolvingConfig)
	if g.deps.Errors != nil {
		g.deps.Errors.Clear()
	}
	var configErr error
	if g.deps.Config != nil {
		if _, err := g.deps.Config.Ensure(ctx); err != nil {
			configErr = err
			logger.WarnContext(ctx, "config load failed", "error", err)
		}
	}

	a.enter(ctx, StateResolvingSession)
	identity := g.resolveSession(ctx)

	a.enter(ctx, StateDeciding)
	d := g.decide(target, identity)
	d.ID = a.id
	d.ConfigErr = configErr

	a.enter(ctx, d.State)
	d.Trace = a.trace

	logger.InfoContext(ctx, "navigation decided",
		"outcome", d.State.String(),
		"reason", string(d.Reason),
		"destination", d.Target,
		"authenticated", identity != nil)
	return d
}

// resolveSession returns the registered identity or resolves one. A resolver
// that panics is treated as resolving nil so the attempt still reaches a
// decision.
func (g *Guard) resolveSession(ctx context.Context) (identity *nessie.Profile) {
	if g.deps.Session == nil {
		return nil
	}
	if current := g.deps.Session.Current(); current != nil {
		return current
	}
	defer func() {
		if r := recover(); r != nil {
			slogcontext.FromCtx(ctx).ErrorContext(ctx, "session resolution panicked", "panic", r)
			identity = nil
		}
	}()
	return g.deps.Session.Resolve(ctx)
}

func (g *Guard) decide(target string, identity *nessie.Profile) Decision {
	route, matched := g.table.Match(target)
	d := Decision{
		Intent:   Intent{Target: target, Matched: matched && !route.CatchAll(), Route: route},
		Identity: identity,
	}

	switch {
	case !d.Intent.Matched:
		return redirect(d, g.table.Fallback(), ReasonUnmatched)
	case route.Redirect != "":
		return redirect(d, Normalize(route.Redirect), ReasonAlias)
	case route.RequiresAuth && identity == nil:
		d.Next = target
		return redirect(d, g.table.Landing(), ReasonAuthRequired)
	case target == g.table.Landing() && identity != nil:
		return redirect(d, g.table.Fallback(), ReasonAlreadyAuthenticated)
	default:
		d.State = StateAllowed
		d.Reason = ReasonAllowed
		d.Target = target
		return d
	}
}

func redirect(d Decision, to string, reason Reason) Decision {
	d.State = StateRedirected
	d.Reason = reason
	d.Target = to
	return d
}

// ErrRedirectLoop is returned when redirects do not settle.
var ErrRedirectLoop = errors.New("navigation redirect loop")

const defaultMaxHops = 5

// Navigator follows redirects until a navigation is allowed. Each hop is a
// fresh guard evaluation.
type Navigator struct {
	guard   *Guard
	maxHops int
}

// NewNavigator returns a Navigator over g.
func NewNavigator(g *Guard) *Navigator {
	return &Navigator{guard: g, maxHops: defaultMaxHops}
}

// Guard returns the underlying guard.
func (n *Navigator) Guard() *Guard { return n.guard }

// Navigate evaluates target and any redirects it produces. The returned
// decision is the final, allowed one; hops lists every decision in order.
func (n *Navigator) Navigate(ctx context.Context, target string) (Decision, []Decision, error) {
	var hops []Decision
	next := ""
	current := target
	for i := 0; i <= n.maxHops; i++ {
		d := n.guard.Evaluate(ctx, current)
		if d.Next == "" {
			d.Next = next
		}
		hops = append(hops, d)
		if d.Allowed() {
			return d, hops, nil
		}
		if d.Reason == ReasonAuthRequired {
			next = d.Next
		}
		if err := ctx.Err(); err != nil {
			return d, hops, err
		}
		current = d.Target
	}
	return hops[len(hops)-1], hops, fmt.Errorf("%w: %s", ErrRedirectLoop, target)
}
