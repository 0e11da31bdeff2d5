package guard

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// Route is one entry of the route table. Path is a glob where '*' matches a
// single path segment and '**' matches anything.
type Route struct {
	Path         string
	Name         string
	RequiresAuth bool
	// Redirect makes the route an alias for another path.
	Redirect string

	matcher glob.Glob
}

// CatchAll reports whether the route is the wildcard entry that maps
// unmatched paths to the default route.
func (r Route) CatchAll() bool {
	return r.Path == "**"
}

// Route paths used by Lookout.
const (
	PathRoot     = "/"
	PathHome     = "/home"
	PathLogin    = "/login"
	PathSchedule = "/schedule"
	PathStatus   = "/status"
	PathJobs     = "/jobs"
	PathJob      = "/job/"
)

// DefaultRoutes returns Lookout's route table in match order.
func DefaultRoutes() []Route {
	return []Route{
		{Path: PathRoot, Redirect: PathHome},
		{Path: PathHome, Name: "home"},
		{Path: PathLogin, Name: "login"},
		{Path: PathSchedule, Name: "schedule", RequiresAuth: true},
		{Path: PathStatus, Name: "status", RequiresAuth: true},
		{Path: PathJobs, Name: "jobs", RequiresAuth: true},
		{Path: PathJob + "*", Name: "job", RequiresAuth: true},
		{Path: "**", Name: "not-found"},
	}
}

// Table is a compiled, ordered route table with its landing and default
// routes.
type Table struct {
	routes   []Route
	landing  string
	fallback string
}

// NewTable compiles routes. landing is where unauthenticated users are sent;
// fallback is the default route for unmatched paths and for authenticated
// users who ask for the landing route.
func NewTable(routes []Route, landing, fallback string) (*Table, error) {
	t := &Table{landing: Normalize(landing), fallback: Normalize(fallback)}
	for _, r := range routes {
		if strings.TrimSpace(r.Path) == "" {
			return nil, fmt.Errorf("route %q has an empty path", r.Name)
		}
		m, err := glob.Compile(r.Path, '/')
		if err != nil {
			return nil, fmt.Errorf("compile route %q: %w", r.Path, err)
		}
		r.matcher = m
		t.routes = append(t.routes, r)
	}

	landingRoute, ok := t.Match(t.landing)
	if !ok || landingRoute.CatchAll() {
		return nil, fmt.Errorf("landing route %q is not defined", landing)
	}
	if landingRoute.RequiresAuth {
		return nil, fmt.Errorf("landing route %q must not require authentication", landing)
	}
	fallbackRoute, ok := t.Match(t.fallback)
	if !ok || fallbackRoute.CatchAll() || fallbackRoute.Redirect != "" {
		return nil, fmt.Errorf("default route %q is not defined", fallback)
	}
	if t.landing == t.fallback {
		return nil, fmt.Errorf("landing and default route must differ")
	}
	return t, nil
}

// Landing returns the unauthenticated landing path.
func (t *Table) Landing() string { return t.landing }

// Fallback returns the default path.
func (t *Table) Fallback() string { return t.fallback }

// Routes returns the table entries in match order.
func (t *Table) Routes() []Route {
	return append([]Route(nil), t.routes...)
}

// Match returns the first route matching p.
func (t *Table) Match(p string) (Route, bool) {
	p = Normalize(p)
	for _, r := range t.routes {
		if r.matcher.Match(p) {
			return r, true
		}
	}
	return Route{}, false
}

// Normalize strips query and fragment, forces a leading slash and cleans
// the path.
func Normalize(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
