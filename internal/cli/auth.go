package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/five82/lookout/internal/guard"
)

var (
	errNotAuthorized = errors.New("not authorized")
	errNotSignedIn   = errors.New("not signed in")
)

// authorize runs the route guard for route and fails unless the navigation
// ends on that route.
func (s *session) authorize(route string) (guard.Decision, error) {
	final, hops, err := s.rt.Navigator.Navigate(s.ctx, route)
	if err != nil {
		return final, err
	}
	if len(hops) > 1 || !final.Allowed() {
		return final, fmt.Errorf("%w: %s redirected to %s (set session_cookie or --session-cookie)",
			errNotAuthorized, guard.Normalize(route), final.Target)
	}
	return final, nil
}

type navHop struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Route  string `json:"route,omitempty"`
	State  string `json:"state"`
	Reason string `json:"reason"`
	Target string `json:"target"`
	Next   string `json:"next,omitempty"`
}

func newNavCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "nav <path>",
		Short: "Show how the route guard resolves a path",
		Example: `  lookout nav /schedule
  lookout nav /job/refresh_sis_terms -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, v, func(s *session) error {
				_, hops, navErr := s.rt.Navigator.Navigate(s.ctx, args[0])
				out := make([]navHop, 0, len(hops))
				rows := make([]table.Row, 0, len(hops))
				for _, d := range hops {
					hop := navHop{
						ID:     d.ID,
						Path:   d.Intent.Target,
						State:  d.State.String(),
						Reason: string(d.Reason),
						Target: d.Target,
						Next:   d.Next,
					}
					if d.Intent.Matched {
						hop.Route = d.Intent.Route.Name
					}
					out = append(out, hop)
					rows = append(rows, table.Row{hop.Path, hop.Route, hop.State, hop.Reason, hop.Target, hop.Next})
				}
				if err := s.out.print(out, table.Row{"Path", "Route", "State", "Reason", "Target", "Next"}, rows); err != nil {
					return err
				}
				return navErr
			})
		},
	}
}

type whoami struct {
	UID   string `json:"uid"`
	Name  string `json:"name,omitempty"`
	Title string `json:"title,omitempty"`
}

func newWhoamiCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the identity behind the session cookie",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, v, func(s *session) error {
				d, _, err := s.rt.Navigator.Navigate(s.ctx, guard.PathHome)
				if err != nil {
					return err
				}
				id := d.Identity
				if id == nil {
					return errNotSignedIn
				}
				return s.out.print(whoami{UID: id.UID, Name: id.Name, Title: id.Title},
					table.Row{"UID", "Name", "Title"},
					[]table.Row{{id.UID, id.Name, id.Title}})
			})
		},
	}
}

func newLoginURLCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "login-url",
		Short: "Print the CAS login URL",
		Long: "Prints the CAS login URL. After logging in with a browser, copy the session\n" +
			"cookie into session_cookie in the config file or pass --session-cookie.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, v, func(s *session) error {
				loginURL, err := s.rt.Client.FetchCASLoginURL(s.ctx)
				if err != nil {
					return err
				}
				return s.out.message("casLoginURL", loginURL)
			})
		},
	}
}

func newLogoutCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the server session and print the CAS logout URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, v, func(s *session) error {
				logoutURL, err := s.rt.Logout(s.ctx)
				if err != nil {
					return err
				}
				return s.out.message("casLogoutURL", strings.TrimSpace(logoutURL))
			})
		},
	}
}
