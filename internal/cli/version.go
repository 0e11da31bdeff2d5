package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

type versionInfo struct {
	Client string `json:"client"`
	Server string `json:"server,omitempty"`
	Env    string `json:"env,omitempty"`
}

func newVersionCmd(v *viper.Viper) *cobra.Command {
	var server bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !server {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), Version)
				return err
			}
			return withSession(cmd, v, func(s *session) error {
				bundle, err := s.rt.App.Bundle(s.ctx)
				if err != nil {
					return err
				}
				info := versionInfo{
					Client: Version,
					Server: bundle.Version.Version,
					Env:    bundle.Config.NessieEnv,
				}
				return s.out.print(info, table.Row{"Client", "Server", "Env"},
					[]table.Row{{info.Client, info.Server, info.Env}})
			})
		},
	}
	cmd.Flags().BoolVar(&server, "server", false, "also query the Nessie server version")
	return cmd
}
