package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/five82/lookout/internal/logtail"
	"github.com/five82/lookout/internal/logging"
)

type logRow struct {
	Time   string `json:"time,omitempty"`
	Level  string `json:"level,omitempty"`
	Msg    string `json:"msg,omitempty"`
	Nav    string `json:"nav,omitempty"`
	Target string `json:"target,omitempty"`
	Raw    string `json:"raw"`
}

func newLogsCmd(v *viper.Viper) *cobra.Command {
	var (
		lines int
		nav   string
		level string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the end of the terminal UI log",
		Example: `  lookout logs -n 50
  lookout logs --nav 3f1c9a2e-4b7d-4e0a-9a51-2c6f0e8d1b44`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := newPrinter(cmd.OutOrStdout(), v.GetString(flagOutput))
			if err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			filter := logtail.Filter{Nav: nav}
			if level != "" {
				lvl, err := logging.ParseLevel(level)
				if err != nil {
					return err
				}
				filter.MinLevel = &lvl
			}

			found, err := logtail.Tail(cfg.LogFile, lines, filter)
			if err != nil {
				return fmt.Errorf("read %s: %w", cfg.LogFile, err)
			}
			rows := make([]logRow, 0, len(found))
			tableRows := make([]table.Row, 0, len(found))
			for _, l := range found {
				row := logRow{Level: l.Level, Msg: l.Msg, Nav: l.Nav, Target: l.Target, Raw: l.Raw}
				if !l.Time.IsZero() {
					row.Time = l.Time.Local().Format("2006-01-02 15:04:05")
				}
				msg := row.Msg
				if msg == "" {
					msg = row.Raw
				}
				rows = append(rows, row)
				tableRows = append(tableRows, table.Row{row.Time, row.Level, msg, row.Target, row.Nav})
			}
			return out.print(rows, table.Row{"Time", "Level", "Message", "Target", "Nav"}, tableRows)
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 100, "number of lines to show")
	cmd.Flags().StringVar(&nav, "nav", "", "only lines from the navigation with this id")
	cmd.Flags().StringVar(&level, "level", "", "minimum level to show (debug, info, warn, error)")
	return cmd
}
