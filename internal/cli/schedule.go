package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"sigs.k8s.io/yaml"

	"github.com/five82/lookout/internal/guard"
	"github.com/five82/lookout/internal/nessie"
)

func newScheduleCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "List and edit scheduled jobs",
	}
	cmd.AddCommand(
		newScheduleListCmd(v),
		newScheduleSetCmd(v),
		newSchedulePauseCmd(v),
		newScheduleDeleteCmd(v),
		newScheduleArgsCmd(v),
		newScheduleReloadCmd(v),
	)
	return cmd
}

// scheduleCommand runs fn after the guard admits the schedule route.
func scheduleCommand(v *viper.Viper, fn func(s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, v, func(s *session) error {
			if _, err := s.authorize(guard.PathSchedule); err != nil {
				return err
			}
			return fn(s, args)
		})
	}
}

func newScheduleListCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List scheduled jobs",
		Args:    cobra.NoArgs,
		RunE: scheduleCommand(v, func(s *session, _ []string) error {
			jobs, err := s.rt.Client.FetchSchedule(s.ctx)
			if err != nil {
				return err
			}
			return s.printSchedule(jobs)
		}),
	}
}

func newScheduleSetCmd(v *viper.Viper) *cobra.Command {
	var fields map[string]string
	cmd := &cobra.Command{
		Use:   "set <jobId>",
		Short: "Reschedule a job with cron fields",
		Example: `  lookout schedule set refresh_sis_terms --cron hour=3 --cron minute=30
  lookout schedule set refresh_sis_terms --cron day_of_week=mon-fri,hour=6`,
		Args: cobra.ExactArgs(1),
		RunE: scheduleCommand(v, func(s *session, args []string) error {
			if len(fields) == 0 {
				return fmt.Errorf("at least one --cron field is required; use pause to clear the trigger")
			}
			trigger, err := parseValues(fields)
			if err != nil {
				return err
			}
			job, err := s.rt.Client.UpdateSchedule(s.ctx, args[0], trigger)
			if err != nil {
				return err
			}
			return s.printSchedule([]nessie.ScheduledJob{*job})
		}),
	}
	cmd.Flags().StringToStringVar(&fields, "cron", nil, "cron trigger field as key=value (repeatable)")
	return cmd
}

func newSchedulePauseCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <jobId>",
		Short: "Pause a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: scheduleCommand(v, func(s *session, args []string) error {
			job, err := s.rt.Client.PauseSchedule(s.ctx, args[0])
			if err != nil {
				return err
			}
			return s.printSchedule([]nessie.ScheduledJob{*job})
		}),
	}
}

func newScheduleDeleteCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <jobId>",
		Aliases: []string{"rm"},
		Short:   "Remove a job from the schedule",
		Args:    cobra.ExactArgs(1),
		RunE: scheduleCommand(v, func(s *session, args []string) error {
			jobs, err := s.rt.Client.RemoveSchedule(s.ctx, args[0])
			if err != nil {
				return err
			}
			return s.printSchedule(jobs)
		}),
	}
}

func newScheduleArgsCmd(v *viper.Viper) *cobra.Command {
	var values map[string]string
	cmd := &cobra.Command{
		Use:     "args <jobId>",
		Short:   "Set arguments passed to a scheduled job",
		Example: `  lookout schedule args refresh_sis_terms --arg term_id=2268 --arg dry_run=true`,
		Args:    cobra.ExactArgs(1),
		RunE: scheduleCommand(v, func(s *session, args []string) error {
			if len(values) == 0 {
				return fmt.Errorf("at least one --arg is required")
			}
			parsed, err := parseValues(values)
			if err != nil {
				return err
			}
			job, err := s.rt.Client.UpdateScheduleArgs(s.ctx, args[0], parsed)
			if err != nil {
				return err
			}
			return s.printSchedule([]nessie.ScheduledJob{*job})
		}),
	}
	cmd.Flags().StringToStringVar(&values, "arg", nil, "job argument as key=value (repeatable)")
	return cmd
}

func newScheduleReloadCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the schedule from the server configuration",
		Args:  cobra.NoArgs,
		RunE: scheduleCommand(v, func(s *session, _ []string) error {
			jobs, err := s.rt.Client.ReloadSchedules(s.ctx)
			if err != nil {
				return err
			}
			return s.printSchedule(jobs)
		}),
	}
}

func (s *session) printSchedule(jobs []nessie.ScheduledJob) error {
	rows := make([]table.Row, 0, len(jobs))
	for _, job := range jobs {
		state := "scheduled"
		switch {
		case job.Locked:
			state = "locked"
		case job.Paused():
			state = "paused"
		}
		rows = append(rows, table.Row{job.ID, state, job.Trigger, job.NextRun, strings.Join(job.Components, ","), formatArgs(job.Args)})
	}
	if jobs == nil {
		jobs = []nessie.ScheduledJob{}
	}
	return s.out.print(jobs, table.Row{"ID", "State", "Trigger", "Next run", "Components", "Args"}, rows)
}

// parseValues decodes each value as a YAML scalar so numbers and booleans
// reach the server typed. Anything that does not parse stays a string.
func parseValues(raw map[string]string) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("empty key for value %q", value)
		}
		var decoded any
		if err := yaml.Unmarshal([]byte(value), &decoded); err != nil || decoded == nil {
			decoded = value
		}
		switch decoded.(type) {
		case map[string]any, []any:
			decoded = value
		}
		out[key] = decoded
	}
	return out, nil
}

func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return strings.Join(parts, " ")
}
