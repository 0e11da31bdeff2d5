package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/five82/lookout/internal/guard"
	"github.com/five82/lookout/internal/nessie"
)

var errJobsUnavailable = errors.New("runnable jobs unavailable")

// runnableJobs waits for the job list of the current session.
func (s *session) runnableJobs() ([]nessie.RunnableJob, error) {
	s.rt.App.Session().Wait()
	st := s.rt.App.Session().Snapshot()
	if !st.JobsLoaded {
		return nil, errJobsUnavailable
	}
	return st.RunnableJobs, nil
}

func newJobsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List jobs the signed-in user may run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, v, func(s *session) error {
				if _, err := s.authorize(guard.PathJobs); err != nil {
					return err
				}
				jobs, err := s.runnableJobs()
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, table.Row{job.Name, job.Path, strings.Join(job.Methods, ","), strings.Join(job.Required, ",")})
				}
				if jobs == nil {
					jobs = []nessie.RunnableJob{}
				}
				return s.out.print(jobs, table.Row{"Name", "Path", "Methods", "Requires"}, rows)
			})
		},
	}
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "run <name|path>",
		Short: "Run a runnable job by name or path",
		Example: `  lookout run refresh_sis_terms
  lookout run /api/job/refresh_sis_terms`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, v, func(s *session) error {
				if _, err := s.authorize(guard.PathJobs); err != nil {
					return err
				}
				jobs, err := s.runnableJobs()
				if err != nil {
					return err
				}
				job, ok := findRunnable(jobs, args[0])
				if !ok {
					return fmt.Errorf("no runnable job named %q", args[0])
				}
				if job.NeedsArguments() {
					return fmt.Errorf("job %s needs arguments: %s", job.Name, strings.Join(job.Required, ", "))
				}
				result, err := s.rt.Client.RunJob(s.ctx, job.Path)
				if err != nil {
					return err
				}
				return s.printResult(job.Name, result)
			})
		},
	}
}

func newStartCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "start <jobId>",
		Short: "Start a scheduled job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, v, func(s *session) error {
				if _, err := s.authorize(guard.PathSchedule); err != nil {
					return err
				}
				result, err := s.rt.Client.StartJob(s.ctx, args[0])
				if err != nil {
					return err
				}
				return s.printResult(args[0], result)
			})
		},
	}
}

type jobRun struct {
	Job    string `json:"job"`
	Status string `json:"status"`
}

func (s *session) printResult(name string, result *nessie.JobResult) error {
	run := jobRun{Job: name, Status: result.Status}
	if err := s.out.print(run, table.Row{"Job", "Status"}, []table.Row{{run.Job, run.Status}}); err != nil {
		return err
	}
	if !result.Started() {
		return fmt.Errorf("job %s not started (status %s)", name, result.Status)
	}
	return nil
}

func findRunnable(jobs []nessie.RunnableJob, key string) (nessie.RunnableJob, bool) {
	for _, job := range jobs {
		if job.Name == key || job.Path == key {
			return job, true
		}
	}
	return nessie.RunnableJob{}, false
}

func newStatusCmd(v *viper.Viper) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List background job runs for a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var day time.Time
			if date != "" {
				parsed, err := time.ParseInLocation(time.DateOnly, date, time.Local)
				if err != nil {
					return fmt.Errorf("parse --date: %w", err)
				}
				day = parsed
			}
			return withSession(cmd, v, func(s *session) error {
				if _, err := s.authorize(guard.PathStatus); err != nil {
					return err
				}
				rows, err := s.rt.Client.FetchJobStatus(s.ctx, day)
				if err != nil {
					return err
				}
				now := time.Now()
				tableRows := make([]table.Row, 0, len(rows))
				for _, row := range rows {
					tableRows = append(tableRows, table.Row{
						row.ID, row.Status, row.Started,
						row.Duration(now).Round(time.Second).String(), row.Details,
					})
				}
				if rows == nil {
					rows = []nessie.JobStatus{}
				}
				return s.out.print(rows, table.Row{"ID", "Status", "Started", "Duration", "Details"}, tableRows)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to list as YYYY-MM-DD (default today)")
	return cmd
}
