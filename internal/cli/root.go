package cli

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/five82/lookout/internal/app"
	"github.com/five82/lookout/internal/config"
	"github.com/five82/lookout/internal/logging"
)

// Flag names double as viper keys. Environment variables use the LOOKOUT_
// prefix with dashes replaced by underscores, e.g. LOOKOUT_SESSION_COOKIE.
const (
	flagConfig        = "config"
	flagBaseURL       = "base-url"
	flagSessionCookie = "session-cookie"
	flagPoll          = "poll"
	flagTimeout       = "timeout"
	flagLogLevel      = "loglevel"
	flagLogFormat     = "logformat"
	flagOutput        = "output"
	flagPrefs         = "prefs"
	flagRoute         = "route"
)

// Execute runs the lookout command tree.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the lookout command. Without a subcommand it starts the
// terminal UI.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("LOOKOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:   "lookout",
		Short: "Lookout: console for Nessie scheduled jobs",
		Long: "lookout watches and controls the scheduled background jobs of a Nessie server.\n" +
			"Run it without arguments for the terminal UI, or use the subcommands from scripts.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd, v)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String(flagConfig, "", "config file (default "+config.DefaultPath()+")")
	flags.String(flagBaseURL, "", "Nessie base URL")
	flags.String(flagSessionCookie, "", "Nessie session cookie, as name=value or a bare value")
	flags.Int(flagPoll, 0, "refresh interval in seconds")
	flags.Duration(flagTimeout, 0, "per-request timeout")
	flags.String(flagLogLevel, "", "set the log level (debug, info, warn, error)")
	flags.String(flagLogFormat, logging.FormatText, "set the log format (text, json)")
	flags.StringP(flagOutput, "o", formatTable, "output format (table, json, yaml)")
	flags.String(flagPrefs, "", "preferences file (default ~/.config/lookout/prefs.toml)")
	rootCmd.Flags().String(flagRoute, "", "route to open first, e.g. /schedule")

	bindFlags(v, flags)
	bindFlags(v, rootCmd.Flags())

	rootCmd.AddCommand(
		newVersionCmd(v),
		newNavCmd(v),
		newWhoamiCmd(v),
		newLoginURLCmd(v),
		newLogoutCmd(v),
		newJobsCmd(v),
		newRunCmd(v),
		newStartCmd(v),
		newStatusCmd(v),
		newScheduleCmd(v),
		newLogsCmd(v),
	)

	return rootCmd
}

// bindFlags makes every flag in fs readable through v under its own name.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})
}

// loadConfig reads the config file and layers flags and environment on top.
func loadConfig(v *viper.Viper) (config.Config, error) {
	cfg, err := config.Load(v.GetString(flagConfig))
	if err != nil {
		return config.Config{}, err
	}
	cfg.Apply(config.Overrides{
		BaseURL:        v.GetString(flagBaseURL),
		SessionCookie:  v.GetString(flagSessionCookie),
		PollSeconds:    v.GetInt(flagPoll),
		RequestTimeout: v.GetDuration(flagTimeout),
		LogLevel:       v.GetString(flagLogLevel),
	})
	return cfg, nil
}

func runTUI(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	logFile, err := logging.OpenFile(cfg.LogFile)
	if err != nil {
		return err
	}
	defer logFile.Close()

	logger, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: v.GetString(flagLogFormat),
		Out:    logFile,
	})
	if err != nil {
		return err
	}
	logger.Info("lookout starting", "base_url", cfg.BaseURL)

	return app.Run(cmd.Context(), app.Options{
		Config:    cfg,
		PrefsPath: v.GetString(flagPrefs),
		Route:     v.GetString(flagRoute),
		Logger:    logger,
	})
}

// session is what a subcommand works with: a wired runtime and a context
// carrying the stderr logger.
type session struct {
	ctx context.Context
	rt  *app.Runtime
	out printer
	log *slog.Logger
}

func openSession(cmd *cobra.Command, v *viper.Viper) (*session, error) {
	out, err := newPrinter(cmd.OutOrStdout(), v.GetString(flagOutput))
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}
	// Commands stay quiet on stderr unless a level is asked for explicitly.
	level := v.GetString(flagLogLevel)
	if level == "" {
		level = "warn"
	}
	logger, err := logging.New(logging.Options{
		Level:  level,
		Format: v.GetString(flagLogFormat),
		Out:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}

	rt, err := app.Build(cfg)
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return &session{
		ctx: slogcontext.NewCtx(ctx, logger),
		rt:  rt,
		out: out,
		log: logger,
	}, nil
}

func (s *session) Close() {
	s.rt.Close()
}

// withSession opens a session, runs fn and reports queued problems when fn
// fails.
func withSession(cmd *cobra.Command, v *viper.Viper, fn func(*session) error) error {
	s, err := openSession(cmd, v)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := fn(s); err != nil {
		for _, entry := range s.rt.App.Errors().Entries() {
			s.log.WarnContext(s.ctx, "server problem",
				"status", entry.StatusCode,
				"message", entry.Message,
				"reported_at", entry.ReportedAt.Format(time.RFC3339))
		}
		return err
	}
	return nil
}
