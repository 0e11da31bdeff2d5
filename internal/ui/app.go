package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/five82/lookout/internal/appctx"
	"github.com/five82/lookout/internal/configcache"
	"github.com/five82/lookout/internal/errqueue"
	"github.com/five82/lookout/internal/guard"
	"github.com/five82/lookout/internal/logtail"
	"github.com/five82/lookout/internal/nessie"
	"github.com/five82/lookout/internal/prefs"
	"github.com/five82/lookout/internal/session"
	"github.com/five82/lookout/internal/state"
)

// Actions is the part of the Nessie API the UI triggers directly.
type Actions interface {
	StartJob(ctx context.Context, jobID string) (*nessie.JobResult, error)
	RunJob(ctx context.Context, path string) (*nessie.JobResult, error)
	PauseSchedule(ctx context.Context, jobID string) (*nessie.ScheduledJob, error)
	ReloadSchedules(ctx context.Context) ([]nessie.ScheduledJob, error)
	FetchCASLoginURL(ctx context.Context) (string, error)
}

// Options configures the UI.
type Options struct {
	Context    context.Context
	Navigator  *guard.Navigator
	App        *appctx.AppContext
	Client     Actions
	Store      *state.Store
	BaseURL    string
	Refresh    func(ctx context.Context) error
	Logout     func(ctx context.Context) (string, error)
	FirstRoute string
	PollTick   time.Duration
	ThemeName  string
	PrefsPath  string
	LogPath    string
}

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx       context.Context
	nav       *guard.Navigator
	app       *appctx.AppContext
	client    Actions
	store     *state.Store
	baseURL   string
	refresh   func(ctx context.Context) error
	logout    func(ctx context.Context) (string, error)
	prefsPath string
	logPath   string
	pollTick  time.Duration
	first     string

	// UI state
	theme        Theme
	keys         keyMap
	help         help.Model
	spinner      spinner.Model
	width        int
	height       int
	ready        bool
	showHelp     bool
	showProblems bool
	showLog      bool
	logLines     []string
	logErr       error

	// Navigation state
	route      string
	decision   guard.Decision
	navigating bool
	pending    string
	navErr     error

	// Data state
	snapshot state.Snapshot
	session  session.State
	problems []errqueue.Entry
	bundle   configcache.Bundle
	hasConf  bool

	selected int
	notice   string
	noticeOK bool
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	pollTick := opts.PollTick
	if pollTick <= 0 {
		pollTick = DefaultUIInterval
	}

	themeName := opts.ThemeName
	if themeName == "" {
		themeName = "Dracula"
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	first := opts.FirstRoute
	if first == "" {
		first = guard.PathRoot
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:       ctx,
		nav:       opts.Navigator,
		app:       opts.App,
		client:    opts.Client,
		store:     opts.Store,
		baseURL:   opts.BaseURL,
		refresh:   opts.Refresh,
		logout:    opts.Logout,
		prefsPath: prefsPath,
		logPath:   opts.LogPath,
		pollTick:  pollTick,
		first:     first,
		theme:     GetTheme(themeName),
		keys:      DefaultKeyMap(),
		help:      help.New(),
		spinner:   sp,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(m.pollTick),
		m.spinner.Tick,
		navigateCmd(m.ctx, m.nav, m.first),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.ready = true
		return m, nil

	case spinner.TickMsg:
		if !m.navigating {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		cmds := []tea.Cmd{m.fetchSnapshot(), tickCmd(m.pollTick)}
		if m.showLog {
			cmds = append(cmds, loadLogCmd(m.logPath))
		}
		return m, tea.Batch(cmds...)

	case logMsg:
		m.logLines = msg.lines
		m.logErr = msg.err
		return m, nil

	case snapshotMsg:
		m.applySnapshot(msg)
		return m, nil

	case navigatedMsg:
		return m.handleNavigated(msg)

	case actionMsg:
		m.notice = msg.notice
		m.noticeOK = msg.err == nil
		if msg.err != nil {
			m.notice = msg.notice + ": " + msg.err.Error()
		}
		return m, m.fetchSnapshot()

	case loggedOutMsg:
		m.notice = "Logged out"
		m.noticeOK = msg.err == nil
		if msg.url != "" {
			m.notice += ". End the CAS session at " + msg.url
		}
		if msg.err != nil {
			m.notice += ": " + msg.err.Error()
		}
		return m.navigate(guard.PathLogin)
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

// navigate starts a guarded navigation to path.
func (m Model) navigate(path string) (tea.Model, tea.Cmd) {
	m.navigating = true
	m.pending = guard.Normalize(path)
	m.navErr = nil
	return m, tea.Batch(m.spinner.Tick, navigateCmd(m.ctx, m.nav, path))
}

func (m Model) handleNavigated(msg navigatedMsg) (tea.Model, tea.Cmd) {
	m.navigating = false
	m.pending = ""
	if msg.err != nil {
		m.navErr = msg.err
		return m, m.fetchSnapshot()
	}
	if m.route != msg.decision.Target {
		m.selected = 0
	}
	m.decision = msg.decision
	m.route = msg.decision.Target
	if msg.decision.ConfigErr != nil {
		m.notice = "Server configuration unavailable"
		m.noticeOK = false
	}
	m.saveRoute()
	return m, m.fetchSnapshot()
}

// saveRoute remembers the last content route so the next start reopens it.
func (m Model) saveRoute() {
	if m.prefsPath == "" || m.nav == nil || m.route == m.nav.Guard().Table().Landing() {
		return
	}
	p := prefs.Load(m.prefsPath)
	p.Theme = m.theme.Name
	p.LastRoute = m.route
	if err := prefs.Save(m.prefsPath, p); err != nil {
		slogcontext.FromCtx(m.ctx).DebugContext(m.ctx, "save prefs failed", "error", err)
	}
}

func (m *Model) applySnapshot(msg snapshotMsg) {
	m.snapshot = msg.store
	m.session = msg.session
	m.problems = msg.problems
	m.bundle = msg.bundle
	m.hasConf = msg.hasConf
	if n := m.rowCount(); m.selected >= n {
		m.selected = max(n-1, 0)
	}
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		if m.prefsPath != "" {
			p := prefs.Load(m.prefsPath)
			p.Theme = m.theme.Name
			_ = prefs.Save(m.prefsPath, p)
		}
		return m, nil
	}

	if m.navigating {
		return m, nil
	}

	if (m.showProblems || m.showLog) && key.Matches(msg, m.keys.Escape) {
		m.showProblems = false
		m.showLog = false
		m.selected = 0
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.GoHome), key.Matches(msg, m.keys.Escape):
		return m.navigate(guard.PathHome)
	case key.Matches(msg, m.keys.GoSchedule):
		return m.navigate(guard.PathSchedule)
	case key.Matches(msg, m.keys.GoStatus):
		return m.navigate(guard.PathStatus)
	case key.Matches(msg, m.keys.GoJobs):
		return m.navigate(guard.PathJobs)
	case key.Matches(msg, m.keys.GoProblems):
		m.showProblems = !m.showProblems
		m.showLog = false
		m.selected = 0
		return m, m.fetchSnapshot()
	case key.Matches(msg, m.keys.ShowLog):
		m.showLog = !m.showLog
		m.showProblems = false
		m.selected = 0
		if !m.showLog {
			return m, nil
		}
		return m, loadLogCmd(m.logPath)
	case key.Matches(msg, m.keys.GoLogin):
		return m.navigate(guard.PathLogin)
	case key.Matches(msg, m.keys.Logout):
		if m.session.Identity == nil || m.logout == nil {
			return m, nil
		}
		return m, logoutCmd(m.ctx, m.logout)
	case key.Matches(msg, m.keys.Refresh):
		return m, m.refreshCmd()
	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
		return m, nil
	case key.Matches(msg, m.keys.Down):
		if m.selected < m.rowCount()-1 {
			m.selected++
		}
		return m, nil
	case key.Matches(msg, m.keys.Top):
		m.selected = 0
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.selected = max(m.rowCount()-1, 0)
		return m, nil
	}

	if m.showProblems {
		return m.handleProblemsKey(msg)
	}
	if m.showLog {
		return m, nil
	}

	switch m.routeName() {
	case "schedule":
		return m.handleScheduleKey(msg)
	case "jobs":
		return m.handleJobsKey(msg)
	case "job":
		return m.handleJobKey(msg)
	case "login":
		if key.Matches(msg, m.keys.Open) {
			return m, loginURLCmd(m.ctx, m.client)
		}
	}
	return m, nil
}

func (m Model) handleScheduleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	jobs := m.snapshot.Schedule
	switch {
	case key.Matches(msg, m.keys.Reload):
		return m, m.actionCmd("Schedules reloaded", func(ctx context.Context) error {
			_, err := m.client.ReloadSchedules(ctx)
			return err
		})
	case m.selected < 0 || m.selected >= len(jobs):
		return m, nil
	case key.Matches(msg, m.keys.Run):
		id := jobs[m.selected].ID
		return m, m.actionCmd("Started "+id, func(ctx context.Context) error {
			return startedOrErr(m.client.StartJob(ctx, id))
		})
	case key.Matches(msg, m.keys.Pause):
		id := jobs[m.selected].ID
		return m, m.actionCmd("Paused "+id, func(ctx context.Context) error {
			_, err := m.client.PauseSchedule(ctx, id)
			return err
		})
	}
	return m, nil
}

func (m Model) handleJobsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	jobs := m.session.RunnableJobs
	if m.selected < 0 || m.selected >= len(jobs) || !key.Matches(msg, m.keys.Open) {
		return m, nil
	}
	return m.navigate(guard.PathJob + jobs[m.selected].Name)
}

func (m Model) handleJobKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	job, ok := m.currentJob()
	if !ok || !key.Matches(msg, m.keys.Run) {
		return m, nil
	}
	if job.NeedsArguments() {
		m.notice = job.Name + " needs arguments: " + strings.Join(job.Required, ", ")
		m.noticeOK = false
		return m, nil
	}
	return m, m.actionCmd("Started "+job.Name, func(ctx context.Context) error {
		return startedOrErr(m.client.RunJob(ctx, job.Path))
	})
}

func (m Model) handleProblemsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.app == nil {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Dismiss):
		if m.selected >= 0 && m.selected < len(m.problems) {
			m.app.Errors().Dismiss(m.problems[m.selected].ID)
		}
		return m, m.fetchSnapshot()
	case key.Matches(msg, m.keys.Clear):
		m.app.Errors().Clear()
		return m, m.fetchSnapshot()
	}
	return m, nil
}

// routeName returns the name of the route currently shown.
func (m Model) routeName() string {
	return m.decision.Intent.Route.Name
}

// currentJob returns the runnable job named by a /job/<name> route.
func (m Model) currentJob() (nessie.RunnableJob, bool) {
	name := strings.TrimPrefix(m.route, guard.PathJob)
	for _, job := range m.session.RunnableJobs {
		if job.Name == name {
			return job, true
		}
	}
	return nessie.RunnableJob{}, false
}

func (m Model) rowCount() int {
	if m.showProblems {
		return len(m.problems)
	}
	switch m.routeName() {
	case "schedule":
		return len(m.snapshot.Schedule)
	case "status":
		return len(m.snapshot.JobStatuses)
	case "jobs":
		return len(m.session.RunnableJobs)
	}
	return 0
}

// Messages

type tickMsg time.Time

type snapshotMsg struct {
	store    state.Snapshot
	session  session.State
	problems []errqueue.Entry
	bundle   configcache.Bundle
	hasConf  bool
}

type navigatedMsg struct {
	decision guard.Decision
	hops     []guard.Decision
	err      error
}

type actionMsg struct {
	notice string
	err    error
}

type loggedOutMsg struct {
	url string
	err error
}

type logMsg struct {
	lines []string
	err   error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func navigateCmd(ctx context.Context, nav *guard.Navigator, path string) tea.Cmd {
	return func() tea.Msg {
		if nav == nil {
			return navigatedMsg{err: errNoNavigator}
		}
		d, hops, err := nav.Navigate(ctx, path)
		return navigatedMsg{decision: d, hops: hops, err: err}
	}
}

func (m Model) fetchSnapshot() tea.Cmd {
	store, app := m.store, m.app
	return func() tea.Msg {
		var msg snapshotMsg
		if store != nil {
			msg.store = store.Snapshot()
		}
		if app != nil {
			msg.session = app.Session().Snapshot()
			msg.problems = app.Errors().Entries()
			msg.bundle, msg.hasConf = app.Config().Cached()
		}
		return msg
	}
}

func (m Model) refreshCmd() tea.Cmd {
	if m.refresh == nil {
		return nil
	}
	return runCmd(m.ctx, "Refreshed", m.refresh, nil)
}

// actionCmd runs fn and, when it succeeds, refreshes the store so the
// result shows up without waiting for the next poll.
func (m Model) actionCmd(notice string, fn func(ctx context.Context) error) tea.Cmd {
	return runCmd(m.ctx, notice, fn, m.refresh)
}

func runCmd(parent context.Context, notice string, fn, after func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, ActionTimeout)
		defer cancel()
		err := fn(ctx)
		if err == nil && after != nil {
			_ = after(ctx)
		}
		return actionMsg{notice: notice, err: err}
	}
}

func loginURLCmd(ctx context.Context, client Actions) tea.Cmd {
	return func() tea.Msg {
		if client == nil {
			return actionMsg{notice: "Log in", err: errNoClient}
		}
		url, err := client.FetchCASLoginURL(ctx)
		if err != nil {
			return actionMsg{notice: "Log in", err: err}
		}
		return actionMsg{notice: "Log in at " + url + " and restart with the session cookie"}
	}
}

func logoutCmd(ctx context.Context, logout func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		url, err := logout(ctx)
		return loggedOutMsg{url: url, err: err}
	}
}

// logTailLines is how much of the log file the overlay keeps.
const logTailLines = 200

func loadLogCmd(path string) tea.Cmd {
	return func() tea.Msg {
		if path == "" {
			return logMsg{}
		}
		lines, err := logtail.Read(path, logTailLines)
		return logMsg{lines: lines, err: err}
	}
}

func startedOrErr(result *nessie.JobResult, err error) error {
	if err != nil {
		return err
	}
	if result == nil || !result.Started() {
		status := "unknown"
		if result != nil {
			status = result.Status
		}
		return &jobNotStartedError{status: status}
	}
	return nil
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	return err
}
