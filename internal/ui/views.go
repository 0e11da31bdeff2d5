package ui

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/lookout/internal/guard"
	"github.com/five82/lookout/internal/logtail"
	"github.com/five82/lookout/internal/nessie"
)

var (
	errNoNavigator = errors.New("no navigator configured")
	errNoClient    = errors.New("no client configured")
)

type jobNotStartedError struct{ status string }

func (e *jobNotStartedError) Error() string {
	return fmt.Sprintf("job not started (status %s)", e.status)
}

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderContent())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	sep := "  "

	parts := []string{styles.Logo.Render("lookout")}
	if m.hasConf {
		env := m.bundle.Config.NessieEnv
		if env == "" {
			env = "nessie"
		}
		parts = append(parts, styles.MutedText.Render(env+" "+m.bundle.Version.Version))
		if !m.bundle.Ping.Healthy() {
			parts = append(parts, styles.WarningText.Render("degraded"))
		}
	} else if m.baseURL != "" {
		parts = append(parts, styles.MutedText.Render(m.baseURL))
	}

	if id := m.session.Identity; id != nil {
		parts = append(parts, styles.SuccessText.Render("● "+id.DisplayName()))
	} else {
		parts = append(parts, styles.DangerText.Render("● signed out"))
	}

	if m.snapshot.IsOffline() {
		parts = append(parts, styles.DangerText.Render("OFFLINE"))
	}
	if n := len(m.problems); n > 0 {
		parts = append(parts, styles.WarningText.Render(fmt.Sprintf("%d problem%s", n, plural(n))))
	}

	return styles.Header.Width(m.width).Render(strings.Join(parts, sep))
}

func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	var left string
	switch {
	case m.navigating:
		left = m.spinner.View() + " " + m.pending
	case m.navErr != nil:
		left = styles.DangerText.Render(m.navErr.Error())
	case m.notice != "":
		if m.noticeOK {
			left = styles.InfoText.Render(m.notice)
		} else {
			left = styles.WarningText.Render(m.notice)
		}
	default:
		left = m.route
	}
	hints := "1 home  2 schedule  3 status  4 jobs  p problems  L log  ? help  q quit"
	if m.width < LayoutCompactWidth {
		hints = "? help  q quit"
	}
	return styles.Footer.Width(m.width).Render(left + "  " + styles.FaintText.Render(hints))
}

func (m Model) renderContent() string {
	if m.showProblems {
		return m.renderBox("Problems", m.renderProblems())
	}
	if m.showLog {
		return m.renderBox("Lookout log", m.renderLog())
	}
	if m.route == "" {
		return m.renderBox("Lookout", m.spinner.View()+" Resolving session...")
	}
	switch m.routeName() {
	case "home":
		return m.renderBox("Home", m.renderHome())
	case "login":
		return m.renderBox("Log in", m.renderLogin())
	case "schedule":
		return m.renderBox("Schedule", m.renderSchedule())
	case "status":
		return m.renderBox("Background jobs today", m.renderStatus())
	case "jobs":
		return m.renderBox("Runnable jobs", m.renderJobs())
	case "job":
		return m.renderBox("Job", m.renderJob())
	default:
		return m.renderBox(m.route, "")
	}
}

func (m Model) renderBox(title, body string) string {
	styles := m.theme.Styles()
	width := max(m.width-2, 20)
	height := max(m.height-4, 3)
	heading := styles.AccentText.Bold(true).Render(title)
	return styles.Box.Width(width).Height(height).Render(heading + "\n\n" + body)
}

func (m Model) renderHome() string {
	styles := m.theme.Styles()
	var lines []string
	if id := m.session.Identity; id != nil {
		lines = append(lines, "Signed in as "+styles.Text.Bold(true).Render(id.DisplayName())+styles.MutedText.Render(" ("+id.UID+")"))
	} else {
		lines = append(lines, styles.MutedText.Render("Not signed in. Press l to log in."))
	}
	if m.hasConf {
		c := m.bundle.Config
		lines = append(lines,
			"",
			kv(styles, "Current term", fmt.Sprintf("%s (%d)", c.CurrentEnrollmentTerm, c.CurrentEnrollmentTermID)),
			kv(styles, "Future term", fmt.Sprintf("%d", c.FutureTermID)),
			kv(styles, "Environment", c.EBEnvironment),
			kv(styles, "Data lake", onOff(c.FeatureFlagEnterpriseDataLake)),
			kv(styles, "Health", fmt.Sprintf("app %s  rds %s  redshift %s",
				onOff(m.bundle.Ping.App), onOff(m.bundle.Ping.RDS), onOff(m.bundle.Ping.Redshift))),
		)
	}
	if m.session.Identity != nil && m.snapshot.HasData {
		lines = append(lines,
			"",
			kv(styles, "Scheduled jobs", fmt.Sprintf("%d", len(m.snapshot.Schedule))),
			kv(styles, "Running now", fmt.Sprintf("%d", len(m.snapshot.Running()))),
		)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderLogin() string {
	styles := m.theme.Styles()
	lines := []string{
		"This console uses the Nessie CAS session.",
		"",
		"Press " + styles.AccentText.Render("enter") + " to get the CAS login URL. After logging in,",
		"copy the session cookie into session_cookie in the config file",
		"or pass --session-cookie, then restart Lookout.",
	}
	if next := m.decision.Next; next != "" {
		lines = append(lines, "", styles.MutedText.Render("You will continue to "+next+"."))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderSchedule() string {
	styles := m.theme.Styles()
	jobs := m.snapshot.Schedule
	if len(jobs) == 0 {
		return styles.MutedText.Render("No scheduled jobs.")
	}
	wide := m.width >= LayoutDetailWidth
	var rows []string
	for i, job := range jobs {
		badge := "scheduled"
		if job.Paused() {
			badge = "paused"
		}
		if job.Locked {
			badge = "locked"
		}
		cols := []string{
			pad(job.ID, 32),
			styles.StatusStyle(badge).Render(pad(badge, 9)),
			pad(job.Trigger, 28),
			pad(displayTime(job.NextRun), 20),
		}
		if wide {
			cols = append(cols, strings.Join(job.Components, ","))
		}
		rows = append(rows, m.row(i, strings.Join(cols, " ")))
	}
	rows = append(rows, "", styles.FaintText.Render("r run now  P pause  R reload"))
	return strings.Join(rows, "\n")
}

func (m Model) renderStatus() string {
	styles := m.theme.Styles()
	rows := m.snapshot.JobStatuses
	if len(rows) == 0 {
		return styles.MutedText.Render("No background jobs have run today.")
	}
	now := time.Now()
	sorted := append([]nessie.JobStatus(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ParsedStarted().After(sorted[j].ParsedStarted())
	})
	var out []string
	for i, row := range sorted {
		line := strings.Join([]string{
			pad(row.ID, 36),
			styles.StatusStyle(row.Status).Render(pad(row.Status, 9)),
			pad(row.ParsedStarted().Local().Format("15:04:05"), 9),
			pad(row.Duration(now).Round(time.Second).String(), 10),
			row.Details,
		}, " ")
		out = append(out, m.row(i, line))
	}
	return strings.Join(out, "\n")
}

func (m Model) renderJobs() string {
	styles := m.theme.Styles()
	if !m.session.JobsLoaded {
		return m.spinner.View() + " Loading runnable jobs..."
	}
	jobs := m.session.RunnableJobs
	if len(jobs) == 0 {
		return styles.MutedText.Render("No runnable jobs.")
	}
	var rows []string
	for i, job := range jobs {
		line := pad(job.Name, 40) + " " + styles.MutedText.Render(job.Path)
		rows = append(rows, m.row(i, line))
	}
	rows = append(rows, "", styles.FaintText.Render("enter open"))
	return strings.Join(rows, "\n")
}

func (m Model) renderJob() string {
	styles := m.theme.Styles()
	job, ok := m.currentJob()
	if !ok {
		name := strings.TrimPrefix(m.route, guard.PathJob)
		return styles.MutedText.Render("No runnable job named " + name + ".")
	}
	lines := []string{
		kv(styles, "Name", job.Name),
		kv(styles, "Path", job.Path),
		kv(styles, "Methods", strings.Join(job.Methods, ", ")),
	}
	if job.NeedsArguments() {
		lines = append(lines, kv(styles, "Requires", strings.Join(job.Required, ", ")))
	}
	lines = append(lines, "", styles.FaintText.Render("r run"))
	return strings.Join(lines, "\n")
}

func (m Model) renderProblems() string {
	styles := m.theme.Styles()
	if len(m.problems) == 0 {
		return styles.MutedText.Render("No problems reported.")
	}
	var rows []string
	for i, entry := range m.problems {
		var b strings.Builder
		b.WriteString(styles.FaintText.Render(entry.ReportedAt.Local().Format("15:04:05")))
		b.WriteString(" ")
		if entry.StatusCode != 0 {
			b.WriteString(styles.DangerText.Render(fmt.Sprintf("%d", entry.StatusCode)))
			b.WriteString(" ")
		}
		b.WriteString(entry.Message)
		rows = append(rows, m.row(i, b.String()))
		if text := strings.TrimSpace(entry.ResponseText); text != "" && i == m.selected {
			rows = append(rows, styles.MutedText.Render("    "+truncate(text, 200)))
		}
	}
	rows = append(rows, "", styles.FaintText.Render("d dismiss  c clear  esc close"))
	return strings.Join(rows, "\n")
}

// renderLog shows the newest log lines that fit, colored by level.
func (m Model) renderLog() string {
	styles := m.theme.Styles()
	if m.logErr != nil {
		return styles.DangerText.Render(m.logErr.Error())
	}
	if len(m.logLines) == 0 {
		return styles.MutedText.Render("Log is empty.")
	}
	lines := m.logLines
	if room := max(m.height-8, 1); len(lines) > room {
		lines = lines[len(lines)-room:]
	}
	width := max(m.width-6, 20)
	out := make([]string, 0, len(lines)+2)
	for _, raw := range lines {
		line := logtail.Parse(raw)
		text := truncate(raw, width)
		switch strings.ToUpper(line.Level) {
		case "ERROR":
			out = append(out, styles.DangerText.Render(text))
		case "WARN":
			out = append(out, styles.WarningText.Render(text))
		case "DEBUG":
			out = append(out, styles.FaintText.Render(text))
		default:
			out = append(out, styles.Text.Render(text))
		}
	}
	out = append(out, "", styles.FaintText.Render("L or esc close"))
	return strings.Join(out, "\n")
}

func (m Model) renderHelp() string {
	h := m.help
	h.ShowAll = true
	styles := m.theme.Styles()
	return m.renderBox("Help", h.View(m.keys)+"\n\n"+styles.FaintText.Render("any key closes"))
}

func (m Model) row(i int, line string) string {
	if i == m.selected {
		return m.theme.Styles().Selected.Render("> " + line)
	}
	return "  " + line
}

func kv(styles Styles, label, value string) string {
	return styles.MutedText.Render(pad(label+":", 16)) + styles.Text.Render(value)
}

func onOff(b bool) string {
	if b {
		return "ok"
	}
	return "down"
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func pad(s string, width int) string {
	s = truncate(s, width)
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}

func displayTime(value string) string {
	if value == "" || value == "None" {
		return "-"
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.Local().Format("2006-01-02 15:04")
	}
	return value
}
