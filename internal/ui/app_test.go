package ui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/lookout/internal/appctx"
	"github.com/five82/lookout/internal/guard"
	"github.com/five82/lookout/internal/nessie"
	"github.com/five82/lookout/internal/nessie/nessietest"
	"github.com/five82/lookout/internal/prefs"
	"github.com/five82/lookout/internal/state"
)

func newTestModel(t *testing.T, srv *nessietest.Server) (Model, *appctx.AppContext) {
	t.Helper()
	client, err := nessie.NewClient(srv.URL)
	require.NoError(t, err)
	ac, err := appctx.New(client, appctx.Options{})
	require.NoError(t, err)
	t.Cleanup(ac.Close)

	table, err := guard.NewTable(guard.DefaultRoutes(), guard.PathLogin, guard.PathHome)
	require.NoError(t, err)

	m := New(Options{
		Context:   context.Background(),
		Navigator: guard.NewNavigator(guard.New(ac, table)),
		App:       ac,
		Client:    client,
		Store:     &state.Store{},
		PrefsPath: filepath.Join(t.TempDir(), "prefs.toml"),
	})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 160, Height: 40})
	return updated.(Model), ac
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// navigateTo runs a navigation synchronously, the way the program would
// deliver its result.
func navigateTo(t *testing.T, m Model, path string) Model {
	t.Helper()
	msg := navigateCmd(m.ctx, m.nav, path)()
	updated, cmd := m.Update(msg)
	m = updated.(Model)
	if cmd != nil {
		updated, _ = m.Update(cmd())
		m = updated.(Model)
	}
	return m
}

func TestView_LoadingBeforeWindowSize(t *testing.T) {
	m := New(Options{})
	assert.Equal(t, "Loading...", m.View())
}

func TestNavigate_AnonymousScheduleShowsLogin(t *testing.T) {
	m, _ := newTestModel(t, nessietest.New(t))

	m = navigateTo(t, m, guard.PathSchedule)

	assert.Equal(t, guard.PathLogin, m.route)
	assert.Equal(t, guard.PathSchedule, m.decision.Next)
	assert.Contains(t, m.View(), "Log in")
	assert.Contains(t, m.View(), "signed out")
}

func TestNavigate_SignedInShowsSchedule(t *testing.T) {
	srv := nessietest.New(t)
	srv.SetProfile(&nessie.Profile{UID: "2040", Name: "Oski Bear"})
	m, _ := newTestModel(t, srv)

	m = navigateTo(t, m, guard.PathSchedule)

	assert.Equal(t, guard.PathSchedule, m.route)
	assert.Contains(t, m.View(), "Oski Bear")
}

func TestKey_StartsGuardedNavigation(t *testing.T) {
	m, _ := newTestModel(t, nessietest.New(t))

	updated, cmd := m.Update(runes("2"))
	m = updated.(Model)
	assert.True(t, m.navigating)
	assert.Equal(t, guard.PathSchedule, m.pending)
	assert.NotNil(t, cmd)

	// Route keys are ignored while a navigation is in flight.
	updated, cmd = m.Update(runes("3"))
	assert.Equal(t, guard.PathSchedule, updated.(Model).pending)
	assert.Nil(t, cmd)
}

func TestProblems_DismissAndClear(t *testing.T) {
	m, ac := newTestModel(t, nessietest.New(t))
	m = navigateTo(t, m, guard.PathHome)

	ac.Errors().ReportError(errors.New("first"))
	ac.Errors().ReportError(errors.New("second"))
	ac.Errors().ReportError(errors.New("third"))

	updated, cmd := m.Update(runes("p"))
	m = updated.(Model)
	updated, _ = m.Update(cmd())
	m = updated.(Model)
	require.True(t, m.showProblems)
	require.Len(t, m.problems, 3)
	assert.Contains(t, m.View(), "second")

	updated, cmd = m.Update(runes("d"))
	m = updated.(Model)
	updated, _ = m.Update(cmd())
	m = updated.(Model)
	require.Len(t, m.problems, 2)
	assert.Equal(t, "second", m.problems[0].Message)

	updated, cmd = m.Update(runes("c"))
	m = updated.(Model)
	updated, _ = m.Update(cmd())
	m = updated.(Model)
	assert.Empty(t, m.problems)
	assert.Zero(t, ac.Errors().Len())

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, updated.(Model).showProblems)
}

func TestOverlayClose_ResetsSelectionForRouteRows(t *testing.T) {
	srv := nessietest.New(t)
	srv.SetProfile(&nessie.Profile{UID: "2040"})
	m, ac := newTestModel(t, srv)
	m = navigateTo(t, m, guard.PathSchedule)
	require.Equal(t, "schedule", m.routeName())

	m.store.Update([]nessie.ScheduledJob{{ID: "refresh_canvas"}}, nil, nil)
	ac.Errors().ReportError(errors.New("first"))
	ac.Errors().ReportError(errors.New("second"))
	ac.Errors().ReportError(errors.New("third"))

	updated, cmd := m.Update(runes("p"))
	m = updated.(Model)
	updated, _ = m.Update(cmd())
	m = updated.(Model)
	updated, _ = m.Update(runes("G"))
	m = updated.(Model)
	require.Equal(t, 2, m.selected)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(Model)
	assert.False(t, m.showProblems)
	assert.Equal(t, 0, m.selected)

	updated, cmd = m.Update(runes("r"))
	assert.NotNil(t, cmd)

	// A selection past the end of the rows does nothing.
	m = updated.(Model)
	m.selected = 4
	assert.NotPanics(t, func() {
		_, cmd = m.Update(runes("r"))
	})
	assert.Nil(t, cmd)
	assert.NotPanics(t, func() {
		_, cmd = m.Update(runes("P"))
	})
	assert.Nil(t, cmd)
}

func TestJobsRoute_OpenIgnoresStaleSelection(t *testing.T) {
	srv := nessietest.New(t)
	srv.SetProfile(&nessie.Profile{UID: "2040"})
	srv.SetRunnableJobs([]nessie.RunnableJob{{Name: "refresh_canvas", Path: "/api/job/refresh_canvas"}})
	m, ac := newTestModel(t, srv)
	m = navigateTo(t, m, guard.PathJobs)
	ac.Session().Wait()
	updated, _ := m.Update(m.fetchSnapshot()())
	m = updated.(Model)
	require.Equal(t, "jobs", m.routeName())

	m.selected = 3
	var cmd tea.Cmd
	assert.NotPanics(t, func() {
		updated, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	})
	assert.Nil(t, cmd)
	assert.False(t, updated.(Model).navigating)
}

func TestRefreshKey_RefreshesOnce(t *testing.T) {
	m, _ := newTestModel(t, nessietest.New(t))
	calls := 0
	m.refresh = func(context.Context) error {
		calls++
		return nil
	}

	_, cmd := m.Update(runes("f"))
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, actionMsg{notice: "Refreshed"}, msg)
	assert.Equal(t, 1, calls)

	// Other actions still refresh after they succeed.
	_ = m.actionCmd("done", func(context.Context) error { return nil })()
	assert.Equal(t, 2, calls)
}

func TestLogOverlay_ShowsTailOfLogFile(t *testing.T) {
	m, _ := newTestModel(t, nessietest.New(t))
	m = navigateTo(t, m, guard.PathHome)

	m.logPath = filepath.Join(t.TempDir(), "lookout.log")
	content := "time=2026-10-15T09:30:00Z level=INFO msg=\"navigation decided\" nav=one target=/home\n" +
		"time=2026-10-15T09:30:05Z level=WARN msg=\"poll failed\" error=boom\n"
	require.NoError(t, os.WriteFile(m.logPath, []byte(content), 0o644))

	updated, cmd := m.Update(runes("L"))
	m = updated.(Model)
	require.True(t, m.showLog)
	require.NotNil(t, cmd)
	updated, _ = m.Update(cmd())
	m = updated.(Model)
	require.Len(t, m.logLines, 2)
	assert.Contains(t, m.View(), "poll failed")

	updated, _ = m.Update(runes("p"))
	m = updated.(Model)
	assert.False(t, m.showLog)
	assert.True(t, m.showProblems)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(Model)
	assert.False(t, m.showProblems)
	assert.False(t, m.showLog)
}

func TestCycleTheme_SavesPrefs(t *testing.T) {
	m, _ := newTestModel(t, nessietest.New(t))
	require.Equal(t, "Dracula", m.theme.Name)

	updated, _ := m.Update(runes("T"))
	m = updated.(Model)
	assert.Equal(t, "Slate", m.theme.Name)
	assert.Equal(t, "Slate", prefs.Load(m.prefsPath).Theme)
}

func TestNavigate_SavesLastContentRoute(t *testing.T) {
	srv := nessietest.New(t)
	srv.SetProfile(&nessie.Profile{UID: "2040"})
	m, _ := newTestModel(t, srv)

	m = navigateTo(t, m, guard.PathStatus)
	assert.Equal(t, guard.PathStatus, prefs.Load(m.prefsPath).LastRoute)
}

func TestJobRoute_RunRequiresArguments(t *testing.T) {
	srv := nessietest.New(t)
	srv.SetProfile(&nessie.Profile{UID: "2040"})
	srv.SetRunnableJobs([]nessie.RunnableJob{{
		Name:     "import_term",
		Path:     "/api/job/import_term/<term_id>",
		Required: []string{"term_id"},
	}})
	m, ac := newTestModel(t, srv)

	m = navigateTo(t, m, "/job/import_term")
	ac.Session().Wait()
	updated, _ := m.Update(m.fetchSnapshot()())
	m = updated.(Model)
	require.Equal(t, "job", m.routeName())

	updated, cmd := m.Update(runes("r"))
	m = updated.(Model)
	assert.Nil(t, cmd)
	assert.Contains(t, m.notice, "term_id")
}

func TestStartedOrErr(t *testing.T) {
	assert.NoError(t, startedOrErr(&nessie.JobResult{Status: "started"}, nil))

	var notStarted *jobNotStartedError
	require.ErrorAs(t, startedOrErr(&nessie.JobResult{Status: "errored"}, nil), &notStarted)
	assert.Equal(t, "errored", notStarted.status)

	boom := errors.New("boom")
	assert.ErrorIs(t, startedOrErr(nil, boom), boom)
}
