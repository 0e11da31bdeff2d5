package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/lookout/internal/nessie"
	"github.com/five82/lookout/internal/nessie/nessietest"
)

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	root := NewRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func signedIn(t *testing.T) *nessietest.Server {
	t.Helper()
	srv := nessietest.New(t)
	srv.RequireSession(true)
	srv.SetProfile(&nessie.Profile{UID: "2040", Name: "Oski Bear", Title: "Mascot"})
	return srv
}

func against(srv *nessietest.Server, cookie bool, args ...string) []string {
	args = append(args, "--base-url", srv.URL)
	if cookie {
		args = append(args, "--session-cookie", nessietest.SessionCookie)
	}
	return args
}

func TestVersionPrintsClientVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", stdout)
}

func TestVersionServerUsesConfigBundle(t *testing.T) {
	srv := nessietest.New(t)
	stdout, _, err := executeCLI(t, against(srv, false, "version", "--server", "-o", "json")...)
	require.NoError(t, err)

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, "4.2.0", info.Server)
	assert.Equal(t, "test", info.Env)
	assert.Equal(t, 1, srv.Hits("/api/config"))
}

func TestNavShowsRedirectToLogin(t *testing.T) {
	srv := nessietest.New(t)
	stdout, _, err := executeCLI(t, against(srv, false, "nav", "/schedule", "-o", "json")...)
	require.NoError(t, err)

	var hops []navHop
	require.NoError(t, json.Unmarshal([]byte(stdout), &hops))
	require.Len(t, hops, 2)
	assert.Equal(t, "auth-required", hops[0].Reason)
	assert.Equal(t, "/login", hops[0].Target)
	assert.Equal(t, "/schedule", hops[0].Next)
	assert.Equal(t, "allowed", hops[1].Reason)
	assert.Equal(t, "/login", hops[1].Target)
	assert.Equal(t, "/schedule", hops[1].Next)
}

func TestNavSignedInLoginGoesHome(t *testing.T) {
	srv := signedIn(t)
	stdout, _, err := executeCLI(t, against(srv, true, "nav", "/login", "-o", "json")...)
	require.NoError(t, err)

	var hops []navHop
	require.NoError(t, json.Unmarshal([]byte(stdout), &hops))
	require.Len(t, hops, 2)
	assert.Equal(t, "already-authenticated", hops[0].Reason)
	assert.Equal(t, "/home", hops[1].Target)
}

func TestWhoamiAnonymous(t *testing.T) {
	srv := nessietest.New(t)
	_, _, err := executeCLI(t, against(srv, false, "whoami")...)
	require.ErrorIs(t, err, errNotSignedIn)
}

func TestWhoamiWithSessionCookie(t *testing.T) {
	srv := signedIn(t)
	stdout, _, err := executeCLI(t, against(srv, true, "whoami", "-o", "yaml")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "uid: \"2040\"")
	assert.Contains(t, stdout, "name: Oski Bear")
}

func TestSessionCookieFromEnvironment(t *testing.T) {
	srv := signedIn(t)
	t.Setenv("LOOKOUT_SESSION_COOKIE", nessietest.SessionCookie)
	t.Setenv("LOOKOUT_BASE_URL", srv.URL)

	stdout, _, err := executeCLI(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Oski Bear")
}

func TestConfigFileSuppliesBaseURL(t *testing.T) {
	srv := signedIn(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "base_url = \"" + srv.URL + "\"\nsession_cookie = \"" + nessietest.SessionCookie + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	stdout, _, err := executeCLI(t, "whoami", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "2040")
}

func TestProtectedCommandsRequireSession(t *testing.T) {
	for _, args := range [][]string{
		{"jobs"},
		{"run", "refresh_lrs"},
		{"start", "refresh_lrs"},
		{"status"},
		{"schedule", "list"},
		{"schedule", "reload"},
	} {
		t.Run(args[0], func(t *testing.T) {
			srv := nessietest.New(t)
			_, _, err := executeCLI(t, against(srv, false, args...)...)
			require.ErrorIs(t, err, errNotAuthorized)
			assert.Contains(t, err.Error(), "/login")
			assert.Zero(t, srv.Hits("/api/schedule"))
			assert.Zero(t, srv.Hits("/api/admin/background_job_status"))
		})
	}
}

func TestJobsListsRunnableJobs(t *testing.T) {
	srv := signedIn(t)
	srv.SetRunnableJobs([]nessie.RunnableJob{
		{Name: "refresh_lrs", Path: "/api/job/refresh_lrs", Methods: []string{"POST"}},
	})

	stdout, _, err := executeCLI(t, against(srv, true, "jobs", "-o", "json")...)
	require.NoError(t, err)

	var jobs []nessie.RunnableJob
	require.NoError(t, json.Unmarshal([]byte(stdout), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "refresh_lrs", jobs[0].Name)
}

func TestRunByName(t *testing.T) {
	srv := signedIn(t)
	srv.SetRunnableJobs([]nessie.RunnableJob{
		{Name: "refresh_lrs", Path: "/api/job/refresh_lrs", Methods: []string{"POST"}},
	})

	stdout, _, err := executeCLI(t, against(srv, true, "run", "refresh_lrs")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "started")
	assert.Equal(t, 1, srv.Hits("/api/job/refresh_lrs"))
}

func TestRunRejectsJobsNeedingArguments(t *testing.T) {
	srv := signedIn(t)
	srv.SetRunnableJobs([]nessie.RunnableJob{
		{Name: "import_term", Path: "/api/job/import_term/<term_id>", Required: []string{"term_id"}},
	})

	_, _, err := executeCLI(t, against(srv, true, "run", "import_term")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "term_id")
}

func TestRunUnknownJob(t *testing.T) {
	srv := signedIn(t)
	_, _, err := executeCLI(t, against(srv, true, "run", "nope")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no runnable job")
}

func TestStartReportsJobsThatDidNotStart(t *testing.T) {
	srv := signedIn(t)

	stdout, _, err := executeCLI(t, against(srv, true, "start", "refresh_lrs")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "started")

	_, _, err = executeCLI(t, against(srv, true, "start", "broken_job")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "errored")
}

func TestStatusRejectsBadDate(t *testing.T) {
	srv := signedIn(t)
	_, _, err := executeCLI(t, against(srv, true, "status", "--date", "yesterday")...)
	require.Error(t, err)
	assert.Zero(t, srv.Hits("/api/admin/background_job_status"))
}

func TestStatusForDay(t *testing.T) {
	srv := signedIn(t)
	srv.SetJobStatuses([]nessie.JobStatus{{ID: "refresh_lrs", Status: "succeeded"}})

	stdout, _, err := executeCLI(t, against(srv, true, "status", "--date", "2026-10-14", "-o", "json")...)
	require.NoError(t, err)

	var rows []nessie.JobStatus
	require.NoError(t, json.Unmarshal([]byte(stdout), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "succeeded", rows[0].Status)
}

func TestScheduleListTable(t *testing.T) {
	srv := signedIn(t)
	srv.SetSchedule([]nessie.ScheduledJob{
		{ID: "refresh_lrs", Trigger: "cron[hour='3']", NextRun: "2026-10-16T03:00:00Z"},
		{ID: "sync_canvas", Trigger: "cron[hour='4']"},
	})

	stdout, _, err := executeCLI(t, against(srv, true, "schedule", "list")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "refresh_lrs")
	assert.Contains(t, stdout, "sync_canvas")
	assert.Contains(t, stdout, "paused")
}

func TestScheduleArgsSendsTypedValues(t *testing.T) {
	srv := signedIn(t)
	srv.SetSchedule([]nessie.ScheduledJob{{ID: "refresh_lrs", NextRun: "2026-10-16T03:00:00Z"}})

	_, _, err := executeCLI(t, against(srv, true,
		"schedule", "args", "refresh_lrs", "--arg", "term_id=2268", "--arg", "dry_run=true")...)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(srv.LastBody("/api/schedule/refresh_lrs/args"), &body))
	assert.Equal(t, float64(2268), body["term_id"])
	assert.Equal(t, true, body["dry_run"])
}

func TestScheduleSetRequiresFields(t *testing.T) {
	srv := signedIn(t)
	srv.SetSchedule([]nessie.ScheduledJob{{ID: "refresh_lrs"}})

	_, _, err := executeCLI(t, against(srv, true, "schedule", "set", "refresh_lrs")...)
	require.Error(t, err)
	assert.Zero(t, srv.Hits("/api/schedule/refresh_lrs"))
}

func TestSchedulePauseAndDelete(t *testing.T) {
	srv := signedIn(t)
	srv.SetSchedule([]nessie.ScheduledJob{
		{ID: "refresh_lrs", NextRun: "2026-10-16T03:00:00Z"},
		{ID: "sync_canvas", NextRun: "2026-10-16T04:00:00Z"},
	})

	stdout, _, err := executeCLI(t, against(srv, true, "schedule", "pause", "refresh_lrs", "-o", "json")...)
	require.NoError(t, err)
	var paused []nessie.ScheduledJob
	require.NoError(t, json.Unmarshal([]byte(stdout), &paused))
	require.Len(t, paused, 1)
	assert.True(t, paused[0].Paused())

	stdout, _, err = executeCLI(t, against(srv, true, "schedule", "delete", "sync_canvas", "-o", "json")...)
	require.NoError(t, err)
	var remaining []nessie.ScheduledJob
	require.NoError(t, json.Unmarshal([]byte(stdout), &remaining))
	require.Len(t, remaining, 1)
	assert.Equal(t, "refresh_lrs", remaining[0].ID)
}

func TestLogoutPrintsCASURL(t *testing.T) {
	srv := signedIn(t)
	stdout, _, err := executeCLI(t, against(srv, true, "logout")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "/cas/logout")

	_, _, err = executeCLI(t, against(srv, true, "whoami")...)
	require.ErrorIs(t, err, errNotSignedIn)
}

func TestLoginURL(t *testing.T) {
	srv := nessietest.New(t)
	stdout, _, err := executeCLI(t, against(srv, false, "login-url", "-o", "json")...)
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &payload))
	assert.Contains(t, payload["casLoginURL"], "/cas/login")
}

func TestServerFailuresAreLogged(t *testing.T) {
	srv := signedIn(t)
	srv.Fail("/api/schedule", 500)

	_, stderr, err := executeCLI(t, against(srv, true, "schedule", "list")...)
	require.Error(t, err)
	assert.Contains(t, stderr, "server problem")
	assert.Contains(t, stderr, "status=500")
}

func TestLogsFiltersByNavigation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "lookout.log")
	content := `time=2026-10-15T09:30:00Z level=DEBUG msg="navigation state" nav=one target=/schedule
time=2026-10-15T09:30:01Z level=INFO msg="navigation decided" nav=one target=/schedule
time=2026-10-15T09:30:02Z level=INFO msg="navigation decided" nav=two target=/login
`
	require.NoError(t, os.WriteFile(logPath, []byte(content), 0o644))
	configPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("log_file = \""+logPath+"\"\n"), 0o644))

	stdout, _, err := executeCLI(t, "logs", "--config", configPath, "--nav", "one", "--level", "info", "-o", "json")
	require.NoError(t, err)

	var rows []logRow
	require.NoError(t, json.Unmarshal([]byte(stdout), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "navigation decided", rows[0].Msg)
	assert.Equal(t, "/schedule", rows[0].Target)
}

func TestInvalidOutputFormat(t *testing.T) {
	_, _, err := executeCLI(t, "whoami", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
}

func TestParseValues(t *testing.T) {
	got, err := parseValues(map[string]string{
		"hour":        "3",
		"day_of_week": "mon-fri",
		"dry_run":     "true",
		"list":        "[1, 2]",
		"blank":       "",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"hour":        float64(3),
		"day_of_week": "mon-fri",
		"dry_run":     true,
		"list":        "[1, 2]",
		"blank":       "",
	}, got)

	_, err = parseValues(map[string]string{" ": "x"})
	require.Error(t, err)
}
