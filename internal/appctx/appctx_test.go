package appctx

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/lookout/internal/nessie"
	"github.com/five82/lookout/internal/nessie/nessietest"
)

func newContext(t *testing.T, srv *nessietest.Server) *AppContext {
	t.Helper()
	client, err := nessie.NewClient(srv.URL)
	require.NoError(t, err)
	ac, err := New(client, Options{})
	require.NoError(t, err)
	t.Cleanup(ac.Close)
	return ac
}

func TestNew_GatewayFailuresReachErrorQueue(t *testing.T) {
	srv := nessietest.New(t)
	srv.Fail("/api/ping", http.StatusBadGateway)
	ac := newContext(t, srv)

	_, err := ac.Bundle(context.Background())
	require.Error(t, err)

	entries := ac.Errors().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, http.StatusBadGateway, entries[0].StatusCode)
	assert.Contains(t, entries[0].ResponseText, "injected failure")
}

func TestReset_ClearsSessionAndErrors(t *testing.T) {
	srv := nessietest.New(t)
	srv.SetProfile(&nessie.Profile{UID: "2040"})
	srv.SetRunnableJobs([]nessie.RunnableJob{{Name: "a", Path: "/api/job/a"}})
	ac := newContext(t, srv)

	require.NotNil(t, ac.Session().Resolve(context.Background()))
	ac.Session().Wait()
	ac.Errors().ReportError(assert.AnError)

	ac.Reset()

	st := ac.Session().Snapshot()
	assert.Nil(t, st.Identity)
	assert.Empty(t, st.RunnableJobs)
	assert.Zero(t, ac.Errors().Len())
	assert.Nil(t, ac.Identity())
}

func TestNew_RequiresGateway(t *testing.T) {
	_, err := New(nil, Options{})
	require.Error(t, err)
}
