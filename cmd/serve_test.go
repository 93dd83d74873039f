//go:build !integration

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/housing-cli/internal/model"
	"github.com/sells-group/housing-cli/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, store.Store, string) {
	t.Helper()
	useTestConfig(t)
	st := openTestStore(t)

	jr, err := runJoin(context.Background(), st, joinInput{County: countyFixture(), Listing: listingFixture()})
	require.NoError(t, err)

	srv := httptest.NewServer(buildRouter(st, []string{"*"}))
	t.Cleanup(srv.Close)
	return srv, st, jr.Run.ID
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec,noctx
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func TestServe_Health(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var body map[string]string
	resp := getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "ok", body["status"])
}

func TestServe_ListRuns(t *testing.T) {
	srv, _, id := newTestServer(t)

	var runs []model.Run
	resp := getJSON(t, srv.URL+"/runs?status=complete&limit=5", &runs)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)

	runs = nil
	getJSON(t, srv.URL+"/runs?status=failed", &runs)
	assert.Empty(t, runs)
	assert.NotNil(t, runs)
}

func TestServe_ListRunsBadParams(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := getJSON(t, srv.URL+"/runs?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = getJSON(t, srv.URL+"/runs?offset=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServe_GetRun(t *testing.T) {
	srv, _, id := newTestServer(t)

	var run model.Run
	resp := getJSON(t, srv.URL+"/runs/"+id, &run)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 1, run.Stats.ExactMatches)

	var body map[string]string
	resp = getJSON(t, srv.URL+"/runs/missing", &body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "run not found", body["error"])
}

func TestServe_Matches(t *testing.T) {
	srv, _, id := newTestServer(t)

	var matches []model.Match
	resp := getJSON(t, srv.URL+"/runs/"+id+"/matches", &matches)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, matches, 2)

	matches = nil
	getJSON(t, srv.URL+"/runs/"+id+"/matches?kind=fuzzy", &matches)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(777), matches[0].MLS)

	resp = getJSON(t, srv.URL+"/runs/"+id+"/matches?kind=partial", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = getJSON(t, srv.URL+"/runs/missing/matches", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServe_Malformed(t *testing.T) {
	srv, _, id := newTestServer(t)

	var keys []model.MalformedKey
	resp := getJSON(t, srv.URL+"/runs/"+id+"/malformed", &keys)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, keys)
	assert.NotNil(t, keys)
}

func TestServe_CORS(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestIntParam(t *testing.T) {
	n, err := intParam("")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = intParam("25")
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	_, err = intParam("-3")
	assert.Error(t, err)
}
