package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/housing-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

var testMatches = []model.Match{
	{MLS: 777, Major: 200, Minor: 2, Kind: model.MatchFuzzy, Score: 14.0 / 17.0, ListingAddress: "456 oak avenue", CountyAddress: "456 oak ave"},
	{MLS: 555, Major: 100, Minor: 1, Kind: model.MatchExact, Score: 1, ListingAddress: "123 main st", CountyAddress: "123 main st"},
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "county.csv", "redfin.csv")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "county.csv", got.CountyPath)
	assert.Equal(t, "redfin.csv", got.ListingPath)
	assert.Nil(t, got.CompletedAt)

	stats := model.RunStats{CountyRows: 10, ListingRows: 4, ExactMatches: 1, FuzzyMatches: 1, Unmatched: 2, FuzzyGroups: 1}
	require.NoError(t, st.CompleteRun(ctx, run.ID, stats))

	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, stats, got.Stats)
	require.NotNil(t, got.CompletedAt)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLite_FailRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "", "")
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, run.ID, errors.New("kingcounty: fetch Parcel: no data returned")))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "kingcounty: fetch Parcel: no data returned", got.Error)
	assert.NotNil(t, got.CompletedAt)
}

func TestSQLite_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, st.CompleteRun(ctx, "missing", model.RunStats{}), ErrNotFound)
	assert.ErrorIs(t, st.FailRun(ctx, "missing", nil), ErrNotFound)
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var ids []string
	for range 3 {
		r, err := st.CreateRun(ctx, "c.csv", "l.csv")
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}
	require.NoError(t, st.CompleteRun(ctx, ids[0], model.RunStats{}))

	all, err := st.ListRuns(ctx, model.RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	running, err := st.ListRuns(ctx, model.RunFilter{Status: model.RunStatusRunning})
	require.NoError(t, err)
	assert.Len(t, running, 2)

	complete, err := st.ListRuns(ctx, model.RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, ids[0], complete[0].ID)

	page, err := st.ListRuns(ctx, model.RunFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestSQLite_Matches(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "c.csv", "l.csv")
	require.NoError(t, err)

	n, err := st.SaveMatches(ctx, run.ID, testMatches)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := st.ListMatches(ctx, run.ID, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, testMatches[1], got[0], "ordered by MLS")
	assert.Equal(t, testMatches[0].MLS, got[1].MLS)
	assert.InDelta(t, testMatches[0].Score, got[1].Score, 1e-9)

	fuzzy, err := st.ListMatches(ctx, run.ID, model.MatchFuzzy)
	require.NoError(t, err)
	require.Len(t, fuzzy, 1)
	assert.Equal(t, int64(777), fuzzy[0].MLS)

	none, err := st.ListMatches(ctx, "other-run", "")
	require.NoError(t, err)
	assert.Empty(t, none)

	n, err = st.SaveMatches(ctx, run.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_Malformed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "c.csv", "l.csv")
	require.NoError(t, err)

	keys := []model.MalformedKey{
		{MLS: "888", Major: "abc", Minor: "1", Kind: model.MatchExact, Reason: `Major "abc" is not an integer`},
	}
	_, err = st.SaveMalformed(ctx, run.ID, keys)
	require.NoError(t, err)

	// Saving again replaces rather than duplicates.
	keys[0].Reason = "updated"
	_, err = st.SaveMalformed(ctx, run.ID, keys)
	require.NoError(t, err)

	got, err := st.ListMalformed(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "updated", got[0].Reason)
	assert.Equal(t, model.MatchExact, got[0].Kind)
}

func TestSQLite_MatchesRequireRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.SaveMatches(context.Background(), "no-such-run", testMatches)
	assert.Error(t, err)
}

func TestNewSQLite_EmptyDSN(t *testing.T) {
	_, err := NewSQLite("")
	assert.Error(t, err)
}
