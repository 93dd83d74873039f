package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLite(t *testing.T) {
	st, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	assert.IsType(t, &SQLiteStore{}, st)
	assert.NoError(t, st.Migrate(context.Background()))
}

func TestOpen_DefaultsToSQLite(t *testing.T) {
	st, err := Open(context.Background(), Config{DSN: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	assert.IsType(t, &SQLiteStore{}, st)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown driver "mysql"`)
}

func TestOpen_PostgresBadDSN(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: DriverPostgres, DSN: "not a url ::"})
	assert.Error(t, err)
}

func TestListLimit(t *testing.T) {
	assert.Equal(t, 100, listLimit(0))
	assert.Equal(t, 100, listLimit(-1))
	assert.Equal(t, 5, listLimit(5))
}
