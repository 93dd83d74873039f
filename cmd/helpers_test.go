//go:build !integration

package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/housing-cli/internal/config"
	"github.com/sells-group/housing-cli/internal/store"
	"github.com/sells-group/housing-cli/internal/table"
)

// useTestConfig installs a config rooted in a temp dir for the test.
func useTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	prev := cfg
	cfg = &config.Config{
		Store:  config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(dir, "housing.db")},
		Fetch:  config.FetchConfig{TimeoutSecs: 5, MaxAttempts: 1},
		Match:  config.MatchConfig{Cutoff: 0.6, Scorer: "ratio", Workers: 2, UnitTokens: []string{"unit"}},
		Export: config.ExportConfig{Dir: filepath.Join(dir, "output"), Sheet: "Sheet1"},
		Server: config.ServerConfig{Port: 8080, CORSOrigins: []string{"*"}},
	}
	t.Cleanup(func() { cfg = prev })
	return cfg
}

func openTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := initStore(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func countyFixture() *table.Table {
	return table.MustNew([]string{"Major", "Minor", "Address", "ZipCode", "Building Grade"}, [][]string{
		{"100", "1", "123 Main St", "98101", "Average"},
		{"200", "2", "456 Oak Ave", "98102", "Good"},
	})
}

func listingFixture() *table.Table {
	return table.MustNew([]string{"MLS#", "ADDRESS", "ZIP OR POSTAL CODE", "PRICE"}, [][]string{
		{"555", "123 main st", "98101", "500000"},
		{"777", "456 Oak Avenue", "98102", "650000"},
		{"888", "1 Nowhere Rd", "98103", "300000"},
	})
}
