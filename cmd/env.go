package main

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/housing-cli/internal/export"
	"github.com/sells-group/housing-cli/internal/fetcher"
	"github.com/sells-group/housing-cli/internal/join"
	"github.com/sells-group/housing-cli/internal/kingcounty"
	"github.com/sells-group/housing-cli/internal/redfin"
	"github.com/sells-group/housing-cli/internal/resilience"
	"github.com/sells-group/housing-cli/internal/store"
	"github.com/sells-group/housing-cli/internal/table"
)

func retryConfig() resilience.RetryConfig {
	return resilience.FromRetryConfig(cfg.Fetch.MaxAttempts, cfg.Fetch.InitialWaitMS, 0)
}

func newFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		Retry:     retryConfig(),
	})
}

func newCountyClient(f fetcher.Fetcher) *kingcounty.Client {
	return kingcounty.NewClient(f, kingcounty.Options{
		BaseURL:  cfg.KingCounty.BaseURL,
		CacheDir: cfg.KingCounty.CacheDir,
		Retry:    retryConfig(),
		Parallel: cfg.KingCounty.Parallel,
	})
}

func newRedfinClient(f fetcher.Fetcher) *redfin.Client {
	return redfin.NewClient(f, redfin.Options{
		URL:          cfg.Redfin.URL,
		FallbackPath: cfg.Redfin.FallbackPath,
	})
}

func newJoiner() (*join.Joiner, error) {
	scorer, err := join.ScorerByName(cfg.Match.Scorer)
	if err != nil {
		return nil, err
	}
	return join.New(join.Options{
		Cutoff:     cfg.Match.Cutoff,
		Scorer:     scorer,
		Workers:    cfg.Match.Workers,
		UnitTokens: cfg.Match.UnitTokens,
	})
}

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, store.Config{
		Driver: cfg.Store.Driver,
		DSN:    cfg.Store.DSN(),
		Pool:   &store.PoolConfig{MaxConns: cfg.Store.MaxConns, MinConns: cfg.Store.MinConns},
	})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// loadTable reads a CSV or XLSX file into a table.
func loadTable(ctx context.Context, path string) (*table.Table, error) {
	if path == "" {
		return nil, eris.New("input path is required")
	}
	if export.FormatFor(path) == export.FormatXLSX {
		return export.ReadXLSX(path, "")
	}
	return table.ReadCSVFile(ctx, path, table.CSVOptions{})
}

func writeTableTo(w io.Writer, t *table.Table) error {
	return export.EncodeCSV(w, t)
}

func writeTable(path string, t *table.Table) error {
	if export.FormatFor(path) == export.FormatXLSX {
		return export.WriteXLSX(path, t, cfg.Export.Sheet)
	}
	return export.WriteCSV(path, t)
}

// splitList splits comma or whitespace separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, f := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, f)
		}
	}
	return out
}
