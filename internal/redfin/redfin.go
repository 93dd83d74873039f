// Package redfin downloads the Redfin listing export for King County, with a
// local file fallback for when the export is blocked.
package redfin

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/housing-cli/internal/fetcher"
	"github.com/sells-group/housing-cli/internal/table"
)

// DefaultURL is the gis-csv export covering King County.
const DefaultURL = "https://www.redfin.com/stingray/api/gis-csv?al=1&cluster_bounds=-123.04941%2046.84777%2C-121.01694%2046.84777%2C-121.01694%2047.92442%2C-123.04941%2047.92442%2C-123.04941%2046.84777&market=seattle&min_stories=1&num_homes=5000&ord=redfin-recommended-asc&page_number=1&region_id=118&region_type=5&sf=1,2,3,5,6,7&status=1&uipt=1,2,3,4,5,6&v=8"

// DefaultFallbackPath is where a manually saved export is expected.
const DefaultFallbackPath = "data/redfin/All_King_Redfin.csv"

// ErrBlocked is returned when Redfin answers with its bot-detection page.
var ErrBlocked = eris.New("redfin: request blocked as spam bot")

var blockedMarker = []byte("spam bot")

// Redfin appends this notice as a data row.
const mlsNotice = "In accordance with local MLS rules"

// Options configures a Client.
type Options struct {
	// URL defaults to DefaultURL.
	URL string

	// FallbackPath is loaded when the download fails. Empty disables the
	// fallback.
	FallbackPath string
}

// Client retrieves listing exports.
type Client struct {
	f    fetcher.Fetcher
	opts Options
}

// NewClient creates a Client.
func NewClient(f fetcher.Fetcher, opts Options) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	return &Client{f: f, opts: opts}
}

// Get downloads the export, falling back to the local file when the
// download fails and a fallback is configured.
func (c *Client) Get(ctx context.Context) (*table.Table, error) {
	t, err := c.Download(ctx)
	if err == nil {
		return t, nil
	}
	if c.opts.FallbackPath == "" || ctx.Err() != nil {
		return nil, err
	}

	zap.L().Warn("redfin: download failed, using fallback file",
		zap.String("path", c.opts.FallbackPath),
		zap.Error(err),
	)
	return c.LoadFallback(ctx)
}

// Download fetches the live export.
func (c *Client) Download(ctx context.Context) (*table.Table, error) {
	body, err := c.f.Download(ctx, c.opts.URL)
	if err != nil {
		return nil, eris.Wrap(err, "redfin: download")
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrap(err, "redfin: read body")
	}
	if bytes.Contains(data, blockedMarker) {
		return nil, ErrBlocked
	}

	t, err := table.ReadCSV(ctx, fetcher.DecodeText(data), table.CSVOptions{})
	if err != nil {
		return nil, eris.Wrap(err, "redfin: parse export")
	}
	t = dropNotice(t)

	zap.L().Info("redfin: export downloaded", zap.Int("rows", t.Len()))
	return t, nil
}

// LoadFallback reads the configured local export.
func (c *Client) LoadFallback(ctx context.Context) (*table.Table, error) {
	if c.opts.FallbackPath == "" {
		return nil, eris.New("redfin: no fallback file configured")
	}
	t, err := table.ReadCSVFile(ctx, c.opts.FallbackPath, table.CSVOptions{})
	if err != nil {
		return nil, eris.Wrap(err, "redfin: load fallback")
	}
	return dropNotice(t), nil
}

func dropNotice(t *table.Table) *table.Table {
	cols := t.Columns()
	if len(cols) == 0 {
		return t
	}
	first := cols[0]
	return t.Filter(func(r table.Record) bool {
		return !strings.HasPrefix(r.Get(first), mlsNotice)
	})
}
