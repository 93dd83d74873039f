package kingcounty

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/housing-cli/internal/fetcher"
	"github.com/sells-group/housing-cli/internal/resilience"
	"github.com/sells-group/housing-cli/internal/table"
)

// ErrNoData is returned when an extract parses to zero rows.
var ErrNoData = eris.New("no data returned")

// Options configures a Client.
type Options struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// CacheDir keeps downloaded archives with their ETags between runs. Empty
	// disables caching.
	CacheDir string

	// Retry applies to the whole download-extract-parse sequence.
	Retry resilience.RetryConfig

	// Parallel bounds concurrent downloads in FetchMany. Default 2.
	Parallel int
}

// Client fetches assessor datasets as tables.
type Client struct {
	f    fetcher.Fetcher
	opts Options

	// Serializes cache writes for the same archive.
	mu sync.Mutex
}

// NewClient creates a Client.
func NewClient(f fetcher.Fetcher, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Parallel <= 0 {
		opts.Parallel = 2
	}
	return &Client{f: f, opts: opts}
}

// Fetch downloads a dataset and returns up to limit rows (0 means all).
func (c *Client) Fetch(ctx context.Context, dataset string, limit int) (*table.Table, error) {
	name, err := Resolve(dataset)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, eris.Errorf("kingcounty: limit must be >= 0, got %d", limit)
	}

	retry := c.opts.Retry
	retry.ShouldRetry = func(err error) bool { return !errors.Is(err, ErrNoData) }
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("kingcounty", name)
	}

	t, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*table.Table, error) {
		return c.fetchOnce(ctx, name, limit)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "kingcounty: fetch %s", name)
	}

	zap.L().Info("kingcounty: dataset loaded",
		zap.String("dataset", name),
		zap.Int("rows", t.Len()),
		zap.Int("columns", len(t.Columns())),
	)
	return t, nil
}

// FetchMany fetches several datasets concurrently, keyed by catalog name.
func (c *Client) FetchMany(ctx context.Context, datasets []string, limit int) (map[string]*table.Table, error) {
	var mu sync.Mutex
	out := make(map[string]*table.Table, len(datasets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Parallel)
	for _, ds := range datasets {
		g.Go(func() error {
			name, err := Resolve(ds)
			if err != nil {
				return err
			}
			t, err := c.Fetch(gctx, name, limit)
			if err != nil {
				return err
			}
			mu.Lock()
			out[name] = t
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) fetchOnce(ctx context.Context, name string, limit int) (*table.Table, error) {
	work, err := os.MkdirTemp("", "kingcounty-*")
	if err != nil {
		return nil, eris.Wrap(err, "kingcounty: create work dir")
	}
	defer os.RemoveAll(work) //nolint:errcheck

	archive, err := c.archive(ctx, name, work)
	if err != nil {
		return nil, err
	}

	csvPath, err := fetcher.ExtractZIPSingle(archive, work)
	if err != nil {
		// Some archives ship a readme next to the extract.
		csvPath, err = fetcher.ExtractZIPMatching(archive, ".csv", work)
		if err != nil {
			return nil, eris.Wrapf(err, "kingcounty: unpack %s", name)
		}
	}

	t, err := table.ReadCSVFile(ctx, csvPath, table.CSVOptions{Limit: limit})
	if err != nil {
		return nil, err
	}
	if t.Empty() {
		return nil, ErrNoData
	}
	return t, nil
}

// archive returns the path of the dataset's zip, downloading it into the
// cache (when enabled) or into work.
func (c *Client) archive(ctx context.Context, name, work string) (string, error) {
	url := DatasetURL(c.opts.BaseURL, name)

	if c.opts.CacheDir == "" {
		path := filepath.Join(work, cacheName(name))
		if _, err := c.f.DownloadToFile(ctx, url, path); err != nil {
			return "", eris.Wrapf(err, "kingcounty: download %s", name)
		}
		return path, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.opts.CacheDir, 0o755); err != nil {
		return "", eris.Wrap(err, "kingcounty: create cache dir")
	}
	path := filepath.Join(c.opts.CacheDir, cacheName(name))
	etagPath := path + ".etag"

	etag := ""
	if _, err := os.Stat(path); err == nil {
		if b, err := os.ReadFile(etagPath); err == nil {
			etag = strings.TrimSpace(string(b))
		}
	}

	body, newETag, changed, err := c.f.DownloadIfChanged(ctx, url, etag)
	if err != nil {
		return "", eris.Wrapf(err, "kingcounty: download %s", name)
	}
	if !changed {
		zap.L().Debug("kingcounty: cache hit", zap.String("dataset", name), zap.String("etag", etag))
		return path, nil
	}
	defer body.Close() //nolint:errcheck

	if err := writeAtomic(path, body); err != nil {
		return "", eris.Wrapf(err, "kingcounty: cache %s", name)
	}
	if newETag != "" {
		if err := os.WriteFile(etagPath, []byte(newETag), 0o644); err != nil {
			return "", eris.Wrapf(err, "kingcounty: write etag for %s", name)
		}
	} else {
		_ = os.Remove(etagPath)
	}
	return path, nil
}

// writeAtomic writes r to a sibling temp file and renames it over path.
func writeAtomic(path string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()           //nolint:errcheck
		os.Remove(tmp.Name()) //nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return err
	}
	return os.Rename(tmp.Name(), path)
}
