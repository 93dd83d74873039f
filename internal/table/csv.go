package table

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/housing-cli/internal/fetcher"
)

// CSVOptions configures ReadCSV.
type CSVOptions struct {
	// Limit caps the number of data rows read. 0 reads everything.
	Limit int

	// Delimiter defaults to ','.
	Delimiter rune
}

// ReadCSV loads a headed CSV stream into a Table. Header names are trimmed and
// a leading byte order mark is dropped.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions) (*Table, error) {
	if opts.Limit < 0 {
		return nil, eris.Errorf("table: read csv: negative limit %d", opts.Limit)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		Delimiter:  opts.Delimiter,
		HasHeader:  true,
		HeaderCh:   headerCh,
		LazyQuotes: true,
	})

	var rows [][]string
	limited := false
	for row := range rowCh {
		if opts.Limit > 0 && len(rows) == opts.Limit {
			limited = true
			cancel()
			continue
		}
		rows = append(rows, row)
	}
	// Stopping early surfaces as a cancellation error, which is expected.
	if err := <-errCh; err != nil && !limited {
		return nil, eris.Wrap(err, "table: read csv")
	}

	var header []string
	select {
	case header = <-headerCh:
	default:
		return nil, eris.New("table: read csv: missing header row")
	}

	cols := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		cols[i] = strings.TrimSpace(h)
	}
	return New(cols, rows)
}

// ReadCSVFile loads a CSV file, decoding it as Latin-1 when it is not valid
// UTF-8.
func ReadCSVFile(ctx context.Context, path string, opts CSVOptions) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "table: read %s", path)
	}
	t, err := ReadCSV(ctx, fetcher.DecodeText(data), opts)
	if err != nil {
		return nil, eris.Wrapf(err, "table: load %s", path)
	}
	return t, nil
}
