package table

import "github.com/rotisserie/eris"

// JoinOptions configures LeftJoin.
type JoinOptions struct {
	// On lists the key columns; both tables must carry them.
	On []string

	// Normalize canonicalizes a key value before comparison. A key part that
	// normalizes to "" is null and never matches.
	Normalize func(col, v string) string

	// FirstMatch joins each left row to at most the first matching right row.
	FirstMatch bool

	// Suffixes are appended to non-key column names present in both tables.
	// Defaults to {"_x", "_y"}.
	Suffixes [2]string
}

// LeftJoin keeps every row of left, attaching the columns of matching right
// rows. Key columns appear once, taken from left. Unmatched left rows get
// empty right-side values.
func LeftJoin(left, right *Table, opts JoinOptions) (*Table, error) {
	if len(opts.On) == 0 {
		return nil, eris.New("table: left join: no key columns")
	}
	if missing := left.Missing(opts.On...); len(missing) > 0 {
		return nil, eris.Errorf("table: left join: left side missing key %v", missing)
	}
	if missing := right.Missing(opts.On...); len(missing) > 0 {
		return nil, eris.Errorf("table: left join: right side missing key %v", missing)
	}
	if opts.Suffixes == [2]string{} {
		opts.Suffixes = [2]string{"_x", "_y"}
	}

	isKey := make(map[string]bool, len(opts.On))
	for _, k := range opts.On {
		isKey[k] = true
	}

	// Right-side payload columns and the output header.
	var rightCols []int
	cols := make([]string, 0, len(left.columns)+len(right.columns))
	for _, c := range left.columns {
		if !isKey[c] && right.Has(c) {
			c += opts.Suffixes[0]
		}
		cols = append(cols, c)
	}
	for j, c := range right.columns {
		if isKey[c] {
			continue
		}
		if left.Has(c) {
			c += opts.Suffixes[1]
		}
		cols = append(cols, c)
		rightCols = append(rightCols, j)
	}

	index := make(map[string][]int, len(right.rows))
	for i, row := range right.rows {
		k, ok := joinKey(right, row, opts)
		if !ok {
			continue
		}
		if opts.FirstMatch && len(index[k]) > 0 {
			continue
		}
		index[k] = append(index[k], i)
	}

	out, err := New(cols, nil)
	if err != nil {
		return nil, eris.Wrap(err, "table: left join")
	}
	out.rows = make([][]string, 0, len(left.rows))

	width := len(left.columns)
	for _, row := range left.rows {
		var matches []int
		if k, ok := joinKey(left, row, opts); ok {
			matches = index[k]
		}
		if len(matches) == 0 {
			nr := make([]string, len(cols))
			copy(nr, row)
			out.rows = append(out.rows, nr)
			continue
		}
		for _, ri := range matches {
			nr := make([]string, len(cols))
			copy(nr, row)
			for k, j := range rightCols {
				nr[width+k] = right.rows[ri][j]
			}
			out.rows = append(out.rows, nr)
		}
	}
	return out, nil
}

func joinKey(t *Table, row []string, opts JoinOptions) (string, bool) {
	for _, c := range opts.On {
		v := row[t.index[c]]
		if opts.Normalize != nil {
			v = opts.Normalize(c, v)
		}
		if v == "" {
			return "", false
		}
	}
	return t.key(row, opts.On, opts.Normalize), true
}
