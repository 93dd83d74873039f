// Package table provides the in-memory, column-named record table that carries
// CSV extracts between the fetch, organize, and join stages.
package table

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Table is an ordered collection of string records with named columns.
// Tables are treated as immutable: every transformation returns a new Table.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// New builds a Table from a header and rows. Rows shorter than the header are
// padded with empty values; longer rows are truncated.
func New(columns []string, rows [][]string) (*Table, error) {
	idx := make(map[string]int, len(columns))
	cols := make([]string, len(columns))
	for i, c := range columns {
		if _, dup := idx[c]; dup {
			return nil, eris.Errorf("table: duplicate column %q", c)
		}
		idx[c] = i
		cols[i] = c
	}

	t := &Table{columns: cols, index: idx, rows: make([][]string, 0, len(rows))}
	for _, r := range rows {
		t.rows = append(t.rows, fit(r, len(cols)))
	}
	return t, nil
}

// MustNew is New for static inputs; it panics on duplicate columns.
func MustNew(columns []string, rows [][]string) *Table {
	t, err := New(columns, rows)
	if err != nil {
		panic(err)
	}
	return t
}

func fit(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}

// derive returns an empty table sharing t's header.
func (t *Table) derive(capacity int) *Table {
	return &Table{columns: t.columns, index: t.index, rows: make([][]string, 0, capacity)}
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Empty reports whether the table is nil or has no rows.
func (t *Table) Empty() bool {
	return t.Len() == 0
}

// Has reports whether the table has the named column.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Missing returns the columns from want that the table lacks, in order.
func (t *Table) Missing(want ...string) []string {
	var missing []string
	for _, c := range want {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// Value returns the value of col in row i, or "" if the column is absent.
func (t *Table) Value(i int, col string) string {
	j, ok := t.index[col]
	if !ok {
		return ""
	}
	return t.rows[i][j]
}

// Row returns a copy of row i.
func (t *Table) Row(i int) []string {
	return append([]string(nil), t.rows[i]...)
}

// Record returns a column-addressable view of row i.
func (t *Table) Record(i int) Record {
	return Record{t: t, row: t.rows[i]}
}

// Record is a read-only view of a single table row.
type Record struct {
	t   *Table
	row []string
}

// Get returns the value of col, or "" if the column is absent.
func (r Record) Get(col string) string {
	j, ok := r.t.index[col]
	if !ok {
		return ""
	}
	return r.row[j]
}

// Filter returns the rows for which keep returns true.
func (t *Table) Filter(keep func(Record) bool) *Table {
	out := t.derive(len(t.rows))
	for _, row := range t.rows {
		if keep(Record{t: t, row: row}) {
			out.rows = append(out.rows, row)
		}
	}
	return out
}

// Head returns at most the first n rows. n <= 0 returns all rows.
func (t *Table) Head(n int) *Table {
	if n <= 0 || n >= len(t.rows) {
		return t
	}
	out := t.derive(n)
	out.rows = append(out.rows, t.rows[:n]...)
	return out
}

// Project returns a table with only the named columns, in the given order.
func (t *Table) Project(cols ...string) (*Table, error) {
	if missing := t.Missing(cols...); len(missing) > 0 {
		return nil, eris.Errorf("table: project: missing columns %s", strings.Join(missing, ", "))
	}
	idx := make([]int, len(cols))
	for i, c := range cols {
		idx[i] = t.index[c]
	}

	rows := make([][]string, len(t.rows))
	for i, row := range t.rows {
		out := make([]string, len(idx))
		for k, j := range idx {
			out[k] = row[j]
		}
		rows[i] = out
	}
	return New(cols, rows)
}

// Distinct drops duplicate rows, keeping the first occurrence.
func (t *Table) Distinct() *Table {
	return t.DistinctOn(t.columns...)
}

// DistinctOn keeps the first row for each distinct combination of cols.
// Unknown columns are treated as empty.
func (t *Table) DistinctOn(cols ...string) *Table {
	seen := make(map[string]struct{}, len(t.rows))
	out := t.derive(len(t.rows))
	for _, row := range t.rows {
		k := t.key(row, cols, nil)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out.rows = append(out.rows, row)
	}
	return out
}

func (t *Table) key(row []string, cols []string, norm func(col, v string) string) string {
	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		v := ""
		if j, ok := t.index[c]; ok {
			v = row[j]
		}
		if norm != nil {
			v = norm(c, v)
		}
		b.WriteString(v)
	}
	return b.String()
}

// Rename returns a table with columns renamed per mapping (old -> new).
// Columns not in mapping keep their names.
func (t *Table) Rename(mapping map[string]string) (*Table, error) {
	cols := make([]string, len(t.columns))
	for i, c := range t.columns {
		if n, ok := mapping[c]; ok {
			cols[i] = n
		} else {
			cols[i] = c
		}
	}
	out, err := New(cols, nil)
	if err != nil {
		return nil, eris.Wrap(err, "table: rename")
	}
	out.rows = t.rows
	return out, nil
}

// WithColumn returns a table where col holds fn's value for every row.
// An existing column is replaced in place; a new one is appended.
func (t *Table) WithColumn(col string, fn func(Record) string) *Table {
	j, exists := t.index[col]
	cols := t.columns
	if !exists {
		cols = append(t.Columns(), col)
		j = len(cols) - 1
	}
	out := MustNew(cols, nil)
	out.rows = make([][]string, len(t.rows))
	for i, row := range t.rows {
		nr := fit(row, len(cols))
		nr[j] = fn(Record{t: t, row: row})
		out.rows[i] = nr
	}
	return out
}

// Drop returns a table without the named columns. Unknown names are ignored.
func (t *Table) Drop(cols ...string) *Table {
	drop := make(map[string]bool, len(cols))
	for _, c := range cols {
		drop[c] = true
	}
	var keep []string
	for _, c := range t.columns {
		if !drop[c] {
			keep = append(keep, c)
		}
	}
	out, _ := t.Project(keep...)
	return out
}
