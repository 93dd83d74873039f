package organize

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/housing-cli/internal/table"
)

// lookup maps lookup type -> item code -> description.
type lookup map[int]map[int]string

func newLookup(t *table.Table) (lookup, error) {
	if missing := t.Missing(ColLookupType, ColLookupItem, ColLookupDescription); len(missing) > 0 {
		return nil, eris.Errorf("organize: lookup table missing columns %v", missing)
	}
	lu := make(lookup)
	for i := range t.Len() {
		typ, err := parseCode(t.Value(i, ColLookupType))
		if err != nil {
			continue
		}
		item, err := parseCode(t.Value(i, ColLookupItem))
		if err != nil {
			continue
		}
		if lu[typ] == nil {
			lu[typ] = make(map[int]string)
		}
		if _, dup := lu[typ][item]; !dup {
			lu[typ][item] = strings.TrimSpace(t.Value(i, ColLookupDescription))
		}
	}
	return lu, nil
}

// expand replaces coded values of the given columns with their descriptions.
// Unknown or unparseable codes become empty.
func (lu lookup) expand(t *table.Table, fields map[string]int) *table.Table {
	for col, typ := range fields {
		if !t.Has(col) {
			continue
		}
		items := lu[typ]
		t = t.WithColumn(col, func(r table.Record) string {
			code, err := parseCode(r.Get(col))
			if err != nil {
				return ""
			}
			return items[code]
		})
	}
	return t
}

func parseCode(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, eris.Errorf("organize: invalid code %q", s)
	}
	return int(f), nil
}
