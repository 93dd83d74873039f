// Package organize cleans the King County sale, residential building, parcel
// and lookup extracts and merges them into one single-family sales table.
package organize

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/housing-cli/internal/address"
	"github.com/sells-group/housing-cli/internal/table"
)

// Key and location columns shared by the extracts.
const (
	ColMajor   = "Major"
	ColMinor   = "Minor"
	ColZipCode = "ZipCode"
)

var (
	// ErrInvalidZip is returned for a requested zip not found among the
	// building records.
	ErrInvalidZip = eris.New("organize: zip code is not in King County")

	// ErrBeforeRecords is returned when the window starts before the first
	// sale year.
	ErrBeforeRecords = eris.New("organize: no records before start year")

	// ErrAfterRecords is returned when the window starts after the last sale
	// year.
	ErrAfterRecords = eris.New("organize: no records after start year")

	// ErrDateOrder is returned when the window starts after it ends.
	ErrDateOrder = eris.New("organize: start date is after end date")

	// ErrNoSaleDates is returned when no sale carries a parseable date.
	ErrNoSaleDates = eris.New("organize: no sale dates")
)

var dateLayouts = []string{
	"01/02/2006",
	"1/2/2006",
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ParseDate parses a sale document date or a window bound.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("organize: unrecognized date %q", s)
}

// Inputs are the raw assessor extracts.
type Inputs struct {
	Sales     *table.Table
	Buildings *table.Table
	Parcels   *table.Table
	Lookup    *table.Table
}

// Request selects the zips and inclusive date window to keep.
type Request struct {
	Zips  []string
	Start time.Time
	End   time.Time
}

// Organizer applies a Schema to assessor extracts.
type Organizer struct {
	schema *Schema
}

// New creates an Organizer. A nil schema uses the embedded default.
func New(schema *Schema) (*Organizer, error) {
	if schema == nil {
		s, err := DefaultSchema()
		if err != nil {
			return nil, err
		}
		schema = s
	}
	return &Organizer{schema: schema}, nil
}

// Organize filters and merges the extracts. Each output row is a
// single-family sale inside the window whose building lies in a requested
// zip, with parcel columns attached and lookup codes expanded.
func (o *Organizer) Organize(in Inputs, req Request) (*table.Table, error) {
	log := zap.L().With(zap.String("component", "organize"))

	for name, t := range map[string]*table.Table{
		SourceSale: in.Sales, SourceBuilding: in.Buildings, SourceParcel: in.Parcels, SourceLookup: in.Lookup,
	} {
		if t == nil {
			return nil, eris.Errorf("organize: %s table is required", name)
		}
	}

	sales, err := cleanKeys(in.Sales)
	if err != nil {
		return nil, err
	}
	if dropped := in.Sales.Len() - sales.Len(); dropped > 0 {
		log.Debug("organize: dropped sales with invalid keys", zap.Int("rows", dropped))
	}

	renamed := make(map[string]*table.Table, 4)
	for name, t := range map[string]*table.Table{
		SourceSale: sales, SourceBuilding: in.Buildings, SourceParcel: in.Parcels, SourceLookup: in.Lookup,
	} {
		r, err := t.Rename(o.schema.Columns[name])
		if err != nil {
			return nil, eris.Wrapf(err, "organize: rename %s", name)
		}
		renamed[name] = r
	}
	sales, buildings, parcels := renamed[SourceSale], renamed[SourceBuilding], renamed[SourceParcel]

	if missing := buildings.Missing(ColMajor, ColMinor, ColZipCode); len(missing) > 0 {
		return nil, eris.Errorf("organize: building table missing columns %v", missing)
	}
	if missing := parcels.Missing(ColMajor, ColMinor); len(missing) > 0 {
		return nil, eris.Errorf("organize: parcel table missing columns %v", missing)
	}
	if missing := sales.Missing(o.schema.DateColumn); len(missing) > 0 {
		return nil, eris.Errorf("organize: sale table missing columns %v", missing)
	}

	zips, err := requestedZips(ValidZips(buildings), req.Zips)
	if err != nil {
		return nil, err
	}
	if err := o.checkWindow(sales, req); err != nil {
		return nil, err
	}

	targets := map[string]**table.Table{
		SourceSale: &sales, SourceBuilding: &buildings, SourceParcel: &parcels,
	}
	for _, f := range o.schema.Filters {
		dst := targets[f.Source]
		filtered, err := applyFilter(*dst, f)
		if err != nil {
			return nil, err
		}
		*dst = filtered
	}

	sales = sales.Filter(func(r table.Record) bool {
		d, err := ParseDate(r.Get(o.schema.DateColumn))
		return err == nil && !d.Before(req.Start) && !d.After(req.End)
	})
	buildings = buildings.Filter(func(r table.Record) bool {
		_, ok := zips[address.ParseZip(r.Get(ColZipCode))]
		return ok
	})

	merged, err := o.merge(sales, buildings, parcels)
	if err != nil {
		return nil, err
	}

	lookup, err := newLookup(renamed[SourceLookup])
	if err != nil {
		return nil, err
	}
	out := lookup.expand(merged, o.schema.Lookups)

	log.Info("organize: county data organized",
		zap.Int("sales", in.Sales.Len()),
		zap.Int("rows", out.Len()),
		zap.Strings("zips", req.Zips),
	)
	return out, nil
}

// merge left-joins sales to buildings and parcels on (Major, Minor) and keeps
// the sales whose building survived the zip filter.
func (o *Organizer) merge(sales, buildings, parcels *table.Table) (*table.Table, error) {
	opts := table.JoinOptions{
		On:        []string{ColMajor, ColMinor},
		Normalize: canonicalKey,
		Suffixes:  [2]string{"", "_building"},
	}
	withBuilding, err := table.LeftJoin(sales, buildings, opts)
	if err != nil {
		return nil, eris.Wrap(err, "organize: merge buildings")
	}

	// Sales without a building row have an empty zip from the join.
	zipCol := ColZipCode
	if sales.Has(ColZipCode) {
		zipCol += "_building"
	}
	withBuilding = withBuilding.Filter(func(r table.Record) bool {
		return strings.TrimSpace(r.Get(zipCol)) != ""
	})

	opts.Suffixes = [2]string{"", "_parcel"}
	all, err := table.LeftJoin(withBuilding, parcels, opts)
	if err != nil {
		return nil, eris.Wrap(err, "organize: merge parcels")
	}
	return all, nil
}

func (o *Organizer) checkWindow(sales *table.Table, req Request) error {
	var first, last time.Time
	for i := range sales.Len() {
		d, err := ParseDate(sales.Value(i, o.schema.DateColumn))
		if err != nil {
			continue
		}
		if first.IsZero() || d.Before(first) {
			first = d
		}
		if last.IsZero() || d.After(last) {
			last = d
		}
	}
	if first.IsZero() {
		return ErrNoSaleDates
	}

	switch {
	case req.Start.Year() < first.Year():
		return eris.Wrapf(ErrBeforeRecords, "organize: first record year is %d", first.Year())
	case req.Start.Year() > last.Year():
		return eris.Wrapf(ErrAfterRecords, "organize: last record year is %d", last.Year())
	case req.Start.After(req.End):
		return ErrDateOrder
	}
	return nil
}

// ValidZips returns the distinct five-digit zips of building records. Only
// zips starting with 98 in five-digit or ZIP+4 form count.
func ValidZips(buildings *table.Table) []string {
	var codes []string
	for i := range buildings.Len() {
		z := strings.TrimSpace(buildings.Value(i, ColZipCode))
		if !strings.HasPrefix(z, "98") || (len(z) != 5 && len(z) != 10) {
			continue
		}
		codes = append(codes, z[:5])
	}
	known := address.KnownZips(codes)
	out := make([]string, len(known))
	for i, z := range known {
		out[i] = strconv.Itoa(z)
	}
	return out
}

func requestedZips(valid, requested []string) (map[int]struct{}, error) {
	ok := make(map[string]bool, len(valid))
	for _, z := range valid {
		ok[z] = true
	}
	zips := make(map[int]struct{}, len(requested))
	for _, z := range requested {
		z = strings.TrimSpace(z)
		if !ok[z] {
			return nil, eris.Wrapf(ErrInvalidZip, "organize: zip %q", z)
		}
		zips[address.ParseZip(z)] = struct{}{}
	}
	if len(zips) == 0 {
		return nil, eris.New("organize: at least one zip code is required")
	}
	return zips, nil
}

func applyFilter(t *table.Table, f Filter) (*table.Table, error) {
	if !t.Has(f.Column) {
		return nil, eris.Errorf("organize: filter: %s table has no column %q", f.Source, f.Column)
	}
	out := t.Filter(func(r table.Record) bool {
		return valueEquals(r.Get(f.Column), f.Equals)
	})
	if f.Drop {
		out = out.Drop(f.Column)
	}
	return out, nil
}

func valueEquals(v, want string) bool {
	v, want = strings.TrimSpace(v), strings.TrimSpace(want)
	if v == want {
		return true
	}
	a, errA := strconv.ParseFloat(v, 64)
	b, errB := strconv.ParseFloat(want, 64)
	return errA == nil && errB == nil && a == b
}

// cleanKeys drops rows whose Major or Minor is blank or not an integer and
// rewrites the keys in plain integer form.
func cleanKeys(t *table.Table) (*table.Table, error) {
	if missing := t.Missing(ColMajor, ColMinor); len(missing) > 0 {
		return nil, eris.Errorf("organize: sale table missing columns %v", missing)
	}
	out := t.Filter(func(r table.Record) bool {
		return canonicalKey(ColMajor, r.Get(ColMajor)) != "" &&
			canonicalKey(ColMinor, r.Get(ColMinor)) != ""
	})
	for _, col := range []string{ColMajor, ColMinor} {
		out = out.WithColumn(col, func(r table.Record) string {
			return canonicalKey(col, r.Get(col))
		})
	}
	return out, nil
}

func canonicalKey(_, v string) string {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return ""
	}
	return strconv.FormatInt(n, 10)
}
