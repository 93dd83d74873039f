// Package join reconciles King County assessor parcels with real-estate
// listings that share no key, matching on address: an exact pass on the
// normalized address, then a fuzzy street match scoped to each postal code.
package join

import (
	"cmp"
	"context"
	"math"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/housing-cli/internal/address"
	"github.com/sells-group/housing-cli/internal/model"
	"github.com/sells-group/housing-cli/internal/table"
)

// DefaultCutoff is the minimum similarity for a fuzzy street match.
const DefaultCutoff = 0.6

// Suffixes applied to column names present in both inputs.
const (
	SuffixListing = "_redfin"
	SuffixCounty  = "_kc"
)

// Options configures a Joiner.
type Options struct {
	// Cutoff is the minimum fuzzy similarity, in (0,1]. 0 means DefaultCutoff.
	Cutoff float64

	// Scorer rates street similarity. Nil means RatioScorer.
	Scorer Scorer

	// Workers bounds concurrent zip groups. 0 means runtime.NumCPU().
	Workers int

	// UnitTokens start the unit suffix dropped by normalization. Nil means
	// address.DefaultUnitTokens.
	UnitTokens []string
}

// Result is the outcome of a join.
type Result struct {
	// Table holds every listing row with the matched county columns appended.
	Table *table.Table

	// Matches holds one resolved match per matched MLS#, ordered by MLS#.
	Matches []model.Match

	// Malformed holds candidates whose keys are not integers.
	Malformed []model.MalformedKey

	Stats model.RunStats
}

// Joiner runs the two-pass address join.
type Joiner struct {
	opts Options
}

// New validates opts and returns a Joiner.
func New(opts Options) (*Joiner, error) {
	if opts.Cutoff == 0 {
		opts.Cutoff = DefaultCutoff
	}
	if opts.Cutoff < 0 || opts.Cutoff > 1 || math.IsNaN(opts.Cutoff) {
		return nil, eris.Errorf("join: cutoff %v out of range (0,1]", opts.Cutoff)
	}
	if opts.Scorer == nil {
		opts.Scorer = RatioScorer{}
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Joiner{opts: opts}, nil
}

// JoinTables validates both tables and joins them.
func (j *Joiner) JoinTables(ctx context.Context, county, listing *table.Table) (*Result, error) {
	c, err := NewCountyTable(county)
	if err != nil {
		return nil, err
	}
	l, err := NewListingTable(listing)
	if err != nil {
		return nil, err
	}
	return j.Join(ctx, c, l)
}

// Join matches listings to parcels and re-projects the matches onto the full
// input tables. The result has exactly one row per listing row.
func (j *Joiner) Join(ctx context.Context, county *CountyTable, listing *ListingTable) (*Result, error) {
	log := zap.L().With(zap.String("component", "join"))

	countyTrim, err := county.Project(countyColumns...)
	if err != nil {
		return nil, eris.Wrap(err, "join: trim county")
	}
	listingTrim, err := listing.Project(listingColumns...)
	if err != nil {
		return nil, eris.Wrap(err, "join: trim listing")
	}
	countyTrim = countyTrim.Distinct()
	listingTrim = listingTrim.Distinct()

	countyRecs, norm := j.normalizeCounty(countyTrim)
	listingRecs := normalizeListing(listingTrim, norm)

	exact := exactMatch(countyRecs, listingRecs)
	log.Debug("exact pass complete",
		zap.Int("matches", len(exact.matches)),
		zap.Int("listing_residual", len(exact.listingResidual)),
		zap.Int("county_residual", len(exact.countyResidual)),
	)

	groups := groupResiduals(exact.listingResidual, exact.countyResidual)
	fuzzy, err := fuzzyMatch(ctx, groups, j.opts.Scorer, j.opts.Cutoff, j.opts.Workers)
	if err != nil {
		return nil, err
	}
	log.Debug("fuzzy pass complete",
		zap.Int("groups", len(groups)),
		zap.Int("matches", len(fuzzy)),
	)

	matches, malformed := resolve(append(exact.matches, fuzzy...))

	out, majorCol, err := reproject(listing.Table, county.Table, matches)
	if err != nil {
		return nil, err
	}

	stats := model.RunStats{
		CountyRows:  county.Len(),
		ListingRows: listing.Len(),
		Malformed:   len(malformed),
		FuzzyGroups: len(groups),
	}
	for _, m := range matches {
		if m.Kind == model.MatchExact {
			stats.ExactMatches++
		} else {
			stats.FuzzyMatches++
		}
	}
	for i := range out.Len() {
		if out.Value(i, majorCol) == "" {
			stats.Unmatched++
		}
	}

	log.Info("join complete",
		zap.Int("listing_rows", stats.ListingRows),
		zap.Int("county_rows", stats.CountyRows),
		zap.Int("exact", stats.ExactMatches),
		zap.Int("fuzzy", stats.FuzzyMatches),
		zap.Int("unmatched", stats.Unmatched),
		zap.Int("malformed", stats.Malformed),
	)

	return &Result{Table: out, Matches: matches, Malformed: malformed, Stats: stats}, nil
}

func (j *Joiner) normalizeCounty(t *table.Table) ([]countyRecord, *address.Normalizer) {
	codes := make([]string, t.Len())
	for i := range t.Len() {
		codes[i] = t.Value(i, ColZipCode)
	}
	norm := address.NewNormalizer(address.KnownZips(codes), j.opts.UnitTokens)

	recs := make([]countyRecord, 0, t.Len())
	seen := make(map[countyRecord]struct{}, t.Len())
	for i := range t.Len() {
		r := t.Record(i)
		rec := countyRecord{
			major:   strings.TrimSpace(r.Get(ColMajor)),
			minor:   strings.TrimSpace(r.Get(ColMinor)),
			address: norm.Normalize(r.Get(ColAddress)),
			zip:     address.ParseZip(r.Get(ColZipCode)),
		}
		if _, dup := seen[rec]; dup {
			continue
		}
		seen[rec] = struct{}{}
		recs = append(recs, rec)
	}
	return recs, norm
}

func normalizeListing(t *table.Table, norm *address.Normalizer) []listingRecord {
	recs := make([]listingRecord, 0, t.Len())
	seen := make(map[listingRecord]struct{}, t.Len())
	for i := range t.Len() {
		r := t.Record(i)
		rec := listingRecord{
			mls:     strings.TrimSpace(r.Get(ColMLS)),
			address: norm.Normalize(r.Get(ColListingAdr)),
			zip:     address.ParseZip(r.Get(ColListingZip)),
		}
		if _, dup := seen[rec]; dup {
			continue
		}
		seen[rec] = struct{}{}
		recs = append(recs, rec)
	}
	return recs
}

// resolve coerces candidate keys and keeps one match per MLS#: exact before
// fuzzy, then the higher score, then the lower (Major, Minor).
func resolve(cands []candidate) ([]model.Match, []model.MalformedKey) {
	var (
		valid     []model.Match
		malformed []model.MalformedKey
	)
	// Malformed keys are reported once per (MLS#, Major, Minor); the first
	// pass to produce one wins.
	seenBad := make(map[[3]string]struct{})
	for _, c := range cands {
		m, err := coerce(c)
		if err != nil {
			k := [3]string{c.mls, c.major, c.minor}
			if _, dup := seenBad[k]; !dup {
				seenBad[k] = struct{}{}
				malformed = append(malformed, model.MalformedKey{
					MLS: c.mls, Major: c.major, Minor: c.minor, Kind: c.kind, Reason: err.Error(),
				})
			}
			continue
		}
		valid = append(valid, m)
	}

	slices.SortStableFunc(valid, func(a, b model.Match) int {
		return cmp.Or(
			cmp.Compare(a.MLS, b.MLS),
			cmp.Compare(kindRank(a.Kind), kindRank(b.Kind)),
			cmp.Compare(b.Score, a.Score),
			cmp.Compare(a.Major, b.Major),
			cmp.Compare(a.Minor, b.Minor),
		)
	})
	matches := slices.CompactFunc(valid, func(a, b model.Match) bool { return a.MLS == b.MLS })
	return matches, malformed
}

func kindRank(k model.MatchKind) int {
	if k == model.MatchExact {
		return 0
	}
	return 1
}

func coerce(c candidate) (model.Match, error) {
	mls, ok := parseKey(c.mls)
	if !ok {
		return model.Match{}, eris.Errorf("MLS# %q is not an integer", c.mls)
	}
	major, ok := parseKey(c.major)
	if !ok {
		return model.Match{}, eris.Errorf("Major %q is not an integer", c.major)
	}
	minor, ok := parseKey(c.minor)
	if !ok {
		return model.Match{}, eris.Errorf("Minor %q is not an integer", c.minor)
	}
	return model.Match{
		MLS:            mls,
		Major:          major,
		Minor:          minor,
		Kind:           c.kind,
		Score:          c.score,
		ListingAddress: c.listingAddress,
		CountyAddress:  c.countyAddress,
	}, nil
}

// parseKey reads an integer key, accepting surrounding space and an integral
// float form such as "123.0".
func parseKey(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) ||
		f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// canonicalKey renders an integer key in canonical form, or "" (null) when
// the value is not an integer.
func canonicalKey(_ string, v string) string {
	n, ok := parseKey(v)
	if !ok {
		return ""
	}
	return strconv.FormatInt(n, 10)
}

// Parcel key columns while the result is assembled. They cannot collide with
// listing columns, which may carry their own Major or Minor.
const (
	keyMajor = "__major"
	keyMinor = "__minor"
)

// reproject attaches the matched parcel keys to every listing row, then the
// full county columns of the first county row with that parcel key. It
// returns the result and the name of its Major column.
func reproject(listing, county *table.Table, matches []model.Match) (*table.Table, string, error) {
	rows := make([][]string, len(matches))
	for i, m := range matches {
		rows[i] = []string{
			strconv.FormatInt(m.MLS, 10),
			strconv.FormatInt(m.Major, 10),
			strconv.FormatInt(m.Minor, 10),
		}
	}
	keys, err := table.New([]string{ColMLS, keyMajor, keyMinor}, rows)
	if err != nil {
		return nil, "", eris.Wrap(err, "join: build keys")
	}

	// Key columns take the county name, suffixed when the listing has one too.
	final := map[string]string{keyMajor: ColMajor, keyMinor: ColMinor}
	listingRename := make(map[string]string)
	for key, col := range final {
		if listing.Has(col) {
			listingRename[col] = col + SuffixListing
			final[key] = col + SuffixCounty
		}
	}
	if len(listingRename) > 0 {
		if listing, err = listing.Rename(listingRename); err != nil {
			return nil, "", eris.Wrap(err, "join: rename listing keys")
		}
	}
	county, err = county.Rename(map[string]string{ColMajor: keyMajor, ColMinor: keyMinor})
	if err != nil {
		return nil, "", eris.Wrap(err, "join: rename county keys")
	}

	suffixes := [2]string{SuffixListing, SuffixCounty}
	withKeys, err := table.LeftJoin(listing, keys, table.JoinOptions{
		On:         []string{ColMLS},
		Normalize:  canonicalKey,
		FirstMatch: true,
		Suffixes:   suffixes,
	})
	if err != nil {
		return nil, "", eris.Wrap(err, "join: attach keys")
	}

	out, err := table.LeftJoin(withKeys, county, table.JoinOptions{
		On:         []string{keyMajor, keyMinor},
		Normalize:  canonicalKey,
		FirstMatch: true,
		Suffixes:   suffixes,
	})
	if err != nil {
		return nil, "", eris.Wrap(err, "join: attach county")
	}
	if out, err = out.Rename(final); err != nil {
		return nil, "", eris.Wrap(err, "join: restore key names")
	}
	return out, final[keyMajor], nil
}
