package join

import (
	"context"
	"slices"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/housing-cli/internal/address"
	"github.com/sells-group/housing-cli/internal/model"
)

// zipGroup is the residual of one postal code.
type zipGroup struct {
	zip      int
	listings []listingRecord
	county   []countyRecord
}

// groupResiduals buckets both residual sets by zip, in ascending zip order.
// Listings without a usable zip have no group, and groups without county
// candidates are dropped.
func groupResiduals(listings []listingRecord, county []countyRecord) []zipGroup {
	byZip := make(map[int]*zipGroup)
	for _, l := range listings {
		if l.zip == 0 {
			continue
		}
		g, ok := byZip[l.zip]
		if !ok {
			g = &zipGroup{zip: l.zip}
			byZip[l.zip] = g
		}
		g.listings = append(g.listings, l)
	}
	for _, c := range county {
		if g, ok := byZip[c.zip]; ok {
			g.county = append(g.county, c)
		}
	}

	groups := make([]zipGroup, 0, len(byZip))
	for _, g := range byZip {
		if len(g.county) > 0 {
			groups = append(groups, *g)
		}
	}
	slices.SortFunc(groups, func(a, b zipGroup) int { return a.zip - b.zip })
	return groups
}

// fuzzyMatch matches each group independently on up to workers goroutines.
// Results keep group order regardless of scheduling.
func fuzzyMatch(ctx context.Context, groups []zipGroup, s Scorer, cutoff float64, workers int) ([]candidate, error) {
	results := make([][]candidate, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = matchGroup(groups[i], s, cutoff)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "join: fuzzy match")
	}

	var n int
	for _, r := range results {
		n += len(r)
	}
	out := make([]candidate, 0, n)
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

type splitCounty struct {
	countyRecord
	number, street string
}

// matchGroup picks, for each listing street, the closest county street in the
// group, then pairs the listing with county records carrying that street and
// the same building number.
func matchGroup(g zipGroup, s Scorer, cutoff float64) []candidate {
	county := make([]splitCounty, len(g.county))
	seen := make(map[string]struct{}, len(g.county))
	var streets []string
	for i, c := range g.county {
		num, street := address.Split(c.address)
		county[i] = splitCounty{countyRecord: c, number: num, street: street}
		if street == "" {
			continue
		}
		if _, ok := seen[street]; !ok {
			seen[street] = struct{}{}
			streets = append(streets, street)
		}
	}

	var out []candidate
	for _, l := range g.listings {
		num, street := address.Split(l.address)
		if street == "" {
			continue
		}
		best, score, ok := closest(s, street, streets, cutoff)
		if !ok {
			continue
		}
		for _, c := range county {
			if c.number != num || c.street != best {
				continue
			}
			out = append(out, candidate{
				mls:            l.mls,
				major:          c.major,
				minor:          c.minor,
				kind:           model.MatchFuzzy,
				score:          score,
				listingAddress: l.address,
				countyAddress:  c.address,
			})
		}
	}
	return out
}
