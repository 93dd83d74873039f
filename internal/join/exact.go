package join

import (
	"github.com/sells-group/housing-cli/internal/model"
)

// countyRecord is the trimmed, normalized county projection.
type countyRecord struct {
	major, minor string
	address      string
	zip          int
}

// listingRecord is the trimmed, normalized listing projection.
type listingRecord struct {
	mls     string
	address string
	zip     int
}

// candidate is a match before its keys are coerced to integers.
type candidate struct {
	mls, major, minor string
	kind              model.MatchKind
	score             float64
	listingAddress    string
	countyAddress     string
}

// exactResult partitions the outer join of both sides on normalized address.
type exactResult struct {
	matches []candidate

	// listingResidual has no county record at the same address.
	listingResidual []listingRecord

	// countyResidual has no listing at the same address and shares a zip
	// with the listing residual.
	countyResidual []countyRecord
}

// exactMatch joins listings to county records with an identical normalized
// address. Empty addresses never join.
func exactMatch(county []countyRecord, listings []listingRecord) exactResult {
	byAddress := make(map[string][]int, len(county))
	for i, c := range county {
		if c.address == "" {
			continue
		}
		byAddress[c.address] = append(byAddress[c.address], i)
	}

	var res exactResult
	claimed := make([]bool, len(county))
	residualZips := make(map[int]struct{})

	for _, l := range listings {
		idx := byAddress[l.address]
		if l.address == "" || len(idx) == 0 {
			res.listingResidual = append(res.listingResidual, l)
			residualZips[l.zip] = struct{}{}
			continue
		}
		for _, i := range idx {
			claimed[i] = true
			c := county[i]
			res.matches = append(res.matches, candidate{
				mls:            l.mls,
				major:          c.major,
				minor:          c.minor,
				kind:           model.MatchExact,
				score:          1,
				listingAddress: l.address,
				countyAddress:  c.address,
			})
		}
	}

	for i, c := range county {
		if claimed[i] {
			continue
		}
		if _, ok := residualZips[c.zip]; ok {
			res.countyResidual = append(res.countyResidual, c)
		}
	}
	return res
}
