package join

import (
	"strings"

	"github.com/agext/levenshtein"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/rotisserie/eris"
)

// Scorer rates how similar a candidate street is to a query street, in [0,1].
type Scorer interface {
	Name() string
	Score(query, candidate string) float64
}

// RatioScorer is the Ratcliff/Obershelp similarity: twice the matched
// characters over the combined length.
type RatioScorer struct{}

// Name implements Scorer.
func (RatioScorer) Name() string { return "ratio" }

// Score implements Scorer.
func (RatioScorer) Score(query, candidate string) float64 {
	m := difflib.NewMatcher(strings.Split(candidate, ""), strings.Split(query, ""))
	return m.Ratio()
}

// LevenshteinScorer is one minus the edit distance over the longer length.
type LevenshteinScorer struct{}

// Name implements Scorer.
func (LevenshteinScorer) Name() string { return "levenshtein" }

// Score implements Scorer.
func (LevenshteinScorer) Score(query, candidate string) float64 {
	return levenshtein.Similarity(query, candidate, nil)
}

// ScorerByName resolves a configured scorer name. Empty means ratio.
func ScorerByName(name string) (Scorer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ratio":
		return RatioScorer{}, nil
	case "levenshtein":
		return LevenshteinScorer{}, nil
	default:
		return nil, eris.Errorf("join: unknown scorer %q", name)
	}
}

// closest returns the best-scoring candidate at or above cutoff. Equal scores
// go to the lexicographically smallest candidate, so the result does not
// depend on candidate order.
func closest(s Scorer, query string, candidates []string, cutoff float64) (string, float64, bool) {
	var (
		best  string
		score float64
		found bool
	)
	for _, c := range candidates {
		sc := s.Score(query, c)
		if sc < cutoff {
			continue
		}
		if !found || sc > score || (sc == score && c < best) {
			best, score, found = c, sc, true
		}
	}
	return best, score, found
}
