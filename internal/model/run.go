package model

import "time"

// RunStatus represents the current state of a join run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one persisted join invocation.
type Run struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	CountyPath  string     `json:"county_path,omitempty"`
	ListingPath string     `json:"listing_path,omitempty"`
	Stats       RunStats   `json:"stats"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunStats summarizes the outcome of a join.
type RunStats struct {
	CountyRows   int `json:"county_rows"`
	ListingRows  int `json:"listing_rows"`
	ExactMatches int `json:"exact_matches"`
	FuzzyMatches int `json:"fuzzy_matches"`
	Unmatched    int `json:"unmatched"`
	Malformed    int `json:"malformed"`
	FuzzyGroups  int `json:"fuzzy_groups"`
}

// Matched returns the number of listings bound to a parcel.
func (s RunStats) Matched() int {
	return s.ExactMatches + s.FuzzyMatches
}

// MatchRate returns the share of listing rows bound to a parcel, in [0,1].
func (s RunStats) MatchRate() float64 {
	if s.ListingRows == 0 {
		return 0
	}
	return float64(s.ListingRows-s.Unmatched) / float64(s.ListingRows)
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Status RunStatus
	Limit  int
	Offset int
}
