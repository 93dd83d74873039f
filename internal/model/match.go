package model

// MatchKind records which pass produced a match.
type MatchKind string

const (
	MatchExact MatchKind = "exact"
	MatchFuzzy MatchKind = "fuzzy"
)

// Match binds a listing to a parcel.
type Match struct {
	MLS            int64     `json:"mls"`
	Major          int64     `json:"major"`
	Minor          int64     `json:"minor"`
	Kind           MatchKind `json:"kind"`
	Score          float64   `json:"score"`
	ListingAddress string    `json:"listing_address"`
	CountyAddress  string    `json:"county_address"`
}

// MalformedKey is a candidate match whose keys could not be read as
// integers. It is reported instead of silently dropped.
type MalformedKey struct {
	MLS    string    `json:"mls"`
	Major  string    `json:"major"`
	Minor  string    `json:"minor"`
	Kind   MatchKind `json:"kind"`
	Reason string    `json:"reason"`
}
