package join

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/housing-cli/internal/table"
)

// Required columns of each input.
const (
	ColMajor   = "Major"
	ColMinor   = "Minor"
	ColAddress = "Address"
	ColZipCode = "ZipCode"

	ColMLS        = "MLS#"
	ColListingAdr = "ADDRESS"
	ColListingZip = "ZIP OR POSTAL CODE"
)

// Input roles, as named in validation errors.
const (
	RoleCounty  = "county"
	RoleListing = "listing"
)

var (
	countyColumns  = []string{ColMajor, ColMinor, ColAddress, ColZipCode}
	listingColumns = []string{ColMLS, ColListingAdr, ColListingZip}
)

var (
	// ErrEmptyTable is the reason for a nil or row-less input.
	ErrEmptyTable = eris.New("table is empty")

	// ErrMissingColumn is the reason for an input lacking a required column.
	ErrMissingColumn = eris.New("missing required column")
)

// ValidationError reports an input table that cannot be joined.
type ValidationError struct {
	Role   string
	Column string
	Reason error
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("join: %s table: %v %q", e.Role, e.Reason, e.Column)
	}
	return fmt.Sprintf("join: %s table: %v", e.Role, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// CountyTable is an assessor table known to carry Major, Minor, Address, and
// ZipCode.
type CountyTable struct {
	*table.Table
}

// ListingTable is a listing table known to carry MLS#, ADDRESS, and
// ZIP OR POSTAL CODE.
type ListingTable struct {
	*table.Table
}

// NewCountyTable validates t as the county side of a join.
func NewCountyTable(t *table.Table) (*CountyTable, error) {
	if err := validate(RoleCounty, t, countyColumns); err != nil {
		return nil, err
	}
	return &CountyTable{Table: t}, nil
}

// NewListingTable validates t as the listing side of a join.
func NewListingTable(t *table.Table) (*ListingTable, error) {
	if err := validate(RoleListing, t, listingColumns); err != nil {
		return nil, err
	}
	return &ListingTable{Table: t}, nil
}

func validate(role string, t *table.Table, required []string) error {
	if t.Empty() {
		return &ValidationError{Role: role, Reason: ErrEmptyTable}
	}
	if missing := t.Missing(required...); len(missing) > 0 {
		return &ValidationError{Role: role, Column: missing[0], Reason: ErrMissingColumn}
	}
	return nil
}
