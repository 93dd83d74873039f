// Package kingcounty downloads the King County Assessor's bulk data extracts.
package kingcounty

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultBaseURL hosts the assessor's zipped CSV extracts.
const DefaultBaseURL = "https://aqua.kingcounty.gov/extranet/assessor"

// Datasets used by the organizer.
const (
	DatasetSales               = "Real Property Sales"
	DatasetResidentialBuilding = "Residential Building"
	DatasetParcel              = "Parcel"
	DatasetLookup              = "Lookup"
)

// ErrUnknownDataset is returned for a name outside the assessor catalog.
var ErrUnknownDataset = eris.New("unknown assessor dataset")

var catalog = []string{
	"Accessory",
	"Apartment Complex",
	"Change History",
	"Change History Detail",
	"Commercial Building",
	"Condo Complex and Units",
	"District Levy Reference",
	"Environmental Restriction",
	"Home Improvement Applications",
	"Home Improvement Exemptions",
	"Legal",
	"Lookup",
	"Notes",
	"Parcel",
	"Permit",
	"Real Property Account",
	"Real Property Appraisal History",
	"Real Property Sales",
	"Residential Building",
	"Review History",
	"Tax Data",
	"Unit Breakdown",
	"Vacant Lot",
	"Value History",
}

// Datasets returns the published dataset names.
func Datasets() []string {
	return slices.Clone(catalog)
}

// Resolve maps a user-supplied name to its catalog entry. URL-encoded spaces
// are accepted and case is ignored.
func Resolve(name string) (string, error) {
	want := strings.TrimSpace(strings.ReplaceAll(name, "%20", " "))
	for _, d := range catalog {
		if strings.EqualFold(d, want) {
			return d, nil
		}
	}
	return "", eris.Wrapf(ErrUnknownDataset, "kingcounty: %q", name)
}

// DatasetURL returns the archive URL of a catalog dataset.
func DatasetURL(baseURL, dataset string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.ReplaceAll(dataset, " ", "%20") + ".zip"
}

// cacheName is the archive's file name in the cache directory.
func cacheName(dataset string) string {
	return strings.ReplaceAll(dataset, " ", "_") + ".zip"
}
