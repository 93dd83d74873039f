package organize

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Source names used as schema keys.
const (
	SourceSale     = "sale"
	SourceBuilding = "building"
	SourceParcel   = "parcel"
	SourceLookup   = "lookup"
)

// Lookup table columns after renaming.
const (
	ColLookupType        = "Look Up Type"
	ColLookupItem        = "Look Up Item"
	ColLookupDescription = "Look Up Description"
)

//go:embed schema.yaml
var defaultSchema []byte

// Schema describes how the assessor extracts are cleaned and merged.
type Schema struct {
	// Columns maps source -> raw column -> readable column.
	Columns map[string]map[string]string `yaml:"columns"`

	// Lookups maps a readable column to the lookup type its codes expand
	// through.
	Lookups map[string]int `yaml:"lookups"`

	Filters []Filter `yaml:"filters"`

	// DateColumn is the sale column holding the document date.
	DateColumn string `yaml:"date_column"`
}

// Filter keeps rows of one source whose column equals a value. Numeric
// values compare numerically so " 11" and "011" both equal "11".
type Filter struct {
	Source string `yaml:"source"`
	Column string `yaml:"column"`
	Equals string `yaml:"equals"`

	// Drop removes the column once the filter has been applied.
	Drop bool `yaml:"drop"`
}

// DefaultSchema returns the embedded schema.
func DefaultSchema() (*Schema, error) {
	return parseSchema(defaultSchema)
}

// LoadSchema reads a schema from a YAML file.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "organize: read schema %s", path)
	}
	return parseSchema(data)
}

func parseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "organize: parse schema")
	}
	if s.DateColumn == "" {
		return nil, eris.New("organize: schema: date_column is required")
	}
	for i, f := range s.Filters {
		switch f.Source {
		case SourceSale, SourceBuilding, SourceParcel:
		default:
			return nil, eris.Errorf("organize: schema: filter %d: unknown source %q", i, f.Source)
		}
		if f.Column == "" {
			return nil, eris.Errorf("organize: schema: filter %d: column is required", i)
		}
	}
	return &s, nil
}
