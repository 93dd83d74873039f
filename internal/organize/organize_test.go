package organize

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/housing-cli/internal/table"
)

func testInputs() Inputs {
	return Inputs{
		Sales: table.MustNew(
			[]string{"Major", "Minor", "DocumentDate", "SalePrice", "PropertyType", "PrincipalUse", "SaleReason"},
			[][]string{
				{"100", "1", "03/15/2015", "500000", "11", "6", "1"},
				{"      ", "", "03/15/2015", "1", "11", "6", "1"},
				{"200", "2", "06/01/2012", "400000", "3", "6", "1"},
				{"300", "3", "01/01/2009", "300000", "11", "6", "1"},
				{"400", "4", "05/05/2018", "700000", "11", "6", "1"},
				{"500", "5", "07/07/2016", "650000", "11", "6", "1"},
				{"600", "6", "08/08/2019", "800000", "11", "6", "1"},
				{"000700", "7", "01/01/2020", "900000", " 11", "6", "1"},
				{"800", "8", "02/02/2017", "550000", "11", "6", "1"},
			}),
		Buildings: table.MustNew(
			[]string{"Major", "Minor", "NbrLivingUnits", "Address", "ZipCode", "BldgGrade"},
			[][]string{
				{"100", "1", "1", "123 Main St", "98101", "7"},
				{"300", "3", "1", "3 Old Rd", "98101", "7"},
				{"400", "4", "1", "4 Far Rd", "98102", "7"},
				{"500", "5", "2", "5 Duplex Ln", "98101", "7"},
				{"700", "7", "1", "7 Last St", "98101-1234", "8"},
				{"800", "8", "1", "8 Comm Way", "98101", "99"},
				{"900", "9", "1", "9 Nowhere", "12345", "7"},
			}),
		Parcels: table.MustNew(
			[]string{"Major", "Minor", "PropType", "PresentUse"},
			[][]string{
				{"100", "1", "R", "2"},
				{"300", "3", "R", "2"},
				{"400", "4", "R", "2"},
				{"500", "5", "R", "2"},
				{"700", "7", "R", "2"},
				{"800", "8", "C", "2"},
			}),
		Lookup: table.MustNew(
			[]string{"LUType", "LUItem", "LUDescription"},
			[][]string{
				{"2", "6", "RESIDENTIAL  "},
				{"5", "1", "None"},
				{"82", "7", "Average"},
				{"82", "8", "Good"},
				{"102", "2", "Single Family(Res Use/Zone)"},
			}),
	}
}

func testRequest() Request {
	return Request{
		Zips:  []string{"98101"},
		Start: time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newOrganizer(t *testing.T) *Organizer {
	t.Helper()
	o, err := New(nil)
	require.NoError(t, err)
	return o
}

func TestOrganize(t *testing.T) {
	out, err := newOrganizer(t).Organize(testInputs(), testRequest())
	require.NoError(t, err)

	require.Equal(t, 3, out.Len())
	assert.Equal(t, "100", out.Value(0, "Major"))
	assert.Equal(t, "700", out.Value(1, "Major"), "keys canonicalized, end date inclusive")
	assert.Equal(t, "800", out.Value(2, "Major"))

	assert.Equal(t, "RESIDENTIAL", out.Value(0, "Principal Use"))
	assert.Equal(t, "None", out.Value(0, "Sale Reason"))
	assert.Equal(t, "Average", out.Value(0, "Building Grade"))
	assert.Equal(t, "Single Family(Res Use/Zone)", out.Value(0, "Present Use"))
	assert.Equal(t, "123 Main St", out.Value(0, "Address"))
	assert.Equal(t, "98101", out.Value(0, "ZipCode"))
	assert.Equal(t, "03/15/2015", out.Value(0, "Document Date"))

	assert.Equal(t, "Good", out.Value(1, "Building Grade"))
	assert.Equal(t, "98101-1234", out.Value(1, "ZipCode"))

	assert.Equal(t, "", out.Value(2, "Building Grade"), "unknown code")
	assert.Equal(t, "", out.Value(2, "Present Use"), "non-residential parcel not attached")

	assert.True(t, out.Has("Property Type"))
	assert.False(t, out.Has("Property Type_parcel"))
}

func TestOrganize_MultipleZips(t *testing.T) {
	req := testRequest()
	req.Zips = []string{"98101", "98102"}
	out, err := newOrganizer(t).Organize(testInputs(), req)
	require.NoError(t, err)
	assert.Equal(t, 4, out.Len())
}

func TestOrganize_Validation(t *testing.T) {
	day := func(y, m, d int) time.Time { return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"unknown zip", Request{Zips: []string{"98199"}, Start: day(2010, 1, 1), End: day(2020, 1, 1)}, ErrInvalidZip},
		{"non king county zip", Request{Zips: []string{"12345"}, Start: day(2010, 1, 1), End: day(2020, 1, 1)}, ErrInvalidZip},
		{"before records", Request{Zips: []string{"98101"}, Start: day(2005, 1, 1), End: day(2020, 1, 1)}, ErrBeforeRecords},
		{"after records", Request{Zips: []string{"98101"}, Start: day(2021, 1, 1), End: day(2022, 1, 1)}, ErrAfterRecords},
		{"start after end", Request{Zips: []string{"98101"}, Start: day(2015, 6, 1), End: day(2015, 1, 1)}, ErrDateOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newOrganizer(t).Organize(testInputs(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOrganize_NoZips(t *testing.T) {
	req := testRequest()
	req.Zips = nil
	_, err := newOrganizer(t).Organize(testInputs(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one zip")
}

func TestOrganize_NoSaleDates(t *testing.T) {
	in := testInputs()
	in.Sales = table.MustNew(
		[]string{"Major", "Minor", "DocumentDate", "PropertyType"},
		[][]string{{"100", "1", "not a date", "11"}})
	_, err := newOrganizer(t).Organize(in, testRequest())
	assert.ErrorIs(t, err, ErrNoSaleDates)
}

func TestOrganize_MissingInputs(t *testing.T) {
	in := testInputs()
	in.Lookup = nil
	_, err := newOrganizer(t).Organize(in, testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup table is required")

	in = testInputs()
	in.Buildings = table.MustNew([]string{"Major", "Minor"}, nil)
	_, err = newOrganizer(t).Organize(in, testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ZipCode")
}

func TestValidZips(t *testing.T) {
	b := table.MustNew([]string{"ZipCode"}, [][]string{
		{"98101"}, {"98101-1234"}, {" 98102 "}, {"12345"}, {"9810"}, {""}, {"98103-12"},
	})
	assert.Equal(t, []string{"98101", "98102"}, ValidZips(b))
}

func TestValueEquals(t *testing.T) {
	assert.True(t, valueEquals(" 11", "11"))
	assert.True(t, valueEquals("011", "11"))
	assert.True(t, valueEquals("1.0", "1"))
	assert.True(t, valueEquals("R", "R"))
	assert.False(t, valueEquals("C", "R"))
	assert.False(t, valueEquals("", "1"))
}

func TestParseDate(t *testing.T) {
	want := time.Date(2015, 3, 5, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"03/05/2015", "3/5/2015", "2015-03-05", " 2015-03-05T00:00:00 "} {
		got, err := ParseDate(s)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), s)
	}
	_, err := ParseDate("March 5")
	assert.Error(t, err)
}

func TestParseCode(t *testing.T) {
	n, err := parseCode(" 82 ")
	require.NoError(t, err)
	assert.Equal(t, 82, n)

	n, err = parseCode("7.0")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = parseCode("7.5")
	assert.Error(t, err)
	_, err = parseCode("")
	assert.Error(t, err)
}

func TestDefaultSchema(t *testing.T) {
	s, err := DefaultSchema()
	require.NoError(t, err)
	assert.Equal(t, "Document Date", s.DateColumn)
	assert.Len(t, s.Lookups, 9)
	assert.Equal(t, 102, s.Lookups["Present Use"])
	assert.Len(t, s.Filters, 3)
	assert.Equal(t, "Number Living Units", s.Columns[SourceBuilding]["NbrLivingUnits"])
}

func TestLoadSchema(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
date_column: Sold
lookups:
  Grade: 82
filters:
  - source: building
    column: Units
    equals: "1"
`), 0o644))
	s, err := LoadSchema(good)
	require.NoError(t, err)
	assert.Equal(t, "Sold", s.DateColumn)
	assert.Equal(t, 82, s.Lookups["Grade"])

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("date_column: Sold\nfilters:\n  - source: permits\n    column: X\n"), 0o644))
	_, err = LoadSchema(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source")

	noDate := filepath.Join(dir, "nodate.yaml")
	require.NoError(t, os.WriteFile(noDate, []byte("lookups: {}\n"), 0o644))
	_, err = LoadSchema(noDate)
	require.Error(t, err)

	_, err = LoadSchema(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
