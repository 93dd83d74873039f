package table

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	input := "\ufeffMajor , Minor,Address\n100,1,123 Main St\n200,2\n"
	tb, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Major", "Minor", "Address"}, tb.Columns())
	require.Equal(t, 2, tb.Len())
	assert.Equal(t, "123 Main St", tb.Value(0, "Address"))
	assert.Equal(t, "", tb.Value(1, "Address"))
}

func TestReadCSV_Limit(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("n\n")
	for i := range 500 {
		sb.WriteString(strings.Repeat("x", i%7+1) + "\n")
	}

	tb, err := ReadCSV(context.Background(), strings.NewReader(sb.String()), CSVOptions{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, tb.Len())
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader("a\n"), CSVOptions{Limit: -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative limit")

	_, err = ReadCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing header")

	_, err = ReadCSV(context.Background(), strings.NewReader("a,a\n1,2\n"), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate column")
}

func TestReadCSVFile_Latin1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "EXTR_Parcel.csv")
	data := append([]byte("Major,PropName\n100,"), 'C', 'a', 'f', 0xE9, '\n')
	require.NoError(t, os.WriteFile(path, data, 0o644))

	tb, err := ReadCSVFile(context.Background(), path, CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Café", tb.Value(0, "PropName"))
}

func TestReadCSVFile_Missing(t *testing.T) {
	_, err := ReadCSVFile(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), CSVOptions{})
	require.Error(t, err)
}
