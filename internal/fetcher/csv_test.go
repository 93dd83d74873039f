package fetcher

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func TestStreamCSV_Basic(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("a,b,c\n1,2,3\n"), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b", "c"}, {"1", "2", "3"}}, rows)
}

func TestStreamCSV_Header(t *testing.T) {
	headerCh := make(chan []string, 1)
	input := "Major,Minor,Address\n100,1,123 Main St\n200,2,456 Oak Ave\n"

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, []string{"100", "1", "123 Main St"}, rows[0])
	assert.Equal(t, []string{"Major", "Minor", "Address"}, <-headerCh)
}

func TestStreamCSV_HeaderWithoutChannel(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("h1,h2\nx,y\n"), CSVOptions{HasHeader: true})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"x", "y"}}, rows)
}

func TestStreamCSV_Options(t *testing.T) {
	tests := []struct {
		name  string
		input string
		opts  CSVOptions
		want  [][]string
	}{
		{
			name:  "pipe delimiter",
			input: "a|b\n1|2\n",
			opts:  CSVOptions{Delimiter: '|'},
			want:  [][]string{{"a", "b"}, {"1", "2"}},
		},
		{
			name:  "trim space",
			input: " a , b \n 1 , 2 \n",
			opts:  CSVOptions{TrimSpace: true},
			want:  [][]string{{"a", "b"}, {"1", "2"}},
		},
		{
			name:  "comment lines",
			input: "# generated\na,b\n1,2\n",
			opts:  CSVOptions{Comment: '#'},
			want:  [][]string{{"a", "b"}, {"1", "2"}},
		},
		{
			name:  "ragged rows",
			input: "a,b,c\n1,2\n3,4,5,6\n",
			want:  [][]string{{"a", "b", "c"}, {"1", "2"}, {"3", "4", "5", "6"}},
		},
		{
			name:  "lazy quotes",
			input: "a,b\n1,say \"hi\"\n",
			opts:  CSVOptions{LazyQuotes: true},
			want:  [][]string{{"a", "b"}, {"1", `say "hi"`}},
		},
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(tt.input), tt.opts)
			rows, err := collectRows(t, rowCh, errCh)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rows)
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestStreamCSV_ReadError(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), failingReader{}, CSVOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestStreamCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a,b\n1,2\n"), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Empty(t, rows)
	assert.Contains(t, err.Error(), "context canceled")
}

func TestStreamCSV_CancelMidStream(t *testing.T) {
	var sb strings.Builder
	for range 10000 {
		sb.WriteString("a,b,c\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rowCh, errCh := StreamCSV(ctx, strings.NewReader(sb.String()), CSVOptions{})

	n := 0
	for range rowCh {
		n++
		if n == 5 {
			cancel()
		}
	}
	err := <-errCh
	require.Error(t, err)
	assert.Less(t, n, 10000)
}
