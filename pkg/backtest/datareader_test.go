package backtest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

const pairCSV = `date,AAA,BBB
2024-01-02,100.0,50.0
2024-01-03,101.5,50.5
2024-01-04,99.8,49.9
`

func TestHistoricalDataReader_Read(t *testing.T) {
	reader := NewHistoricalDataReader(nil)

	data, err := reader.Read(strings.NewReader(pairCSV), PairSource{
		TimeColumn: "date",
		Column1:    "aaa",
		Column2:    "BBB",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, data.Len())
	assert.Equal(t, []string{"2024-01-02", "2024-01-03", "2024-01-04"}, data.Timestamps)
	assert.Equal(t, []float64{100.0, 101.5, 99.8}, data.Price1)
	assert.Equal(t, []float64{50.0, 50.5, 49.9}, data.Price2)
}

func TestHistoricalDataReader_NoTimeColumn(t *testing.T) {
	data, err := NewHistoricalDataReader(nil).Read(strings.NewReader(pairCSV), PairSource{Column1: "AAA", Column2: "BBB"})
	require.NoError(t, err)
	assert.Nil(t, data.Timestamps)
	assert.Equal(t, 3, data.Len())
}

func TestHistoricalDataReader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		csv     string
		src     PairSource
		wantErr error
	}{
		{
			name:    "missing column",
			csv:     pairCSV,
			src:     PairSource{Column1: "AAA", Column2: "CCC"},
			wantErr: stats.ErrConfiguration,
		},
		{
			name:    "empty column name",
			csv:     pairCSV,
			src:     PairSource{Column1: "AAA"},
			wantErr: stats.ErrConfiguration,
		},
		{
			name:    "non-positive price",
			csv:     "AAA,BBB\n100,50\n0,51\n",
			src:     PairSource{Column1: "AAA", Column2: "BBB"},
			wantErr: stats.ErrParameter,
		},
		{
			name:    "unparsable price",
			csv:     "AAA,BBB\n100,abc\n",
			src:     PairSource{Column1: "AAA", Column2: "BBB"},
			wantErr: stats.ErrParameter,
		},
		{
			name:    "infinite price",
			csv:     "AAA,BBB\n100,+Inf\n",
			src:     PairSource{Column1: "AAA", Column2: "BBB"},
			wantErr: stats.ErrParameter,
		},
		{
			name:    "header only",
			csv:     "AAA,BBB\n",
			src:     PairSource{Column1: "AAA", Column2: "BBB"},
			wantErr: stats.ErrEmptySeries,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHistoricalDataReader(nil).Read(strings.NewReader(tt.csv), tt.src)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestHistoricalDataReader_SkipInvalid(t *testing.T) {
	csv := "AAA,BBB\n100,50\nNaN,51\n-1,52\n102,53\n"
	data, err := NewHistoricalDataReader(nil).Read(strings.NewReader(csv), PairSource{
		Column1:     "AAA",
		Column2:     "BBB",
		SkipInvalid: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 102}, data.Price1)
	assert.Equal(t, []float64{50, 53}, data.Price2)
}

func TestHistoricalDataReader_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pair.csv")
	require.NoError(t, os.WriteFile(path, []byte(pairCSV), 0644))

	reader := NewHistoricalDataReader(nil)
	data, err := reader.Load(PairSource{Path: path, Column1: "AAA", Column2: "BBB"})
	require.NoError(t, err)
	assert.Equal(t, 3, data.Len())

	_, err = reader.Load(PairSource{Path: filepath.Join(t.TempDir(), "missing.csv"), Column1: "AAA", Column2: "BBB"})
	assert.Error(t, err)
}
